package backup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
)

// RestoreFromBackup restores backup id on the calling goroutine and returns
// the finished operation. A nil payload is read from the repository.
//
// The checksum of the payload is verified first in every mode, including
// DryRun. Each data type is written in one batch, so a failure or a
// cancellation never leaves a type half restored.
func (s *Service) RestoreFromBackup(ctx context.Context, id string, payload []byte, opts RestoreOptions) *RecoveryOperation {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	op := s.register(id, opts.DryRun, cancel)
	s.run(ctx, op, id, payload, opts)
	return op
}

// StartRestore runs the restore on its own goroutine and returns the
// operation immediately for polling.
func (s *Service) StartRestore(id string, opts RestoreOptions) *RecoveryOperation {
	ctx, cancel := context.WithCancel(context.Background())
	op := s.register(id, opts.DryRun, cancel)
	go func() {
		defer cancel()
		s.run(ctx, op, id, nil, opts)
	}()
	return op
}

// Operation returns a tracked operation by id.
func (s *Service) Operation(id string) (*RecoveryOperation, error) {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, domain.ErrRecoveryNotFound
	}
	return op, nil
}

// Operations returns tracked operations, oldest first.
func (s *Service) Operations() []*RecoveryOperation {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	out := make([]*RecoveryOperation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.ops[id])
	}
	return out
}

func (s *Service) register(backupID string, dryRun bool, cancel context.CancelFunc) *RecoveryOperation {
	now := s.now()
	id := "rst-" + strings.ToLower(ulid.Make().String())
	op := newOperation(id, backupID, dryRun, now, cancel)

	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	// Drop the oldest finished operations beyond the bound.
	for len(s.order) >= maxTrackedOperations {
		victim := -1
		for i, oid := range s.order {
			if s.ops[oid].Status().Status.Terminal() {
				victim = i
				break
			}
		}
		if victim < 0 {
			break
		}
		delete(s.ops, s.order[victim])
		s.order = slices.Delete(s.order, victim, victim+1)
	}
	s.ops[id] = op
	s.order = append(s.order, id)
	return op
}

func (s *Service) run(ctx context.Context, op *RecoveryOperation, id string, payload []byte, opts RestoreOptions) {
	status := StatusFailed
	var failure string
	defer func() {
		op.finish(status, failure, s.now())
		st := op.Status()
		s.metrics.ObserveRestore(string(st.Status), st.DryRun)
		s.logger.Info("restore finished",
			"operation_id", st.ID,
			"backup_id", id,
			"status", st.Status,
			"dry_run", st.DryRun,
			"steps_completed", st.StepsCompleted,
			"errors", len(st.Errors))
	}()

	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()

	meta, err := s.repo.Metadata(id)
	if err != nil {
		failure = err.Error()
		return
	}
	types, err := s.selectTypes(ctx, meta, opts.SelectiveTypes)
	if err != nil {
		failure = err.Error()
		return
	}
	op.start(types)

	// verify_checksum: never skipped.
	op.beginStep(StepVerifyChecksum)
	started := s.now()
	if payload == nil {
		payload, err = s.repo.Payload(id)
	}
	if err == nil && checksum(payload) != meta.Checksum {
		err = domain.ErrBackupIntegrity.WithDetails("payload checksum does not match metadata")
	}
	if err != nil {
		op.endStep(s.stepFailed(StepVerifyChecksum, "", started, err))
		failure = err.Error()
		return
	}
	op.endStep(StepResult{Name: StepVerifyChecksum, Status: StepCompleted, StartedAt: started, FinishedAt: s.now()})

	if s.cancelled(ctx, &status, &failure, StepDecode) {
		return
	}

	// decode
	op.beginStep(StepDecode)
	started = s.now()
	doc, err := decode(payload, meta, s.keys)
	if err != nil {
		err = domain.ErrBackupCorrupt.WithCause(err)
		op.endStep(s.stepFailed(StepDecode, "", started, err))
		failure = err.Error()
		return
	}
	issues := integrityIssues(meta, doc, types)
	if len(issues) > 0 && opts.ValidateChecksum {
		err = domain.ErrBackupCorrupt.WithDetails(strings.Join(issues, "; "))
		op.endStep(s.stepFailed(StepDecode, "", started, err))
		failure = err.Error()
		return
	}
	op.endStep(StepResult{Name: StepDecode, Status: StepCompleted, Warnings: issues, StartedAt: started, FinishedAt: s.now()})

	for _, dt := range types {
		name := restoreStepName(dt)
		if s.cancelled(ctx, &status, &failure, name) {
			return
		}
		op.beginStep(name)
		started = s.now()
		n, warnings, err := s.restoreType(ctx, dt, doc, opts)
		if err != nil {
			r := s.stepFailed(name, dt, started, err)
			r.Warnings = warnings
			op.endStep(r)
			failure = fmt.Sprintf("%s: %v", name, err)
			return
		}
		op.endStep(StepResult{Name: name, DataType: dt, Status: StepCompleted, Records: n, Warnings: warnings, StartedAt: started, FinishedAt: s.now()})
	}

	if s.cancelled(ctx, &status, &failure, StepFinalize) {
		return
	}
	op.beginStep(StepFinalize)
	started = s.now()
	op.endStep(StepResult{Name: StepFinalize, Status: StepCompleted, StartedAt: started, FinishedAt: s.now()})
	status = StatusCompleted
}

func (s *Service) cancelled(ctx context.Context, status *Status, failure *string, next string) bool {
	if ctx.Err() == nil {
		return false
	}
	*status = StatusCancelled
	*failure = "cancelled before " + next
	return true
}

func (s *Service) stepFailed(name string, dt DataType, started time.Time, err error) StepResult {
	return StepResult{Name: name, DataType: dt, Status: StepFailed, Error: err.Error(), StartedAt: started, FinishedAt: s.now()}
}

// selectTypes returns the requested types in dependency order. A type
// missing from the backup, or one whose dependency is neither selected
// nor present in the live store, rejects the whole restore.
func (s *Service) selectTypes(ctx context.Context, meta *Metadata, requested []DataType) ([]DataType, error) {
	if len(requested) == 0 {
		requested = meta.DataTypes
	}
	set := make(map[DataType]bool, len(requested))
	for _, dt := range requested {
		if !slices.Contains(AllDataTypes, dt) {
			return nil, domain.ErrInvalidArgument.WithDetails("unknown data type: " + string(dt))
		}
		if !meta.hasType(dt) {
			return nil, domain.ErrInvalidArgument.WithDetails("backup does not contain " + string(dt))
		}
		set[dt] = true
	}
	for dt := range set {
		for _, dep := range dependencies[dt] {
			if set[dep] {
				continue
			}
			ok, err := s.livePresent(ctx, dep)
			if err != nil {
				return nil, domain.ErrStorageError.WithCause(err)
			}
			if !ok {
				return nil, domain.ErrBackupDependency.WithDetails(fmt.Sprintf("%s requires %s, which is neither selected nor present", dt, dep))
			}
		}
	}
	return orderTypes(set), nil
}

func (s *Service) livePresent(ctx context.Context, dt DataType) (bool, error) {
	switch dt {
	case DataCampaign:
		_, err := s.store.GetCampaign(ctx)
		if errors.Is(err, domain.ErrCampaignNotFound) {
			return false, nil
		}
		return err == nil, err
	}
	return true, nil
}

// restoreType writes one data type in a single batch and returns the
// number of records written (or that would be written in a dry run).
func (s *Service) restoreType(ctx context.Context, dt DataType, doc *document, opts RestoreOptions) (int, []string, error) {
	switch dt {
	case DataCampaign:
		return s.restoreCampaign(ctx, doc, opts)
	case DataGuests:
		return s.restoreGuests(ctx, doc, opts)
	case DataBlockList:
		return s.restoreBlockList(ctx, doc, opts)
	}
	return 0, nil, fmt.Errorf("unknown data type %q", dt)
}

func (s *Service) restoreCampaign(ctx context.Context, doc *document, opts RestoreOptions) (int, []string, error) {
	if doc.Campaign == nil {
		return 0, []string{"campaign: backup has no campaign"}, nil
	}
	if !opts.Overwrite {
		present, err := s.livePresent(ctx, DataCampaign)
		if err != nil {
			return 0, nil, err
		}
		if present {
			return 0, []string{"campaign: live campaign kept (overwrite not set)"}, nil
		}
	}
	if opts.DryRun {
		return 1, nil, nil
	}
	if err := s.store.PutCampaign(ctx, doc.Campaign); err != nil {
		return 0, nil, err
	}
	return 1, nil, nil
}

func (s *Service) restoreGuests(ctx context.Context, doc *document, opts RestoreOptions) (int, []string, error) {
	var warnings []string
	records := make([]*domain.GuestRecord, 0, len(doc.Guests))
	for _, g := range doc.Guests {
		if g == nil || g.Validate() != nil {
			continue
		}
		records = append(records, g)
	}
	if dropped := len(doc.Guests) - len(records); dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("guests: skipped %d invalid records", dropped))
	}

	mode := service.PutSkipExisting
	if opts.Overwrite {
		mode = service.PutOverwrite
	}
	if opts.DryRun {
		if opts.Overwrite {
			return len(records), warnings, nil
		}
		n := 0
		for _, g := range records {
			exists, err := s.store.Exists(ctx, g.Token)
			if err != nil {
				return 0, warnings, err
			}
			if !exists {
				n++
			}
		}
		return n, warnings, nil
	}
	n, err := s.store.BulkPut(ctx, records, mode)
	if err != nil {
		return 0, warnings, err
	}
	if skipped := len(records) - n; skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("guests: kept %d live records (overwrite not set)", skipped))
	}
	return n, warnings, nil
}

// restoreBlockList merges entries one identifier at a time. Blocks added
// while the restore runs are kept, and the live set is never swapped out,
// so lookups never see a blocked identifier as absent. A failure part way
// leaves the entries merged so far, which only adds blocks.
func (s *Service) restoreBlockList(ctx context.Context, doc *document, opts RestoreOptions) (int, []string, error) {
	now := s.now()
	n, expired, kept := 0, 0, 0
	for _, e := range doc.BlockList {
		if !e.Active(now) {
			expired++
			continue
		}
		if opts.DryRun {
			_, exists, err := s.blocks.Lookup(ctx, e.Identifier, now)
			if err != nil {
				return 0, nil, err
			}
			if exists && !opts.Overwrite {
				kept++
				continue
			}
			n++
			continue
		}
		stored, err := s.blocks.Merge(ctx, e, opts.Overwrite, now)
		if err != nil {
			return n, nil, err
		}
		if !stored {
			kept++
			continue
		}
		n++
	}
	var warnings []string
	if expired > 0 {
		warnings = append(warnings, fmt.Sprintf("blocklist: skipped %d expired entries", expired))
	}
	if kept > 0 {
		warnings = append(warnings, fmt.Sprintf("blocklist: kept %d live blocks", kept))
	}
	return n, warnings, nil
}
