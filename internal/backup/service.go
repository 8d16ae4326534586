package backup

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
)

const (
	// DefaultRetentionDays is used by Cleanup when no retention is given.
	DefaultRetentionDays = 30

	// maxTrackedOperations bounds the finished operations kept for polling.
	maxTrackedOperations = 64
)

// Store is the state a backup captures.
type Store interface {
	service.TokenStore
	service.CampaignStore
}

// Config configures a Service.
type Config struct {
	Dir string
	// Secret is the operator secret the master key is derived from. Empty
	// disables encryption.
	Secret        []byte
	Algorithm     string
	Encrypt       bool
	Compress      bool
	RetentionDays int
}

// Service creates, validates and restores backups. It reads the live store
// through its public methods only and never holds a lock the validator
// needs.
type Service struct {
	cfg     Config
	alg     Algorithm
	repo    *Repository
	keys    *keyring
	store   Store
	blocks  security.BlockList
	now     func() time.Time
	logger  *slog.Logger
	metrics *metric.Registry

	restoreMu sync.Mutex // one restore writes at a time

	opsMu sync.Mutex
	ops   map[string]*RecoveryOperation
	order []string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService derives the master key and opens the repository.
func NewService(cfg Config, store Store, blocks security.BlockList, opts ...Option) (*Service, error) {
	if store == nil || blocks == nil {
		return nil, errors.New("backup: store and block list are required")
	}
	alg, err := ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	keys, err := newKeyring(cfg.Secret)
	if err != nil {
		return nil, err
	}
	if cfg.Encrypt && keys == nil {
		return nil, ErrNoSecret
	}
	repo, err := NewRepository(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	s := &Service{
		cfg:    cfg,
		alg:    alg,
		repo:   repo,
		keys:   keys,
		store:  store,
		blocks: blocks,
		now:    time.Now,
		logger: slog.Default(),
		ops:    make(map[string]*RecoveryOperation),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// ============================================================================
// Create
// ============================================================================

// CreateBackup snapshots the requested data types and stores the result.
func (s *Service) CreateBackup(ctx context.Context, opts Options) (b *Backup, err error) {
	start := time.Now()
	defer func() {
		var size int64
		if b != nil {
			size = b.Metadata.Size
		}
		s.metrics.ObserveBackup(err, size, time.Since(start))
	}()

	types := AllDataTypes
	if len(opts.DataTypes) > 0 {
		names := make([]string, len(opts.DataTypes))
		for i, dt := range opts.DataTypes {
			names[i] = string(dt)
		}
		if types, err = ParseDataTypes(names); err != nil {
			return nil, err
		}
	}
	encrypt := s.cfg.Encrypt
	if opts.Encrypt != nil {
		encrypt = *opts.Encrypt
	}
	if encrypt && s.keys == nil {
		return nil, domain.ErrInvalidArgument.WithDetails(ErrNoSecret.Error())
	}
	compressed := s.cfg.Compress
	if opts.Compress != nil {
		compressed = *opts.Compress
	}

	now := s.now().UTC()
	doc, err := s.capture(ctx, types, now)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		Version:      FormatVersion,
		ID:           newBackupID(now),
		CreatedAt:    now,
		DataTypes:    types,
		RecordCounts: doc.counts(types),
		Compressed:   compressed,
	}
	if encrypt {
		meta.Encryption = &Encryption{Algorithm: s.alg, KeyDerivation: KeyDerivation}
	}
	payload, err := encode(doc, &meta, s.keys)
	if err != nil {
		return nil, err
	}
	meta.Checksum = checksum(payload)
	meta.Size = int64(len(payload))

	if err := s.repo.Save(&meta, payload); err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	s.logger.Info("backup created",
		"backup_id", meta.ID,
		"data_types", joinTypes(types),
		"guests", meta.RecordCounts[DataGuests],
		"size", meta.Size,
		"encrypted", encrypt,
		"compressed", compressed,
		"duration", time.Since(start))
	return &Backup{Metadata: meta, Payload: payload}, nil
}

func newBackupID(now time.Time) string {
	return idPrefix + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String())
}

func (s *Service) capture(ctx context.Context, types []DataType, now time.Time) (*document, error) {
	doc := &document{Version: FormatVersion}
	for _, dt := range types {
		switch dt {
		case DataCampaign:
			c, err := s.store.GetCampaign(ctx)
			if err != nil && !errors.Is(err, domain.ErrCampaignNotFound) {
				return nil, domain.ErrStorageError.WithCause(err)
			}
			doc.Campaign = c
		case DataGuests:
			guests, err := s.store.List(ctx, service.GuestFilter{})
			if err != nil {
				return nil, domain.ErrStorageError.WithCause(err)
			}
			doc.Guests = guests
		case DataBlockList:
			entries, err := s.blocks.List(ctx, now)
			if err != nil {
				return nil, domain.ErrStorageError.WithCause(err)
			}
			doc.BlockList = entries
		}
	}
	return doc, nil
}

// List returns stored backups, newest first.
func (s *Service) List() ([]*Metadata, error) {
	metas, skipped, err := s.repo.List()
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	for _, id := range skipped {
		s.logger.Warn("skipping unreadable backup metadata", "backup_id", id)
	}
	return metas, nil
}

// Metadata returns one backup's metadata.
func (s *Service) Metadata(id string) (*Metadata, error) {
	return s.repo.Metadata(id)
}

// ============================================================================
// Validate and plan
// ============================================================================

// ValidateBackup checks payload against backup id's metadata. A nil payload
// is read from the repository. Count mismatches are warnings and leave
// IsValid set; a checksum or structure failure clears it.
func (s *Service) ValidateBackup(id string, payload []byte) (Validation, error) {
	v := Validation{Warnings: []string{}}
	meta, err := s.repo.Metadata(id)
	if err != nil {
		return v, err
	}
	if payload == nil {
		if payload, err = s.repo.Payload(id); err != nil {
			return v, err
		}
	}

	v.ChecksumMatch = checksum(payload) == meta.Checksum
	if !v.ChecksumMatch {
		v.Errors = append(v.Errors, "checksum mismatch")
		return v, nil
	}
	if int64(len(payload)) != meta.Size {
		v.Warnings = append(v.Warnings, fmt.Sprintf("size %d differs from recorded %d", len(payload), meta.Size))
	}

	doc, err := decode(payload, meta, s.keys)
	if err != nil {
		v.Errors = append(v.Errors, err.Error())
		return v, nil
	}
	v.StructureValid = true
	v.IsValid = true

	issues := integrityIssues(meta, doc, meta.DataTypes)
	v.DataIntegrity = len(issues) == 0
	v.Warnings = append(v.Warnings, issues...)
	return v, nil
}

// integrityIssues compares doc with the metadata counts and checks every
// guest record.
func integrityIssues(meta *Metadata, doc *document, types []DataType) []string {
	var out []string
	for _, dt := range types {
		if got, want := doc.count(dt), meta.RecordCounts[dt]; got != want {
			out = append(out, fmt.Sprintf("%s: %d records, metadata says %d", dt, got, want))
		}
	}
	if !slices.Contains(types, DataGuests) {
		return out
	}
	invalid := 0
	for _, g := range doc.Guests {
		if g == nil || g.Validate() != nil {
			invalid++
		}
	}
	if invalid > 0 {
		out = append(out, fmt.Sprintf("guests: %d invalid records", invalid))
	}
	if slices.Contains(types, DataCampaign) && doc.Campaign == nil && len(doc.Guests) > 0 {
		out = append(out, "guests present without a campaign")
	}
	return out
}

// Per-step estimates used by GenerateRecoveryPlan.
const (
	planStepBase      = 5 * time.Millisecond
	planBytesPerSec   = 200 << 20
	planGuestCost     = 40 * time.Microsecond
	planBlockListCost = 20 * time.Microsecond
)

// GenerateRecoveryPlan describes a full restore of backup id from its
// metadata alone. It reads no payload and changes nothing.
func (s *Service) GenerateRecoveryPlan(id string) (*RecoveryPlan, error) {
	meta, err := s.repo.Metadata(id)
	if err != nil {
		return nil, err
	}
	byteCost := time.Duration(meta.Size) * time.Second / planBytesPerSec

	plan := &RecoveryPlan{BackupID: meta.ID, Risks: []string{}}
	plan.Steps = append(plan.Steps,
		PlanStep{Name: StepVerifyChecksum, Estimated: planStepBase + byteCost, Description: "verify SHA-256 of the stored payload"},
		PlanStep{Name: StepDecode, Estimated: planStepBase + 2*byteCost, Description: decodeDescription(meta)},
	)
	for _, dt := range orderTypes(typeSet(meta.DataTypes)) {
		n := meta.RecordCounts[dt]
		est := planStepBase
		switch dt {
		case DataGuests:
			est += time.Duration(n) * planGuestCost
		case DataBlockList:
			est += time.Duration(n) * planBlockListCost
		}
		plan.Steps = append(plan.Steps, PlanStep{
			Name:        restoreStepName(dt),
			DataType:    dt,
			Records:     n,
			Estimated:   est,
			Description: fmt.Sprintf("restore %d %s record(s)", n, dt),
		})
	}
	plan.Steps = append(plan.Steps, PlanStep{Name: StepFinalize, Estimated: planStepBase, Description: "record results"})
	for _, st := range plan.Steps {
		plan.TotalEstimatedTime += st.Estimated
	}

	if meta.Encrypted() {
		if s.keys == nil {
			plan.Risks = append(plan.Risks, "backup is encrypted and no secret is configured; decode will fail")
		} else {
			plan.Risks = append(plan.Risks, "backup is encrypted; the secret must match the one used at creation")
		}
	}
	if meta.hasType(DataGuests) && !meta.hasType(DataCampaign) {
		plan.Risks = append(plan.Risks, "backup has guests but no campaign; a live campaign must exist")
	}
	if meta.hasType(DataGuests) {
		if meta.RecordCounts[DataGuests] == 0 {
			plan.Risks = append(plan.Risks, "backup contains no guest records")
		}
		plan.Risks = append(plan.Risks, "restoring guests with overwrite resets used flags to the backup state")
	}
	if meta.hasType(DataBlockList) {
		plan.Risks = append(plan.Risks, "restoring the block list re-blocks identifiers that were unblocked since")
	}
	if age := s.now().Sub(meta.CreatedAt); age > domain.DefaultTokenTTL {
		plan.Risks = append(plan.Risks, fmt.Sprintf("backup is %d days old; restored tokens may already be expired", int(age.Hours()/24)))
	}
	return plan, nil
}

func decodeDescription(meta *Metadata) string {
	var parts []string
	if meta.Encrypted() {
		parts = append(parts, "decrypt ("+string(meta.Encryption.Algorithm)+")")
	}
	if meta.Compressed {
		parts = append(parts, "decompress (zstd)")
	}
	parts = append(parts, "parse")
	return strings.Join(parts, ", ")
}

func typeSet(types []DataType) map[DataType]bool {
	m := make(map[DataType]bool, len(types))
	for _, dt := range types {
		m[dt] = true
	}
	return m
}

func joinTypes(types []DataType) string {
	parts := make([]string, len(types))
	for i, dt := range types {
		parts[i] = string(dt)
	}
	return strings.Join(parts, ",")
}

// ============================================================================
// Cleanup
// ============================================================================

// Cleanup deletes backups older than retentionDays. Zero or less uses the
// configured retention.
func (s *Service) Cleanup(retentionDays int) (CleanupResult, error) {
	if retentionDays <= 0 {
		retentionDays = s.cfg.RetentionDays
	}
	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	metas, _, err := s.repo.List()
	if err != nil {
		return CleanupResult{}, domain.ErrStorageError.WithCause(err)
	}
	var res CleanupResult
	var errs []error
	for _, m := range metas {
		if !m.CreatedAt.Before(cutoff) {
			continue
		}
		freed, err := s.repo.Delete(m.ID)
		res.ReclaimedBytes += freed
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res.Deleted++
	}
	if res.Deleted > 0 {
		s.logger.Info("backups cleaned up", "deleted", res.Deleted, "reclaimed_bytes", res.ReclaimedBytes, "retention_days", retentionDays)
	}
	if len(errs) > 0 {
		return res, domain.ErrStorageError.WithCause(errors.Join(errs...))
	}
	return res, nil
}
