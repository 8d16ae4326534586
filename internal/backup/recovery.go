package backup

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Status is the state of a RecoveryOperation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step names.
const (
	StepVerifyChecksum = "verify_checksum"
	StepDecode         = "decode"
	StepFinalize       = "finalize"
)

func restoreStepName(dt DataType) string {
	return "restore_" + string(dt)
}

// StepResult records one executed step.
type StepResult struct {
	Name       string     `json:"name"`
	DataType   DataType   `json:"dataType,omitempty"`
	Status     StepStatus `json:"status"`
	Records    int        `json:"records"`
	Error      string     `json:"error,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
}

// OperationStatus is a point-in-time copy of a RecoveryOperation.
type OperationStatus struct {
	ID              string           `json:"id"`
	BackupID        string           `json:"backupId"`
	Status          Status           `json:"status"`
	DryRun          bool             `json:"dryRun"`
	DataTypes       []DataType       `json:"dataTypes"`
	CurrentStep     string           `json:"currentStep,omitempty"`
	StepsCompleted  int              `json:"stepsCompleted"`
	TotalSteps      int              `json:"totalSteps"`
	Steps           []StepResult     `json:"steps"`
	Errors          []string         `json:"errors"`
	Warnings        []string         `json:"warnings"`
	RecoveredCounts map[DataType]int `json:"recoveredCounts"`
	StartedAt       time.Time        `json:"startedAt"`
	FinishedAt      time.Time        `json:"finishedAt,omitzero"`
}

// RecoveryOperation tracks one restore. It is safe to poll from other
// goroutines while the restore runs. In a dry run RecoveredCounts holds
// the counts that would have been written.
type RecoveryOperation struct {
	mu     sync.Mutex
	st     OperationStatus
	cancel context.CancelFunc
	done   chan struct{}
}

func newOperation(id, backupID string, dryRun bool, now time.Time, cancel context.CancelFunc) *RecoveryOperation {
	return &RecoveryOperation{
		cancel: cancel,
		st: OperationStatus{
			ID:              id,
			BackupID:        backupID,
			Status:          StatusPending,
			DryRun:          dryRun,
			Errors:          []string{},
			Warnings:        []string{},
			RecoveredCounts: map[DataType]int{},
			StartedAt:       now,
		},
		done: make(chan struct{}),
	}
}

// ID returns the operation id.
func (o *RecoveryOperation) ID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.st.ID
}

// Status returns a copy of the current state.
func (o *RecoveryOperation) Status() OperationStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.st
	st.DataTypes = slices.Clone(o.st.DataTypes)
	st.Errors = slices.Clone(o.st.Errors)
	st.Warnings = slices.Clone(o.st.Warnings)
	st.RecoveredCounts = maps.Clone(o.st.RecoveredCounts)
	st.Steps = make([]StepResult, len(o.st.Steps))
	for i, s := range o.st.Steps {
		s.Warnings = slices.Clone(s.Warnings)
		st.Steps[i] = s
	}
	return st
}

// Cancel asks the operation to stop before its next step. A step already
// running finishes first.
func (o *RecoveryOperation) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the operation reaches a terminal status.
func (o *RecoveryOperation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation finishes or ctx ends.
func (o *RecoveryOperation) Wait(ctx context.Context) (OperationStatus, error) {
	select {
	case <-o.done:
		return o.Status(), nil
	case <-ctx.Done():
		return o.Status(), ctx.Err()
	}
}

func (o *RecoveryOperation) start(types []DataType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.st.Status = StatusRunning
	o.st.DataTypes = types
	o.st.TotalSteps = len(types) + 3
}

func (o *RecoveryOperation) beginStep(name string) {
	o.mu.Lock()
	o.st.CurrentStep = name
	o.mu.Unlock()
}

func (o *RecoveryOperation) endStep(r StepResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.st.Steps = append(o.st.Steps, r)
	o.st.Warnings = append(o.st.Warnings, r.Warnings...)
	if r.Status == StepCompleted {
		o.st.StepsCompleted++
		if r.DataType != "" {
			o.st.RecoveredCounts[r.DataType] = r.Records
		}
	}
}

func (o *RecoveryOperation) finish(status Status, errMsg string, now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.st.Status.Terminal() {
		return
	}
	o.st.Status = status
	if errMsg != "" {
		o.st.Errors = append(o.st.Errors, errMsg)
	}
	o.st.CurrentStep = ""
	o.st.FinishedAt = now
	o.cancel = nil
	close(o.done)
}
