package collector

import (
	"errors"
	"fmt"
	"time"
)

// ErrReadFault marks a failure to read sample metadata or pool state.
var ErrReadFault = errors.New("read fault")

// Stage is the step of a sample at which a fault happened.
type Stage string

// Fault stages.
const (
	StageCatalog     Stage = "catalog"     // invalid pool list, before any read
	StageInterrupted Stage = "interrupted" // context done between samples
	StageMetadata    Stage = "metadata"    // block timestamp read
	StageBatchRead   Stage = "batch_read"  // pool state batch read
	StageHeads       Stage = "heads"       // head stream ended with an error
)

// Fault describes why a run stopped before exhausting its range.
// It matches its cause with errors.Is, and ErrReadFault unless the run was
// interrupted.
type Fault struct {
	Sample uint64
	Stage  Stage
	Err    error
}

func (f *Fault) Error() string {
	if f.Stage == StageInterrupted {
		return fmt.Sprintf("interrupted at block %d: %v", f.Sample, f.Err)
	}
	return fmt.Sprintf("read fault at block %d (%s): %v", f.Sample, f.Stage, f.Err)
}

// Unwrap exposes the cause, and ErrReadFault for every stage but StageInterrupted.
func (f *Fault) Unwrap() []error {
	if f.Stage == StageInterrupted {
		return []error{f.Err}
	}
	return []error{ErrReadFault, f.Err}
}

// PersistenceError reports a failed save of the result table.
// Any fault that ended the run is kept alongside the save error.
type PersistenceError struct {
	Location string
	Err      error
	Fault    *Fault
}

func (e *PersistenceError) Error() string {
	if e.Fault != nil {
		return fmt.Sprintf("save %s: %v (after %v)", e.Location, e.Err, e.Fault)
	}
	return fmt.Sprintf("save %s: %v", e.Location, e.Err)
}

// Unwrap exposes the save error and the fault, if any.
func (e *PersistenceError) Unwrap() []error {
	if e.Fault != nil {
		return []error{e.Err, e.Fault}
	}
	return []error{e.Err}
}

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Stats summarizes the work done by a run.
type Stats struct {
	SamplesProcessed    int // samples with at least one pool read
	SamplesSkipped      int // samples with every pool already recorded
	ObservationsAdded   int
	ObservationsSkipped int
	Saved               bool
	Duration            time.Duration
}

// Result is the outcome of a run. Fault is set only when Status is StatusAborted.
type Result struct {
	Status     Status
	Table      *Table
	Stats      Stats
	Fault      *Fault
	PersistErr error
	Location   string
}

// Err returns nil for a completed, persisted run; otherwise the fault or a *PersistenceError.
func (r Result) Err() error {
	if r.PersistErr != nil {
		return &PersistenceError{Location: r.Location, Err: r.PersistErr, Fault: r.Fault}
	}
	if r.Fault != nil {
		return r.Fault
	}
	return nil
}
