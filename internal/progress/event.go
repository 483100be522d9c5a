package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported stages.
const (
	StageRunStart Stage = "RUN_START"
	StageProgress Stage = "RUN_PROGRESS"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Event is one progress report for a search task.
type Event struct {
	TaskID  string
	TS      time.Time
	Stage   Stage
	Percent int
	Message string
	// Count is the number of matches on RUN_DONE.
	Count int
	// Dur is the run wall time on RUN_DONE and RUN_ERROR.
	Dur time.Duration
}

// Validate rejects events sinks cannot use.
func (e Event) Validate() error {
	if e.TaskID == "" {
		return errors.New("task id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageProgress:
		if e.Percent < 0 || e.Percent > 100 {
			return fmt.Errorf("percent %d out of range", e.Percent)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Stage == StageRunDone || e.Stage == StageRunError
}
