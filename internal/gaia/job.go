package gaia

import (
	"errors"
	"fmt"
)

// JobState is the client-side lifecycle of an async TAP job.
//
//	Submitted -> Polling -> Completed
//	                     -> Failed
//	                     -> TimedOut
//	                     -> Cancelled
//
// Submitted may also move straight to Failed, TimedOut, or Cancelled when
// polling never starts.
type JobState int

const (
	JobSubmitted JobState = iota
	JobPolling
	JobCompleted
	JobFailed
	JobTimedOut
	JobCancelled
)

func (s JobState) String() string {
	switch s {
	case JobSubmitted:
		return "submitted"
	case JobPolling:
		return "polling"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobTimedOut:
		return "timed_out"
	case JobCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("JobState(%d)", int(s))
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobTimedOut, JobCancelled:
		return true
	default:
		return false
	}
}

var (
	ErrJobFailed  = errors.New("tap job failed")
	ErrJobAborted = errors.New("tap job aborted by service")
	ErrJobTimeout = errors.New("tap job timed out")
	ErrJobState   = errors.New("invalid tap job state")
)

// UWS execution phases reported by the service.
const (
	PhasePending   = "PENDING"
	PhaseQueued    = "QUEUED"
	PhaseExecuting = "EXECUTING"
	PhaseCompleted = "COMPLETED"
	PhaseError     = "ERROR"
	PhaseAborted   = "ABORTED"
	PhaseUnknown   = "UNKNOWN"
	PhaseHeld      = "HELD"
	PhaseSuspended = "SUSPENDED"
	PhaseArchived  = "ARCHIVED"
)

// Job is a handle on a submitted async query.
type Job struct {
	// URL is the job resource returned by the service on submission.
	URL   string
	State JobState
	// Phase is the last UWS phase observed.
	Phase string
	// Polls counts phase requests issued by Wait.
	Polls int
}

func (j *Job) transition(to JobState) error {
	if !allowedTransition(j.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrJobState, j.State, to)
	}
	j.State = to
	return nil
}

func allowedTransition(from, to JobState) bool {
	switch from {
	case JobSubmitted:
		return to == JobPolling || to == JobFailed || to == JobTimedOut || to == JobCancelled
	case JobPolling:
		return to == JobCompleted || to == JobFailed || to == JobTimedOut || to == JobCancelled
	default:
		return false
	}
}
