package supervisor

import (
	"time"

	"github.com/steveyegge/authcap/internal/capture"
)

// Phase is the supervisor's lifecycle state.
//
//	Idle -> Starting -> Running -> Closing -> Idle
//
// Error is entered from Starting (spawn failure) or Running (abnormal exit);
// the supervisor records the error and moves on to Idle.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseClosing  Phase = "closing"
	PhaseError    Phase = "error"
)

// validTransitions lists the allowed phase changes.
var validTransitions = map[Phase][]Phase{
	PhaseIdle:     {PhaseStarting},
	PhaseStarting: {PhaseRunning, PhaseError},
	PhaseRunning:  {PhaseClosing, PhaseError},
	PhaseError:    {PhaseClosing, PhaseIdle},
	PhaseClosing:  {PhaseIdle},
}

func canTransition(from, to Phase) bool {
	for _, p := range validTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Status is a snapshot of the capture state.
type Status struct {
	Phase         Phase        `json:"phase"`
	RunID         string       `json:"runId,omitempty"`
	Mode          capture.Mode `json:"mode"`
	TargetIndex   *int         `json:"targetIndex"`
	Running       bool         `json:"running"`
	PID           *int         `json:"pid"`
	StartedAt     *time.Time   `json:"startedAt"`
	FinishedAt    *time.Time   `json:"finishedAt"`
	ExitCode      *int         `json:"exitCode"`
	Error         *string      `json:"error"`
	LastAuthFile  *string      `json:"lastAuthFile"`
	LastAuthIndex *int         `json:"lastAuthIndex"`
	ContinueSent  bool         `json:"continueSent"`
}

func (st Status) clone() Status {
	c := st
	c.TargetIndex = cloneInt(st.TargetIndex)
	c.PID = cloneInt(st.PID)
	c.ExitCode = cloneInt(st.ExitCode)
	c.LastAuthIndex = cloneInt(st.LastAuthIndex)
	c.StartedAt = cloneTime(st.StartedAt)
	c.FinishedAt = cloneTime(st.FinishedAt)
	c.Error = cloneString(st.Error)
	c.LastAuthFile = cloneString(st.LastAuthFile)
	return c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// EventType identifies a lifecycle event delivered to observers.
type EventType string

const (
	EventStarted      EventType = "started"
	EventStartFailed  EventType = "start_failed"
	EventContinueSent EventType = "continue_sent"
	EventCancelSent   EventType = "cancel_sent"
	EventExited       EventType = "exited"
)

// Event is delivered to observers after the state change it describes.
type Event struct {
	Type   EventType `json:"type"`
	Status Status    `json:"status"`
}

// Observer receives lifecycle events. Observers are called without the
// supervisor lock held, in the order the events happened.
type Observer func(Event)
