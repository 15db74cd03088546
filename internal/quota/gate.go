package quota

import "time"

const (
	DefaultLimit  = 5
	DefaultWindow = 30 * 24 * time.Hour
)

// State is the persisted free-tier usage counter. A zero WindowStart means
// no window has been opened yet.
type State struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"windowStart,omitzero"`
}

// Policy is the free-tier allowance: Limit generations per rolling Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, Window: DefaultWindow}
}

// Expired reports whether the window is unset or has run past its length.
// A window exactly Window old is still active.
func (p Policy) Expired(state State, now time.Time) bool {
	if state.WindowStart.IsZero() {
		return true
	}
	return now.Sub(state.WindowStart) > p.Window
}

func (p Policy) Remaining(state State, now time.Time) int {
	if p.Expired(state, now) {
		return p.Limit
	}
	return max(0, p.Limit-state.Count)
}

func (p Policy) Permit(state State, licensed bool, now time.Time) bool {
	if licensed {
		return true
	}
	return p.Remaining(state, now) > 0
}

// RecordUsage returns the state after one successful generation.
func (p Policy) RecordUsage(state State, now time.Time) State {
	if p.Expired(state, now) {
		return State{Count: 1, WindowStart: now}
	}
	return State{Count: state.Count + 1, WindowStart: state.WindowStart}
}

// ResetsAt returns the end of the active window, or false when no window
// is active.
func (p Policy) ResetsAt(state State, now time.Time) (time.Time, bool) {
	if p.Expired(state, now) {
		return time.Time{}, false
	}
	return state.WindowStart.Add(p.Window), true
}

// Describe renders the window length for user-facing text.
func (p Policy) Describe() string {
	switch p.Window {
	case DefaultWindow:
		return "month"
	case 7 * 24 * time.Hour:
		return "week"
	case 24 * time.Hour:
		return "day"
	}
	return p.Window.String()
}
