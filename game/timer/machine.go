package timer

import (
	"time"

	"github.com/questtime/server/model"
)

// Machine implements the shared timer state transitions over a persisted
// TimerState. The clock is injected so tests can simulate elapsed time.
//
// States: empty → waiting → active ⇄ paused → completed → (reset) → empty.
// Elapsed time is derived lazily from wall-clock deltas; nothing ticks.
type Machine struct {
	Now func() time.Time
}

// NewMachine creates a Machine on the real clock.
func NewMachine() *Machine {
	return &Machine{Now: time.Now}
}

// Attach prepares the state for a newly attached item. Any previous state is
// discarded first: switching items forfeits unbanked progress.
func (m *Machine) Attach(st *model.TimerState) {
	m.Reset(st)
	st.Status = model.TimerWaiting
}

// Start records the start instant and activates the timer. No-op if already
// active.
func (m *Machine) Start(st *model.TimerState) {
	if st.Status == model.TimerActive {
		return
	}
	now := m.Now()
	st.StartedAt = &now
	st.Status = model.TimerActive
}

// Pause banks the live elapsed time and clears the start instant. No-op if
// already paused.
func (m *Machine) Pause(st *model.TimerState) {
	if st.Status == model.TimerPaused {
		return
	}
	m.bank(st)
	st.Status = model.TimerPaused
}

// Complete banks the live elapsed time and marks the timer completed. It
// does not reset: the completion flow reads the final elapsed time, grants
// the reward, then calls Reset.
func (m *Machine) Complete(st *model.TimerState) {
	m.bank(st)
	st.Status = model.TimerCompleted
}

// Reset unconditionally zeroes the state. The caller clears the item
// reference on the concrete row.
func (m *Machine) Reset(st *model.TimerState) {
	st.ElapsedSeconds = 0
	st.StartedAt = nil
	st.Status = model.TimerEmpty
}

// Elapsed returns the live elapsed seconds without mutating state.
func (m *Machine) Elapsed(st *model.TimerState) uint {
	if st.Status == model.TimerActive && st.StartedAt != nil {
		return st.ElapsedSeconds + uint(m.Now().Sub(*st.StartedAt)/time.Second)
	}
	return st.ElapsedSeconds
}

// Remaining returns how many seconds are left against a target duration,
// clamped at zero. Quest timers only.
func (m *Machine) Remaining(st *model.TimerState, target uint) uint {
	elapsed := m.Elapsed(st)
	if elapsed >= target {
		return 0
	}
	return target - elapsed
}

// IsFinished reports whether a quest timer has reached its target.
func (m *Machine) IsFinished(st *model.TimerState, target uint) bool {
	return m.Remaining(st, target) == 0
}

// bank folds the live span into ElapsedSeconds and clears the start instant.
func (m *Machine) bank(st *model.TimerState) {
	if st.StartedAt != nil {
		st.ElapsedSeconds += uint(m.Now().Sub(*st.StartedAt) / time.Second)
		st.StartedAt = nil
	}
}
