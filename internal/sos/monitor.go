package sos

import (
	"context"
	"sync"

	"github.com/example/nepbot/pkg/models"
)

// State is what a UI renders for one chat
type State struct {
	IsSOS  bool
	Script *models.Script
	Reason Reason
}

func (s State) equal(o State) bool {
	if s.IsSOS != o.IsSOS || s.Reason != o.Reason {
		return false
	}
	if s.Script == nil || o.Script == nil {
		return s.Script == o.Script
	}
	return s.Script.ID == o.Script.ID
}

// Monitor owns the SOS state of one chat. Every Update is tagged with a
// generation; a result that resolves after a newer Update (or a Dismiss)
// started is dropped.
type Monitor struct {
	detector *Detector
	session  *Session

	mu        sync.Mutex
	gen       uint64
	state     State
	listeners []func(State)
}

// NewMonitor creates a monitor with a fresh session
func NewMonitor(d *Detector) *Monitor {
	return &Monitor{detector: d, session: NewSession()}
}

// OnChange registers fn to be called after every applied state change
func (m *Monitor) OnChange(fn func(State)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// State returns the current state
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dismissed reports whether automatic matches are currently suppressed
func (m *Monitor) Dismissed() bool {
	return m.session.Dismissed()
}

// Update evaluates in and applies the result unless it went stale while
// evaluating. It returns the current state and whether the result was applied.
func (m *Monitor) Update(ctx context.Context, in Input) (State, bool) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	res := m.detector.Evaluate(ctx, in, m.session)

	m.mu.Lock()
	if gen != m.gen {
		st := m.state
		m.mu.Unlock()
		return st, false
	}
	next := State{IsSOS: res.IsMatch, Script: res.Script, Reason: res.Reason}
	changed := !m.state.equal(next)
	m.state = next
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(next)
		}
	}
	return next, true
}

// Dismiss hides the current suggestion and suppresses automatic matches.
// Evaluations still in flight are discarded.
func (m *Monitor) Dismiss() {
	m.session.Dismiss()

	m.mu.Lock()
	m.gen++
	changed := !m.state.equal(State{})
	m.state = State{}
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(State{})
		}
	}
}
