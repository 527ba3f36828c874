package app

import (
	"context"
	"fmt"
	"sync"

	"proctor-quiz-service/internal/domain"
)

// Signal is a focus/visibility event reported by the proctoring client.
type Signal string

const (
	SignalHidden  Signal = "hidden"
	SignalBlur    Signal = "blur"
	SignalVisible Signal = "visible"
	SignalFocus   Signal = "focus"
)

// MaxStrikes is the strike count that triggers disqualification.
const MaxStrikes = 3

// Verdict is the monitor's response to one reported signal.
type Verdict struct {
	Strikes      int
	Warn         bool
	Disqualified bool
}

// Monitor accumulates tab-switch strikes for one participant. Strikes are
// edge-triggered: only the active -> inactive transition counts, so a burst
// of violation signals while already hidden adds a single strike. Strikes
// are never forgiven.
type Monitor struct {
	store ParticipantStore
	email string

	mu      sync.Mutex
	strikes int
	active  bool
}

// NewMonitor resumes a monitor from the persisted strike count.
func NewMonitor(store ParticipantStore, email string, strikes int) *Monitor {
	if strikes < 0 {
		strikes = 0
	}
	return &Monitor{store: store, email: email, strikes: strikes, active: true}
}

// Report feeds one signal into the strike state machine. The third strike
// persists disqualification before the verdict is returned, so a reload
// cannot resurrect the attempt.
func (m *Monitor) Report(ctx context.Context, sig Signal) (Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.strikes >= MaxStrikes {
		return Verdict{Strikes: m.strikes, Disqualified: true}, nil
	}

	switch sig {
	case SignalHidden, SignalBlur:
		if !m.active {
			return Verdict{Strikes: m.strikes, Disqualified: m.strikes >= MaxStrikes}, nil
		}
		m.active = false
		m.strikes++

		if m.strikes >= MaxStrikes {
			if err := m.store.Disqualify(ctx, m.email); err != nil {
				return Verdict{}, err
			}
			return Verdict{Strikes: m.strikes, Disqualified: true}, nil
		}
		strikes := m.strikes
		if err := m.store.Patch(ctx, m.email, ParticipantPatch{StrikeCount: &strikes}); err != nil {
			return Verdict{}, err
		}
		return Verdict{Strikes: m.strikes, Warn: true}, nil

	case SignalVisible, SignalFocus:
		m.active = true
		return Verdict{Strikes: m.strikes}, nil

	default:
		return Verdict{}, fmt.Errorf("%w: unknown signal %q", domain.ErrValidation, sig)
	}
}

// Strikes returns the current strike count.
func (m *Monitor) Strikes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strikes
}
