// Package idle watches for user inactivity and drives the warn-then-logout
// flow: after a quiet period the monitor raises a warning, and if the user
// stays quiet past the logout deadline it fires the logout callback once.
package idle

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State describes where the monitor is in the inactivity lifecycle.
type State int

const (
	// StateActive means recent activity was observed.
	StateActive State = iota
	// StateWarning means the warning threshold elapsed without activity.
	StateWarning
	// StateLoggedOut means the logout deadline elapsed and the callback fired.
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateLoggedOut:
		return "logged_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyRunning is returned by Start when the monitor is already armed.
var ErrAlreadyRunning = errors.New("idle monitor already running")

// Config holds the two inactivity thresholds. WarnAfter must be shorter than
// LogoutAfter.
type Config struct {
	WarnAfter   time.Duration
	LogoutAfter time.Duration
}

// Validate checks threshold ordering.
func (c Config) Validate() error {
	if c.WarnAfter <= 0 || c.LogoutAfter <= 0 {
		return errors.New("idle thresholds must be positive")
	}
	if c.WarnAfter >= c.LogoutAfter {
		return errors.New("warn threshold must precede logout threshold")
	}
	return nil
}

// Callbacks are invoked from the monitor goroutine. OnLogout is mandatory and
// fires at most once per Start; OnWarning and OnActive are optional
// presentation hooks.
type Callbacks struct {
	OnWarning func()
	OnActive  func()
	OnLogout  func()
}

// Monitor is the inactivity state machine. All transitions happen on a single
// goroutine; Activity, StayLoggedIn, and Stop are safe from any goroutine.
type Monitor struct {
	cfg Config
	cb  Callbacks
	now func() time.Time

	mu       sync.Mutex
	state    State
	running  bool
	activity chan struct{}
	quit     chan struct{}
	done     chan struct{}
}

// NewMonitor constructs a monitor; it stays inert until Start.
func NewMonitor(cfg Config, cb Callbacks) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cb.OnLogout == nil {
		return nil, errors.New("logout callback is required")
	}
	return &Monitor{
		cfg:   cfg,
		cb:    cb,
		now:   time.Now,
		state: StateActive,
	}, nil
}

// State reports the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start arms the timers. It fails if the monitor is already running.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	m.state = StateActive
	m.running = true
	m.activity = make(chan struct{}, 1)
	m.quit = make(chan struct{})
	m.done = make(chan struct{})

	go m.run(m.activity, m.quit, m.done)
	return nil
}

// Stop disarms the monitor without firing the logout callback. It is
// idempotent and returns after the monitor goroutine has exited, so no timer
// can fire into a subsequent Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	quit, done := m.quit, m.done
	m.mu.Unlock()

	close(quit)
	<-done
}

// Activity records user activity: both timers rewind and a pending warning is
// dismissed. Calls made while the monitor is not running are ignored.
func (m *Monitor) Activity() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	activity, quit := m.activity, m.quit
	m.mu.Unlock()

	select {
	case activity <- struct{}{}:
	case <-quit:
	default:
		// A reset is already queued; coalescing is fine because the loop
		// reads the clock when it processes the signal.
	}
}

// StayLoggedIn dismisses the warning and rewinds the timers. It is the same
// signal as Activity under a name the warning prompt can use.
func (m *Monitor) StayLoggedIn() {
	m.Activity()
}

func (m *Monitor) run(activity <-chan struct{}, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	lastActivity := m.now()
	warnTimer := time.NewTimer(m.cfg.WarnAfter)
	logoutTimer := time.NewTimer(m.cfg.LogoutAfter)
	defer stopTimer(warnTimer)
	defer stopTimer(logoutTimer)

	for {
		select {
		case <-quit:
			return

		case <-activity:
			lastActivity = m.now()
			stopTimer(warnTimer)
			stopTimer(logoutTimer)
			warnTimer.Reset(m.cfg.WarnAfter)
			logoutTimer.Reset(m.cfg.LogoutAfter)
			if m.setState(StateActive) && m.cb.OnActive != nil {
				m.cb.OnActive()
			}

		case <-warnTimer.C:
			// The timer may fire stale if activity raced it; trust the clock,
			// not the timer.
			elapsed := m.now().Sub(lastActivity)
			if elapsed < m.cfg.WarnAfter {
				warnTimer.Reset(m.cfg.WarnAfter - elapsed)
				continue
			}
			if m.setState(StateWarning) && m.cb.OnWarning != nil {
				m.cb.OnWarning()
			}

		case <-logoutTimer.C:
			elapsed := m.now().Sub(lastActivity)
			if elapsed < m.cfg.LogoutAfter {
				logoutTimer.Reset(m.cfg.LogoutAfter - elapsed)
				continue
			}
			m.setState(StateLoggedOut)
			m.markStopped()
			m.cb.OnLogout()
			return
		}
	}
}

// setState transitions to next and reports whether the state changed.
func (m *Monitor) setState(next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == next {
		return false
	}
	m.state = next
	return true
}

func (m *Monitor) markStopped() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
