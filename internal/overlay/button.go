package overlay

import (
	"errors"
	"sync"
	"time"

	"snapseek/internal/bridge"
	"snapseek/internal/dom"
)

// State is the lifecycle of one button.
type State int

const (
	Idle State = iota
	Downloading
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Downloading:
		return "downloading"
	case Succeeded:
		return "success"
	case Failed:
		return "error"
	}
	return "idle"
}

// View is how the state renders: the data-state attribute, and the control
// is disabled only while a request is in flight.
func (s State) View() dom.ButtonView {
	return dom.ButtonView{State: s.String(), Disabled: s == Downloading}
}

// ErrBusy is returned when a button is clicked while not idle.
var ErrBusy = errors.New("overlay: button busy")

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d, on another goroutine, never before
// AfterFunc returns.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Button is one affordance: Idle → Downloading → Succeeded|Failed → Idle.
// There is no timeout out of Downloading; only the bridge result moves it.
type Button struct {
	ID     string
	Format string
	Token  string

	mu     sync.Mutex
	state  State
	result bridge.Result
	revert Timer
}

func newButton(id, format, token string) *Button {
	return &Button{ID: id, Format: format, Token: token}
}

// State returns the current state.
func (b *Button) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LastResult is the result of the most recent request.
func (b *Button) LastResult() bridge.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

// begin moves Idle → Downloading.
func (b *Button) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Idle {
		return ErrBusy
	}
	b.state = Downloading
	return nil
}

// settle moves Downloading → Succeeded|Failed, renders it, then arms the
// revert timer which renders Idle after the delay.
func (b *Button) settle(res bridge.Result, sched Scheduler, success, failure time.Duration, render func(State)) State {
	next, delay := Failed, failure
	if res.Success {
		next, delay = Succeeded, success
	}
	b.mu.Lock()
	b.state = next
	b.result = res
	b.mu.Unlock()

	render(next)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.revert = sched.AfterFunc(delay, func() {
		b.mu.Lock()
		if b.state != next {
			b.mu.Unlock()
			return
		}
		b.state = Idle
		b.revert = nil
		b.mu.Unlock()
		render(Idle)
	})
	return next
}

// stop cancels a pending revert.
func (b *Button) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revert != nil {
		b.revert.Stop()
		b.revert = nil
	}
}
