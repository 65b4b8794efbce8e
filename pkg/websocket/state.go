package websocket

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle position of a single connection.
//
//	Connecting -> Authorizing -> Authorized -> Closed
//	Connecting -> Authorizing -> Rejected   -> Closed
//
// Connecting and Authorizing may also go straight to Closed when the peer
// disconnects or the handshake fails unexpectedly.
type State int32

const (
	StateConnecting State = iota
	StateAuthorizing
	StateAuthorized
	StateRejected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthorized:
		return "authorized"
	case StateRejected:
		return "rejected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrInvalidTransition = errors.New("websocket: invalid state transition")
	ErrNotAuthorized     = errors.New("websocket: session not authorized")
)

var allowedTransitions = map[State][]State{
	StateConnecting:  {StateAuthorizing, StateClosed},
	StateAuthorizing: {StateAuthorized, StateRejected, StateClosed},
	StateAuthorized:  {StateClosed},
	StateRejected:    {StateClosed},
}

// Lifecycle guards the state of one connection. The zero value starts in
// StateConnecting.
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Transition moves to next, or returns ErrInvalidTransition and leaves the
// state unchanged.
func (l *Lifecycle) Transition(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range allowedTransitions[l.state] {
		if s == next {
			l.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, next)
}

// CanSend reports whether application messages may be written.
func (l *Lifecycle) CanSend() bool {
	return l.State() == StateAuthorized
}
