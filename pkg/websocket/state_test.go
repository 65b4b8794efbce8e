package websocket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycle_AuthorizedPath(t *testing.T) {
	var l Lifecycle
	require.Equal(t, StateConnecting, l.State())
	require.False(t, l.CanSend())

	require.NoError(t, l.Transition(StateAuthorizing))
	require.False(t, l.CanSend())
	require.NoError(t, l.Transition(StateAuthorized))
	require.True(t, l.CanSend())
	require.NoError(t, l.Transition(StateClosed))
	require.False(t, l.CanSend())
}

func TestLifecycle_RejectedPath(t *testing.T) {
	var l Lifecycle
	require.NoError(t, l.Transition(StateAuthorizing))
	require.NoError(t, l.Transition(StateRejected))
	require.False(t, l.CanSend())
	require.ErrorIs(t, l.Transition(StateAuthorized), ErrInvalidTransition)
	require.NoError(t, l.Transition(StateClosed))
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
		bad  State
	}{
		{"skip authorizing", nil, StateAuthorized},
		{"reject before authorizing", nil, StateRejected},
		{"authorized to rejected", []State{StateAuthorizing, StateAuthorized}, StateRejected},
		{"closed is terminal", []State{StateClosed}, StateAuthorizing},
		{"closed twice", []State{StateAuthorizing, StateClosed}, StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Lifecycle
			for _, s := range tt.path {
				require.NoError(t, l.Transition(s))
			}
			before := l.State()
			require.ErrorIs(t, l.Transition(tt.bad), ErrInvalidTransition)
			require.Equal(t, before, l.State())
		})
	}
}

func TestLifecycle_PeerDisconnectWhileAuthorizing(t *testing.T) {
	var l Lifecycle
	require.NoError(t, l.Transition(StateAuthorizing))
	require.NoError(t, l.Transition(StateClosed))
	require.Equal(t, "closed", l.State().String())
}
