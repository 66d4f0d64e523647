package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/1ureka/rdclient/internal/state"
)

func TestStateNames(t *testing.T) {
	want := []string{"IDLE", "CONNECTING", "WAITING", "CONNECTED", "DISCONNECTED", "CLIENT_ERROR", "TUNNEL_ERROR"}

	var got []string
	for _, s := range state.All() {
		assert.True(t, s.Valid())
		got = append(got, s.String())
	}
	assert.Equal(t, want, got)

	assert.False(t, state.State(200).Valid())
	assert.Equal(t, "UNKNOWN", state.State(200).String())
}

func TestStateKinds(t *testing.T) {
	assert.True(t, state.ClientError.IsError())
	assert.True(t, state.TunnelError.IsError())
	assert.False(t, state.Disconnected.IsError())

	assert.True(t, state.Disconnected.Ends())
	assert.True(t, state.TunnelError.Ends())
	assert.False(t, state.Connected.Ends())
	assert.False(t, state.Idle.Ends())
}
