package state_test

import (
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/state"
	"github.com/1ureka/rdclient/internal/util"
)

func TestMain(m *testing.M) {
	util.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// journal records disconnect calls and publications in one ordered log.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) Disconnect() { j.add("disconnect") }

func (j *journal) Publish(s state.State) { j.add(s.String()) }

func (j *journal) add(e string) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

func (j *journal) log() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func newMachine() (*state.Machine, *journal) {
	j := &journal{}
	return state.NewMachine(j, j), j
}

func TestInitialState(t *testing.T) {
	m, j := newMachine()
	assert.Equal(t, state.Idle, m.State())
	assert.True(t, m.Is(state.Idle))
	assert.Empty(t, j.log())
}

func TestClientCodes(t *testing.T) {
	tests := []struct {
		code protocol.ClientCode
		want state.State
		pub  bool
	}{
		{protocol.ClientIdle, state.Idle, true},
		{protocol.ClientConnecting, state.Waiting, false},
		{protocol.ClientWaiting, state.Waiting, true},
		{protocol.ClientConnected, state.Connected, true},
		{protocol.ClientDisconnecting, state.Waiting, false},
		{protocol.ClientDisconnected, state.Waiting, false},
		{protocol.ClientCode(99), state.Waiting, false},
	}

	for _, tt := range tests {
		m, j := newMachine()
		m.ClientStateChanged(protocol.ClientWaiting)
		before := len(j.log())

		m.ClientStateChanged(tt.code)
		assert.Equal(t, tt.want, m.State(), "code %d", tt.code)
		if tt.pub {
			assert.Len(t, j.log(), before+1, "code %d", tt.code)
		} else {
			assert.Len(t, j.log(), before, "code %d", tt.code)
		}
	}
}

func TestTunnelCodes(t *testing.T) {
	tests := []struct {
		code protocol.TunnelCode
		want state.State
	}{
		{protocol.TunnelConnecting, state.Connecting},
		{protocol.TunnelClosed, state.Disconnected},
		{protocol.TunnelIdle, state.Connected},
		{protocol.TunnelUnstable, state.Connected},
		{protocol.TunnelCode(42), state.Connected},
	}

	for _, tt := range tests {
		m, _ := newMachine()
		m.ClientStateChanged(protocol.ClientConnected)
		m.TunnelStateChanged(tt.code)
		assert.Equal(t, tt.want, m.State(), "code %d", tt.code)
	}
}

func TestHappyPath(t *testing.T) {
	m, j := newMachine()

	m.TunnelStateChanged(protocol.TunnelConnecting)
	m.ClientStateChanged(protocol.ClientWaiting)
	m.ClientStateChanged(protocol.ClientConnected)
	m.TunnelStateChanged(protocol.TunnelClosed)

	assert.Equal(t, []string{"CONNECTING", "WAITING", "CONNECTED", "DISCONNECTED"}, j.log())
	assert.True(t, m.Is(state.Disconnected))
}

func TestErrorsDisconnectBeforePublishing(t *testing.T) {
	t.Run("client", func(t *testing.T) {
		m, j := newMachine()
		m.ClientStateChanged(protocol.ClientConnected)
		m.ClientFailed(protocol.NewStatus(protocol.StatusUpstreamError, "boom"))

		assert.Equal(t, []string{"CONNECTED", "disconnect", "CLIENT_ERROR"}, j.log())
		assert.Equal(t, state.ClientError, m.State())
	})

	t.Run("tunnel", func(t *testing.T) {
		m, j := newMachine()
		m.TunnelFailed(protocol.NewStatus(protocol.StatusUpstreamTimeout, "idle"))

		assert.Equal(t, []string{"disconnect", "TUNNEL_ERROR"}, j.log())
		assert.Equal(t, state.TunnelError, m.State())
	})
}

func TestNoTerminalState(t *testing.T) {
	m, j := newMachine()

	m.ClientFailed(protocol.Status{Code: protocol.StatusServerError})
	m.TunnelStateChanged(protocol.TunnelClosed)
	m.TunnelStateChanged(protocol.TunnelConnecting)

	assert.Equal(t, []string{"disconnect", "CLIENT_ERROR", "DISCONNECTED", "CONNECTING"}, j.log())
}

func TestDuplicateTransitionsPublish(t *testing.T) {
	m, j := newMachine()

	m.ClientStateChanged(protocol.ClientConnected)
	m.ClientStateChanged(protocol.ClientConnected)

	assert.Equal(t, []string{"CONNECTED", "CONNECTED"}, j.log())
}

func TestDisconnectLeavesStateAlone(t *testing.T) {
	m, j := newMachine()
	m.ClientStateChanged(protocol.ClientConnected)

	m.Disconnect()
	m.Disconnect()

	assert.Equal(t, state.Connected, m.State())
	assert.Equal(t, []string{"CONNECTED", "disconnect", "disconnect"}, j.log())
}

// statePublisher reads the machine's state from inside Publish.
type statePublisher struct {
	m    *state.Machine
	seen []state.State
}

func (p *statePublisher) Publish(state.State) { p.seen = append(p.seen, p.m.State()) }

func TestStateReadableFromSubscriber(t *testing.T) {
	p := &statePublisher{}
	m := state.NewMachine(&journal{}, p)
	p.m = m

	m.ClientStateChanged(protocol.ClientWaiting)
	m.ClientStateChanged(protocol.ClientConnected)

	assert.Equal(t, []state.State{state.Waiting, state.Connected}, p.seen)
}

func TestConcurrentEvents(t *testing.T) {
	m, j := newMachine()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				m.ClientStateChanged(protocol.ClientConnected)
			}
		}()
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				m.TunnelStateChanged(protocol.TunnelConnecting)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, j.log(), 1600)
	assert.Contains(t, []state.State{state.Connected, state.Connecting}, m.State())
}

func TestTransitionsAreCounted(t *testing.T) {
	m, _ := newMachine()
	before := util.Stats.StateChanges.Load()

	m.ClientStateChanged(protocol.ClientWaiting)
	m.ClientStateChanged(protocol.ClientDisconnected)
	m.TunnelFailed(protocol.Status{Code: protocol.StatusUpstreamError})

	assert.Equal(t, int64(2), util.Stats.StateChanges.Load()-before)
}
