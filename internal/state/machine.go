package state

import (
	"sync"

	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/util"
)

// Publisher receives every state the machine enters.
type Publisher interface {
	Publish(State)
}

// Disconnecter asks the protocol engine to stop. It must not block.
type Disconnecter interface {
	Disconnect()
}

// Machine is the connection state machine. It starts in Idle and moves only
// in response to the raw events fed into its handlers. It has no terminal
// state: after an error or a disconnect it keeps accepting events.
type Machine struct {
	engine Disconnecter
	out    Publisher

	pubMu sync.Mutex // orders transitions with their publication

	mu      sync.Mutex
	current State
}

// NewMachine creates a machine in the Idle state. Nothing is published until
// the first transition.
func NewMachine(engine Disconnecter, out Publisher) *Machine {
	return &Machine{engine: engine, out: out, current: Idle}
}

// State returns the current application state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Is reports whether the machine is currently in s.
func (m *Machine) Is(s State) bool {
	return m.State() == s
}

// Disconnect forwards to the engine. It is valid in every state and leaves
// the state untouched; the resulting change arrives later as a raw event.
func (m *Machine) Disconnect() {
	m.engine.Disconnect()
}

// ClientStateChanged applies a raw engine state code. Codes for connecting,
// disconnecting and disconnected, as well as codes outside the known range,
// are ignored.
func (m *Machine) ClientStateChanged(code protocol.ClientCode) {
	switch code {
	case protocol.ClientIdle:
		m.set(Idle)
	case protocol.ClientWaiting:
		m.set(Waiting)
	case protocol.ClientConnected:
		m.set(Connected)
	case protocol.ClientConnecting, protocol.ClientDisconnecting, protocol.ClientDisconnected:
		// Tunnel events carry these transitions.
	default:
		util.LogDebug("ignoring unknown client state code %d", code)
	}
}

// TunnelStateChanged applies a raw tunnel state code. Unknown codes are
// ignored.
func (m *Machine) TunnelStateChanged(code protocol.TunnelCode) {
	switch code {
	case protocol.TunnelConnecting:
		m.set(Connecting)
	case protocol.TunnelClosed:
		m.set(Disconnected)
	default:
		util.LogDebug("ignoring tunnel state code %d", code)
	}
}

// ClientFailed disconnects the engine, then enters ClientError.
func (m *Machine) ClientFailed(status protocol.Status) {
	util.LogWarning("client error: %v", status)
	m.engine.Disconnect()
	m.set(ClientError)
}

// TunnelFailed disconnects the engine, then enters TunnelError.
func (m *Machine) TunnelFailed(status protocol.Status) {
	util.LogWarning("tunnel error: %v", status)
	m.engine.Disconnect()
	m.set(TunnelError)
}

// set records s and publishes it. Subscribers may read State from their
// handlers, but must not feed events back into the machine synchronously.
func (m *Machine) set(s State) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()

	util.LogDebug("state %s -> %s", prev, s)
	util.Stats.AddStateChange()
	m.out.Publish(s)
}
