// Package state maps the raw engine and tunnel state codes onto the small,
// stable set of application states the caller observes.
package state

// State is the application-facing connection state. The set is closed: the
// constants below are the only valid values.
type State uint8

const (
	Idle State = iota
	Connecting
	Waiting
	Connected
	Disconnected
	ClientError
	TunnelError

	numStates
)

var names = [numStates]string{
	Idle:         "IDLE",
	Connecting:   "CONNECTING",
	Waiting:      "WAITING",
	Connected:    "CONNECTED",
	Disconnected: "DISCONNECTED",
	ClientError:  "CLIENT_ERROR",
	TunnelError:  "TUNNEL_ERROR",
}

// String returns the upper-case state name.
func (s State) String() string {
	if !s.Valid() {
		return "UNKNOWN"
	}
	return names[s]
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return s < numStates
}

// IsError reports whether s is one of the two error states.
func (s State) IsError() bool {
	return s == ClientError || s == TunnelError
}

// Ends reports whether s ends the current connection attempt.
func (s State) Ends() bool {
	return s == Disconnected || s.IsError()
}

// All returns every state in declaration order.
func All() []State {
	out := make([]State, 0, numStates)
	for s := Idle; s < numStates; s++ {
		out = append(out, s)
	}
	return out
}
