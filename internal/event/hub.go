package event

import "github.com/1ureka/rdclient/internal/state"

// Hub groups the two channels a connection publishes on.
type Hub struct {
	// State replays the current application state. Before any real
	// transition it holds Connecting, since a hub only exists once a
	// connection attempt is under way.
	State *Channel[state.State]

	// Clipboard replays the most recent clipboard payload. It starts empty.
	Clipboard *Channel[string]
}

// NewHub returns a hub with the state channel seeded to Connecting.
func NewHub() *Hub {
	return &Hub{
		State:     NewChannelWith(state.Connecting),
		Clipboard: NewChannel[string](),
	}
}
