// Package config holds the CLI configuration and builds the connection
// handshake string sent to the remote gateway.
package config

import (
	"fmt"
	"strings"
)

// Transport selects how instructions reach the gateway.
type Transport string

const (
	TransportWebSocket Transport = "ws"
	TransportWebRTC    Transport = "webrtc"
)

// ParseTransport validates a transport name.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportWebSocket, TransportWebRTC:
		return t, nil
	case "":
		return TransportWebSocket, nil
	default:
		return "", fmt.Errorf("unknown transport %q (want %q or %q)", s, TransportWebSocket, TransportWebRTC)
	}
}

// Config stores all parameters gathered from flags or interactive prompts.
type Config struct {
	URL       string    // tunnel URL (WebSocket endpoint or signaling server)
	Transport Transport // how to reach URL
	Options   Options   // handshake options, layered over the defaults
	Screen    FixedScreen
	Debug     bool
}
