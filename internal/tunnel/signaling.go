package tunnel

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeConnect   messageType = "connect"
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
)

// message is the JSON structure exchanged with the gateway while the
// DataChannel is being negotiated.
type message struct {
	Type      messageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
	Data      string      `json:"data,omitempty"`      // handshake data for connect
}

// signaler serializes outgoing signaling messages on the WebSocket.
type signaler struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *signaler) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *signaler) sendOffer(pc *webrtc.PeerConnection) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return s.send(message{Type: msgTypeOffer, SDP: offer.SDP})
}

func (s *signaler) sendCandidate(c *webrtc.ICECandidate) error {
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return err
	}
	return s.send(message{Type: msgTypeCandidate, Candidate: string(data)})
}

// watch applies the gateway's answer and candidates until the socket fails
// or is closed.
func (s *signaler) watch(pc *webrtc.PeerConnection) error {
	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read signaling message: %w", err)
		}

		switch msg.Type {
		case msgTypeAnswer:
			if err := pc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
			}); err != nil {
				return fmt.Errorf("SetRemoteDescription: %w", err)
			}

		case msgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("failed to parse ICE candidate: %w", err)
			}
			if err := pc.AddICECandidate(init); err != nil {
				return fmt.Errorf("AddICECandidate: %w", err)
			}
		}
	}
}
