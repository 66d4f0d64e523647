package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/util"
)

// DefaultICEServers are used when NewDataChannel is given none.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// DataChannel is a tunnel that carries instructions over a WebRTC
// DataChannel. The peer connection is negotiated through a WebSocket
// signaling endpoint, which is closed once the channel opens.
type DataChannel struct {
	base

	signalURL  string
	iceServers []string

	connMu sync.Mutex
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	ws     *websocket.Conn
}

// NewDataChannel creates a tunnel negotiated through signalURL.
func NewDataChannel(signalURL string, iceServers ...string) *DataChannel {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}
	t := &DataChannel{signalURL: signalURL, iceServers: iceServers}
	t.base.init()
	return t
}

// Connect starts signaling in the background. The handshake data travels
// in the first signaling message.
func (t *DataChannel) Connect(data string) {
	if !t.start() {
		util.LogWarning("tunnel already used; create a new one to reconnect")
		return
	}
	go t.run(data)
}

// Disconnect tears the peer connection down. The closed state is reported
// asynchronously.
func (t *DataChannel) Disconnect() {
	if t.closing.Swap(true) {
		return
	}
	t.start()
	go t.close(protocol.Status{Code: protocol.StatusSuccess}, t.teardown)
}

// SendMessage encodes elements as one instruction and sends it as a text
// message on the DataChannel.
func (t *DataChannel) SendMessage(elements ...string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.dc == nil || t.State() != protocol.TunnelConnecting {
		return ErrNotConnected
	}

	msg := protocol.Encode(elements...)
	if err := t.dc.SendText(msg); err != nil {
		return fmt.Errorf("failed to send instruction: %w", err)
	}
	util.Stats.AddSent(len(msg))
	return nil
}

func (t *DataChannel) run(data string) {
	target, err := connectURL(t.signalURL, "")
	if err != nil {
		t.close(protocol.NewStatus(protocol.StatusClientBadRequest, "%v", err), nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ReceiveTimeout)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	cancel()
	if err != nil {
		t.close(dialStatus(resp, err), nil)
		return
	}
	util.LogDebug("WS connected: %s", t.signalURL)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: t.iceServers}},
	})
	if err != nil {
		ws.Close()
		t.close(protocol.NewStatus(protocol.StatusServerError, "failed to create PeerConnection: %v", err), nil)
		return
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		ws.Close()
		pc.Close()
		t.close(protocol.NewStatus(protocol.StatusServerError, "failed to create DataChannel: %v", err), nil)
		return
	}

	t.connMu.Lock()
	t.pc, t.dc, t.ws = pc, dc, ws
	t.connMu.Unlock()

	if t.closing.Load() {
		t.close(protocol.Status{Code: protocol.StatusSuccess}, t.teardown)
		return
	}

	sig := &signaler{conn: ws}
	t.bind(pc, dc, sig)

	if err := sig.send(message{Type: msgTypeConnect, Data: data}); err != nil {
		t.close(protocol.NewStatus(protocol.StatusUpstreamError, "failed to send connect: %v", err), t.teardown)
		return
	}
	if err := sig.sendOffer(pc); err != nil {
		t.close(protocol.NewStatus(protocol.StatusUpstreamError, "failed to send offer: %v", err), t.teardown)
		return
	}

	t.touch()
	go t.watch(t.SendMessage, func() {
		t.close(protocol.NewStatus(protocol.StatusUpstreamTimeout, "no data received for %s", ReceiveTimeout), t.teardown)
	})

	if err := sig.watch(pc); err != nil && t.State() != protocol.TunnelConnecting && !t.closing.Load() {
		t.close(protocol.NewStatus(protocol.StatusUpstreamNotFound, "signaling failed: %v", err), t.teardown)
	}
}

// bind wires the peer connection and channel callbacks into the tunnel.
func (t *DataChannel) bind(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, sig *signaler) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := sig.sendCandidate(c); err != nil {
			util.LogDebug("failed to send ICE candidate: %v", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		if state == webrtc.PeerConnectionStateFailed {
			go t.close(protocol.NewStatus(protocol.StatusUpstreamError, "peer connection failed"), t.teardown)
		}
	})

	dc.OnOpen(func() {
		util.LogDebug("WebRTC DataChannel established, closing WS")
		t.open()
		sig.conn.Close()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if err := t.receive(string(msg.Data)); err != nil {
			go t.close(protocol.NewStatus(protocol.StatusServerError, "%v", err), t.teardown)
		}
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		status := protocol.Status{Code: protocol.StatusSuccess}
		if !t.closing.Load() {
			status = protocol.NewStatus(protocol.StatusUpstreamError, "DataChannel closed by peer")
		}
		go t.close(status, t.teardown)
	})
}

func (t *DataChannel) teardown() {
	t.connMu.Lock()
	pc, dc, ws := t.pc, t.dc, t.ws
	t.pc, t.dc, t.ws = nil, nil, nil
	t.connMu.Unlock()

	var errs []error
	if ws != nil {
		errs = append(errs, ws.Close())
	}
	if dc != nil {
		errs = append(errs, dc.Close())
	}
	if pc != nil {
		errs = append(errs, pc.Close())
	}
	if err := errors.Join(errs...); err != nil {
		util.LogDebug("DataChannel teardown: %v", err)
	}
}

// newDataChannel creates a pre-negotiated, ordered DataChannel on pc.
// Instructions must arrive in order, so unlike a multiplexed byte tunnel
// there is no reassembly on this side.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel(Subprotocol, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
