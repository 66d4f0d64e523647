package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/util"
)

// Subprotocol is the WebSocket subprotocol spoken by Guacamole gateways.
const Subprotocol = "guacamole"

// WebSocket is a tunnel over a single WebSocket connection. Each message
// carries one or more complete instructions.
type WebSocket struct {
	base

	url    string
	dialer *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewWebSocket creates a tunnel for the given ws://, wss://, http:// or
// https:// endpoint. Nothing is dialed until Connect.
func NewWebSocket(endpoint string) *WebSocket {
	t := &WebSocket{
		url: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: ReceiveTimeout,
			Subprotocols:     []string{Subprotocol},
		},
	}
	t.base.init()
	return t
}

// Connect dials the endpoint with data appended as the query string. It
// returns immediately; progress is reported through the handlers.
func (t *WebSocket) Connect(data string) {
	if !t.start() {
		util.LogWarning("tunnel already used; create a new one to reconnect")
		return
	}
	go t.run(data)
}

// Disconnect closes the connection. The closed state is reported from the
// receive goroutine, never from inside this call.
func (t *WebSocket) Disconnect() {
	if t.closing.Swap(true) {
		return
	}

	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()

	switch {
	case conn != nil:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline())
		conn.Close()
	case !t.start():
		// Dialing or already closed. run checks closing after the dial.
	default:
		go t.close(protocol.Status{Code: protocol.StatusSuccess}, nil)
	}
}

// SendMessage encodes elements as one instruction and writes it.
func (t *WebSocket) SendMessage(elements ...string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil || t.State() == protocol.TunnelClosed {
		return ErrNotConnected
	}

	msg := protocol.Encode(elements...)
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("failed to write instruction: %w", err)
	}
	util.Stats.AddSent(len(msg))
	return nil
}

func (t *WebSocket) run(data string) {
	target, err := connectURL(t.url, data)
	if err != nil {
		t.close(protocol.NewStatus(protocol.StatusClientBadRequest, "%v", err), nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ReceiveTimeout)
	conn, resp, err := t.dialer.DialContext(ctx, target, nil)
	cancel()
	if err != nil {
		t.close(dialStatus(resp, err), nil)
		return
	}
	util.LogDebug("WS connected: %s", t.url)

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	teardown := func() {
		t.connMu.Lock()
		t.conn = nil
		t.connMu.Unlock()
		conn.Close()
	}

	if t.closing.Load() {
		t.close(protocol.Status{Code: protocol.StatusSuccess}, teardown)
		return
	}

	t.touch()
	go t.watch(t.SendMessage, func() {
		conn.Close()
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.close(t.readStatus(err), teardown)
			return
		}
		if err := t.receive(string(msg)); err != nil {
			t.close(protocol.NewStatus(protocol.StatusServerError, "%v", err), teardown)
			return
		}
	}
}

// readStatus classifies the error that ended the read loop.
func (t *WebSocket) readStatus(err error) protocol.Status {
	if t.closing.Load() {
		return protocol.Status{Code: protocol.StatusSuccess}
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeStatus(closeErr)
	}

	if t.timedOut.Load() {
		return protocol.NewStatus(protocol.StatusUpstreamTimeout, "no data received for %s", ReceiveTimeout)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return protocol.NewStatus(protocol.StatusUpstreamTimeout, "%v", err)
	}
	return protocol.NewStatus(protocol.StatusUpstreamError, "%v", err)
}

// closeStatus maps a WebSocket close frame onto a status. Gateways report
// Guacamole status codes offset into the private close-code range.
func closeStatus(err *websocket.CloseError) protocol.Status {
	switch {
	case err.Code == websocket.CloseNormalClosure:
		return protocol.Status{Code: protocol.StatusSuccess, Message: err.Text}
	case err.Code >= 4000 && err.Code < 5000:
		return protocol.Status{Code: protocol.StatusCode(err.Code - 4000), Message: err.Text}
	case err.Code == websocket.CloseAbnormalClosure, err.Code == websocket.CloseTLSHandshake:
		return protocol.Status{Code: protocol.StatusUpstreamNotFound, Message: err.Error()}
	case err.Code == websocket.CloseGoingAway, err.Code == websocket.CloseServiceRestart:
		return protocol.Status{Code: protocol.StatusUpstreamUnavail, Message: err.Error()}
	default:
		return protocol.Status{Code: protocol.StatusServerError, Message: err.Error()}
	}
}

// dialStatus maps a failed handshake onto a status.
func dialStatus(resp *http.Response, err error) protocol.Status {
	if resp == nil {
		return protocol.NewStatus(protocol.StatusUpstreamNotFound, "failed to connect to WS server: %v", err)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return protocol.NewStatus(protocol.StatusClientUnauthorized, "%s", resp.Status)
	case http.StatusForbidden:
		return protocol.NewStatus(protocol.StatusClientForbidden, "%s", resp.Status)
	case http.StatusNotFound:
		return protocol.NewStatus(protocol.StatusResourceNotFound, "%s", resp.Status)
	case http.StatusTooManyRequests:
		return protocol.NewStatus(protocol.StatusClientTooMany, "%s", resp.Status)
	default:
		return protocol.NewStatus(protocol.StatusServerError, "%s", resp.Status)
	}
}

// connectURL joins endpoint and handshake data, mapping http(s) schemes to
// ws(s).
func connectURL(endpoint, data string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", endpoint)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in %s", u.Scheme, endpoint)
	}

	if data != "" {
		if u.RawQuery == "" {
			u.RawQuery = data
		} else {
			u.RawQuery += "&" + data
		}
	}
	return u.String(), nil
}
