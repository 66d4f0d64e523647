// Package guac is a minimal Guacamole protocol engine. It tracks session
// state and carries clipboard streams in both directions over any
// protocol.Tunnel. Display, audio and input instructions are not handled;
// rendering belongs to a separate display layer.
package guac

import (
	"encoding/base64"
	"strconv"
	"sync"

	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/util"
)

// Tuning constants.
const (
	// maxBlobBytes is the raw size of one outbound blob. A multiple of 3
	// keeps each base64 chunk free of padding.
	maxBlobBytes = 6048

	// maxStreams bounds the indices handed out for outbound streams.
	maxStreams = 64
)

// Client drives one Guacamole session over a tunnel. It implements
// protocol.Engine.
type Client struct {
	tunnel protocol.Tunnel

	mu          sync.Mutex
	state       protocol.ClientCode
	onError     func(protocol.Status)
	onState     func(protocol.ClientCode)
	onClipboard func(protocol.InputStream, string)
	inputs      map[int]*InputStream
	outputs     [maxStreams]bool
}

// NewClient creates an idle client and subscribes it to the tunnel.
func NewClient(tunnel protocol.Tunnel) *Client {
	c := &Client{
		tunnel: tunnel,
		state:  protocol.ClientIdle,
		inputs: make(map[int]*InputStream),
	}
	tunnel.OnInstruction(c.handle)
	tunnel.OnStateChange(c.tunnelStateChanged)
	return c
}

// ---------------------------------------------------------------------------
// protocol.Engine
// ---------------------------------------------------------------------------

// OnError sets the handler for session errors reported by the gateway.
func (c *Client) OnError(fn func(protocol.Status)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// OnStateChange sets the handler for raw client state changes.
func (c *Client) OnStateChange(fn func(protocol.ClientCode)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// OnClipboard sets the handler for inbound clipboard streams. Without one,
// inbound clipboard streams are refused.
func (c *Client) OnClipboard(fn func(protocol.InputStream, string)) {
	c.mu.Lock()
	c.onClipboard = fn
	c.mu.Unlock()
}

// Connect starts a session, passing data as the handshake query. The client
// waits for the first sync once the tunnel has been asked to connect.
func (c *Client) Connect(data string) {
	c.setState(protocol.ClientConnecting)
	c.tunnel.Connect(data)
	c.setState(protocol.ClientWaiting)
}

// Disconnect ends the session. Calling it again, or after the session has
// already ended, does nothing.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == protocol.ClientDisconnecting || c.state == protocol.ClientDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = protocol.ClientDisconnecting
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(protocol.ClientDisconnecting)
	}
	if err := c.tunnel.SendMessage(protocol.OpDisconnect); err != nil {
		util.LogDebug("disconnect instruction not sent: %v", err)
	}
	c.tunnel.Disconnect()
	c.setState(protocol.ClientDisconnected)
}

// SetClipboard sends text to the remote clipboard as a text/plain stream.
func (c *Client) SetClipboard(text string) {
	index, ok := c.allocOutput()
	if !ok {
		util.LogWarning("no free stream for clipboard data")
		return
	}
	defer c.releaseOutput(index)

	idx := strconv.Itoa(index)
	if err := c.tunnel.SendMessage(protocol.OpClipboard, idx, "text/plain"); err != nil {
		util.LogWarning("failed to send clipboard: %v", err)
		return
	}

	data := []byte(text)
	for len(data) > 0 {
		n := min(len(data), maxBlobBytes)
		if err := c.tunnel.SendMessage(protocol.OpBlob, idx, base64.StdEncoding.EncodeToString(data[:n])); err != nil {
			util.LogWarning("failed to send clipboard blob: %v", err)
			return
		}
		data = data[n:]
	}

	if err := c.tunnel.SendMessage(protocol.OpEnd, idx); err != nil {
		util.LogWarning("failed to end clipboard stream: %v", err)
	}
}

// State returns the current raw client state.
func (c *Client) State() protocol.ClientCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ---------------------------------------------------------------------------
// Tunnel events
// ---------------------------------------------------------------------------

func (c *Client) tunnelStateChanged(code protocol.TunnelCode) {
	if code == protocol.TunnelClosed {
		c.setState(protocol.ClientDisconnected)
	}
}

// handle dispatches one inbound instruction. Opcodes outside the session
// and clipboard subset are ignored.
func (c *Client) handle(ins *protocol.Instruction) {
	switch ins.Opcode {
	case protocol.OpSync:
		c.sync(ins.Arg(0))

	case protocol.OpError:
		status := protocol.ParseStatus(ins.Arg(1), ins.Arg(0))
		c.mu.Lock()
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(status)
		}
		c.Disconnect()

	case protocol.OpDisconnect:
		c.Disconnect()

	case protocol.OpClipboard:
		c.openClipboard(ins.Arg(0), ins.Arg(1))

	case protocol.OpBlob:
		c.blob(ins.Arg(0), ins.Arg(1))

	case protocol.OpEnd:
		c.end(ins.Arg(0))

	case protocol.OpAck:
		if status := protocol.ParseStatus(ins.Arg(2), ins.Arg(1)); status.IsError() {
			util.LogDebug("stream %s refused: %v", ins.Arg(0), status)
		}
	}
}

func (c *Client) sync(timestamp string) {
	if err := c.tunnel.SendMessage(protocol.OpSync, timestamp); err != nil {
		util.LogDebug("sync not acknowledged: %v", err)
	}

	switch c.State() {
	case protocol.ClientConnecting, protocol.ClientWaiting:
		c.setState(protocol.ClientConnected)
	}
}

func (c *Client) openClipboard(idx, mimetype string) {
	index, err := strconv.Atoi(idx)
	if err != nil {
		util.LogDebug("bad clipboard stream index %q", idx)
		return
	}

	c.mu.Lock()
	fn := c.onClipboard
	var stream *InputStream
	if fn != nil {
		stream = newInputStream(index)
		c.inputs[index] = stream
	}
	c.mu.Unlock()

	if fn == nil {
		c.ack(idx, "Unsupported", protocol.StatusUnsupported)
		return
	}
	fn(stream, mimetype)
}

func (c *Client) blob(idx, payload string) {
	stream := c.input(idx, false)
	if stream == nil {
		return
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		util.LogDebug("stream %s: bad blob: %v", idx, err)
		c.ack(idx, "Bad blob", protocol.StatusClientBadRequest)
		return
	}

	stream.deliver(data)
	c.ack(idx, "OK", protocol.StatusSuccess)
}

func (c *Client) end(idx string) {
	if stream := c.input(idx, true); stream != nil {
		stream.finish()
	}
}

// input looks up an open inbound stream, optionally removing it.
func (c *Client) input(idx string, remove bool) *InputStream {
	index, err := strconv.Atoi(idx)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stream := c.inputs[index]
	if remove {
		delete(c.inputs, index)
	}
	return stream
}

func (c *Client) ack(idx, message string, code protocol.StatusCode) {
	if err := c.tunnel.SendMessage(protocol.OpAck, idx, message, strconv.Itoa(int(code))); err != nil {
		util.LogDebug("ack for stream %s not sent: %v", idx, err)
	}
}

func (c *Client) allocOutput() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, used := range c.outputs {
		if !used {
			c.outputs[i] = true
			return i, true
		}
	}
	return 0, false
}

func (c *Client) releaseOutput(index int) {
	c.mu.Lock()
	c.outputs[index] = false
	c.mu.Unlock()
}

// setState records code and notifies the handler when it differs from the
// current state.
func (c *Client) setState(code protocol.ClientCode) {
	c.mu.Lock()
	if c.state == code {
		c.mu.Unlock()
		return
	}
	c.state = code
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(code)
	}
}
