// Package client is the remote desktop connection facade. It builds the
// handshake, starts the protocol engine, binds the engine and tunnel events
// to the connection state machine, and publishes state and clipboard
// updates on an event hub.
package client

import (
	"fmt"
	"sync"

	"github.com/1ureka/rdclient/internal/clipboard"
	"github.com/1ureka/rdclient/internal/config"
	"github.com/1ureka/rdclient/internal/event"
	"github.com/1ureka/rdclient/internal/guac"
	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/state"
	"github.com/1ureka/rdclient/internal/tunnel"
	"github.com/1ureka/rdclient/internal/util"
)

// Client owns one connection attempt. It is single-use: once the attempt
// ends, create a new Client to connect again.
type Client struct {
	tunnel protocol.TunnelEvents
	engine protocol.Engine
	opts   config.Options
	screen config.Screen

	hub       *event.Hub
	machine   *state.Machine
	assembler *clipboard.Assembler

	bindOnce sync.Once
}

// New creates a client over an existing tunnel and engine. opts is copied;
// later changes by the caller have no effect. screen is queried on every
// Connect.
func New(tun protocol.TunnelEvents, engine protocol.Engine, opts config.Options, screen config.Screen) *Client {
	c := &Client{
		tunnel: tun,
		engine: engine,
		opts:   opts.Clone(),
		screen: screen,
		hub:    event.NewHub(),
	}
	c.machine = state.NewMachine(engine, c.hub.State)
	c.assembler = clipboard.NewAssembler(guac.NewStringReader, c.hub.Clipboard.Publish)
	return c
}

// Dial creates the tunnel for transport, a Guacamole engine on top of it,
// and a client driving both. Nothing is connected until Connect.
func Dial(transport config.Transport, url string, opts config.Options, screen config.Screen) (*Client, error) {
	var tun protocol.Tunnel
	switch transport {
	case config.TransportWebSocket:
		tun = tunnel.NewWebSocket(url)
	case config.TransportWebRTC:
		tun = tunnel.NewDataChannel(url)
	default:
		return nil, fmt.Errorf("unsupported transport %q", transport)
	}
	return New(tun, guac.NewClient(tun), opts, screen), nil
}

// Connect starts the connection attempt. The engine is started before any
// handler is bound, so events it emits synchronously from Connect are not
// observed. Calling Connect again re-issues the engine connect but binds
// nothing new.
func (c *Client) Connect() {
	data := config.Build(c.opts, c.screen)
	util.LogDebug("connecting with %s", data)

	c.engine.Connect(data)
	c.bindOnce.Do(c.bind)
}

func (c *Client) bind() {
	c.tunnel.OnError(c.machine.TunnelFailed)
	c.tunnel.OnStateChange(c.machine.TunnelStateChanged)
	c.engine.OnError(c.machine.ClientFailed)
	c.engine.OnStateChange(c.machine.ClientStateChanged)
	c.engine.OnClipboard(c.assembler.Handle)
}

// Disconnect asks the engine to end the session. The resulting state change
// is published when the engine or tunnel reports it.
func (c *Client) Disconnect() {
	c.machine.Disconnect()
}

// State returns the current application state.
func (c *Client) State() state.State {
	return c.machine.State()
}

// Is reports whether the client is in s.
func (c *Client) Is(s state.State) bool {
	return c.machine.Is(s)
}

// SendClipboard publishes text locally and sends it to the remote session.
// Empty text is ignored.
func (c *Client) SendClipboard(text string) {
	if text == "" {
		return
	}
	c.hub.Clipboard.Publish(text)
	c.engine.SetClipboard(text)
	util.Stats.AddClipboardOut()
}

// States is the application state channel. It replays Connecting until the
// first real transition.
func (c *Client) States() *event.Channel[state.State] {
	return c.hub.State
}

// Clipboard is the clipboard channel, carrying both remote payloads and
// text sent with SendClipboard.
func (c *Client) Clipboard() *event.Channel[string] {
	return c.hub.Clipboard
}

// Hub returns both channels.
func (c *Client) Hub() *event.Hub {
	return c.hub
}
