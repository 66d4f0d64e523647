package protocol

// ClientCode is the raw state code emitted by the protocol engine.
type ClientCode int

const (
	ClientIdle          ClientCode = 0
	ClientConnecting    ClientCode = 1
	ClientWaiting       ClientCode = 2 // connected, awaiting the first frame
	ClientConnected     ClientCode = 3
	ClientDisconnecting ClientCode = 4
	ClientDisconnected  ClientCode = 5
)

// TunnelCode is the raw state code emitted by the transport tunnel.
type TunnelCode int

const (
	TunnelIdle       TunnelCode = 0 // not yet asked to connect
	TunnelConnecting TunnelCode = 1 // transport open, remote session negotiating
	TunnelClosed     TunnelCode = 2
	TunnelUnstable   TunnelCode = 3 // transport alive but lagging
)

// InputStream is an opaque handle for an inbound stream opened by the
// remote side. Readers (see TextReader) attach to it to consume its data.
type InputStream interface {
	Index() int
}

// TextReader consumes an InputStream as text. Handlers must be registered
// before the engine delivers the next instruction for the stream.
type TextReader interface {
	OnText(fn func(chunk string))
	OnEnd(fn func())
}

// ReaderFunc attaches a TextReader to an inbound stream.
type ReaderFunc func(InputStream) TextReader

// Engine is the remote-desktop protocol engine. Every method returns
// immediately; effects are reported through the registered callbacks.
type Engine interface {
	Connect(data string)
	Disconnect()
	SetClipboard(text string)

	OnError(fn func(Status))
	OnStateChange(fn func(ClientCode))
	OnClipboard(fn func(stream InputStream, mimetype string))
}

// TunnelEvents is the callback surface of a transport tunnel that the
// connection core observes.
type TunnelEvents interface {
	OnError(fn func(Status))
	OnStateChange(fn func(TunnelCode))
}

// Tunnel is the full transport surface driven by an engine.
type Tunnel interface {
	TunnelEvents

	// Connect starts opening the transport, passing data as the handshake
	// query. It does not block.
	Connect(data string)

	// Disconnect closes the transport. It does not block and may be called
	// any number of times.
	Disconnect()

	// SendMessage encodes elements as one instruction and sends it.
	SendMessage(elements ...string) error

	OnInstruction(fn func(*Instruction))
}
