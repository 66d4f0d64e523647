// Package tunnel carries Guacamole instructions between the engine and a
// remote gateway. Two transports are provided: a WebSocket tunnel and a
// WebRTC DataChannel tunnel signaled over WebSocket.
//
// Handlers registered with OnError, OnStateChange and OnInstruction are
// additive, so the engine and the connection core can both observe the same
// tunnel. They run on the tunnel's receive goroutine.
package tunnel

import (
	"errors"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/util"
)

// Tuning constants.
const (
	ReceiveTimeout = 15 * time.Second // no data for this long closes the tunnel
	KeepAlive      = 5 * time.Second  // interval between internal pings
)

// ErrNotConnected is returned by SendMessage before the tunnel is open or
// after it has closed.
var ErrNotConnected = errors.New("tunnel not connected")

// base holds the transport-independent half of a tunnel: handler lists,
// deduplicated state, instruction parsing and the close-once path.
type base struct {
	mu       sync.Mutex
	state    protocol.TunnelCode
	uuid     string
	started  bool
	errFns   []func(protocol.Status)
	stateFns []func(protocol.TunnelCode)
	insFns   []func(*protocol.Instruction)

	parser   protocol.Parser // receive goroutine only
	lastRecv atomic.Int64    // unix nanos of the last inbound message
	closing  atomic.Bool     // Disconnect was requested
	timedOut atomic.Bool     // the receive timeout fired

	closeOnce sync.Once
	done      chan struct{}
}

func (b *base) init() {
	b.state = protocol.TunnelIdle
	b.done = make(chan struct{})
}

// OnError adds a handler for transport failures.
func (b *base) OnError(fn func(protocol.Status)) {
	b.mu.Lock()
	b.errFns = append(b.errFns, fn)
	b.mu.Unlock()
}

// OnStateChange adds a handler for raw tunnel state changes.
func (b *base) OnStateChange(fn func(protocol.TunnelCode)) {
	b.mu.Lock()
	b.stateFns = append(b.stateFns, fn)
	b.mu.Unlock()
}

// OnInstruction adds a handler for every inbound, non-internal instruction.
func (b *base) OnInstruction(fn func(*protocol.Instruction)) {
	b.mu.Lock()
	b.insFns = append(b.insFns, fn)
	b.mu.Unlock()
}

// State returns the current raw tunnel state.
func (b *base) State() protocol.TunnelCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// UUID returns the identifier the gateway assigned, or "" before it has.
func (b *base) UUID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uuid
}

// Done is closed once the tunnel has closed.
func (b *base) Done() <-chan struct{} {
	return b.done
}

// start marks the tunnel as used. A tunnel connects at most once.
func (b *base) start() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return false
	}
	b.started = true
	return true
}

func (b *base) setState(code protocol.TunnelCode) {
	b.mu.Lock()
	if b.state == code || b.state == protocol.TunnelClosed {
		b.mu.Unlock()
		return
	}
	b.state = code
	fns := slices.Clone(b.stateFns)
	b.mu.Unlock()

	for _, fn := range fns {
		fn(code)
	}
}

// open moves the tunnel to the connecting state once the gateway has
// answered.
func (b *base) open() {
	b.touch()
	b.setState(protocol.TunnelConnecting)
}

func (b *base) touch() {
	b.lastRecv.Store(time.Now().UnixNano())
}

// receive parses one inbound message and dispatches its instructions.
// Internal instructions are consumed here; the first one carries the UUID.
func (b *base) receive(data string) error {
	util.Stats.AddRecv(len(data))
	b.touch()

	instructions, err := b.parser.Feed(data)
	if err != nil {
		return err
	}

	for _, ins := range instructions {
		if ins.Opcode == protocol.OpInternal {
			b.mu.Lock()
			if b.uuid == "" && ins.Arg(0) != protocol.InternalPing {
				b.uuid = ins.Arg(0)
			}
			b.mu.Unlock()
			b.open()
			continue
		}

		b.open()

		b.mu.Lock()
		fns := slices.Clone(b.insFns)
		b.mu.Unlock()
		for _, fn := range fns {
			fn(ins)
		}
	}
	return nil
}

// close runs teardown, reports status if it is an error, and moves to the
// closed state. Only the first call has any effect.
func (b *base) close(status protocol.Status, teardown func()) {
	b.closeOnce.Do(func() {
		if teardown != nil {
			teardown()
		}
		close(b.done)

		if status.IsError() {
			util.LogWarning("tunnel closed: %v", status)
			b.mu.Lock()
			fns := slices.Clone(b.errFns)
			b.mu.Unlock()
			for _, fn := range fns {
				fn(status)
			}
		}
		b.setState(protocol.TunnelClosed)
	})
}

// watch sends an internal ping every KeepAlive and reports a receive
// timeout once nothing has arrived for ReceiveTimeout. It returns when the
// tunnel is done.
func (b *base) watch(send func(...string) error, timeout func()) {
	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if b.idle(now) > ReceiveTimeout {
				b.timedOut.Store(true)
				timeout()
				return
			}
			ts := strconv.FormatInt(now.UnixMilli(), 10)
			if err := send(protocol.OpInternal, protocol.InternalPing, ts); err != nil {
				util.LogDebug("keep-alive ping failed: %v", err)
			}
		case <-b.done:
			return
		}
	}
}

// idle returns how long it has been since the last inbound message.
func (b *base) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, b.lastRecv.Load()))
}

func deadline() time.Time {
	return time.Now().Add(time.Second)
}
