package guac

import (
	"sync"
	"unicode/utf8"

	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/util"
)

// InputStream is an inbound stream opened by the remote side. Blobs and the
// end signal are delivered on the tunnel's receive goroutine.
type InputStream struct {
	index int

	mu     sync.Mutex
	onBlob func([]byte)
	onEnd  func()
}

func newInputStream(index int) *InputStream {
	return &InputStream{index: index}
}

// Index implements protocol.InputStream.
func (s *InputStream) Index() int { return s.index }

// OnBlob registers the handler for each decoded blob.
func (s *InputStream) OnBlob(fn func([]byte)) {
	s.mu.Lock()
	s.onBlob = fn
	s.mu.Unlock()
}

// OnEnd registers the end-of-stream handler.
func (s *InputStream) OnEnd(fn func()) {
	s.mu.Lock()
	s.onEnd = fn
	s.mu.Unlock()
}

func (s *InputStream) deliver(data []byte) {
	s.mu.Lock()
	fn := s.onBlob
	s.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (s *InputStream) finish() {
	s.mu.Lock()
	fn := s.onEnd
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// blobSource is what a StringReader needs from a stream.
type blobSource interface {
	OnBlob(fn func([]byte))
	OnEnd(fn func())
}

// StringReader decodes a stream's blobs as UTF-8 text. A multi-byte
// character split across two blobs is held back until it is complete.
type StringReader struct {
	mu      sync.Mutex
	pending []byte
	onText  func(string)
	onEnd   func()
}

// NewStringReader attaches a StringReader to stream. It matches
// protocol.ReaderFunc. Streams not produced by this package never fire.
func NewStringReader(stream protocol.InputStream) protocol.TextReader {
	r := &StringReader{}
	src, ok := stream.(blobSource)
	if !ok {
		util.LogWarning("stream %d cannot be read as text", stream.Index())
		return r
	}
	src.OnBlob(r.blob)
	src.OnEnd(r.end)
	return r
}

// OnText implements protocol.TextReader.
func (r *StringReader) OnText(fn func(string)) {
	r.mu.Lock()
	r.onText = fn
	r.mu.Unlock()
}

// OnEnd implements protocol.TextReader.
func (r *StringReader) OnEnd(fn func()) {
	r.mu.Lock()
	r.onEnd = fn
	r.mu.Unlock()
}

func (r *StringReader) blob(data []byte) {
	r.mu.Lock()
	buf := append(r.pending, data...)
	cut := completePrefix(buf)
	text := string(buf[:cut])
	r.pending = append([]byte(nil), buf[cut:]...)
	fn := r.onText
	r.mu.Unlock()

	if text != "" && fn != nil {
		fn(text)
	}
}

func (r *StringReader) end() {
	r.mu.Lock()
	rest := string(r.pending)
	r.pending = nil
	textFn, endFn := r.onText, r.onEnd
	r.mu.Unlock()

	if rest != "" && textFn != nil {
		textFn(rest)
	}
	if endFn != nil {
		endFn()
	}
}

// completePrefix returns the length of buf without a trailing incomplete
// UTF-8 sequence.
func completePrefix(buf []byte) int {
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-utf8.UTFMax; i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				return i
			}
			break
		}
	}
	return len(buf)
}
