package clipboard_test

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/rdclient/internal/clipboard"
	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/util"
)

func TestMain(m *testing.M) {
	util.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeStream is an InputStream whose reader is driven by the test.
type fakeStream struct {
	index  int
	onText func(string)
	onEnd  func()
}

func (s *fakeStream) Index() int             { return s.index }
func (s *fakeStream) OnText(fn func(string)) { s.onText = fn }
func (s *fakeStream) OnEnd(fn func())        { s.onEnd = fn }
func (s *fakeStream) send(chunks ...string) {
	for _, c := range chunks {
		if s.onText != nil {
			s.onText(c)
		}
	}
}
func (s *fakeStream) end() {
	if s.onEnd != nil {
		s.onEnd()
	}
}

// Compile-time interface checks.
var (
	_ protocol.InputStream = (*fakeStream)(nil)
	_ protocol.TextReader  = (*fakeStream)(nil)
)

func readerFor(stream protocol.InputStream) protocol.TextReader {
	return stream.(*fakeStream)
}

func newAssembler() (*clipboard.Assembler, *[]string) {
	var published []string
	a := clipboard.NewAssembler(readerFor, func(s string) {
		published = append(published, s)
	})
	return a, &published
}

// TestAssembleText publishes exactly one payload after end-of-stream.
func TestAssembleText(t *testing.T) {
	a, published := newAssembler()
	s := &fakeStream{index: 1}

	a.Handle(s, "text/plain")
	s.send("Hel", "lo")
	assert.Empty(t, *published, "nothing may be published before the stream ends")

	s.end()
	assert.Equal(t, []string{"Hello"}, *published)
}

// TestAssembleIgnoresNonText drops non-text streams without reading them.
func TestAssembleIgnoresNonText(t *testing.T) {
	a, published := newAssembler()
	s := &fakeStream{index: 2}

	a.Handle(s, "image/png")
	assert.Nil(t, s.onText, "no reader should be attached")
	s.send("\x89PNG")
	s.end()

	assert.Empty(t, *published)
}

// TestAssembleNoEndNoPayload never flushes a partial buffer.
func TestAssembleNoEndNoPayload(t *testing.T) {
	a, published := newAssembler()
	s := &fakeStream{index: 3}

	a.Handle(s, "text/plain")
	s.send("partial", " data")

	assert.Empty(t, *published)
}

// TestAssembleEmptyStream publishes an empty payload when a stream ends
// without chunks.
func TestAssembleEmptyStream(t *testing.T) {
	a, published := newAssembler()
	s := &fakeStream{index: 4}

	a.Handle(s, "text/html;charset=utf-8")
	s.end()

	assert.Equal(t, []string{""}, *published)
}

// TestAssembleInterleavedStreams keeps concurrent streams isolated.
func TestAssembleInterleavedStreams(t *testing.T) {
	a, published := newAssembler()
	first := &fakeStream{index: 5}
	second := &fakeStream{index: 6}

	a.Handle(first, "text/plain")
	a.Handle(second, "text/plain")

	first.send("a")
	second.send("1")
	first.send("b")
	second.send("2")
	second.end()
	first.send("c")
	first.end()

	require.Len(t, *published, 2)
	assert.Equal(t, "12", (*published)[0])
	assert.Equal(t, "abc", (*published)[1])
}
