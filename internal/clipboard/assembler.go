// Package clipboard assembles inbound clipboard streams into whole payloads.
package clipboard

import (
	"strings"

	"github.com/1ureka/rdclient/internal/protocol"
	"github.com/1ureka/rdclient/internal/util"
)

// TextPrefix is the MIME prefix of the only clipboard streams assembled.
const TextPrefix = "text/"

// Assembler turns inbound clipboard streams into payloads. It keeps no state
// between streams: every Handle call gets its own buffer, so overlapping
// streams never mix their chunks.
type Assembler struct {
	newReader protocol.ReaderFunc
	publish   func(string)
}

// NewAssembler returns an Assembler that reads streams through newReader and
// hands each completed payload to publish.
func NewAssembler(newReader protocol.ReaderFunc, publish func(string)) *Assembler {
	return &Assembler{newReader: newReader, publish: publish}
}

// Handle consumes one inbound stream. For text/* streams the chunks are
// concatenated in arrival order and published once, when the stream ends.
// A stream that never ends publishes nothing. Any other MIME type is
// dropped: binary clipboard formats are not supported.
func (a *Assembler) Handle(stream protocol.InputStream, mimetype string) {
	if !strings.HasPrefix(mimetype, TextPrefix) {
		util.LogDebug("dropping clipboard stream %d of type %q", stream.Index(), mimetype)
		return
	}

	var buf strings.Builder
	reader := a.newReader(stream)
	reader.OnText(func(chunk string) {
		buf.WriteString(chunk)
	})
	reader.OnEnd(func() {
		util.Stats.AddClipboardIn()
		a.publish(buf.String())
	})
}
