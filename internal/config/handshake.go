package config

import (
	"net/url"
	"strconv"
	"strings"
)

// Default handshake values.
const (
	DefaultAudio = "audio/L16"
	DefaultImage = "image/png"
)

// Handshake parameter names the builder always emits.
const (
	KeyID     = "ID"
	KeyWidth  = "WIDTH"
	KeyHeight = "HEIGHT"
	KeyAudio  = "AUDIO"
	KeyImage  = "IMAGE"
)

// Option is one handshake parameter.
type Option struct {
	Key   string
	Value string
}

// String builds a string-valued option.
func String(key, value string) Option { return Option{Key: key, Value: value} }

// Int builds a numeric option.
func Int(key string, value int) Option { return Option{Key: key, Value: strconv.Itoa(value)} }

// Options is an ordered, open set of handshake parameters. Keys are not
// restricted to the defaults; unknown keys pass through untouched.
type Options []Option

// Get returns the value of the last option named key.
func (o Options) Get(key string) (string, bool) {
	for i := len(o) - 1; i >= 0; i-- {
		if o[i].Key == key {
			return o[i].Value, true
		}
	}
	return "", false
}

// Clone returns an independent copy.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	return append(Options(nil), o...)
}

// Merge overlays over onto o. A key already present keeps its position and
// takes the new value; new keys append in the order given.
func (o Options) Merge(over Options) Options {
	out := o.Clone()
	index := make(map[string]int, len(out))
	for i, opt := range out {
		index[opt.Key] = i
	}
	for _, opt := range over {
		if i, ok := index[opt.Key]; ok {
			out[i].Value = opt.Value
			continue
		}
		index[opt.Key] = len(out)
		out = append(out, opt)
	}
	return out
}

// Encode serializes the options as a query string in order.
func (o Options) Encode() string {
	var b strings.Builder
	for i, opt := range o {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(opt.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(opt.Value))
	}
	return b.String()
}

// Screen reports the current display geometry in pixels.
type Screen interface {
	Size() (width, height int)
}

// FixedScreen is a Screen with a constant size.
type FixedScreen struct {
	Width  int
	Height int
}

// Size implements Screen.
func (s FixedScreen) Size() (int, int) { return s.Width, s.Height }

// Defaults returns the default handshake parameters for the given geometry.
// ID has no value.
func Defaults(width, height int) Options {
	return Options{
		{KeyID, ""},
		Int(KeyWidth, width),
		Int(KeyHeight, height),
		{KeyAudio, DefaultAudio},
		{KeyImage, DefaultImage},
	}
}

// Build produces the handshake query string: defaults computed from the
// screen's size at call time, overlaid with opts.
func Build(opts Options, screen Screen) string {
	var w, h int
	if screen != nil {
		w, h = screen.Size()
	}
	return Defaults(w, h).Merge(opts).Encode()
}
