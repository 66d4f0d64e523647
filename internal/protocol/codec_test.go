package protocol_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/rdclient/internal/protocol"
)

// TestEncode checks the length-prefixed wire form, including that lengths
// count code points rather than bytes.
func TestEncode(t *testing.T) {
	testCases := []struct {
		name     string
		elements []string
		want     string
	}{
		{"opcode only", []string{"nop"}, "3.nop;"},
		{"opcode and args", []string{"sync", "1234"}, "4.sync,4.1234;"},
		{"empty element", []string{"", "ping"}, "0.,4.ping;"},
		{"multi-byte runes", []string{"clipboard", "héllo"}, "9.clipboard,5.héllo;"},
		{"separators inside values", []string{"blob", "a,b;c.d"}, "4.blob,7.a,b;c.d;"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, protocol.Encode(tc.elements...))
		})
	}
}

// TestDecodeRoundTrip verifies Decode inverts Encode for awkward values.
func TestDecodeRoundTrip(t *testing.T) {
	inputs := [][]string{
		{"sync", "1700000000"},
		{"error", "Aborted. See logs.", "512"},
		{"clipboard", "0", "text/plain"},
		{"blob", "0", strings.Repeat("QUJD", 4096)},
		{"", "ping", "12"},
		{"size", "0", "1024", "768"},
		{"name", "日本語,;."},
	}

	for _, elements := range inputs {
		ins, err := protocol.Decode(protocol.Encode(elements...))
		require.NoError(t, err)
		assert.Equal(t, elements, ins.Elements())
	}
}

// TestDecodeRejectsMalformed covers inputs that are not exactly one valid
// instruction.
func TestDecodeRejectsMalformed(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"missing terminator", "3.nop"},
		{"bad length", "x.nop;"},
		{"length too short", "2.nop;"},
		{"two instructions", "3.nop;3.nop;"},
		{"negative length", "-1.;"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.Decode(tc.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, protocol.ErrMalformed))
		})
	}
}

// TestParserFeedInPieces feeds a stream one byte at a time and expects the
// same instructions as a single Feed.
func TestParserFeedInPieces(t *testing.T) {
	stream := protocol.Encode("clipboard", "3", "text/plain") +
		protocol.Encode("blob", "3", "w6k=") +
		protocol.Encode("end", "3")

	var p protocol.Parser
	var got []*protocol.Instruction
	for i := 0; i < len(stream); i++ {
		out, err := p.Feed(stream[i : i+1])
		require.NoError(t, err)
		got = append(got, out...)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "clipboard", got[0].Opcode)
	assert.Equal(t, []string{"3", "text/plain"}, got[0].Args)
	assert.Equal(t, "w6k=", got[1].Arg(1))
	assert.Equal(t, "end", got[2].Opcode)
	assert.Zero(t, p.Pending())
}

// TestParserSplitMultiByteRune makes sure a rune split across two Feed calls
// is not miscounted.
func TestParserSplitMultiByteRune(t *testing.T) {
	stream := protocol.Encode("name", "é")
	cut := strings.IndexByte(stream, 0xC3) + 1

	var p protocol.Parser
	out, err := p.Feed(stream[:cut])
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = p.Feed(stream[cut:])
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "é", out[0].Arg(0))
}

// TestParserResetsAfterError checks the parser drops its buffer on a
// malformed stream so the next Feed starts clean.
func TestParserResetsAfterError(t *testing.T) {
	var p protocol.Parser
	_, err := p.Feed("4.sync,zz")
	require.Error(t, err)
	assert.Zero(t, p.Pending())

	out, err := p.Feed("3.nop;")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "nop", out[0].Opcode)
}

// TestInstructionArg verifies out-of-range lookups return "".
// TestParserCapsElementLength rejects oversized length prefixes before
// buffering their values.
func TestParserCapsElementLength(t *testing.T) {
	for _, data := range []string{
		"99999999999.",
		"8193.",
		"4.sync,8193.",
		"123456",
	} {
		var p protocol.Parser
		_, err := p.Feed(data)
		assert.ErrorIs(t, err, protocol.ErrMalformed, data)
		assert.Zero(t, p.Pending(), data)
	}

	value := strings.Repeat("é", protocol.MaxElementLength)
	ins, err := protocol.Decode(protocol.Encode("blob", value))
	require.NoError(t, err)
	assert.Equal(t, value, ins.Arg(0))
}

func TestInstructionArg(t *testing.T) {
	ins := protocol.NewInstruction("ack", "1", "OK")
	assert.Equal(t, "OK", ins.Arg(1))
	assert.Equal(t, "", ins.Arg(2))
	assert.Equal(t, "", ins.Arg(-1))
}

// TestStatus covers error classification and parsing.
func TestStatus(t *testing.T) {
	assert.False(t, protocol.Status{Code: protocol.StatusSuccess}.IsError())
	assert.True(t, protocol.Status{Code: protocol.StatusUpstreamTimeout}.IsError())

	s := protocol.ParseStatus("769", "denied")
	assert.Equal(t, protocol.StatusClientUnauthorized, s.Code)
	assert.Equal(t, "status 0x0301: denied", s.Error())

	s = protocol.ParseStatus("oops", "bad")
	assert.Equal(t, protocol.StatusServerError, s.Code)
}
