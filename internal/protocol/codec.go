package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformed is returned (wrapped) for input that is not a valid
// instruction stream.
var ErrMalformed = errors.New("malformed instruction")

// MaxElementLength is the longest element, in code points, a Parser
// accepts. Longer length prefixes are rejected before any value is
// buffered.
const MaxElementLength = 8192

// maxLengthDigits is the number of digits in MaxElementLength.
var maxLengthDigits = len(strconv.Itoa(MaxElementLength))

// Encode serializes elements as one instruction: LEN.VALUE,...;
// LEN counts Unicode code points, not bytes.
func Encode(elements ...string) string {
	var b strings.Builder
	for i, e := range elements {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(utf8.RuneCountInString(e)))
		b.WriteByte('.')
		b.WriteString(e)
	}
	b.WriteByte(';')
	return b.String()
}

// EncodeInstruction serializes a single instruction.
func EncodeInstruction(ins *Instruction) string {
	return Encode(ins.Elements()...)
}

// Decode parses exactly one complete instruction. Trailing data is an error.
func Decode(data string) (*Instruction, error) {
	var p Parser
	out, err := p.Feed(data)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 || p.Pending() > 0 {
		return nil, fmt.Errorf("%w: expected exactly one instruction in %q", ErrMalformed, data)
	}
	return out[0], nil
}

// Parser splits a stream of instruction text into instructions. Data may be
// fed in arbitrary pieces; an incomplete trailing instruction is kept until
// the next Feed. A Parser is not safe for concurrent use.
type Parser struct {
	buf      string
	elements []string
}

// Feed appends data and returns every instruction completed by it.
func (p *Parser) Feed(data string) ([]*Instruction, error) {
	p.buf += data

	var out []*Instruction
	pos := 0
	for pos < len(p.buf) {
		dot := strings.IndexByte(p.buf[pos:], '.')
		if dot < 0 {
			if !allDigits(p.buf[pos:]) {
				return nil, p.fail("bad length prefix %q", p.buf[pos:])
			}
			if len(p.buf)-pos > maxLengthDigits {
				return nil, p.fail("length prefix exceeds %d", MaxElementLength)
			}
			break
		}

		lenStr := p.buf[pos : pos+dot]
		n, err := strconv.Atoi(lenStr)
		if err != nil || n < 0 {
			return nil, p.fail("bad length prefix %q", lenStr)
		}
		if n > MaxElementLength {
			return nil, p.fail("element length %s exceeds %d", lenStr, MaxElementLength)
		}

		// Walk n code points past the dot.
		start := pos + dot + 1
		end := start
		for i := 0; i < n; i++ {
			if end >= len(p.buf) {
				end = -1
				break
			}
			_, size := utf8.DecodeRuneInString(p.buf[end:])
			end += size
		}
		if end < 0 || end >= len(p.buf) {
			// Need more data for the value or its terminator.
			break
		}

		p.elements = append(p.elements, p.buf[start:end])

		switch p.buf[end] {
		case ',':
		case ';':
			out = append(out, &Instruction{Opcode: p.elements[0], Args: p.elements[1:]})
			p.elements = nil
		default:
			return nil, p.fail("unexpected terminator %q", p.buf[end])
		}
		pos = end + 1
	}

	p.buf = p.buf[pos:]
	return out, nil
}

// Pending reports how many bytes (or partially parsed elements) are held
// back waiting for the rest of an instruction.
func (p *Parser) Pending() int {
	return len(p.buf) + len(p.elements)
}

// Reset drops any partially received instruction.
func (p *Parser) Reset() {
	p.buf = ""
	p.elements = nil
}

func (p *Parser) fail(format string, args ...interface{}) error {
	p.Reset()
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
