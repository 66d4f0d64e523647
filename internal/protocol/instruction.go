// Package protocol defines the boundary between the connection core and its
// collaborators: raw state codes, status values, the engine/tunnel/stream
// interfaces, and the Guacamole instruction wire format they exchange.
package protocol

// Well-known opcodes handled by the engine adapter.
const (
	OpAck        = "ack"
	OpBlob       = "blob"
	OpClipboard  = "clipboard"
	OpDisconnect = "disconnect"
	OpEnd        = "end"
	OpError      = "error"
	OpNop        = "nop"
	OpSync       = "sync"

	// OpInternal is the empty opcode reserved for tunnel-level messages.
	OpInternal = ""
)

// Internal tunnel message kinds, carried as the first argument of an
// OpInternal instruction.
const (
	InternalPing = "ping"
)

// Instruction is one Guacamole protocol instruction: an opcode followed by
// zero or more string arguments.
type Instruction struct {
	Opcode string
	Args   []string
}

// NewInstruction builds an instruction from an opcode and its arguments.
func NewInstruction(opcode string, args ...string) *Instruction {
	return &Instruction{Opcode: opcode, Args: args}
}

// Arg returns the i-th argument, or "" when the instruction has fewer.
func (ins *Instruction) Arg(i int) string {
	if i < 0 || i >= len(ins.Args) {
		return ""
	}
	return ins.Args[i]
}

// Elements returns the opcode followed by the arguments.
func (ins *Instruction) Elements() []string {
	return append([]string{ins.Opcode}, ins.Args...)
}
