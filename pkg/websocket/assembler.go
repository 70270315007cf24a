package websocket

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"
)

type assemblerState int

const (
	stateIdle assemblerState = iota
	stateInText
	stateInBinary
)

// defaultMaxMessageSize is the default ceiling on the aggregate size of a
// reassembled message, applied unless an Assembler is configured otherwise.
const defaultMaxMessageSize = 64 << 20 // 64 MiB.

// Assembler composes decoded Frames into complete Messages, per the
// fragmentation rules of RFC 6455 §5.4. Its state is owned exclusively by a
// connection's read half (§5); it holds no reference to any stream or
// socket, so it works identically whether frames arrive via the blocking
// or the cooperative I/O flavor.
type Assembler struct {
	state assemblerState
	op    Opcode // The data opcode (Text or Binary) of the in-progress message.

	buf      bytes.Buffer
	utf8     incrementalUTF8
	isText   bool
	maxMsgSz uint64
}

// AssemblerOption configures an Assembler constructed with NewAssembler.
type AssemblerOption func(*Assembler)

// WithMaxMessageSize overrides the default 64 MiB ceiling on the aggregate
// size of a reassembled message.
func WithMaxMessageSize(n uint64) AssemblerOption {
	return func(a *Assembler) { a.maxMsgSz = n }
}

// NewAssembler builds an Assembler in the Idle state.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{maxMsgSz: defaultMaxMessageSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Push feeds one decoded Frame into the assembler. It returns a non-nil
// Message when the frame completes one (a control frame is always
// "complete" on arrival; a data frame completes a message only when
// fin=true). It returns an error (one of the ErrBad*/ErrUnexpected*/
// ErrInvalidUTF8/ErrTooBig sentinels) when the frame violates the state
// machine. On ErrTooBig or ErrInvalidUTF8 the in-progress message is
// discarded and the assembler returns to Idle; on any other error its
// state is left unchanged.
func (a *Assembler) Push(f Frame) (*Message, error) {
	if f.Opcode.isControl() {
		return a.pushControl(f)
	}
	return a.pushData(f)
}

func (a *Assembler) pushControl(f Frame) (*Message, error) {
	if f.Opcode == OpcodeClose {
		status, reason, err := parseClosePayload(f.Payload)
		if err != nil {
			return nil, err
		}
		return &Message{Opcode: OpcodeClose, Status: status, Reason: reason}, nil
	}
	// Ping/Pong: delivered as-is; the caller decides whether/how to reply.
	return &Message{Opcode: f.Opcode, Data: f.Payload}, nil
}

func (a *Assembler) pushData(f Frame) (*Message, error) {
	switch a.state {
	case stateIdle:
		switch f.Opcode {
		case OpcodeContinuation:
			return nil, ErrUnexpectedContinuation
		case OpcodeText, OpcodeBinary:
			return a.startMessage(f)
		default:
			return nil, ErrBadOpcode
		}

	case stateInText, stateInBinary:
		switch f.Opcode {
		case OpcodeContinuation:
			return a.continueMessage(f)
		default:
			return nil, ErrUnexpectedNewData
		}
	}

	return nil, ErrBadOpcode
}

// startMessage handles a Text/Binary frame arriving in the Idle state,
// either emitting the message immediately (fin=true) or opening a new
// fragmented message (fin=false).
func (a *Assembler) startMessage(f Frame) (*Message, error) {
	a.op = f.Opcode
	a.isText = f.Opcode == OpcodeText

	if err := a.accumulate(f.Payload); err != nil {
		return nil, err
	}

	if f.FIN {
		return a.finish()
	}

	if a.isText {
		a.state = stateInText
	} else {
		a.state = stateInBinary
	}
	return nil, nil
}

// continueMessage handles a Continuation frame arriving while a message is
// in progress.
func (a *Assembler) continueMessage(f Frame) (*Message, error) {
	if err := a.accumulate(f.Payload); err != nil {
		return nil, err
	}

	if f.FIN {
		return a.finish()
	}
	return nil, nil
}

func (a *Assembler) accumulate(payload []byte) error {
	if uint64(a.buf.Len())+uint64(len(payload)) > a.maxMsgSz {
		a.reset()
		return ErrTooBig
	}

	a.buf.Write(payload)

	if a.isText && len(payload) > 0 {
		if !a.utf8.write(payload) {
			a.reset()
			return ErrInvalidUTF8
		}
	}

	return nil
}

// finish emits the in-progress (or just-completed single-frame) message and
// resets the assembler to Idle.
func (a *Assembler) finish() (*Message, error) {
	isText := a.isText
	data := append([]byte(nil), a.buf.Bytes()...)
	utf8Complete := a.utf8.done()

	a.reset()

	if isText && !utf8Complete {
		return nil, ErrInvalidUTF8
	}

	resultOp := OpcodeBinary
	if isText {
		resultOp = OpcodeText
	}
	if data == nil {
		data = []byte{}
	}

	return &Message{Opcode: resultOp, Data: data}, nil
}

func (a *Assembler) reset() {
	a.state = stateIdle
	a.op = 0
	a.buf.Reset()
	a.utf8 = incrementalUTF8{}
	a.isText = false
}

// parseClosePayload extracts the StatusCode and optional UTF-8 reason from
// a Close control frame's payload, per RFC 6455 §5.5.1.
func parseClosePayload(payload []byte) (StatusCode, string, error) {
	switch len(payload) {
	case 0:
		return StatusNotReceived, "", nil
	case 1:
		return 0, "", ErrInvalidCloseCode
	}

	status := StatusCode(binary.BigEndian.Uint16(payload))
	if !status.validOnWire() {
		return 0, "", ErrInvalidCloseCode
	}

	reason := payload[2:]
	if len(reason) > 0 && !utf8.Valid(reason) {
		return 0, "", ErrInvalidUTF8
	}

	return status, string(reason), nil
}
