package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed length in bytes of every message header.
const HeaderSize = 16

// Kind identifies the type of a protocol message. Values match the PBSM
// wire ABI exactly; they must never be renumbered.
type Kind uint32

const (
	ReqOwn          Kind = 1
	GrantOwn        Kind = 2
	SetOwner        Kind = 3
	AskValue        Kind = 4
	SetValue        Kind = 5
	BarrierEnter    Kind = 6
	BarrierRelease  Kind = 7
	Invalidate      Kind = 8
	InvalAck        Kind = 9
)

// String renders a Kind using its wire name, matching the names in the ABI
// table rather than Go identifier casing, which is useful in log lines that
// cross-reference the protocol documentation.
func (k Kind) String() string {
	switch k {
	case ReqOwn:
		return "REQ_OWN"
	case GrantOwn:
		return "GRANT_OWN"
	case SetOwner:
		return "SET_OWNER"
	case AskValue:
		return "ASK_VALUE"
	case SetValue:
		return "SET_VALUE"
	case BarrierEnter:
		return "BARRIER_ENTER"
	case BarrierRelease:
		return "BARRIER_RELEASE"
	case Invalidate:
		return "INVALIDATE"
	case InvalAck:
		return "INVAL_ACK"
	default:
		return fmt.Sprintf("KIND(%d)", uint32(k))
	}
}

// HasPayload reports whether messages of this kind carry a trailing
// payload whose length is given by the header's Aux field. Only SET_VALUE
// does.
func (k Kind) HasPayload() bool {
	return k == SetValue
}

// Header is the fixed 16-byte envelope that precedes every message.
type Header struct {
	Kind Kind
	// ID is the variable id or barrier site id the message concerns.
	ID uint32
	// Aux carries a node id for most kinds, or a payload byte count for
	// SET_VALUE; its meaning is determined entirely by Kind.
	Aux uint64
}

// Encode writes h into dst, which must be at least HeaderSize bytes long.
func Encode(dst []byte, h Header) {
	if len(dst) < HeaderSize {
		panic("wire: Encode: dst shorter than HeaderSize")
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.Kind))
	binary.LittleEndian.PutUint32(dst[4:8], h.ID)
	binary.LittleEndian.PutUint64(dst[8:16], h.Aux)
}

// Marshal returns h encoded as a new HeaderSize-byte slice.
func Marshal(h Header) []byte {
	buf := make([]byte, HeaderSize)
	Encode(buf, h)
	return buf
}

// Decode parses a Header from the first HeaderSize bytes of src.
func Decode(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("wire: Decode: need %d bytes, got %d", HeaderSize, len(src))
	}
	return Header{
		Kind: Kind(binary.LittleEndian.Uint32(src[0:4])),
		ID:   binary.LittleEndian.Uint32(src[4:8]),
		Aux:  binary.LittleEndian.Uint64(src[8:16]),
	}, nil
}
