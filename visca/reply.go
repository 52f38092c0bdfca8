package visca

import "fmt"

// ReplyType classifies a decoded device reply.
type ReplyType uint8

const (
	// ReplyAck indicates the device accepted a command and began executing
	// it on the socket carried by the reply.
	ReplyAck ReplyType = iota
	// ReplyCompletion indicates a command finished, or carries the result
	// payload of an inquiry.
	ReplyCompletion
	// ReplyError carries one of the device error codes.
	ReplyError
)

// String returns the string representation of the reply type.
func (rt ReplyType) String() string {
	switch rt {
	case ReplyAck:
		return "ack"
	case ReplyCompletion:
		return "completion"
	case ReplyError:
		return "error"
	default:
		return "unknown"
	}
}

// Reply is a decoded device response.
type Reply struct {
	// Source is the replying device address, 1-7.
	Source byte
	// Socket is the command socket the reply refers to; 0 for inquiry
	// completions and unsocketed errors.
	Socket int
	// Type classifies the reply.
	Type ReplyType
	// Payload holds the inquiry result bytes of a completion, nil otherwise.
	Payload []byte
	// Err holds the device error for a ReplyError, nil otherwise.
	Err error
}

// Decode parses one terminator-delimited byte sequence into a Reply.
//
// Replies are classified by the high nibble of the status byte: 0x4Y is an
// ack, 0x5Y a completion, 0x6Y an error followed by exactly one code byte.
// The socket number Y is the low nibble. Any framing violation fails with
// ErrMalformedPacket.
func Decode(raw []byte) (Reply, error) {
	if len(raw) < 3 {
		return Reply{}, fmt.Errorf("%w: length %d below minimum reply", ErrMalformedPacket, len(raw))
	}
	if raw[len(raw)-1] != Terminator {
		return Reply{}, fmt.Errorf("%w: missing terminator", ErrMalformedPacket)
	}

	// Reply header is (source+8)<<4: 0x90 for device 1 through 0xF0 for 7.
	header := raw[0]
	if header&0x0F != 0 {
		return Reply{}, fmt.Errorf("%w: header byte 0x%02X", ErrMalformedPacket, header)
	}
	source := header>>4 - 8
	if !validAddress(source) {
		return Reply{}, fmt.Errorf("%w: header byte 0x%02X", ErrMalformedPacket, header)
	}

	status := raw[1]
	socket := int(status & 0x0F)

	switch status & 0xF0 {
	case 0x40:
		if len(raw) != 3 {
			return Reply{}, fmt.Errorf("%w: ack length %d", ErrMalformedPacket, len(raw))
		}
		if socket < 1 || socket > 2 {
			return Reply{}, fmt.Errorf("%w: ack socket %d", ErrMalformedPacket, socket)
		}

		return Reply{Source: source, Socket: socket, Type: ReplyAck}, nil

	case 0x50:
		if socket > 2 {
			return Reply{}, fmt.Errorf("%w: completion socket %d", ErrMalformedPacket, socket)
		}

		var payload []byte
		if len(raw) > 3 {
			payload = make([]byte, len(raw)-3)
			copy(payload, raw[2:len(raw)-1])
		}

		return Reply{Source: source, Socket: socket, Type: ReplyCompletion, Payload: payload}, nil

	case 0x60:
		if len(raw) != 4 {
			return Reply{}, fmt.Errorf("%w: error reply length %d", ErrMalformedPacket, len(raw))
		}
		if socket > 2 {
			return Reply{}, fmt.Errorf("%w: error socket %d", ErrMalformedPacket, socket)
		}
		devErr := deviceError(raw[2])
		if devErr == ErrMalformedPacket {
			return Reply{}, fmt.Errorf("%w: unknown error code 0x%02X", ErrMalformedPacket, raw[2])
		}

		return Reply{Source: source, Socket: socket, Type: ReplyError, Err: devErr}, nil

	default:
		return Reply{}, fmt.Errorf("%w: status byte 0x%02X", ErrMalformedPacket, status)
	}
}
