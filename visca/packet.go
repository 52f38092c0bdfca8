package visca

import "fmt"

// Wire-format constants of the protocol.
const (
	// Terminator closes every packet and cannot appear inside a payload.
	Terminator = 0xFF

	// Broadcast is the logical broadcast address on a daisy-chained bus.
	Broadcast = 8

	// broadcastHeader is the address byte of a broadcast packet.
	broadcastHeader = 0x88

	// maxPacketLen is the longest standard command packet, header and
	// terminator included.
	maxPacketLen = 16

	// maxBodyLen is the longest command body between header and terminator.
	maxBodyLen = maxPacketLen - 2
)

// Packet is a complete wire-level byte sequence: address byte, body,
// terminator.
type Packet []byte

// validAddress reports whether addr is an assignable bus address.
func validAddress(addr byte) bool {
	return addr >= 1 && addr <= 7
}

// Encode translates a Command into the packet addressed to dest.
//
// It fails with ErrUnsupportedCommand for a zero-value Command or for an
// inquiry addressed to the broadcast address, with ErrInvalidAddress for a
// destination outside [1,7] and not Broadcast, and with ErrInvalidParameter
// when the body would exceed the 16-byte packet limit.
func Encode(dest byte, cmd Command) (Packet, error) {
	if cmd.kind == kindNone || len(cmd.body) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrUnsupportedCommand)
	}
	if len(cmd.body) > maxBodyLen {
		return nil, fmt.Errorf("%w: body length %d exceeds %d", ErrInvalidParameter, len(cmd.body), maxBodyLen)
	}

	var header byte
	switch {
	case dest == Broadcast:
		if cmd.kind == kindInquiry {
			return nil, fmt.Errorf("%w: inquiry %q cannot be broadcast", ErrUnsupportedCommand, cmd.name)
		}
		header = broadcastHeader
	case validAddress(dest):
		header = 0x80 | dest
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidAddress, dest)
	}

	pkt := make(Packet, 0, len(cmd.body)+2)
	pkt = append(pkt, header)
	pkt = append(pkt, cmd.body...)
	pkt = append(pkt, Terminator)

	return pkt, nil
}

// encodeCancel builds the cancel packet for an occupied command socket.
//
// Wire form: 8x 2Y FF.
func encodeCancel(dest byte, socket int) Packet {
	return Packet{0x80 | dest, 0x20 | byte(socket), Terminator}
}
