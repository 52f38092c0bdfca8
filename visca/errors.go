package visca

import "errors"

var (
	// ErrInvalidAddress indicates that a device address outside the valid
	// range was provided. Valid addresses are 1-7, plus the broadcast
	// address 8.
	ErrInvalidAddress = errors.New("invalid device address, should be in range of [1, 7] or broadcast")

	// ErrUnsupportedCommand indicates that the command/inquiry combination
	// is not part of the known command table, or that the command cannot be
	// sent to the requested destination (e.g. an inquiry to the broadcast
	// address).
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrInvalidParameter indicates that a command operand is outside its
	// declared numeric range.
	ErrInvalidParameter = errors.New("invalid command parameter")

	// ErrMalformedPacket indicates that a received byte sequence could not
	// be parsed as a VISCA reply. Malformed packets are framing noise and
	// are dropped by the dispatcher without surfacing to any caller.
	ErrMalformedPacket = errors.New("malformed packet")
)

var (
	// ErrTimeout indicates that the device did not reply within the
	// configured ack or completion timeout, after exhausting all retries.
	ErrTimeout = errors.New("reply timeout")

	// ErrTransport indicates that the underlying transport has failed and
	// the session is degraded. Submissions fail fast with this error until
	// the transport signals recovery.
	ErrTransport = errors.New("transport failure")

	// ErrClosed indicates that the dispatcher or session has been torn down.
	ErrClosed = errors.New("engine closed")

	// ErrNotCancelable indicates an attempt to cancel an inquiry or a
	// broadcast command; only addressed commands can be canceled.
	ErrNotCancelable = errors.New("request is not cancelable")
)

// Device-reported errors, one per code byte of an error reply.
var (
	// ErrMessageLength indicates error code 0x01: the command packet length
	// was rejected by the device.
	ErrMessageLength = errors.New("device error: message length")

	// ErrSyntax indicates error code 0x02: the device rejected the command
	// syntax. Never retried.
	ErrSyntax = errors.New("device error: syntax")

	// ErrBufferFull indicates error code 0x03: both command sockets are
	// occupied on the device. Retried with backoff.
	ErrBufferFull = errors.New("device error: command buffer full")

	// ErrCanceled indicates error code 0x04: the command was canceled on
	// the device, normally in response to a cancel packet.
	ErrCanceled = errors.New("device error: command canceled")

	// ErrNoSocket indicates error code 0x05: the cancel referenced a socket
	// with no executing command.
	ErrNoSocket = errors.New("device error: no socket")

	// ErrNotExecutable indicates error code 0x41: the command cannot be
	// executed in the current device mode. Never retried.
	ErrNotExecutable = errors.New("device error: not executable")
)

// deviceError maps the code byte of an error reply to its sentinel error.
// Unknown codes map to ErrMalformedPacket so that framing noise which
// happens to look like an error reply is dropped rather than surfaced.
func deviceError(code byte) error {
	switch code {
	case 0x01:
		return ErrMessageLength
	case 0x02:
		return ErrSyntax
	case 0x03:
		return ErrBufferFull
	case 0x04:
		return ErrCanceled
	case 0x05:
		return ErrNoSocket
	case 0x41:
		return ErrNotExecutable
	default:
		return ErrMalformedPacket
	}
}

// retryable reports whether a failure is worth resubmitting. Only timeouts
// and buffer-full rejections qualify; everything else is a caller or device
// condition that a retry cannot fix.
func retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrBufferFull)
}
