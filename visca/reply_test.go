package visca

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReply_Decode(t *testing.T) {
	require := require.New(t)

	tests := []struct {
		description string
		raw         []byte
		expected    Reply
		expectedErr error
	}{
		{
			description: "ack on socket 1 from device 1",
			raw:         []byte{0x90, 0x41, 0xFF},
			expected:    Reply{Source: 1, Socket: 1, Type: ReplyAck},
		},
		{
			description: "ack on socket 2 from device 7",
			raw:         []byte{0xF0, 0x42, 0xFF},
			expected:    Reply{Source: 7, Socket: 2, Type: ReplyAck},
		},
		{
			description: "command completion on socket 1",
			raw:         []byte{0x90, 0x51, 0xFF},
			expected:    Reply{Source: 1, Socket: 1, Type: ReplyCompletion},
		},
		{
			description: "inquiry completion on socket 0 carries payload",
			raw:         []byte{0x90, 0x50, 0x02, 0xFF},
			expected:    Reply{Source: 1, Socket: 0, Type: ReplyCompletion, Payload: []byte{0x02}},
		},
		{
			description: "position inquiry completion carries nibble payload",
			raw:         []byte{0xA0, 0x50, 0x01, 0x02, 0x03, 0x04, 0xFF},
			expected:    Reply{Source: 2, Socket: 0, Type: ReplyCompletion, Payload: []byte{0x01, 0x02, 0x03, 0x04}},
		},
		{
			description: "syntax error on socket 0",
			raw:         []byte{0x90, 0x60, 0x02, 0xFF},
			expected:    Reply{Source: 1, Socket: 0, Type: ReplyError, Err: ErrSyntax},
		},
		{
			description: "buffer full error",
			raw:         []byte{0x90, 0x60, 0x03, 0xFF},
			expected:    Reply{Source: 1, Socket: 0, Type: ReplyError, Err: ErrBufferFull},
		},
		{
			description: "command canceled error on socket 1",
			raw:         []byte{0x90, 0x61, 0x04, 0xFF},
			expected:    Reply{Source: 1, Socket: 1, Type: ReplyError, Err: ErrCanceled},
		},
		{
			description: "no socket error on socket 2",
			raw:         []byte{0x90, 0x62, 0x05, 0xFF},
			expected:    Reply{Source: 1, Socket: 2, Type: ReplyError, Err: ErrNoSocket},
		},
		{
			description: "not executable error",
			raw:         []byte{0x90, 0x61, 0x41, 0xFF},
			expected:    Reply{Source: 1, Socket: 1, Type: ReplyError, Err: ErrNotExecutable},
		},
		{
			description: "message length error",
			raw:         []byte{0x90, 0x60, 0x01, 0xFF},
			expected:    Reply{Source: 1, Socket: 0, Type: ReplyError, Err: ErrMessageLength},
		},
		{
			description: "too short",
			raw:         []byte{0x90, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "missing terminator",
			raw:         []byte{0x90, 0x41, 0x00},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "header low nibble set",
			raw:         []byte{0x91, 0x41, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "source address below 1",
			raw:         []byte{0x80, 0x41, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "ack with trailing bytes",
			raw:         []byte{0x90, 0x41, 0x00, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "ack on socket 0",
			raw:         []byte{0x90, 0x40, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "ack on socket 3",
			raw:         []byte{0x90, 0x43, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "completion on socket 3",
			raw:         []byte{0x90, 0x53, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "error reply without code byte",
			raw:         []byte{0x90, 0x60, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "error reply with unknown code",
			raw:         []byte{0x90, 0x60, 0x42, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
		{
			description: "unknown status nibble",
			raw:         []byte{0x90, 0x70, 0xFF},
			expectedErr: ErrMalformedPacket,
		},
	}

	for i, test := range tests {
		t.Logf("Test #%d: %s", i, test.description)

		reply, err := Decode(test.raw)
		if test.expectedErr != nil {
			require.ErrorIs(err, test.expectedErr)

			continue
		}
		require.NoError(err)
		require.Equal(test.expected, reply)
	}
}

func TestReply_PayloadCopied(t *testing.T) {
	require := require.New(t)

	raw := []byte{0x90, 0x50, 0x01, 0x02, 0xFF}
	reply, err := Decode(raw)
	require.NoError(err)

	raw[2] = 0x0E
	require.Equal([]byte{0x01, 0x02}, reply.Payload)
}

func TestReply_TypeString(t *testing.T) {
	require := require.New(t)

	require.Equal("ack", ReplyAck.String())
	require.Equal("completion", ReplyCompletion.String())
	require.Equal("error", ReplyError.String())
	require.Equal("unknown", ReplyType(0xFF).String())
}
