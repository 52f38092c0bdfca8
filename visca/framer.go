package visca

// maxFrameBacklog bounds the framer buffer. Reply frames are at most 16
// bytes; a backlog beyond this without a terminator is line noise and is
// discarded wholesale to resynchronize.
const maxFrameBacklog = 64

// framer splits an inbound byte stream into terminator-delimited frames.
// Partial frames are buffered across pushes.
type framer struct {
	buf []byte
}

// push appends data to the buffer and returns every complete frame,
// terminator included.
func (f *framer) push(data []byte) [][]byte {
	f.buf = append(f.buf, data...)

	var frames [][]byte
	start := 0
	for i, b := range f.buf {
		if b == Terminator {
			frame := make([]byte, i+1-start)
			copy(frame, f.buf[start:i+1])
			frames = append(frames, frame)
			start = i + 1
		}
	}

	if start > 0 {
		f.buf = f.buf[:copy(f.buf, f.buf[start:])]
	}
	if len(f.buf) > maxFrameBacklog {
		f.buf = f.buf[:0]
	}

	return frames
}
