package visca

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport records every packet the engine writes and can be told to
// fail writes to exercise the degraded path.
type fakeTransport struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func (t *fakeTransport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return t.err
	}

	buf := make([]byte, len(p))
	copy(buf, p)
	t.writes = append(t.writes, buf)

	return nil
}

func (t *fakeTransport) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

func (t *fakeTransport) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.writes)
}

func (t *fakeTransport) write(i int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.writes[i]
}

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *fakeTransport) {
	t.Helper()

	cfg, err := NewConfig(opts...)
	require.NoError(t, err)

	transport := &fakeTransport{}
	disp, err := NewDispatcher(transport, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = disp.Close() })

	return disp, transport
}

func waitResult(t *testing.T, p *Pending) ([]byte, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := p.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)

	return payload, err
}

func TestSession_CommandLifecycle(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)
	require.Equal(byte(1), p.Address())
	require.Equal("pan_tilt_home", p.Command().Name())

	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)
	require.Equal([]byte{0x81, 0x01, 0x06, 0x04, 0xFF}, transport.write(0))

	// not resolved by the ack alone
	disp.Feed([]byte{0x90, 0x41, 0xFF})
	select {
	case <-p.Done():
		t.Fatal("resolved before completion")
	case <-time.After(20 * time.Millisecond):
	}

	disp.Feed([]byte{0x90, 0x51, 0xFF})
	payload, err := waitResult(t, p)
	require.NoError(err)
	require.Nil(payload)
}

func TestSession_InquiryLifecycle(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	p, err := disp.Send(1, InquirePower())
	require.NoError(err)

	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)
	require.Equal([]byte{0x81, 0x09, 0x04, 0x00, 0xFF}, transport.write(0))

	// inquiries complete without an ack, result on socket 0
	disp.Feed([]byte{0x90, 0x50, 0x02, 0xFF})
	payload, err := waitResult(t, p)
	require.NoError(err)
	require.Equal([]byte{0x02}, payload)

	on, err := ParsePowerState(payload)
	require.NoError(err)
	require.True(on)
}

func TestSession_InquiriesSerialized(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	p1, err := disp.Send(1, InquireZoomPos())
	require.NoError(err)
	p2, err := disp.Send(1, InquireFocusPos())
	require.NoError(err)

	// the second inquiry waits for the first to resolve
	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)
	require.Equal([]byte{0x81, 0x09, 0x04, 0x47, 0xFF}, transport.write(0))

	disp.Feed([]byte{0x90, 0x50, 0x01, 0x02, 0x03, 0x04, 0xFF})
	payload, err := waitResult(t, p1)
	require.NoError(err)
	pos, err := ParsePosition(payload)
	require.NoError(err)
	require.Equal(uint16(0x1234), pos)

	require.Eventually(func() bool { return transport.writeCount() == 2 }, time.Second, time.Millisecond)
	require.Equal([]byte{0x81, 0x09, 0x04, 0x48, 0xFF}, transport.write(1))

	disp.Feed([]byte{0x90, 0x50, 0x00, 0x00, 0x00, 0x00, 0xFF})
	payload, err = waitResult(t, p2)
	require.NoError(err)
	require.Equal([]byte{0x00, 0x00, 0x00, 0x00}, payload)
}

func TestSession_ThirdCommandQueued(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	pa, err := disp.Send(1, ZoomStop())
	require.NoError(err)
	pb, err := disp.Send(1, FocusStop())
	require.NoError(err)
	pc, err := disp.Send(1, PanTiltHome())
	require.NoError(err)

	// both sockets occupied, the third command stays queued
	require.Eventually(func() bool { return transport.writeCount() == 2 }, time.Second, time.Millisecond)
	require.Equal([]byte{0x81, 0x01, 0x04, 0x07, 0x00, 0xFF}, transport.write(0))
	require.Equal([]byte{0x81, 0x01, 0x04, 0x08, 0x00, 0xFF}, transport.write(1))

	disp.Feed([]byte{0x90, 0x41, 0xFF}) // ack socket 1
	disp.Feed([]byte{0x90, 0x42, 0xFF}) // ack socket 2

	select {
	case <-pc.Done():
		t.Fatal("queued command resolved before a socket freed")
	case <-time.After(20 * time.Millisecond):
	}
	require.Equal(2, transport.writeCount())

	// freeing socket 1 dispatches the queued command exactly once
	disp.Feed([]byte{0x90, 0x51, 0xFF})
	_, err = waitResult(t, pa)
	require.NoError(err)

	require.Eventually(func() bool { return transport.writeCount() == 3 }, time.Second, time.Millisecond)
	require.Equal([]byte{0x81, 0x01, 0x06, 0x04, 0xFF}, transport.write(2))

	disp.Feed([]byte{0x90, 0x41, 0xFF})
	disp.Feed([]byte{0x90, 0x51, 0xFF})
	_, err = waitResult(t, pc)
	require.NoError(err)

	disp.Feed([]byte{0x90, 0x52, 0xFF})
	_, err = waitResult(t, pb)
	require.NoError(err)

	require.Equal(3, transport.writeCount())
}

func TestSession_SyntaxErrorNotRetried(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)

	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)

	// syntax errors arrive unsocketed and belong to the un-acked command
	disp.Feed([]byte{0x90, 0x60, 0x02, 0xFF})
	_, err = waitResult(t, p)
	require.ErrorIs(err, ErrSyntax)

	time.Sleep(50 * time.Millisecond)
	require.Equal(1, transport.writeCount())
}

func TestSession_NotExecutableNotRetried(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)

	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)

	disp.Feed([]byte{0x90, 0x41, 0xFF})
	disp.Feed([]byte{0x90, 0x61, 0x41, 0xFF})
	_, err = waitResult(t, p)
	require.ErrorIs(err, ErrNotExecutable)

	time.Sleep(50 * time.Millisecond)
	require.Equal(1, transport.writeCount())
}

func TestSession_TimeoutRetriedToTerminal(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t,
		WithAckTimeout(20*time.Millisecond),
		WithMaxAttempts(3),
		WithRetryBackoff(Backoff{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 1.0}),
	)

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)

	// no reply ever arrives; every attempt must hit the wire
	_, err = waitResult(t, p)
	require.ErrorIs(err, ErrTimeout)
	require.Equal(3, transport.writeCount())
}

func TestSession_BufferFullRetriedThenSucceeds(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t,
		WithRetryBackoff(Backoff{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 1.0}),
	)

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)

	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)

	disp.Feed([]byte{0x90, 0x60, 0x03, 0xFF})
	require.Eventually(func() bool { return transport.writeCount() == 2 }, time.Second, time.Millisecond)

	disp.Feed([]byte{0x90, 0x41, 0xFF})
	disp.Feed([]byte{0x90, 0x51, 0xFF})
	_, err = waitResult(t, p)
	require.NoError(err)
}

func TestSession_CancelAcknowledgedByDevice(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)

	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)
	disp.Feed([]byte{0x90, 0x41, 0xFF})

	require.NoError(disp.Cancel(p))
	require.Eventually(func() bool { return transport.writeCount() == 2 }, time.Second, time.Millisecond)
	require.Equal([]byte{0x81, 0x21, 0xFF}, transport.write(1))

	disp.Feed([]byte{0x90, 0x61, 0x04, 0xFF})
	_, err = waitResult(t, p)
	require.ErrorIs(err, ErrCanceled)
}

func TestSession_CompletionBeatsCancel(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)

	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)
	disp.Feed([]byte{0x90, 0x41, 0xFF})

	require.NoError(disp.Cancel(p))
	require.Eventually(func() bool { return transport.writeCount() == 2 }, time.Second, time.Millisecond)

	// the command finished before the device processed the cancel
	disp.Feed([]byte{0x90, 0x51, 0xFF})
	_, err = waitResult(t, p)
	require.NoError(err)
}

func TestSession_CancelAckTimeout(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t, WithCancelAckTimeout(20*time.Millisecond))

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)

	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)
	disp.Feed([]byte{0x90, 0x41, 0xFF})

	require.NoError(disp.Cancel(p))

	// the device never confirms; the cancel resolves locally after the bound
	_, err = waitResult(t, p)
	require.ErrorIs(err, ErrCanceled)
}

func TestSession_CancelNotCancelable(t *testing.T) {
	require := require.New(t)

	disp, _ := newTestDispatcher(t)

	require.ErrorIs(disp.Cancel(nil), ErrNotCancelable)

	inq, err := disp.Send(1, InquirePower())
	require.NoError(err)
	require.ErrorIs(disp.Cancel(inq), ErrNotCancelable)

	bcast, err := disp.Send(Broadcast, IFClear())
	require.NoError(err)
	require.ErrorIs(disp.Cancel(bcast), ErrNotCancelable)
}

func TestSession_DegradedFailsFast(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	transport.setErr(errors.New("port gone"))

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)

	// the write failure resolves the in-flight request and degrades the session
	_, err = waitResult(t, p)
	require.ErrorIs(err, ErrTimeout)
	require.True(disp.Session(1).Degraded())

	_, err = disp.Send(1, PanTiltHome())
	require.ErrorIs(err, ErrTransport)

	// recovery restores normal submission
	transport.setErr(nil)
	disp.TransportUp()
	require.False(disp.Session(1).Degraded())

	p, err = disp.Send(1, PanTiltHome())
	require.NoError(err)
	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)

	disp.Feed([]byte{0x90, 0x41, 0xFF})
	disp.Feed([]byte{0x90, 0x51, 0xFF})
	_, err = waitResult(t, p)
	require.NoError(err)
}

func TestSession_StaleRepliesDropped(t *testing.T) {
	require := require.New(t)

	disp, transport := newTestDispatcher(t)

	_, err := disp.Register(1)
	require.NoError(err)

	// replies with nothing outstanding must not disturb the session
	disp.Feed([]byte{0x90, 0x41, 0xFF})
	disp.Feed([]byte{0x90, 0x51, 0xFF})
	disp.Feed([]byte{0x90, 0x61, 0x04, 0xFF})

	p, err := disp.Send(1, PanTiltHome())
	require.NoError(err)
	require.Eventually(func() bool { return transport.writeCount() == 1 }, time.Second, time.Millisecond)

	disp.Feed([]byte{0x90, 0x41, 0xFF})
	disp.Feed([]byte{0x90, 0x51, 0xFF})
	_, err = waitResult(t, p)
	require.NoError(err)
}
