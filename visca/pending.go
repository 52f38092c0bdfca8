package visca

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/go-visca/internal/pool"
)

// Pending is the handle to a submitted command or inquiry. The engine never
// blocks the calling goroutine waiting for a device reply; the caller
// observes the outcome through this handle.
//
// A Pending resolves exactly once: with a nil error and, for inquiries, the
// completion payload; or with one of the terminal errors of the taxonomy
// (ErrTimeout, ErrTransport, ErrClosed, or a device error).
type Pending struct {
	addr byte
	cmd  Command
	pkt  Packet

	done    chan struct{}
	once    sync.Once
	payload []byte
	err     error
}

func newPending(addr byte, cmd Command, pkt Packet) *Pending {
	return &Pending{
		addr: addr,
		cmd:  cmd,
		pkt:  pkt,
		done: make(chan struct{}),
	}
}

// Address returns the destination device address of the request.
func (p *Pending) Address() byte { return p.addr }

// Command returns the submitted command.
func (p *Pending) Command() Command { return p.cmd }

// Done returns a channel that is closed when the request has resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the terminal error of the request, or nil on success.
// It must only be called after Done is closed.
func (p *Pending) Err() error { return p.err }

// Payload returns the inquiry result bytes of a successful completion, or
// nil. It must only be called after Done is closed.
func (p *Pending) Payload() []byte { return p.payload }

// Wait blocks until the request resolves or ctx is done, and returns the
// completion payload and terminal error.
func (p *Pending) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.payload, p.err
	}
}

// WaitTimeout is like Wait with a plain duration bound. It returns
// ErrTimeout if the request has not resolved within d.
func (p *Pending) WaitTimeout(d time.Duration) ([]byte, error) {
	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-timer.C:
		return nil, ErrTimeout
	case <-p.done:
		return p.payload, p.err
	}
}

// resolve settles the request. Later calls are no-ops; the first resolution
// wins, which is what makes best-effort cancellation race-free.
func (p *Pending) resolve(payload []byte, err error) {
	p.once.Do(func() {
		p.payload = payload
		p.err = err
		close(p.done)
	})
}
