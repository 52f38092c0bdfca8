package visca

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-visca/logger"
)

// Transport is the abstract byte-stream the engine writes packets to. The
// concrete transport (serial port, UDP socket) is an external collaborator;
// it delivers inbound bytes by calling Dispatcher.Feed and reports link
// state via TransportDown and TransportUp.
type Transport interface {
	// Write sends one well-formed packet. Implementations may be called
	// from multiple goroutines; the dispatcher serializes calls.
	Write(p []byte) error
}

// DeviceHandle identifies a registered device on the bus.
type DeviceHandle struct {
	addr byte
	disp *Dispatcher
}

// Address returns the bus address behind the handle.
func (h DeviceHandle) Address() byte { return h.addr }

// Send submits a command to the device behind the handle.
func (h DeviceHandle) Send(cmd Command) (*Pending, error) {
	return h.disp.Send(h.addr, cmd)
}

// Dispatcher routes outbound requests to per-device sessions and inbound
// replies back to the session awaiting them. It owns the routing table and
// serializes all transport writes; per-command mutable state lives in the
// sessions.
type Dispatcher struct {
	cfg       *Config
	logger    logger.Logger
	transport Transport

	// sessions is append-only between Register and Unregister, so reply
	// routing reads it without locking.
	sessions *xsync.MapOf[byte, *Session]

	writeMu sync.Mutex

	feedMu sync.Mutex
	frames framer

	closed atomic.Bool
}

// NewDispatcher creates a Dispatcher on top of the given transport.
// A nil cfg uses the default configuration.
func NewDispatcher(transport Transport, cfg *Config) (*Dispatcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is nil")
	}
	if cfg == nil {
		var err error
		cfg, err = NewConfig()
		if err != nil {
			return nil, err
		}
	}

	return &Dispatcher{
		cfg:       cfg,
		logger:    cfg.logger,
		transport: transport,
		sessions:  xsync.NewMapOf[byte, *Session](),
	}, nil
}

// Register validates addr and returns its device handle, creating the
// session on first registration. Registering the same address again
// returns the existing handle; no duplicate session is created.
func (d *Dispatcher) Register(addr byte) (DeviceHandle, error) {
	if d.closed.Load() {
		return DeviceHandle{}, ErrClosed
	}
	if addr == Broadcast {
		return DeviceHandle{addr: Broadcast, disp: d}, nil
	}
	if !validAddress(addr) {
		return DeviceHandle{}, fmt.Errorf("%w: %d", ErrInvalidAddress, addr)
	}

	d.sessions.LoadOrCompute(addr, func() *Session {
		return newSession(addr, d)
	})

	return DeviceHandle{addr: addr, disp: d}, nil
}

// Resolve returns the bus address behind a handle.
func (d *Dispatcher) Resolve(h DeviceHandle) byte {
	return h.addr
}

// Unregister tears down the session for addr, resolving its outstanding
// requests with ErrClosed. Unregistering an unknown address is a no-op.
func (d *Dispatcher) Unregister(addr byte) {
	if s, ok := d.sessions.LoadAndDelete(addr); ok {
		s.close()
	}
}

// Session returns the live session for addr, or nil.
func (d *Dispatcher) Session(addr byte) *Session {
	s, _ := d.sessions.Load(addr)

	return s
}

// Send submits a command or inquiry to the device at addr, creating the
// session on first use. It returns a pending-result handle immediately;
// the caller observes the outcome asynchronously.
//
// Encode-time failures (ErrInvalidAddress, ErrUnsupportedCommand,
// ErrInvalidParameter) are returned synchronously. Broadcast commands do
// not expect a reply and resolve as soon as the write completes.
func (d *Dispatcher) Send(addr byte, cmd Command) (*Pending, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	pkt, err := Encode(addr, cmd)
	if err != nil {
		return nil, err
	}

	p := newPending(addr, cmd, pkt)

	if addr == Broadcast {
		if werr := d.write(pkt); werr != nil {
			d.logger.Error("broadcast write failed", "command", cmd.Name(), "error", werr)
			d.TransportDown()
			p.resolve(nil, fmt.Errorf("%w: %w", ErrTimeout, werr))
		} else {
			d.logger.Debug("broadcast sent", "command", cmd.Name(), "bytes", fmt.Sprintf("% X", pkt))
			p.resolve(nil, nil)
		}

		return p, nil
	}

	s, _ := d.sessions.LoadOrCompute(addr, func() *Session {
		return newSession(addr, d)
	})

	if err := s.submit(p); err != nil {
		return nil, err
	}

	return p, nil
}

// Cancel requests best-effort cancellation of a pending command. The final
// resolution is whichever arrives first: the device's canceled error, its
// completion, or the cancel-ack timeout. Inquiries and broadcasts cannot
// be canceled.
func (d *Dispatcher) Cancel(p *Pending) error {
	if p == nil || p.addr == Broadcast {
		return ErrNotCancelable
	}

	s, ok := d.sessions.Load(p.addr)
	if !ok {
		return nil // session gone, nothing in flight
	}

	return s.cancel(p)
}

// Feed consumes raw inbound bytes from the transport. It reframes the
// stream on the packet terminator, decodes each frame, and routes replies
// to the session owning the source address. Malformed frames are protocol
// noise on a shared bus and are dropped at debug level; replies with no
// awaiting session are dropped as stale.
func (d *Dispatcher) Feed(data []byte) {
	d.feedMu.Lock()
	frames := d.frames.push(data)
	d.feedMu.Unlock()

	for _, frame := range frames {
		reply, err := Decode(frame)
		if err != nil {
			d.logger.Debug("malformed frame dropped", "bytes", fmt.Sprintf("% X", frame), "error", err)

			continue
		}

		s, ok := d.sessions.Load(reply.Source)
		if !ok {
			d.logger.Debug("reply for unknown device dropped", "device", reply.Source, "socket", reply.Socket)

			continue
		}

		s.deliver(reply)
	}
}

// TransportDown marks every session degraded. Submissions fail fast with
// ErrTransport until TransportUp is called.
func (d *Dispatcher) TransportDown() {
	d.logger.Warn("transport down, sessions degraded")
	d.sessions.Range(func(_ byte, s *Session) bool {
		s.setDegraded(true)

		return true
	})
}

// TransportUp clears the degraded state after transport recovery.
func (d *Dispatcher) TransportUp() {
	d.logger.Info("transport recovered")
	d.sessions.Range(func(_ byte, s *Session) bool {
		s.setDegraded(false)

		return true
	})
}

// Close tears down every session and rejects further use. Outstanding
// requests resolve with ErrClosed.
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.sessions.Range(func(addr byte, s *Session) bool {
		s.close()
		d.sessions.Delete(addr)

		return true
	})

	return nil
}

// write serializes packet transmission on the shared transport.
func (d *Dispatcher) write(pkt Packet) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	return d.transport.Write(pkt)
}
