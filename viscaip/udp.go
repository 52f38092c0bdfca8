// Package viscaip adapts a UDP socket to the engine's transport
// abstraction, for cameras that speak raw VISCA over IP. One socket serves
// one camera; the device keeps its bus address (usually 1) inside the
// encapsulated packets.
package viscaip

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/arloliu/go-visca/logger"
	"github.com/arloliu/go-visca/visca"
)

// Transport is a UDP implementation of visca.Transport.
type Transport struct {
	conn     net.Conn
	logger   logger.Logger
	closed   atomic.Bool
	attached atomic.Bool
	done     chan struct{}
}

var _ visca.Transport = (*Transport)(nil)

// Dial connects to the camera at addr ("host:port"). Call Attach to start
// feeding a dispatcher.
func Dial(addr string, l logger.Logger) (*Transport, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial camera %s: %w", addr, err)
	}

	return &Transport{
		conn:   conn,
		logger: l.With("transport", "udp", "camera", addr),
		done:   make(chan struct{}),
	}, nil
}

// Attach starts the read loop delivering inbound datagrams to the
// dispatcher. On a read failure, the loop marks the dispatcher's sessions
// degraded and exits. Attach may be called at most once.
func (t *Transport) Attach(d *visca.Dispatcher) {
	if !t.attached.CompareAndSwap(false, true) {
		return
	}

	go t.readLoop(d)
}

func (t *Transport) readLoop(d *visca.Dispatcher) {
	defer close(t.done)

	buf := make([]byte, 2048)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
		}
		if err != nil {
			if t.closed.Load() {
				return
			}

			t.logger.Error("udp read failed", "error", err)
			d.TransportDown()

			return
		}
	}
}

// Write sends one packet as a single datagram.
func (t *Transport) Write(p []byte) error {
	if t.closed.Load() {
		return visca.ErrTransport
	}

	if _, err := t.conn.Write(p); err != nil {
		return fmt.Errorf("%w: udp write: %w", visca.ErrTransport, err)
	}

	return nil
}

// Close stops the read loop and closes the socket.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := t.conn.Close()
	if t.attached.Load() {
		<-t.done
	}

	if err != nil {
		return fmt.Errorf("close udp socket: %w", err)
	}

	return nil
}
