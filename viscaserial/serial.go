// Package viscaserial adapts a serial port to the engine's transport
// abstraction. It writes packets to the port and pumps inbound bytes into
// the dispatcher from a background read loop.
package viscaserial

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-visca/logger"
	"github.com/arloliu/go-visca/visca"
)

const (
	// defaultBaudRate is the common VISCA daisy-chain rate.
	defaultBaudRate = 9600

	// readTimeout bounds each blocking read so Close can take effect
	// promptly. A timed-out read returns zero bytes and is not an error.
	readTimeout = 100 * time.Millisecond
)

// Config holds serial port parameters.
type Config struct {
	// BaudRate of the port. Defaults to 9600.
	BaudRate int

	// Logger for transport events. Defaults to the global logger.
	Logger logger.Logger
}

// Transport is a serial-port implementation of visca.Transport.
type Transport struct {
	port     serial.Port
	logger   logger.Logger
	closed   atomic.Bool
	attached atomic.Bool
	done     chan struct{}
}

var _ visca.Transport = (*Transport)(nil)

// Open opens the named serial port in 8N1 mode and returns the transport.
// Call Attach to start feeding a dispatcher.
func Open(portName string, cfg Config) (*Transport, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()

		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return &Transport{
		port:   port,
		logger: cfg.Logger.With("transport", "serial", "port", portName),
		done:   make(chan struct{}),
	}, nil
}

// Attach starts the read loop delivering inbound bytes to the dispatcher.
// On a read failure, the loop marks the dispatcher's sessions degraded and
// exits; the caller decides whether to reopen the port. Attach may be
// called at most once.
func (t *Transport) Attach(d *visca.Dispatcher) {
	if !t.attached.CompareAndSwap(false, true) {
		return
	}

	go t.readLoop(d)
}

func (t *Transport) readLoop(d *visca.Dispatcher) {
	defer close(t.done)

	buf := make([]byte, 64)
	for !t.closed.Load() {
		n, err := t.port.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
		}
		if err != nil {
			if t.closed.Load() {
				return
			}

			t.logger.Error("serial read failed", "error", err)
			d.TransportDown()

			return
		}
	}
}

// Write sends one packet to the port.
func (t *Transport) Write(p []byte) error {
	if t.closed.Load() {
		return visca.ErrTransport
	}

	if _, err := t.port.Write(p); err != nil {
		return fmt.Errorf("%w: serial write: %w", visca.ErrTransport, err)
	}

	return nil
}

// Close stops the read loop and closes the port.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := t.port.Close()
	if t.attached.Load() {
		<-t.done
	}

	if err != nil {
		return fmt.Errorf("close serial port: %w", err)
	}

	return nil
}
