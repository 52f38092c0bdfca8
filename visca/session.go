package visca

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-visca/internal/queue"
	"github.com/arloliu/go-visca/logger"
)

// slotState represents the lifecycle stage of a command socket.
type slotState uint8

const (
	// slotIdle indicates the socket has no outstanding command.
	slotIdle slotState = iota
	// slotAwaitingAck indicates a command was sent and its ack is pending.
	slotAwaitingAck
	// slotAwaitingCompletion indicates the command was acked (or an inquiry
	// was sent) and its completion is pending.
	slotAwaitingCompletion
	// slotRetryWait indicates the socket is held through a backoff delay
	// before resubmission.
	slotRetryWait
)

// String returns the string representation of the slot state.
func (ss slotState) String() string {
	switch ss {
	case slotIdle:
		return "idle"
	case slotAwaitingAck:
		return "awaiting-ack"
	case slotAwaitingCompletion:
		return "awaiting-completion"
	case slotRetryWait:
		return "retry-wait"
	default:
		return "unknown"
	}
}

// eventKind tags the events consumed by the session event loop.
type eventKind uint8

const (
	evSubmit eventKind = iota
	evCancel
	evReply
	evTimer
	evRetry
)

type sessionEvent struct {
	kind    eventKind
	pending *Pending
	reply   Reply
	socket  int
	gen     uint64
}

// slot is one command execution context. Sockets 1 and 2 carry commands;
// socket 0 carries the single outstanding inquiry, which the device answers
// without an ack.
type slot struct {
	state     slotState
	pending   *Pending
	attempt   int
	gen       uint64
	timer     *time.Timer
	canceling bool
}

// Session owns the per-device command pipeline: the two command sockets,
// the inquiry slot, the FIFO overflow queues, and all timeout and retry
// bookkeeping. All mutable state is confined to the session's event-loop
// goroutine; the exported surface only posts events.
type Session struct {
	addr   byte
	cfg    *Config
	disp   *Dispatcher
	logger logger.Logger

	events    chan sessionEvent
	closed    chan struct{}
	closeOnce sync.Once
	degraded  atomic.Bool

	// Event-loop-owned state.
	nextGen  uint64
	slots    [3]slot
	cmdQueue *queue.Queue[*Pending]
	inqQueue *queue.Queue[*Pending]
}

func newSession(addr byte, disp *Dispatcher) *Session {
	s := &Session{
		addr:     addr,
		cfg:      disp.cfg,
		disp:     disp,
		logger:   disp.logger.With("device", addr),
		events:   make(chan sessionEvent, disp.cfg.queueSize),
		closed:   make(chan struct{}),
		cmdQueue: queue.New[*Pending](disp.cfg.queueSize),
		inqQueue: queue.New[*Pending](disp.cfg.queueSize),
	}

	go s.loop()

	return s
}

// Address returns the device address this session serves.
func (s *Session) Address() byte { return s.addr }

// Degraded reports whether the session is degraded by a transport failure.
func (s *Session) Degraded() bool { return s.degraded.Load() }

// submit hands a pending request to the event loop.
func (s *Session) submit(p *Pending) error {
	if s.degraded.Load() {
		return ErrTransport
	}

	return s.post(sessionEvent{kind: evSubmit, pending: p})
}

// cancel requests best-effort cancellation of a previously submitted
// command. Inquiries are not cancelable.
func (s *Session) cancel(p *Pending) error {
	if p.cmd.IsInquiry() {
		return ErrNotCancelable
	}

	return s.post(sessionEvent{kind: evCancel, pending: p})
}

// deliver routes a decoded reply into the event loop.
func (s *Session) deliver(r Reply) {
	_ = s.post(sessionEvent{kind: evReply, reply: r})
}

// setDegraded flips the degraded flag on transport up/down notifications.
func (s *Session) setDegraded(down bool) {
	s.degraded.Store(down)
}

// close tears the session down, resolving every outstanding and queued
// request with ErrClosed.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *Session) post(ev sessionEvent) error {
	select {
	case <-s.closed:
		return ErrClosed
	case s.events <- ev:
		return nil
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.closed:
			s.teardown()

			return
		case ev := <-s.events:
			switch ev.kind {
			case evSubmit:
				s.handleSubmit(ev.pending)
			case evCancel:
				s.handleCancel(ev.pending)
			case evReply:
				s.handleReply(ev.reply)
			case evTimer:
				s.handleTimer(ev.socket, ev.gen)
			case evRetry:
				s.handleRetry(ev.socket, ev.gen)
			}
		}
	}
}

func (s *Session) teardown() {
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.state != slotIdle {
			sl.pending.resolve(nil, ErrClosed)
		}
		s.clear(i)
	}

	for _, p := range s.cmdQueue.Drain() {
		p.resolve(nil, ErrClosed)
	}
	for _, p := range s.inqQueue.Drain() {
		p.resolve(nil, ErrClosed)
	}

	// Drain submissions that raced with close.
	for {
		select {
		case ev := <-s.events:
			if ev.pending != nil {
				ev.pending.resolve(nil, ErrClosed)
			}
		default:
			return
		}
	}
}

// --- Submission and socket selection ---

func (s *Session) handleSubmit(p *Pending) {
	if p.cmd.IsInquiry() {
		if s.slots[0].state == slotIdle {
			s.start(0, p)
		} else {
			s.inqQueue.Enqueue(p)
		}

		return
	}

	if socket := s.freeCommandSocket(); socket != 0 {
		s.start(socket, p)
	} else {
		s.cmdQueue.Enqueue(p)
	}
}

// freeCommandSocket returns the lowest-numbered free command socket, or 0
// when both are occupied.
func (s *Session) freeCommandSocket() int {
	for socket := 1; socket <= 2; socket++ {
		if s.slots[socket].state == slotIdle {
			return socket
		}
	}

	return 0
}

func (s *Session) start(socket int, p *Pending) {
	sl := &s.slots[socket]
	sl.pending = p
	sl.attempt = 1
	sl.canceling = false

	s.transmit(socket)
}

// transmit writes the slot's packet and arms the appropriate reply timer.
func (s *Session) transmit(socket int) {
	sl := &s.slots[socket]

	if err := s.disp.write(sl.pending.pkt); err != nil {
		s.failTransport(socket, err)

		return
	}

	s.logger.Debug("packet sent",
		"command", sl.pending.cmd.Name(),
		"socket", socket,
		"attempt", sl.attempt,
		"bytes", fmt.Sprintf("% X", sl.pending.pkt))

	if socket == 0 {
		sl.state = slotAwaitingCompletion
		s.armTimer(socket, s.cfg.completionTimeout, evTimer)
	} else {
		sl.state = slotAwaitingAck
		s.armTimer(socket, s.cfg.ackTimeout, evTimer)
	}
}

// failTransport resolves the slot's request as a timeout-class failure and
// marks the session degraded until the transport signals recovery.
func (s *Session) failTransport(socket int, werr error) {
	sl := &s.slots[socket]

	s.logger.Error("transport write failed",
		"command", sl.pending.cmd.Name(),
		"socket", socket,
		"error", werr)

	s.degraded.Store(true)
	sl.pending.resolve(nil, fmt.Errorf("%w: %w", ErrTimeout, werr))
	s.clear(socket)
	s.dispatchNext(socket)
}

// --- Timers ---

// armTimer starts a fresh generation-stamped timer for the socket. A fire
// from a superseded generation is ignored by the loop, which makes timer
// cancellation idempotent: stopping a timer that already fired is a no-op.
func (s *Session) armTimer(socket int, d time.Duration, kind eventKind) {
	sl := &s.slots[socket]

	s.stopTimer(sl)
	s.nextGen++
	sl.gen = s.nextGen

	gen := sl.gen
	sl.timer = time.AfterFunc(d, func() {
		_ = s.post(sessionEvent{kind: kind, socket: socket, gen: gen})
	})
}

func (s *Session) stopTimer(sl *slot) {
	if sl.timer != nil {
		sl.timer.Stop()
		sl.timer = nil
	}
}

func (s *Session) handleTimer(socket int, gen uint64) {
	sl := &s.slots[socket]
	if sl.state == slotIdle || sl.gen != gen {
		return // stale fire
	}

	if sl.canceling {
		// No canceled-error reply within bound; treat the cancel as done.
		sl.pending.resolve(nil, ErrCanceled)
		s.clear(socket)
		s.dispatchNext(socket)

		return
	}

	s.logger.Warn("reply timeout",
		"command", sl.pending.cmd.Name(),
		"socket", socket,
		"state", sl.state.String(),
		"attempt", sl.attempt)

	s.maybeRetry(socket, ErrTimeout)
}

func (s *Session) handleRetry(socket int, gen uint64) {
	sl := &s.slots[socket]
	if sl.state != slotRetryWait || sl.gen != gen {
		return
	}

	if s.degraded.Load() {
		sl.pending.resolve(nil, ErrTransport)
		s.clear(socket)
		s.dispatchNext(socket)

		return
	}

	s.transmit(socket)
}

// maybeRetry either schedules a backoff resubmission, or resolves the
// request with the terminal cause once all attempts are spent.
func (s *Session) maybeRetry(socket int, cause error) {
	sl := &s.slots[socket]

	if sl.attempt >= s.cfg.maxAttempts {
		sl.pending.resolve(nil, cause)
		s.clear(socket)
		s.dispatchNext(socket)

		return
	}

	delay := s.cfg.backoff.Delay(sl.attempt)
	sl.attempt++
	sl.state = slotRetryWait
	s.armTimer(socket, delay, evRetry)

	s.logger.Debug("retry scheduled",
		"command", sl.pending.cmd.Name(),
		"socket", socket,
		"attempt", sl.attempt,
		"delay", delay)
}

// --- Replies ---

func (s *Session) handleReply(r Reply) {
	switch r.Type {
	case ReplyAck:
		s.handleAck(r)
	case ReplyCompletion:
		s.handleCompletion(r)
	case ReplyError:
		s.handleError(r)
	}
}

func (s *Session) handleAck(r Reply) {
	sl := &s.slots[r.Socket]
	if sl.state != slotAwaitingAck {
		s.logger.Debug("stale ack dropped", "socket", r.Socket, "state", sl.state.String())

		return
	}

	sl.state = slotAwaitingCompletion
	if !sl.canceling {
		s.armTimer(r.Socket, s.cfg.completionTimeout, evTimer)
	}
}

func (s *Session) handleCompletion(r Reply) {
	sl := &s.slots[r.Socket]
	if sl.state != slotAwaitingAck && sl.state != slotAwaitingCompletion {
		s.logger.Debug("stale completion dropped", "socket", r.Socket, "state", sl.state.String())

		return
	}

	// Cancellation is best-effort: a completion that beats the canceled
	// error wins the race.
	sl.pending.resolve(r.Payload, nil)
	s.clear(r.Socket)
	s.dispatchNext(r.Socket)
}

func (s *Session) handleError(r Reply) {
	socket := s.errorTarget(r)
	if socket < 0 {
		s.logger.Debug("stale error dropped", "socket", r.Socket, "error", r.Err)

		return
	}

	sl := &s.slots[socket]

	switch {
	case retryable(r.Err) && !sl.canceling:
		s.logger.Warn("device rejected command",
			"command", sl.pending.cmd.Name(),
			"socket", socket,
			"error", r.Err)
		s.maybeRetry(socket, r.Err)

	default:
		sl.pending.resolve(nil, r.Err)
		s.clear(socket)
		s.dispatchNext(socket)
	}
}

// errorTarget maps an error reply to the socket it refers to. Syntax-class
// errors are reported with socket 0; when no inquiry is outstanding they
// are attributed to the oldest un-acked command, which is the one the
// device just rejected.
func (s *Session) errorTarget(r Reply) int {
	if s.slots[r.Socket].state != slotIdle {
		return r.Socket
	}

	if r.Socket == 0 {
		for socket := 1; socket <= 2; socket++ {
			if s.slots[socket].state == slotAwaitingAck {
				return socket
			}
		}
	}

	return -1
}

// --- Cancellation ---

func (s *Session) handleCancel(p *Pending) {
	for socket := 1; socket <= 2; socket++ {
		sl := &s.slots[socket]
		if sl.state == slotIdle || sl.pending != p || sl.canceling {
			continue
		}

		if sl.state == slotRetryWait {
			// Not on the device yet; resolve locally.
			p.resolve(nil, ErrCanceled)
			s.clear(socket)
			s.dispatchNext(socket)

			return
		}

		if err := s.disp.write(encodeCancel(s.addr, socket)); err != nil {
			s.failTransport(socket, err)

			return
		}

		sl.canceling = true
		s.armTimer(socket, s.cfg.cancelAckTimeout, evTimer)

		return
	}
	// Already resolved or never started; nothing to cancel.
}

// --- Slot recycling ---

func (s *Session) clear(socket int) {
	sl := &s.slots[socket]
	s.stopTimer(sl)
	*sl = slot{}
}

// dispatchNext starts the next queued request for a freed socket,
// preserving FIFO order. While degraded, queued requests fail fast.
func (s *Session) dispatchNext(socket int) {
	q := s.cmdQueue
	if socket == 0 {
		q = s.inqQueue
	}

	for s.degraded.Load() {
		p, ok := q.Dequeue()
		if !ok {
			return
		}
		p.resolve(nil, ErrTransport)
	}

	if p, ok := q.Dequeue(); ok {
		s.start(socket, p)
	}
}
