// Package visca implements the VISCA camera-control protocol engine: the
// packet codec, the per-device session state machine, and the dispatcher
// that ties them to an abstract byte-stream transport.
//
// The codec (Encode, Decode, and the Command constructors) is purely
// functional and safe for concurrent use. The Dispatcher owns the routing
// table of registered devices and serializes writes on the shared bus; each
// Session confines its mutable state (socket slots, overflow queues,
// timers) to a single event-loop goroutine.
//
// Submissions never block: Dispatcher.Send returns a Pending handle that
// resolves asynchronously with the command outcome, the inquiry payload, or
// one of the terminal errors of the taxonomy. Timeouts and buffer-full
// rejections are retried with capped exponential backoff before they
// surface; caller mistakes (syntax, not-executable) surface immediately.
//
// Basic usage:
//
//	cfg, _ := visca.NewConfig(visca.WithAckTimeout(200 * time.Millisecond))
//	disp, _ := visca.NewDispatcher(transport, cfg)
//	cam, _ := disp.Register(1)
//
//	cmd, _ := visca.PanTiltDrive(0x0C, 0x0A, visca.PanRight, visca.TiltNone)
//	pending, _ := cam.Send(cmd)
//	if _, err := pending.Wait(ctx); err != nil {
//		// handle timeout or device error
//	}
//
// Inbound bytes from the transport are handed to Dispatcher.Feed, which
// reframes the stream on the 0xFF terminator and routes decoded replies to
// the session awaiting them.
package visca
