package visca

import (
	"errors"
	"time"

	"github.com/arloliu/go-visca/logger"
)

// Config holds the tunable parameters of the protocol engine.
type Config struct {
	// ackTimeout bounds the wait between sending a command and its ack.
	// Defaults to 500 milliseconds.
	ackTimeout time.Duration

	// completionTimeout bounds the wait between ack and completion, and the
	// wait for an inquiry result. Defaults to 5 seconds.
	completionTimeout time.Duration

	// cancelAckTimeout bounds the wait for the canceled-error reply after a
	// cancel packet. Defaults to 500 milliseconds.
	cancelAckTimeout time.Duration

	// maxAttempts is the total number of tries for a request, first
	// submission included. Defaults to 3.
	maxAttempts int

	// backoff is the retry delay schedule. Defaults to 50ms initial,
	// 1 second cap, multiplier 2.0.
	backoff Backoff

	// queueSize is the preallocated capacity of each session's overflow
	// queue and event channel. Defaults to 16.
	queueSize int

	// logger provides a logger instance for engine events and errors.
	logger logger.Logger
}

// NewConfig creates an engine configuration with default values, then
// applies the provided options.
//
// Returns the initialized Config and an error if any option rejects its
// value.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		ackTimeout:        500 * time.Millisecond,
		completionTimeout: 5 * time.Second,
		cancelAckTimeout:  500 * time.Millisecond,
		maxAttempts:       3,
		backoff: Backoff{
			Initial:    50 * time.Millisecond,
			Max:        time.Second,
			Multiplier: 2.0,
		},
		queueSize: 16,
		logger:    logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// errConfigNil is returned by options applied to a nil Config.
var errConfigNil = errors.New("config is nil")

// Option represents a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithAckTimeout sets the ack timeout for commands.
// An error is returned if the timeout is outside [10ms, 30s].
//
// The default value is 500 milliseconds.
func WithAckTimeout(val time.Duration) Option {
	return newOptFunc("WithAckTimeout", func(cfg *Config) error {
		if cfg == nil {
			return errConfigNil
		}
		if val < 10*time.Millisecond || val > 30*time.Second {
			return errors.New("ack timeout out of range [10ms, 30s]")
		}
		cfg.ackTimeout = val

		return nil
	})
}

// WithCompletionTimeout sets the completion timeout for commands and the
// reply timeout for inquiries.
// An error is returned if the timeout is outside [10ms, 120s].
//
// The default value is 5 seconds.
func WithCompletionTimeout(val time.Duration) Option {
	return newOptFunc("WithCompletionTimeout", func(cfg *Config) error {
		if cfg == nil {
			return errConfigNil
		}
		if val < 10*time.Millisecond || val > 120*time.Second {
			return errors.New("completion timeout out of range [10ms, 120s]")
		}
		cfg.completionTimeout = val

		return nil
	})
}

// WithCancelAckTimeout sets the wait for the canceled-error reply after a
// cancel packet.
// An error is returned if the timeout is outside [10ms, 30s].
//
// The default value is 500 milliseconds.
func WithCancelAckTimeout(val time.Duration) Option {
	return newOptFunc("WithCancelAckTimeout", func(cfg *Config) error {
		if cfg == nil {
			return errConfigNil
		}
		if val < 10*time.Millisecond || val > 30*time.Second {
			return errors.New("cancel ack timeout out of range [10ms, 30s]")
		}
		cfg.cancelAckTimeout = val

		return nil
	})
}

// WithMaxAttempts sets the total number of tries for a request, first
// submission included. Retries apply only to timeouts and buffer-full
// rejections.
// An error is returned if the count is outside [1, 10].
//
// The default value is 3.
func WithMaxAttempts(val int) Option {
	return newOptFunc("WithMaxAttempts", func(cfg *Config) error {
		if cfg == nil {
			return errConfigNil
		}
		if val < 1 || val > 10 {
			return errors.New("max attempts out of range [1, 10]")
		}
		cfg.maxAttempts = val

		return nil
	})
}

// WithRetryBackoff sets the retry delay schedule.
// An error is returned if the initial delay is not positive, the cap is
// below the initial delay, or the multiplier is below 1.0.
//
// The default schedule is 50ms initial, 1 second cap, multiplier 2.0.
func WithRetryBackoff(backoff Backoff) Option {
	return newOptFunc("WithRetryBackoff", func(cfg *Config) error {
		if cfg == nil {
			return errConfigNil
		}
		if backoff.Initial <= 0 {
			return errors.New("backoff initial delay must be positive")
		}
		if backoff.Max < backoff.Initial {
			return errors.New("backoff cap below initial delay")
		}
		if backoff.Multiplier < 1.0 {
			return errors.New("backoff multiplier below 1.0")
		}
		cfg.backoff = backoff

		return nil
	})
}

// WithQueueSize sets the preallocated capacity of each session's overflow
// queue and event channel.
//
// This option controls the backpressure level for submissions waiting on a
// free command socket.
// An error is returned if the size is outside [1, 1000].
//
// The default value is 16.
func WithQueueSize(size int) Option {
	return newOptFunc("WithQueueSize", func(cfg *Config) error {
		if cfg == nil {
			return errConfigNil
		}
		if size < 1 || size > 1000 {
			return errors.New("queue size out of range [1, 1000]")
		}
		cfg.queueSize = size

		return nil
	})
}

// WithLogger sets the logger for the engine.
//
// The default logger is the global logger instance.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if cfg == nil {
			return errConfigNil
		}
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
