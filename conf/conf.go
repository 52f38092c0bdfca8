// Package conf loads engine tuning and a camera roster from a TOML file.
//
// Example:
//
//	[engine]
//	ack_timeout = "200ms"
//	completion_timeout = "3s"
//	max_attempts = 4
//
//	[[camera]]
//	name = "stage-left"
//	address = 1
//
//	[[camera]]
//	name = "stage-right"
//	address = 2
package conf

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arloliu/go-visca/visca"
)

// Duration is a time.Duration that unmarshals from TOML strings like
// "200ms" or "3s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)

	return nil
}

// Engine holds the tunable engine parameters. Zero values fall back to the
// engine defaults.
type Engine struct {
	AckTimeout        Duration `toml:"ack_timeout"`
	CompletionTimeout Duration `toml:"completion_timeout"`
	CancelAckTimeout  Duration `toml:"cancel_ack_timeout"`
	MaxAttempts       int      `toml:"max_attempts"`
	BackoffInitial    Duration `toml:"backoff_initial"`
	BackoffMax        Duration `toml:"backoff_max"`
	BackoffMultiplier float64  `toml:"backoff_multiplier"`
	QueueSize         int      `toml:"queue_size"`
}

// Camera describes one device on the bus.
type Camera struct {
	Name    string `toml:"name"`
	Address byte   `toml:"address"`
}

// Config is the root of the TOML document.
type Config struct {
	Engine  Engine   `toml:"engine"`
	Cameras []Camera `toml:"camera"`
}

// Load reads and validates a TOML configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	seen := make(map[byte]string, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		if cam.Address != visca.Broadcast && (cam.Address < 1 || cam.Address > 7) {
			return nil, fmt.Errorf("camera %q: %w: %d", cam.Name, visca.ErrInvalidAddress, cam.Address)
		}
		if prev, dup := seen[cam.Address]; dup {
			return nil, fmt.Errorf("camera %q: address %d already used by %q", cam.Name, cam.Address, prev)
		}
		seen[cam.Address] = cam.Name
	}

	return &cfg, nil
}

// Options translates the engine section into engine options, skipping
// fields left at their zero value.
func (c *Config) Options() []visca.Option {
	var opts []visca.Option

	e := c.Engine
	if e.AckTimeout > 0 {
		opts = append(opts, visca.WithAckTimeout(time.Duration(e.AckTimeout)))
	}
	if e.CompletionTimeout > 0 {
		opts = append(opts, visca.WithCompletionTimeout(time.Duration(e.CompletionTimeout)))
	}
	if e.CancelAckTimeout > 0 {
		opts = append(opts, visca.WithCancelAckTimeout(time.Duration(e.CancelAckTimeout)))
	}
	if e.MaxAttempts > 0 {
		opts = append(opts, visca.WithMaxAttempts(e.MaxAttempts))
	}
	if e.BackoffInitial > 0 {
		mult := e.BackoffMultiplier
		if mult == 0 {
			mult = 2.0
		}
		max := time.Duration(e.BackoffMax)
		if max == 0 {
			max = time.Second
		}
		opts = append(opts, visca.WithRetryBackoff(visca.Backoff{
			Initial:    time.Duration(e.BackoffInitial),
			Max:        max,
			Multiplier: mult,
		}))
	}
	if e.QueueSize > 0 {
		opts = append(opts, visca.WithQueueSize(e.QueueSize))
	}

	return opts
}

// Register registers every configured camera with the dispatcher and
// returns the handles keyed by camera name.
func (c *Config) Register(d *visca.Dispatcher) (map[string]visca.DeviceHandle, error) {
	handles := make(map[string]visca.DeviceHandle, len(c.Cameras))
	for _, cam := range c.Cameras {
		h, err := d.Register(cam.Address)
		if err != nil {
			return nil, fmt.Errorf("register camera %q: %w", cam.Name, err)
		}
		handles[cam.Name] = h
	}

	return handles, nil
}
