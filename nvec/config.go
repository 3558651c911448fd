package nvec

import (
	"time"

	"github.com/ardnew/softnvec/nvec/hal"
)

// Default configuration values.
const (
	// DefaultAddress is the 8-bit slave address the EC writes to.
	DefaultAddress uint8 = 0x8a

	// DefaultTimeout bounds one attempt of a command. EC turnaround is
	// normally around 70ms but occasionally approaches 700ms.
	DefaultTimeout = 700 * time.Millisecond

	// DefaultRetries is the number of attempts made by CmdXfer.
	DefaultRetries = 3

	// DefaultNudgeDelay is how long the attention line is held high when
	// it is toggled to wake the EC between attempts.
	DefaultNudgeDelay = 10 * time.Millisecond

	// DefaultGuard is the quiet time after each frame written by the EC
	// before the next command may be signalled.
	DefaultGuard = 10 * time.Millisecond

	// DefaultCloseTimeout bounds how long Close waits for an in-flight
	// command to drain.
	DefaultCloseTimeout = 2 * time.Second
)

// Config configures a Chip. Zero fields take their defaults; a negative
// Guard disables the inter-command guard.
type Config struct {
	Address      uint8
	Timeout      time.Duration
	Retries      int
	NudgeDelay   time.Duration
	Guard        time.Duration
	CloseTimeout time.Duration

	// Clock times the interrupt handler's response floor and the
	// inter-command guard. Defaults to hal.SystemClock.
	Clock hal.Clock
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Address:      DefaultAddress,
		Timeout:      DefaultTimeout,
		Retries:      DefaultRetries,
		NudgeDelay:   DefaultNudgeDelay,
		Guard:        DefaultGuard,
		CloseTimeout: DefaultCloseTimeout,
		Clock:        hal.SystemClock{},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == 0 {
		c.Address = d.Address
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Retries <= 0 {
		c.Retries = d.Retries
	}
	if c.NudgeDelay <= 0 {
		c.NudgeDelay = d.NudgeDelay
	}
	switch {
	case c.Guard == 0:
		c.Guard = d.Guard
	case c.Guard < 0:
		c.Guard = 0
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = d.CloseTimeout
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}
