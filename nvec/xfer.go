package nvec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/ardnew/softnvec/nvec/frame"
	"github.com/ardnew/softnvec/pkg"
)

// CmdXfer sends a command to the EC and waits for its response. The
// response payload is copied into rx, and the number of payload bytes the
// EC returned is reported even when rx is too small to hold all of them.
//
// Only one command is in flight at a time; concurrent callers queue.
// A suspended chip fails at once with an error matching both
// pkg.ErrSuspended and pkg.ErrIO.
// A response with a non-success status is returned as a *pkg.StatusError.
// When every attempt times out the error wraps pkg.ErrTimeout.
func (c *Chip) CmdXfer(ctx context.Context, cmd, subcmd uint8, tx, rx []byte) (int, error) {
	if c.suspended.Load() {
		return 0, fmt.Errorf("%w: %w", pkg.ErrSuspended, pkg.ErrIO)
	}
	if !c.running.Load() {
		return 0, pkg.ErrNotRunning
	}

	msg, err := newMessage(cmd, subcmd, tx)
	if err != nil {
		return 0, err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	c.tx, c.rx = msg, msg
	next := c.nextCmd
	c.mu.Unlock()

	if err := c.sleepUntil(ctx, next); err != nil {
		c.abandon(msg)
		return 0, err
	}

	pkg.LogDebug(pkg.ComponentXfer, "command", "request", msg.Request())

	if err := c.attention.Out(gpio.Low); err != nil {
		c.abandon(msg)
		return 0, fmt.Errorf("assert attention: %w", err)
	}

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(c.cfg.Timeout)
		select {
		case <-msg.done:
			timer.Stop()
			return c.finish(msg, cmd, subcmd, rx)
		case <-ctx.Done():
			timer.Stop()
			c.abandon(msg)
			return 0, ctx.Err()
		case <-timer.C:
		}

		if attempt >= c.cfg.Retries {
			break
		}

		if c.rearm(msg) {
			// Answered while the wait was expiring.
			<-msg.done
			return c.finish(msg, cmd, subcmd, rx)
		}

		c.stats.retries.Add(1)
		pkg.LogWarn(pkg.ComponentXfer, "command timed out, retrying",
			"command", cmd, "subcommand", subcmd, "attempt", attempt)

		if err := c.nudge(ctx); err != nil {
			c.abandon(msg)
			return 0, err
		}
	}

	// The response may have landed just after the last wait expired.
	select {
	case <-msg.done:
		return c.finish(msg, cmd, subcmd, rx)
	default:
	}

	c.abandon(msg)
	c.stats.timeouts.Add(1)
	pkg.LogError(pkg.ComponentXfer, "command timed out",
		"command", cmd, "subcommand", subcmd, "attempts", c.cfg.Retries)
	return 0, fmt.Errorf("command %02x/%02x: %w", cmd, subcmd, pkg.ErrTimeout)
}

func (c *Chip) finish(msg *Message, cmd, subcmd uint8, rx []byte) (int, error) {
	c.disarm(msg)

	resp, err := msg.Response()
	if err != nil {
		return 0, fmt.Errorf("command %02x/%02x: %w", cmd, subcmd, err)
	}
	if err := resp.Status.Err(); err != nil {
		c.stats.ecErrors.Add(1)
		pkg.LogWarn(pkg.ComponentXfer, "command failed",
			"command", cmd, "subcommand", subcmd, "status", resp.Status)
		var se *pkg.StatusError
		if errors.As(err, &se) {
			se.Command, se.Subcommand = cmd, subcmd
		}
		return 0, err
	}

	n := len(resp.Payload)
	if copied := copy(rx, resp.Payload); copied < n {
		pkg.LogWarn(pkg.ComponentXfer, "response truncated",
			"command", cmd, "subcommand", subcmd, "size", n, "copied", copied)
	}
	return n, nil
}

// rearm restores the message for another attempt. The interrupt handler is
// held off while the controller and the state machine are reset. It
// reports whether msg completed before it could be re-armed.
func (c *Chip) rearm(msg *Message) bool {
	c.hal.DisableIRQ()
	defer c.hal.EnableIRQ()

	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.completed {
		return true
	}

	if err := c.hal.ResetSlave(); err != nil {
		pkg.LogWarn(pkg.ComponentXfer, "slave reset failed", "error", err)
	}
	c.state = stateIdle
	c.pos = 0
	c.sending = nil

	msg.pos = 0
	c.tx, c.rx = msg, msg
	return false
}

// nudge toggles the attention line to wake the EC.
func (c *Chip) nudge(ctx context.Context) error {
	if err := c.attention.Out(gpio.High); err != nil {
		return fmt.Errorf("release attention: %w", err)
	}
	if err := sleep(ctx, c.cfg.NudgeDelay); err != nil {
		return err
	}
	if err := c.attention.Out(gpio.Low); err != nil {
		return fmt.Errorf("assert attention: %w", err)
	}
	return nil
}

// disarm drops the chip's references to msg.
func (c *Chip) disarm(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == msg {
		c.tx = nil
	}
	if c.rx == msg {
		c.rx = nil
	}
}

// abandon disarms msg and idles the attention line.
func (c *Chip) abandon(msg *Message) {
	c.disarm(msg)
	_ = c.attention.Out(gpio.High)
}

// sleepUntil waits for the inter-command guard to pass.
func (c *Chip) sleepUntil(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	return sleep(ctx, t.Sub(c.clock.Now()))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Noop sends the no-operation control command.
func (c *Chip) Noop(ctx context.Context) error {
	_, err := c.CmdXfer(ctx, frame.CmdControl, frame.ControlNoop, nil, nil)
	return err
}
