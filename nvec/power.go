package nvec

import (
	"context"
	"fmt"

	"github.com/ardnew/softnvec/nvec/frame"
	"github.com/ardnew/softnvec/pkg"
)

// Version is the EC firmware version.
type Version [4]byte

func (v Version) String() string {
	return fmt.Sprintf("%02x%02x.%02x%02x", v[0], v[1], v[2], v[3])
}

// FirmwareVersion asks the EC for its firmware version.
func (c *Chip) FirmwareVersion(ctx context.Context) (Version, error) {
	var v Version
	n, err := c.CmdXfer(ctx, frame.CmdControl, frame.ControlGetFirmwareVersion, nil, v[:])
	if err != nil {
		return v, err
	}
	if n < len(v) {
		return v, fmt.Errorf("firmware version: %w", pkg.ErrFrameTooShort)
	}
	return v, nil
}

// SetGlobalEvents enables or disables event reporting by the EC.
func (c *Chip) SetGlobalEvents(ctx context.Context, enable bool) error {
	var flag [1]byte
	if enable {
		flag[0] = 1
	}
	_, err := c.CmdXfer(ctx, frame.CmdSleep, frame.SleepGlobalEvents, flag[:], nil)
	return err
}

// Suspend tells the EC the AP is suspending. Commands fail with
// pkg.ErrSuspended until Resume.
func (c *Chip) Suspend(ctx context.Context) error {
	if _, err := c.CmdXfer(ctx, frame.CmdSleep, frame.SleepAPSuspend, nil, nil); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	c.suspended.Store(true)
	pkg.LogInfo(pkg.ComponentChip, "suspended")
	return nil
}

// Resume allows commands again and re-enables event reporting.
func (c *Chip) Resume(ctx context.Context) error {
	c.suspended.Store(false)
	if err := c.SetGlobalEvents(ctx, true); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	pkg.LogInfo(pkg.ComponentChip, "resumed")
	return nil
}

// Poweroff disables event reporting and asks the EC to power the AP down.
func (c *Chip) Poweroff(ctx context.Context) error {
	if err := c.SetGlobalEvents(ctx, false); err != nil {
		return fmt.Errorf("poweroff: %w", err)
	}
	_, err := c.CmdXfer(ctx, frame.CmdSleep, frame.SleepAPPowerDown, nil, nil)
	return err
}

// Restart disables event reporting and asks the EC to reset the system.
func (c *Chip) Restart(ctx context.Context) error {
	if err := c.SetGlobalEvents(ctx, false); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	_, err := c.CmdXfer(ctx, frame.CmdControl, frame.ControlReset, nil, nil)
	return err
}

// PowerRegistrar accepts system power hooks, typically a shutdown
// manager owned by the caller.
type PowerRegistrar interface {
	RegisterPoweroff(fn func(context.Context) error)
	RegisterRestart(fn func(context.Context) error)
}

// RegisterPowerHooks hands Poweroff and Restart, bound to this chip, to r.
func (c *Chip) RegisterPowerHooks(r PowerRegistrar) {
	r.RegisterPoweroff(c.Poweroff)
	r.RegisterRestart(c.Restart)
}
