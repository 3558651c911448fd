// Package nvec implements the application processor side of the NVIDIA
// embedded controller (NVEC) protocol.
//
// The AP is an I2C slave and the EC is the bus master. Every exchange is
// initiated by the EC, so a command is sent by queueing it and pulling
// the attention line low; the EC then pulls the request with an SMBus
// block read and later pushes the response with a block write. The EC
// also pushes unsolicited events (keys, battery, power button) as byte,
// word or block writes.
//
// # Components
//
//   - The interrupt handler ([Chip] installs it with [hal.SlaveHAL.Start])
//     is a five state machine decoding SMBus transactions from the slave
//     controller's status bits, one byte per interrupt.
//   - [Chip.CmdXfer] serializes callers, arms the request, signals the EC
//     and waits for the response, resetting the controller and retrying
//     when the EC does not answer.
//   - Events are copied into a fixed pool of [EventPoolSize] slots from
//     the interrupt handler and delivered to [EventHandler]s by a single
//     dispatch goroutine. Events arriving while the pool is full are
//     dropped and counted in [Stats].
//
// # Usage
//
//	chip := nvec.New(slave, attention, nvec.DefaultConfig())
//	if err := chip.Start(ctx); err != nil {
//	    return err
//	}
//	defer chip.Close()
//
//	chip.AddEventHandler(keyboard)
//
//	v, err := chip.FirmwareVersion(ctx)
//
// See package sim for a simulated controller and EC.
package nvec
