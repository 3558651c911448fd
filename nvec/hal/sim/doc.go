// Package sim implements a simulated NVEC link for tests and demos.
//
// A [Bus] stands in for the Tegra I2C slave controller and implements
// [hal.SlaveHAL]. Its master operations ([Bus.Write], [Bus.BlockRead],
// [Bus.Inject]) play the embedded controller's side of the wire: each bus
// event raises one interrupt, and the handler installed by the protocol
// engine runs synchronously on the caller's goroutine with the IRQ lock
// held, which gives the same non-reentrancy a hardware interrupt line has.
//
// An [EC] adds firmware behavior on top: it watches the attention [Pin],
// pulls each request the AP queues, and answers through a [Responder].
//
// # Usage
//
//	bus := sim.New(nil)
//	pin := sim.NewPin("EC_REQ", 170)
//	ec := sim.NewEC(bus, pin, func(req sim.Request) ([]byte, bool) {
//	    return sim.Reply(req.Command, req.Subcommand, pkg.StatusSuccess, nil), true
//	})
//
//	chip := nvec.New(bus, pin, nvec.DefaultConfig())
//	chip.Start(ctx)
//	ec.Start(ctx)
//
//	n, err := chip.CmdXfer(ctx, frame.CmdControl, frame.ControlNoop, nil, nil)
//
// Every byte the slave arms for the master is recorded with the time the
// interrupt was raised and the time the transmit register was written
// ([Bus.Transmitted]); with a [StepClock] this makes timing constraints
// checkable without real delays.
package sim
