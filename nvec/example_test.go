package nvec_test

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/softnvec/nvec"
	"github.com/ardnew/softnvec/nvec/frame"
	"github.com/ardnew/softnvec/nvec/hal/sim"
	"github.com/ardnew/softnvec/pkg"
)

func ExampleChip_CmdXfer() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := sim.New(nil)
	pin := sim.NewPin("EC_REQ", 170)
	ec := sim.NewEC(bus, pin, func(req sim.Request) ([]byte, bool) {
		return sim.Reply(req.Command, req.Subcommand, pkg.StatusSuccess, []byte{0x12, 0x34}), true
	})

	chip := nvec.New(bus, pin, nvec.DefaultConfig())
	if err := chip.Start(ctx); err != nil {
		fmt.Println(err)
		return
	}
	defer chip.Close()
	ec.Start(ctx)
	defer ec.Stop()

	rx := make([]byte, 8)
	n, err := chip.CmdXfer(ctx, frame.CmdBattery, 0x00, nil, rx)
	fmt.Printf("%d % x %v\n", n, rx[:n], err)
	// Output: 2 12 34 <nil>
}

type printer struct{}

func (*printer) HandleEvent(typ uint8, ev *nvec.Event) error {
	fmt.Printf("type %d payload % x\n", typ, ev.Payload())
	return nil
}

func ExampleChip_AddEventHandler() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := sim.New(nil)
	chip := nvec.New(bus, sim.NewPin("EC_REQ", 170), nvec.DefaultConfig())
	if err := chip.Start(ctx); err != nil {
		fmt.Println(err)
		return
	}

	chip.AddEventHandler(&printer{})
	if err := bus.Write([]byte{0x20, 0x41}); err != nil {
		fmt.Println(err)
	}

	// Close drops undelivered events, so wait for this one first.
	for chip.Stats().EventsDelivered == 0 {
		time.Sleep(time.Millisecond)
	}
	chip.Close()
	// Output: type 0 payload 41
}
