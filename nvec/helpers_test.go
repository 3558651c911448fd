package nvec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/softnvec/nvec/hal/sim"
)

const testAddress = DefaultAddress

func testConfig() Config {
	return Config{
		Timeout:      200 * time.Millisecond,
		Retries:      3,
		NudgeDelay:   time.Millisecond,
		Guard:        time.Millisecond,
		CloseTimeout: 500 * time.Millisecond,
	}
}

// rig is a started chip on a simulated bus. ec is nil unless a responder
// was supplied.
type rig struct {
	bus  *sim.Bus
	pin  *sim.Pin
	chip *Chip
	ec   *sim.EC
}

func newRig(t *testing.T, cfg Config, respond sim.Responder) *rig {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	r := &rig{
		bus: sim.New(cfg.Clock),
		pin: sim.NewPin("EC_REQ", 170),
	}
	r.chip = New(r.bus, r.pin, cfg)
	if err := r.chip.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start() error = %v", err)
	}
	if respond != nil {
		r.ec = sim.NewEC(r.bus, r.pin, respond)
		r.ec.Start(ctx)
	}

	t.Cleanup(func() {
		if r.ec != nil {
			r.ec.Stop()
		}
		r.chip.Close()
		cancel()
	})
	return r
}

func (r *rig) state() int {
	r.chip.mu.Lock()
	defer r.chip.mu.Unlock()
	return r.chip.state
}

// eventually polls cond until it holds or a deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type received struct {
	typ       uint8
	header    uint8
	hasStatus bool
	status    uint8
	payload   []byte
}

// recorder is an EventHandler keeping a copy of every event.
type recorder struct {
	mu     sync.Mutex
	events []received
	err    error
}

func (r *recorder) HandleEvent(typ uint8, ev *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, received{
		typ:       typ,
		header:    ev.Header,
		hasStatus: ev.HasStatus,
		status:    ev.Status,
		payload:   append([]byte(nil), ev.Payload()...),
	})
	return r.err
}

func (r *recorder) all() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.events...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
