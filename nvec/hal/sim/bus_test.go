package sim

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/ardnew/softnvec/nvec/frame"
	"github.com/ardnew/softnvec/nvec/hal"
	"github.com/ardnew/softnvec/pkg"
)

type event struct {
	status hal.Status
	rx     uint8
}

// slave is a minimal interrupt handler: it records every interrupt and
// streams out when the master reads.
type slave struct {
	bus   *Bus
	ack   bool
	out   []byte
	pos   int
	trace []event
}

func (s *slave) isr() {
	st := s.bus.Status()
	var rx uint8
	if !st.Has(hal.StatusRNW) {
		rx = s.bus.ReadRx()
		if st.Has(hal.StatusRcvd) && s.ack {
			s.bus.AckRx()
		}
	}
	s.trace = append(s.trace, event{st, rx})

	if st.Has(hal.StatusRNW) && !st.Has(hal.StatusEndTrans) {
		b := frame.Fill
		if s.pos < len(s.out) {
			b = s.out[s.pos]
			s.pos++
		}
		s.bus.WriteTx(b)
	}
}

func newSlave(t *testing.T, ack bool) *slave {
	t.Helper()
	s := &slave{bus: New(nil), ack: ack}
	if err := s.bus.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.bus.Start(0x8a, s.isr); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBusWrite(t *testing.T) {
	s := newSlave(t, true)

	if err := s.bus.Write([]byte{0x07, 0x02}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := []event{
		{hal.StartWrite, 0x8a},
		{hal.DataWrite, 0x07},
		{hal.DataWrite, 0x02},
		{hal.EndWrite, 0},
	}
	if len(s.trace) != len(want) {
		t.Fatalf("trace = %+v, want %+v", s.trace, want)
	}
	for i := range want {
		if s.trace[i] != want[i] {
			t.Errorf("interrupt %d = %+v, want %+v", i, s.trace[i], want[i])
		}
	}
	if s.bus.Unacked() != 0 {
		t.Errorf("Unacked() = %d, want 0", s.bus.Unacked())
	}
}

func TestBusUnacked(t *testing.T) {
	s := newSlave(t, false)
	if err := s.bus.Write([]byte{0x20, 0x41}); err != nil {
		t.Fatal(err)
	}
	if s.bus.Unacked() != 1 {
		t.Errorf("Unacked() = %d, want 1", s.bus.Unacked())
	}
}

func TestBusBlockRead(t *testing.T) {
	tests := []struct {
		name  string
		out   []byte
		limit int
		want  []byte
	}{
		{name: "noop", out: []byte{0x02, 0x07, 0x02}, limit: -1, want: []byte{0x02, 0x07, 0x02}},
		{name: "underflow", out: []byte{0x03, 0x07, 0x02}, limit: -1, want: []byte{0x03, 0x07, 0x02, 0xff}},
		{name: "partial", out: []byte{0x02, 0x07, 0x02}, limit: 2, want: []byte{0x02, 0x07}},
		{name: "oversized", out: bytes.Repeat([]byte{0xfe}, 64), limit: -1, want: bytes.Repeat([]byte{0xfe}, frame.MaxSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSlave(t, true)
			s.out = tt.out

			var got []byte
			var err error
			if tt.limit < 0 {
				got, err = s.bus.BlockRead()
			} else {
				got, err = s.bus.BlockReadPartial(tt.limit)
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("read % x, want % x", got, tt.want)
			}

			if s.trace[0].status != hal.StartWrite || s.trace[1] != (event{hal.DataWrite, frame.BlockReadCommand}) ||
				s.trace[2].status != hal.StartRead || s.trace[len(s.trace)-1].status != hal.EndRead {
				t.Errorf("trace = %+v", s.trace)
			}
		})
	}
}

func TestBusTransmitted(t *testing.T) {
	s := newSlave(t, true)
	s.out = []byte{0x02, 0x07, 0x02}
	if _, err := s.bus.BlockRead(); err != nil {
		t.Fatal(err)
	}

	recs := s.bus.Transmitted()
	if len(recs) != 3 {
		t.Fatalf("Transmitted() has %d records, want 3", len(recs))
	}
	if recs[0].Status != hal.StartRead || recs[0].Byte != 0x02 {
		t.Errorf("first record = %+v", recs[0])
	}
	for _, r := range recs {
		if r.Latency() < 0 {
			t.Errorf("negative latency %v", r.Latency())
		}
	}
}

func TestBusStopped(t *testing.T) {
	b := New(nil)
	if err := b.Write([]byte{1}); !errors.Is(err, ErrNoAck) {
		t.Errorf("Write() before Start error = %v, want ErrNoAck", err)
	}
	if _, _, err := b.Inject(hal.DataWrite, 0); !errors.Is(err, ErrNoAck) {
		t.Errorf("Inject() before Start error = %v, want ErrNoAck", err)
	}

	if err := b.Start(0x8a, nil); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Start(nil) error = %v, want ErrInvalidParameter", err)
	}
	if err := b.Start(0x8a, func() {}); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(0x8a, func() {}); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := b.Write([]byte{1}); !errors.Is(err, ErrNoAck) {
		t.Errorf("Write() after Stop error = %v, want ErrNoAck", err)
	}
}

func TestBusInitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(nil).Init(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Init() error = %v, want Canceled", err)
	}
}

func TestDisableIRQHoldsOffHandler(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	b := New(nil)
	if err := b.Start(0x8a, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	b.DisableIRQ()
	done := make(chan struct{})
	go func() {
		_, _, _ = b.Inject(hal.DataWrite, 0)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("interrupt delivered while disabled")
	case <-time.After(20 * time.Millisecond):
	}
	if err := b.ResetSlave(); err != nil {
		t.Fatal(err)
	}
	b.EnableIRQ()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
	if b.Resets() != 1 {
		t.Errorf("Resets() = %d, want 1", b.Resets())
	}
}

func TestPin(t *testing.T) {
	p := NewPin("EC_REQ", 170)
	if p.Level() != gpio.High {
		t.Fatal("new pin is not idle high")
	}
	if p.Name() != "EC_REQ" || p.Number() != 170 {
		t.Errorf("pin = %s/%d", p.Name(), p.Number())
	}

	for _, l := range []gpio.Level{gpio.Low, gpio.Low, gpio.High, gpio.Low} {
		if err := p.Out(l); err != nil {
			t.Fatal(err)
		}
	}
	if p.Falls() != 2 {
		t.Errorf("Falls() = %d, want 2", p.Falls())
	}

	want := []gpio.Level{gpio.Low, gpio.High, gpio.Low}
	for i, w := range want {
		select {
		case l := <-p.Edges():
			if l != w {
				t.Errorf("edge %d = %v, want %v", i, l, w)
			}
		default:
			t.Fatalf("edge %d missing", i)
		}
	}
	select {
	case l := <-p.Edges():
		t.Errorf("unexpected edge %v", l)
	default:
	}
}

func TestStepClock(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewStepClock(start, time.Microsecond)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("first Now() = %v, want %v", got, start)
	}
	if got := c.Now(); got.Sub(start) != time.Microsecond {
		t.Errorf("second Now() advanced %v, want 1µs", got.Sub(start))
	}
	c.Advance(time.Millisecond)
	if got := c.Now(); got.Sub(start) != time.Millisecond+2*time.Microsecond {
		t.Errorf("Now() after Advance = +%v", got.Sub(start))
	}
}

func TestReply(t *testing.T) {
	got := Reply(frame.CmdControl, frame.ControlNoop, pkg.StatusSuccess, nil)
	if want := []byte{0x07, 0x02, 0x02, 0x00}; !bytes.Equal(got, want) {
		t.Errorf("Reply() = % x, want % x", got, want)
	}

	req := Request{Command: frame.CmdBattery, Subcommand: 0x01}
	reply, ok := Ack(req)
	if !ok || !bytes.Equal(reply, []byte{0x02, 0x02, 0x01, 0x00}) {
		t.Errorf("Ack() = % x, %v", reply, ok)
	}
}
