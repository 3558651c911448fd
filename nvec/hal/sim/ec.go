package sim

import (
	"context"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/ardnew/softnvec/nvec/frame"
	"github.com/ardnew/softnvec/pkg"
)

// Request is a request pulled from the AP by the simulated EC.
type Request struct {
	Seq        int // 1-based pull counter
	Raw        []byte
	Command    uint8
	Subcommand uint8
	Payload    []byte
	Err        error // decode error, if the frame was malformed
}

// Responder produces the EC's reply to a pulled request. Returning false
// drops the request, which the AP observes as a timeout.
type Responder func(req Request) (reply []byte, ok bool)

// Reply encodes a response frame for use in a Responder.
func Reply(cmd, subcmd uint8, status pkg.Status, payload []byte) []byte {
	buf := make([]byte, frame.MaxSize)
	n, err := frame.EncodeResponse(buf, cmd, subcmd, status, payload)
	if err != nil {
		panic(err)
	}
	return buf[:n]
}

// Ack is a Responder answering every request with StatusSuccess and no
// payload.
func Ack(req Request) ([]byte, bool) {
	return Reply(req.Command, req.Subcommand, pkg.StatusSuccess, nil), true
}

// EC simulates the embedded controller firmware: each time the AP asserts
// the attention line it pulls the pending request with a block read and
// answers it through its Responder.
type EC struct {
	bus     *Bus
	pin     *Pin
	respond Responder

	// Delay is applied between pulling a request and writing the reply.
	Delay time.Duration

	mu       sync.Mutex
	requests []Request
	replies  int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEC creates a simulated EC mastering bus and watching pin.
func NewEC(bus *Bus, pin *Pin, respond Responder) *EC {
	if respond == nil {
		respond = Ack
	}
	return &EC{bus: bus, pin: pin, respond: respond}
}

// Start runs the firmware loop until ctx is cancelled or Stop is called.
func (e *EC) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx)
}

// Stop terminates the firmware loop and waits for it to exit.
func (e *EC) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *EC) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-e.pin.Edges():
			if l != gpio.Low {
				continue
			}
			e.serve(ctx)
		}
	}
}

func (e *EC) serve(ctx context.Context) {
	raw, err := e.bus.BlockRead()
	if err != nil {
		pkg.LogWarn(pkg.ComponentSim, "block read failed", "error", err)
		return
	}

	e.mu.Lock()
	req := Request{Seq: len(e.requests) + 1, Raw: raw}
	e.mu.Unlock()

	req.Command, req.Subcommand, req.Payload, req.Err = frame.DecodeRequest(raw)
	if req.Err == nil {
		req.Payload = append([]byte(nil), req.Payload...)
	}

	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	pkg.LogDebug(pkg.ComponentSim, "request pulled", "seq", req.Seq, "frame", raw)

	reply, ok := e.respond(req)
	if !ok {
		pkg.LogDebug(pkg.ComponentSim, "request dropped", "seq", req.Seq)
		return
	}
	if e.Delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.Delay):
		}
	}
	if err := e.bus.Write(reply); err != nil {
		pkg.LogWarn(pkg.ComponentSim, "reply failed", "seq", req.Seq, "error", err)
		return
	}
	e.mu.Lock()
	e.replies++
	e.mu.Unlock()
}

// Requests returns every request pulled so far.
func (e *EC) Requests() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Request(nil), e.requests...)
}

// Replies returns how many replies were written.
func (e *EC) Replies() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replies
}

// SendEvent writes an unsolicited event. See frame.EncodeEvent for how the
// length class is chosen.
func (e *EC) SendEvent(typ uint8, status *uint8, payload []byte, variable bool) error {
	var buf [frame.MaxSize]byte
	n, err := frame.EncodeEvent(buf[:], typ, status, payload, variable)
	if err != nil {
		return err
	}
	return e.bus.Write(buf[:n])
}
