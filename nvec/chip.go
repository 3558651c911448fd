package nvec

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"periph.io/x/conn/v3/gpio"

	"github.com/ardnew/softnvec/nvec/frame"
	"github.com/ardnew/softnvec/nvec/hal"
	"github.com/ardnew/softnvec/pkg"
)

// logWindow is how often each class of interrupt-time failure may log.
const logWindow = time.Second

type limiters struct {
	spurious    *pkg.Limiter
	desync      *pkg.Limiter
	address     *pkg.Limiter
	overflow    *pkg.Limiter
	underflow   *pkg.Limiter
	premature   *pkg.Limiter
	unsolicited *pkg.Limiter
	malformed   *pkg.Limiter
	dropped     *pkg.Limiter
	panics      *pkg.Limiter
}

func newLimiters() limiters {
	return limiters{
		spurious:    pkg.NewLimiter(logWindow),
		desync:      pkg.NewLimiter(logWindow),
		address:     pkg.NewLimiter(logWindow),
		overflow:    pkg.NewLimiter(logWindow),
		underflow:   pkg.NewLimiter(logWindow),
		premature:   pkg.NewLimiter(logWindow),
		unsolicited: pkg.NewLimiter(logWindow),
		malformed:   pkg.NewLimiter(logWindow),
		dropped:     pkg.NewLimiter(logWindow),
		panics:      pkg.NewLimiter(logWindow),
	}
}

// Chip is the AP side of an NVEC link.
type Chip struct {
	hal       hal.SlaveHAL
	attention gpio.PinOut
	cfg       Config
	clock     hal.Clock

	// lifeMu serializes Start and Close.
	lifeMu    sync.Mutex
	running   atomic.Bool
	suspended atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}

	// cmdMu keeps one command in flight.
	cmdMu sync.Mutex

	// mu is shared with the interrupt handler. It guards the fields below
	// and the contents of armed messages.
	mu      sync.Mutex
	tx      *Message // request waiting to be pulled by the EC
	rx      *Message // command waiting for its response
	sending *Message // request being streamed, tx or noop
	state   int
	nextCmd time.Time
	ring    eventRing

	// Touched only by the interrupt handler.
	scratch [frame.MaxSize]byte
	pos     int
	noop    Message

	pool eventPool
	kick chan struct{}

	handlersMu sync.RWMutex
	handlers   []EventHandler

	stats  counters
	limits limiters
}

// New creates a chip on top of a slave controller and the attention line
// used to ask the EC to pull a command. The chip is idle until Start.
func New(h hal.SlaveHAL, attention gpio.PinOut, cfg Config) *Chip {
	cfg = cfg.withDefaults()
	c := &Chip{
		hal:       h,
		attention: attention,
		cfg:       cfg,
		clock:     cfg.Clock,
		kick:      make(chan struct{}, 1),
		limits:    newLimiters(),
	}
	copy(c.noop.buf[:], frame.Noop[:])
	return c
}

// Start initializes the controller, releases the attention line, enables
// the slave and starts event dispatch. Dispatch stops when ctx is done or
// Close is called.
func (c *Chip) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.running.Load() {
		return pkg.ErrAlreadyRunning
	}

	if err := c.hal.Init(ctx); err != nil {
		return err
	}
	if err := c.attention.Out(gpio.High); err != nil {
		c.releaseHAL()
		return err
	}

	c.mu.Lock()
	c.state = stateIdle
	c.pos = 0
	c.tx, c.rx, c.sending = nil, nil, nil
	c.mu.Unlock()

	if err := c.hal.Start(c.cfg.Address, c.interrupt); err != nil {
		c.releaseHAL()
		return err
	}

	wctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.suspended.Store(false)
	c.running.Store(true)
	go c.dispatchLoop(wctx, c.done)

	pkg.LogInfo(pkg.ComponentChip, "nvec started", "address", c.cfg.Address)
	return nil
}

// Close stops accepting commands, waits up to Config.CloseTimeout for an
// in-flight command to drain, disables the slave and stops dispatch.
// Events still queued are dropped.
func (c *Chip) Close() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.running.CompareAndSwap(true, false) {
		return nil
	}

	b := &backoff.Backoff{
		Min:    time.Millisecond,
		Max:    100 * time.Millisecond,
		Factor: 2,
	}
	deadline := time.Now().Add(c.cfg.CloseTimeout)
	for c.busy() {
		if time.Now().After(deadline) {
			pkg.LogWarn(pkg.ComponentChip, "closing with a command in flight")
			break
		}
		time.Sleep(b.Duration())
	}

	err := c.hal.Stop()

	c.cancel()
	<-c.done
	c.discardEvents()

	pkg.LogInfo(pkg.ComponentChip, "nvec stopped")
	return err
}

// releaseHAL undoes a successful Init when Start fails later on.
func (c *Chip) releaseHAL() {
	if err := c.hal.Stop(); err != nil {
		pkg.LogWarn(pkg.ComponentChip, "failed to release slave controller", "error", err)
	}
}

func (c *Chip) busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil || c.rx != nil
}

// Running reports whether the chip has been started and not closed.
func (c *Chip) Running() bool {
	return c.running.Load()
}

// Suspended reports whether the chip is suspended.
func (c *Chip) Suspended() bool {
	return c.suspended.Load()
}

// Stats returns a snapshot of the chip's counters.
func (c *Chip) Stats() Stats {
	return c.stats.snapshot()
}
