package nvec

import (
	"context"
	"errors"
	"math/bits"
	"sync/atomic"

	"github.com/ardnew/softnvec/nvec/frame"
	"github.com/ardnew/softnvec/pkg"
)

// EventPoolSize is the number of events that can be in flight between the
// interrupt handler and the listeners. Events arriving while every slot is
// busy are dropped.
const EventPoolSize = 8

// Event is an unsolicited message from the EC.
type Event struct {
	ID        int          // pool slot
	Header    uint8        // raw type byte
	Type      uint8        // event type, the listener demultiplexing key
	Length    frame.Length // length class
	HasStatus bool
	Status    uint8
	Size      int
	Data      [frame.MaxPayload]byte
}

// Payload returns the event payload.
func (e *Event) Payload() []byte {
	return e.Data[:e.Size]
}

// EventHandler receives events. Handlers are called one at a time from the
// dispatch goroutine, in registration order. The event is only valid for
// the duration of the call.
//
// Returning pkg.ErrStopDispatch keeps the event from later handlers; any
// other error is logged and dispatch continues. A panic is recovered and
// counted. Handlers are compared with == on removal, so implementations
// must be comparable; pointers are.
type EventHandler interface {
	HandleEvent(typ uint8, ev *Event) error
}

// eventPool is a fixed arena of events. Slots are claimed and released
// through an atomic bitmap so the interrupt handler never blocks on it.
type eventPool struct {
	used   atomic.Uint32
	events [EventPoolSize]Event
}

const poolFull = 1<<EventPoolSize - 1

func (p *eventPool) claim() *Event {
	for {
		cur := p.used.Load()
		if cur == poolFull {
			return nil
		}
		i := bits.TrailingZeros32(^cur)
		if p.used.CompareAndSwap(cur, cur|1<<i) {
			ev := &p.events[i]
			*ev = Event{ID: i}
			return ev
		}
	}
}

func (p *eventPool) release(id int) {
	for {
		cur := p.used.Load()
		if p.used.CompareAndSwap(cur, cur&^(1<<id)) {
			return
		}
	}
}

func (p *eventPool) inUse() int {
	return bits.OnesCount32(p.used.Load())
}

// eventRing is the FIFO of filled events awaiting dispatch. It is guarded
// by the chip lock and cannot overflow since the pool bounds it.
type eventRing struct {
	slots [EventPoolSize]*Event
	head  int
	count int
}

func (r *eventRing) push(ev *Event) bool {
	if r.count == len(r.slots) {
		return false
	}
	r.slots[(r.head+r.count)%len(r.slots)] = ev
	r.count++
	return true
}

func (r *eventRing) pop() *Event {
	if r.count == 0 {
		return nil
	}
	ev := r.slots[r.head]
	r.slots[r.head] = nil
	r.head = (r.head + 1) % len(r.slots)
	r.count--
	return ev
}

// queueEvent copies an event frame into a pool slot and wakes the
// dispatcher. Called from the interrupt handler with the chip lock held.
func (c *Chip) queueEvent(fr []byte) {
	ev := c.pool.claim()
	if ev == nil {
		c.stats.dropped.Add(1)
		c.limits.dropped.Warn(pkg.ComponentEvent, "event pool exhausted, dropping event",
			"header", fr[0])
		return
	}

	var v frame.EventView
	if err := frame.ParseEvent(fr, &v); err != nil {
		c.limits.malformed.Warn(pkg.ComponentEvent, "short event",
			"header", fr[0], "received", len(fr), "error", err)
	}
	ev.Header = v.Header
	ev.Type = v.Type
	ev.Length = v.Length
	ev.HasStatus = v.HasStatus
	ev.Status = v.Status
	ev.Size = copy(ev.Data[:], v.Payload)

	if !c.ring.push(ev) {
		c.pool.release(ev.ID)
		c.stats.dropped.Add(1)
		return
	}
	c.stats.queued.Add(1)

	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// AddEventHandler registers h to receive every event.
func (c *Chip) AddEventHandler(h EventHandler) {
	if h == nil {
		return
	}
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// RemoveEventHandler unregisters the first registration of h. It reports
// whether h was registered.
func (c *Chip) RemoveEventHandler(h EventHandler) bool {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	for i, r := range c.handlers {
		if r == h {
			c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Chip) dispatchLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			c.drainEvents()
		}
	}
}

// drainEvents delivers queued events until the ring is empty.
func (c *Chip) drainEvents() {
	for {
		c.mu.Lock()
		ev := c.ring.pop()
		c.mu.Unlock()
		if ev == nil {
			return
		}
		c.deliver(ev)
	}
}

func (c *Chip) deliver(ev *Event) {
	defer c.pool.release(ev.ID)

	c.handlersMu.RLock()
	handlers := c.handlers
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		if c.invoke(h, ev) {
			break
		}
	}
	c.stats.delivered.Add(1)
}

// invoke calls one handler and reports whether dispatch should stop.
func (c *Chip) invoke(h EventHandler, ev *Event) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.panics.Add(1)
			c.limits.panics.Error(pkg.ComponentEvent, "event handler panicked",
				"type", ev.Type, "panic", r)
		}
	}()

	err := h.HandleEvent(ev.Type, ev)
	switch {
	case err == nil:
	case errors.Is(err, pkg.ErrStopDispatch):
		return true
	default:
		pkg.LogWarn(pkg.ComponentEvent, "event handler failed",
			"type", ev.Type, "error", err)
	}
	return false
}

// discardEvents releases queued events that will never be delivered.
func (c *Chip) discardEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ev := c.ring.pop(); ev != nil; ev = c.ring.pop() {
		c.pool.release(ev.ID)
		c.stats.dropped.Add(1)
	}
}
