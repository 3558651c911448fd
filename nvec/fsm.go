package nvec

import (
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/ardnew/softnvec/nvec/frame"
	"github.com/ardnew/softnvec/nvec/hal"
	"github.com/ardnew/softnvec/pkg"
)

// Slave protocol states.
const (
	stateIdle         = iota // waiting for a start with our address
	stateCommand             // waiting for the SMBus command byte
	stateDiscriminate        // block read, or the second byte of a write
	stateTransmit            // streaming a request to the master
	stateReceive             // receiving a response or event
)

// responseFloor is the minimum time between entering the interrupt
// handler and arming the first byte of a block read. The slave controller
// misbehaves when the transmit register is written sooner.
const responseFloor = 33 * time.Microsecond

// writeKind names an SMBus write by the number of bytes received.
func writeKind(n int) string {
	switch n {
	case 2:
		return "byte"
	case 3:
		return "word"
	default:
		return "block"
	}
}

// interrupt is the slave controller's interrupt handler. The HAL never
// runs it concurrently with itself or between DisableIRQ and EnableIRQ.
//
// Nothing on the block read path may log: the response floor is a lower
// bound, and the master gives up if the byte is armed too late.
func (c *Chip) interrupt() {
	entry := c.clock.Now()

	status := c.hal.Status()
	if !status.Has(hal.StatusIRQ) {
		c.stats.spurious.Add(1)
		c.limits.spurious.Warn(pkg.ComponentFSM, "spurious interrupt", "status", status)
		return
	}

	var received uint8
	if !status.Has(hal.StatusRNW) {
		received = c.hal.ReadRx()
		if status.Has(hal.StatusRcvd) {
			c.hal.AckRx()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A start condition always begins a new transaction, whatever we
	// thought the previous one was doing.
	if status == hal.StartWrite {
		c.state = stateIdle
	}

	toSend := frame.Fill

	switch c.state {
	case stateIdle:
		if status != hal.StartWrite {
			c.desync(status)
		}

	case stateCommand:
		if status != hal.DataWrite {
			c.desync(status)
			break
		}
		c.scratch[0] = received
		c.state = stateDiscriminate

	case stateDiscriminate:
		switch {
		case status == hal.StartRead && c.scratch[0] == frame.BlockReadCommand:
			toSend = c.beginBlockRead(entry)
			c.state = stateTransmit
		case status == hal.DataWrite:
			c.scratch[1] = received
			c.pos = 2
			c.state = stateReceive
		default:
			c.desync(status)
		}

	case stateTransmit:
		switch {
		case status.Has(hal.StatusEndTrans):
			c.endBlockRead()
			c.state = stateIdle
		case status == hal.DataRead:
			toSend = c.nextByte()
		default:
			c.desync(status)
		}

	case stateReceive:
		switch {
		case status == hal.DataWrite:
			c.receive(received)
		case status.Has(hal.StatusEndTrans) && !status.Has(hal.StatusRNW):
			c.endWrite()
			c.state = stateIdle
		default:
			c.desync(status)
		}

	default:
		c.desync(status)
	}

	// Address byte of a write, possibly back to back with a stop.
	if status&(hal.StatusRcvd|hal.StatusRNW) == hal.StatusRcvd {
		if received == c.cfg.Address {
			c.state = stateCommand
		} else {
			c.stats.addressMismatch.Add(1)
			c.limits.address.Warn(pkg.ComponentFSM, "address mismatch",
				"received", received, "want", c.cfg.Address)
			c.state = stateIdle
		}
	}

	if status&(hal.StatusRNW|hal.StatusEndTrans) == hal.StatusRNW {
		c.hal.WriteTx(toSend)
	}
}

// desync abandons the current transaction. A request that was being
// streamed is rewound so the next block read sends it whole.
func (c *Chip) desync(status hal.Status) {
	c.stats.desyncs.Add(1)
	c.limits.desync.Warn(pkg.ComponentFSM, "unexpected status",
		"state", c.state, "status", status)
	if c.sending != nil {
		c.sending.pos = 0
		c.sending = nil
	}
	c.pos = 0
	c.state = stateIdle
}

// beginBlockRead selects the message to stream, waits out the response
// floor, releases the attention line and returns the size byte.
func (c *Chip) beginBlockRead(entry time.Time) uint8 {
	msg := c.tx
	if msg == nil {
		msg = &c.noop
	}
	msg.pos = 0
	c.sending = msg

	for c.clock.Now().Sub(entry) < responseFloor {
	}

	_ = c.attention.Out(gpio.High)

	msg.pos = 1
	return msg.buf[0]
}

func (c *Chip) nextByte() uint8 {
	msg := c.sending
	if msg == nil || msg.pos >= msg.txLen() {
		c.stats.underflows.Add(1)
		c.limits.underflow.Warn(pkg.ComponentFSM, "transmit underflow")
		return frame.Fill
	}
	b := msg.buf[msg.pos]
	msg.pos++
	return b
}

// endBlockRead retires a fully sent request. A request cut short is
// rewound and the EC is asked to pull it again.
func (c *Chip) endBlockRead() {
	msg := c.sending
	c.sending = nil
	if msg == nil {
		return
	}
	if msg.pos < msg.txLen() {
		c.stats.premature.Add(1)
		c.limits.premature.Warn(pkg.ComponentFSM, "block read ended early, resending",
			"sent", msg.pos, "want", msg.txLen())
		msg.pos = 0
		if msg == c.tx {
			_ = c.attention.Out(gpio.Low)
		}
		return
	}
	if msg == c.tx {
		c.tx = nil
	}
}

func (c *Chip) receive(b uint8) {
	limit := frame.Limit(c.scratch[0], c.scratch[1])
	if c.pos >= limit {
		c.stats.overflows.Add(1)
		c.limits.overflow.Warn(pkg.ComponentFSM, "receive overflow",
			"received", c.pos, "limit", limit)
		return
	}
	c.scratch[c.pos] = b
	c.pos++
}

// endWrite classifies and dispatches a frame written by the EC.
func (c *Chip) endWrite() {
	n := c.pos
	c.pos = 0
	fr := c.scratch[:n]

	if n > 3 {
		if want := int(c.scratch[1]) + 2; n != want {
			c.limits.overflow.Warn(pkg.ComponentFSM, "block write length mismatch",
				"received", n, "declared", want)
		}
	}

	if frame.IsEvent(fr[0]) {
		c.queueEvent(fr)
	} else {
		c.complete(fr, writeKind(n))
	}

	c.nextCmd = c.clock.Now().Add(c.cfg.Guard)
}

// complete hands a response to the waiting command.
func (c *Chip) complete(fr []byte, kind string) {
	msg := c.rx
	if msg == nil {
		c.stats.unsolicited.Add(1)
		c.limits.unsolicited.Warn(pkg.ComponentFSM, "unsolicited response",
			"command", fr[0], "write", kind)
		return
	}
	if len(fr) < frame.HeaderSize {
		c.stats.malformed.Add(1)
		c.limits.malformed.Warn(pkg.ComponentFSM, "response too short",
			"received", len(fr), "write", kind)
		return
	}

	n := copy(msg.buf[:], fr)
	clear(msg.buf[n:])
	msg.completed = true
	select {
	case msg.done <- struct{}{}:
	default:
	}

	c.rx = nil
	if c.tx == msg {
		c.tx = nil
	}
}
