package sim

import (
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// Pin is a simulated attention line. It behaves like gpiotest.Pin and
// additionally reports level changes on a channel so the simulated EC can
// react to the AP asserting the line.
type Pin struct {
	gpiotest.Pin

	edges chan gpio.Level
	falls atomic.Int64
}

// NewPin returns an idle (high) attention line.
func NewPin(name string, number int) *Pin {
	return &Pin{
		Pin: gpiotest.Pin{
			N:   name,
			Num: number,
			L:   gpio.High,
		},
		edges: make(chan gpio.Level, 16),
	}
}

// Out drives the line and reports a change of level.
func (p *Pin) Out(l gpio.Level) error {
	p.Lock()
	prev := p.L
	p.L = l
	p.Unlock()

	if prev == l {
		return nil
	}
	if l == gpio.Low {
		p.falls.Add(1)
	}
	select {
	case p.edges <- l:
	default:
	}
	return nil
}

// Level returns the current level.
func (p *Pin) Level() gpio.Level {
	p.Lock()
	defer p.Unlock()
	return p.L
}

// Edges delivers every level change. Changes are dropped when nobody
// drains the channel.
func (p *Pin) Edges() <-chan gpio.Level {
	return p.edges
}

// Falls returns how many times the line was asserted.
func (p *Pin) Falls() int {
	return int(p.falls.Load())
}

var _ gpio.PinOut = (*Pin)(nil)
