package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardnew/softnvec/nvec/frame"
	"github.com/ardnew/softnvec/nvec/hal"
	"github.com/ardnew/softnvec/pkg"
)

// ErrNoAck is returned by master operations when the slave is disabled or
// did not arm a byte for a read.
var ErrNoAck = errors.New("sim: slave did not acknowledge")

// TxRecord describes one byte the slave armed for the master.
type TxRecord struct {
	Byte      uint8
	Status    hal.Status // status of the interrupt that produced it
	RaisedAt  time.Time  // when the interrupt was raised
	WrittenAt time.Time  // when the handler wrote the transmit register
}

// Latency returns the time between raising the interrupt and the write.
func (r TxRecord) Latency() time.Duration {
	return r.WrittenAt.Sub(r.RaisedAt)
}

// Bus simulates a Tegra I2C slave controller with the EC as bus master.
// It implements hal.SlaveHAL for the protocol engine; the exported master
// operations play the EC side of each transaction.
type Bus struct {
	clock hal.Clock

	// irq is held while the handler runs and between DisableIRQ and
	// EnableIRQ. The fields below it are only touched with irq held.
	irq      sync.Mutex
	isr      func()
	address  uint8
	enabled  bool
	status   hal.Status
	rx       uint8
	tx       uint8
	txArmed  bool
	txAt     time.Time
	rxAcked  bool
	raisedAt time.Time

	// master serializes whole transactions, like a single bus master.
	master sync.Mutex

	mu       sync.Mutex
	sent     []TxRecord
	resets   int
	unacked  int
	initDone bool
}

// New creates a simulated controller. A nil clock uses hal.SystemClock.
func New(clock hal.Clock) *Bus {
	if clock == nil {
		clock = hal.SystemClock{}
	}
	return &Bus{clock: clock}
}

// Init implements hal.SlaveHAL.
func (b *Bus) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initDone = true
	return nil
}

// Start implements hal.SlaveHAL.
func (b *Bus) Start(address uint8, isr func()) error {
	if isr == nil {
		return pkg.ErrInvalidParameter
	}
	b.irq.Lock()
	defer b.irq.Unlock()
	if b.enabled {
		return pkg.ErrAlreadyRunning
	}
	b.address = address
	b.isr = isr
	b.enabled = true
	pkg.LogDebug(pkg.ComponentSim, "slave enabled", "address", address)
	return nil
}

// Stop implements hal.SlaveHAL.
func (b *Bus) Stop() error {
	b.irq.Lock()
	defer b.irq.Unlock()
	b.enabled = false
	b.isr = nil
	pkg.LogDebug(pkg.ComponentSim, "slave disabled")
	return nil
}

// Status implements hal.SlaveHAL.
func (b *Bus) Status() hal.Status { return b.status }

// ReadRx implements hal.SlaveHAL.
func (b *Bus) ReadRx() uint8 { return b.rx }

// AckRx implements hal.SlaveHAL.
func (b *Bus) AckRx() { b.rxAcked = true }

// WriteTx implements hal.SlaveHAL.
func (b *Bus) WriteTx(v uint8) {
	b.tx = v
	b.txArmed = true
	b.txAt = b.clock.Now()
}

// ResetSlave implements hal.SlaveHAL.
func (b *Bus) ResetSlave() error {
	b.mu.Lock()
	b.resets++
	b.mu.Unlock()
	pkg.LogDebug(pkg.ComponentSim, "slave reset")
	return nil
}

// DisableIRQ implements hal.SlaveHAL.
func (b *Bus) DisableIRQ() { b.irq.Lock() }

// EnableIRQ implements hal.SlaveHAL.
func (b *Bus) EnableIRQ() { b.irq.Unlock() }

// Address returns the 8-bit slave address programmed by Start.
func (b *Bus) Address() uint8 {
	b.irq.Lock()
	defer b.irq.Unlock()
	return b.address
}

// Resets returns how many times ResetSlave was called.
func (b *Bus) Resets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

// Transmitted returns a copy of every byte the slave armed for the master.
func (b *Bus) Transmitted() []TxRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]TxRecord(nil), b.sent...)
}

// Unacked returns how many start conditions the handler did not acknowledge.
func (b *Bus) Unacked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unacked
}

// raise delivers one interrupt and reports the byte armed by the handler.
func (b *Bus) raise(status hal.Status, data uint8) (uint8, bool, error) {
	b.irq.Lock()
	defer b.irq.Unlock()

	if !b.enabled || b.isr == nil {
		return 0, false, ErrNoAck
	}

	b.status = status
	b.rx = data
	b.tx, b.txArmed, b.rxAcked = 0, false, false
	b.raisedAt = b.clock.Now()

	b.isr()

	if status&hal.StatusRcvd != 0 && status&hal.StatusRNW == 0 && !b.rxAcked {
		b.mu.Lock()
		b.unacked++
		b.mu.Unlock()
	}
	if !b.txArmed {
		return 0, false, nil
	}
	b.mu.Lock()
	b.sent = append(b.sent, TxRecord{
		Byte:      b.tx,
		Status:    status,
		RaisedAt:  b.raisedAt,
		WrittenAt: b.txAt,
	})
	b.mu.Unlock()
	return b.tx, true, nil
}

// Inject raises a single interrupt with an arbitrary status and receive
// byte, outside any transaction framing. It returns the byte the handler
// armed, if any.
func (b *Bus) Inject(status hal.Status, data uint8) (uint8, bool, error) {
	b.master.Lock()
	defer b.master.Unlock()
	return b.raise(status, data)
}

// Write performs an EC block, byte or word write of data to the slave.
func (b *Bus) Write(data []byte) error {
	b.master.Lock()
	defer b.master.Unlock()

	addr := b.Address()
	if _, _, err := b.raise(hal.StartWrite, addr); err != nil {
		return err
	}
	for _, v := range data {
		if _, _, err := b.raise(hal.DataWrite, v); err != nil {
			return err
		}
	}
	_, _, err := b.raise(hal.EndWrite, 0)
	return err
}

// BlockRead performs the EC's pull of the AP's pending request: a write of
// the block read command followed by a repeated-start read of the size
// byte and as many bytes as it announces.
func (b *Bus) BlockRead() ([]byte, error) {
	return b.blockRead(-1)
}

// BlockReadPartial is BlockRead, but the master stops after n bytes
// whatever the size byte says.
func (b *Bus) BlockReadPartial(n int) ([]byte, error) {
	return b.blockRead(n)
}

func (b *Bus) blockRead(limit int) ([]byte, error) {
	b.master.Lock()
	defer b.master.Unlock()

	addr := b.Address()
	if _, _, err := b.raise(hal.StartWrite, addr); err != nil {
		return nil, err
	}
	if _, _, err := b.raise(hal.DataWrite, frame.BlockReadCommand); err != nil {
		return nil, err
	}
	first, ok, err := b.raise(hal.StartRead, addr|1)
	if err != nil {
		return nil, err
	}
	if !ok {
		_, _, _ = b.raise(hal.EndRead, 0)
		return nil, ErrNoAck
	}

	want := frame.RequestLen(first)
	if want > frame.MaxSize {
		want = frame.MaxSize
	}
	if limit >= 0 && limit < want {
		want = limit
	}

	buf := make([]byte, 0, frame.MaxSize)
	buf = append(buf, first)
	for len(buf) < want {
		v, ok, err := b.raise(hal.DataRead, 0)
		if err != nil {
			return buf, err
		}
		if !ok {
			break
		}
		buf = append(buf, v)
	}
	_, _, err = b.raise(hal.EndRead, 0)
	return buf, err
}
