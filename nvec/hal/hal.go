package hal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Status is a snapshot of the I2C slave controller's status register.
type Status uint32

// Status register bits (Tegra I2C_SL_STATUS).
const (
	StatusRNW      Status = 1 << 1 // Master is reading from the slave
	StatusRcvd     Status = 1 << 2 // Byte received together with a start condition
	StatusIRQ      Status = 1 << 3 // Interrupt pending
	StatusEndTrans Status = 1 << 4 // Stop condition seen

	// StatusMask covers every bit the protocol engine interprets.
	StatusMask = StatusRNW | StatusRcvd | StatusIRQ | StatusEndTrans
)

// Flag combinations seen during well-formed transactions.
const (
	// StartWrite: address byte of a master write.
	StartWrite = StatusIRQ | StatusRcvd
	// StartRead: address byte of a master read (repeated start).
	StartRead = StatusIRQ | StatusRNW | StatusRcvd
	// DataWrite: a data byte written by the master.
	DataWrite = StatusIRQ
	// DataRead: the master wants the next byte.
	DataRead = StatusIRQ | StatusRNW
	// EndWrite: stop after a master write.
	EndWrite = StatusIRQ | StatusEndTrans
	// EndRead: stop after a master read.
	EndRead = StatusIRQ | StatusRNW | StatusEndTrans
)

// Has reports whether all bits in mask are set.
func (s Status) Has(mask Status) bool {
	return s&mask == mask
}

// String returns the set bits by name.
func (s Status) String() string {
	if s == 0 {
		return "0"
	}
	var names []string
	for _, b := range []struct {
		bit  Status
		name string
	}{
		{StatusIRQ, "IRQ"},
		{StatusRcvd, "RCVD"},
		{StatusRNW, "RNW"},
		{StatusEndTrans, "END"},
	} {
		if s&b.bit != 0 {
			names = append(names, b.name)
		}
	}
	if rest := s &^ StatusMask; rest != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// SlaveHAL abstracts the I2C slave controller the EC talks to.
//
// The controller raises one interrupt per bus event. The handler passed to
// Start is never re-entered: an implementation delivers interrupts one at
// a time and DisableIRQ waits for a running handler to return.
type SlaveHAL interface {
	// Init prepares the controller (clocks, register window).
	Init(ctx context.Context) error

	// Start programs the 8-bit slave address, installs the interrupt
	// handler and enables the slave.
	Start(address uint8, isr func()) error

	// Stop disables the slave and stops delivering interrupts.
	Stop() error

	// Status reads the status register. Only meaningful inside the handler.
	Status() Status

	// ReadRx reads the byte received with the current event.
	ReadRx() uint8

	// AckRx acknowledges a byte received with a start condition.
	AckRx()

	// WriteTx arms the next byte the master will read.
	WriteTx(b uint8)

	// ResetSlave cycles the slave controller through disable and enable,
	// abandoning any transaction in progress.
	ResetSlave() error

	// DisableIRQ masks the interrupt and waits for a running handler to
	// return.
	DisableIRQ()

	// EnableIRQ unmasks the interrupt.
	EnableIRQ()
}

// Clock supplies monotonic time to the protocol engine.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }
