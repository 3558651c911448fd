//go:build linux

package tegra

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softnvec/nvec/hal"
	"github.com/ardnew/softnvec/pkg"
)

// Slave drives a Tegra I2C controller in slave mode through a UIO device.
// The controller's register window is mapped into the process and its
// interrupt is delivered by reading the UIO device node.
type Slave struct {
	device string

	// irq is held while the handler runs and between DisableIRQ and
	// EnableIRQ.
	irq sync.Mutex
	isr func()

	mu      sync.Mutex
	fd      int
	mem     []byte
	poll    *poller
	done    chan struct{}
	address uint8
	running bool
}

// New returns a slave for device: a UIO device node, a sysfs entry name or
// the UIO label. Nothing is opened until Init.
func New(device string) *Slave {
	if device == "" {
		device = DefaultDeviceName
	}
	return &Slave{device: device, fd: -1}
}

// newMapped returns a slave operating on mem instead of a mapped device.
func newMapped(mem []byte) *Slave {
	return &Slave{fd: -1, mem: mem}
}

// =============================================================================
// Register Access
// =============================================================================

func (s *Slave) reg(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[off]))
}

func (s *Slave) read(off int) uint32 {
	return atomic.LoadUint32(s.reg(off))
}

func (s *Slave) write(off int, v uint32) {
	atomic.StoreUint32(s.reg(off), v)
}

// program puts the controller in slave mode answering address.
func (s *Slave) program(address uint8) {
	s.write(RegCnfg, CnfgNewMasterSFM|CnfgPacketModeEn|Debounce<<CnfgDebounceCntShift)
	s.write(RegSlCnfg, SlCnfgNewSl)
	s.write(RegSlDelayCount, DelayCount)
	s.write(RegSlAddr1, uint32(address>>1))
	s.write(RegSlAddr2, 0)
}

// quiesce makes the controller NACK everything.
func (s *Slave) quiesce() {
	s.write(RegSlCnfg, SlCnfgNewSl|SlCnfgNack)
}

// =============================================================================
// hal.SlaveHAL
// =============================================================================

// Init opens the UIO device and maps the register window.
func (s *Slave) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem != nil {
		return nil
	}

	dev, err := findUIO(s.device)
	if err != nil {
		return err
	}

	fd, err := unix.Open(dev.devPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", dev.devPath, err)
	}
	mem, err := unix.Mmap(fd, 0, dev.mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("mmap %s: %w", dev.devPath, err)
	}

	s.fd, s.mem = fd, mem
	pkg.LogDebug(pkg.ComponentHAL, "uio device mapped",
		"device", dev.devPath, "label", dev.label, "size", dev.mapSize)
	return nil
}

// Start programs the slave address, unmasks the interrupt and starts
// delivering it to isr.
func (s *Slave) Start(address uint8, isr func()) error {
	if isr == nil {
		return pkg.ErrInvalidParameter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return pkg.ErrAlreadyRunning
	}
	if s.mem == nil || s.fd < 0 {
		return pkg.ErrNotRunning
	}

	p, err := newPoller(s.fd)
	if err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	s.irq.Lock()
	s.isr = isr
	s.address = address
	s.program(address)
	s.irq.Unlock()

	if err := s.unmask(); err != nil {
		p.close()
		return err
	}

	s.poll = p
	s.done = make(chan struct{})
	s.running = true
	go s.loop(p, s.done)

	pkg.LogDebug(pkg.ComponentHAL, "slave enabled", "address", address)
	return nil
}

// Stop disables the slave, stops interrupt delivery and releases the
// device.
func (s *Slave) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.irq.Lock()
		s.quiesce()
		s.isr = nil
		s.irq.Unlock()

		if err := s.poll.wake(); err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "poller wake failed", "error", err)
		}
		<-s.done
		s.poll.close()
		s.poll = nil
		s.running = false
	}

	var err error
	if s.mem != nil && s.fd >= 0 {
		err = unix.Munmap(s.mem)
		s.mem = nil
	}
	if s.fd >= 0 {
		if cerr := unix.Close(s.fd); err == nil {
			err = cerr
		}
		s.fd = -1
	}
	return err
}

// Status implements hal.SlaveHAL.
func (s *Slave) Status() hal.Status {
	return hal.Status(s.read(RegSlStatus)) & hal.StatusMask
}

// ReadRx implements hal.SlaveHAL.
func (s *Slave) ReadRx() uint8 {
	return uint8(s.read(RegSlRcvd))
}

// AckRx implements hal.SlaveHAL.
func (s *Slave) AckRx() {
	s.write(RegSlRcvd, 0)
}

// WriteTx implements hal.SlaveHAL.
func (s *Slave) WriteTx(v uint8) {
	s.write(RegSlRcvd, uint32(v))
}

// ResetSlave cycles the controller out of and back into slave mode.
// Callers hold the IRQ off.
func (s *Slave) ResetSlave() error {
	if s.mem == nil {
		return pkg.ErrNotRunning
	}
	s.quiesce()
	s.program(s.address)
	return nil
}

// DisableIRQ implements hal.SlaveHAL.
func (s *Slave) DisableIRQ() { s.irq.Lock() }

// EnableIRQ implements hal.SlaveHAL.
func (s *Slave) EnableIRQ() { s.irq.Unlock() }

// =============================================================================
// Interrupt Delivery
// =============================================================================

// loop runs the handler once per interrupt. The goroutine keeps its OS
// thread so the handler is not migrated mid-transaction.
func (s *Slave) loop(p *poller, done chan<- struct{}) {
	defer close(done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		ready, err := p.wait()
		if err != nil {
			pkg.LogError(pkg.ComponentHAL, "interrupt wait failed", "error", err)
			return
		}
		if !ready {
			return
		}

		if _, err := s.count(); err != nil {
			pkg.LogError(pkg.ComponentHAL, "interrupt read failed", "error", err)
			return
		}

		s.irq.Lock()
		if s.isr != nil {
			s.isr()
		}
		s.irq.Unlock()

		if err := s.unmask(); err != nil {
			pkg.LogError(pkg.ComponentHAL, "interrupt unmask failed", "error", err)
			return
		}
	}
}

// count consumes a pending interrupt, returning the total delivered.
func (s *Slave) count() (uint32, error) {
	var buf [4]byte
	if _, err := unix.Read(s.fd, buf[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(buf[:]), nil
}

// unmask re-enables the interrupt through the UIO irqcontrol write.
func (s *Slave) unmask() error {
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], 1)
	_, err := unix.Write(s.fd, buf[:])
	return err
}

var _ hal.SlaveHAL = (*Slave)(nil)
