//go:build linux

package tegra

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Poller
// =============================================================================

// poller waits for interrupts on a UIO file descriptor. An eventfd is
// registered alongside it so the wait can be interrupted for shutdown.
type poller struct {
	epfd   int
	wakefd int
	fd     int
}

// newPoller creates a poller watching fd.
func newPoller(fd int) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &poller{epfd: epfd, wakefd: wakefd, fd: fd}
	for _, watched := range []int{wakefd, fd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(watched)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, watched, &ev); err != nil {
			p.close()
			return nil, err
		}
	}
	return p, nil
}

// wait blocks until the watched descriptor is readable, returning true, or
// until wake is called, returning false.
func (p *poller) wait() (bool, error) {
	var events [2]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, err
		}

		ready := false
		for i := 0; i < n; i++ {
			switch int(events[i].Fd) {
			case p.wakefd:
				return false, nil
			case p.fd:
				ready = true
			}
		}
		if ready {
			return true, nil
		}
	}
}

// wake interrupts wait. The eventfd stays readable, so every later wait
// returns false as well.
func (p *poller) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	return err
}

// close releases the epoll instance and the eventfd. The watched
// descriptor belongs to the caller.
func (p *poller) close() error {
	var err error
	if p.wakefd >= 0 {
		err = unix.Close(p.wakefd)
		p.wakefd = -1
	}
	if p.epfd >= 0 {
		if cerr := unix.Close(p.epfd); err == nil {
			err = cerr
		}
		p.epfd = -1
	}
	return err
}
