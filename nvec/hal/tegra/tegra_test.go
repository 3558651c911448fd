//go:build linux

package tegra

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softnvec/nvec/hal"
	"github.com/ardnew/softnvec/pkg"
)

// registers returns a word-aligned fake register window.
func registers() ([]uint32, *Slave) {
	words := make([]uint32, RegWindow/4)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), RegWindow)
	return words, newMapped(mem)
}

// =============================================================================
// Register Programming Tests
// =============================================================================

func TestProgram(t *testing.T) {
	words, s := registers()
	s.program(0x8a)

	tests := []struct {
		name string
		off  int
		want uint32
	}{
		{"cnfg", RegCnfg, CnfgNewMasterSFM | CnfgPacketModeEn | Debounce<<CnfgDebounceCntShift},
		{"sl_cnfg", RegSlCnfg, SlCnfgNewSl},
		{"delay", RegSlDelayCount, DelayCount},
		{"addr1", RegSlAddr1, 0x45},
		{"addr2", RegSlAddr2, 0},
	}
	for _, tt := range tests {
		if got := words[tt.off/4]; got != tt.want {
			t.Errorf("%s = %#x, want %#x", tt.name, got, tt.want)
		}
	}
}

func TestResetSlave(t *testing.T) {
	words, s := registers()
	s.address = 0x8a
	words[RegSlAddr1/4] = 0

	if err := s.ResetSlave(); err != nil {
		t.Fatalf("ResetSlave() error = %v", err)
	}
	if got := words[RegSlCnfg/4]; got != SlCnfgNewSl {
		t.Errorf("sl_cnfg = %#x, want %#x", got, SlCnfgNewSl)
	}
	if got := words[RegSlAddr1/4]; got != 0x45 {
		t.Errorf("addr1 = %#x, want 0x45", got)
	}

	if err := New("").ResetSlave(); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("ResetSlave() unmapped error = %v, want ErrNotRunning", err)
	}
}

func TestDataRegisters(t *testing.T) {
	words, s := registers()

	words[RegSlStatus/4] = uint32(hal.StartWrite) | 1<<8
	if got := s.Status(); got != hal.StartWrite {
		t.Errorf("Status() = %v, want %v", got, hal.StartWrite)
	}

	words[RegSlRcvd/4] = 0x1a7
	if got := s.ReadRx(); got != 0xa7 {
		t.Errorf("ReadRx() = %#x, want 0xa7", got)
	}

	s.AckRx()
	if got := words[RegSlRcvd/4]; got != 0 {
		t.Errorf("after AckRx() rcvd = %#x, want 0", got)
	}

	s.WriteTx(0x02)
	if got := words[RegSlRcvd/4]; got != 0x02 {
		t.Errorf("after WriteTx() rcvd = %#x, want 0x02", got)
	}
}

func TestStartErrors(t *testing.T) {
	s := New("")
	if err := s.Start(0x8a, nil); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Start(nil) error = %v, want ErrInvalidParameter", err)
	}
	if err := s.Start(0x8a, func() {}); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("Start() before Init error = %v, want ErrNotRunning", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() unopened error = %v", err)
	}
}

func TestInitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New("").Init(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Init() error = %v, want Canceled", err)
	}
}

// =============================================================================
// sysfs Tests
// =============================================================================

func fixture(t *testing.T, entries map[string][2]string) {
	t.Helper()
	root := t.TempDir()
	for name, attrs := range entries {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Join(dir, "maps", "map0"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "name"), []byte(attrs[0]+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if attrs[1] != "" {
			size := filepath.Join(dir, "maps", "map0", "size")
			if err := os.WriteFile(size, []byte(attrs[1]+"\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}

	old := sysfsRoot
	sysfsRoot = root
	t.Cleanup(func() { sysfsRoot = old })
}

func TestFindUIO(t *testing.T) {
	fixture(t, map[string][2]string{
		"uio0": {"gpio-keys", "0x1000"},
		"uio1": {DefaultDeviceName, "0x100"},
		"uio2": {"tiny", "0x10"},
		"uio3": {"nosize", ""},
	})

	tests := []struct {
		device  string
		name    string
		size    int
		wantErr bool
	}{
		{device: DefaultDeviceName, name: "uio1", size: 0x100},
		{device: "uio1", name: "uio1", size: 0x100},
		{device: "/dev/uio0", name: "uio0", size: 0x1000},
		{device: "uio3", name: "uio3", size: RegWindow},
		{device: "uio2", wantErr: true},
		{device: "missing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			got, err := findUIO(tt.device)
			if tt.wantErr {
				if err == nil {
					t.Errorf("findUIO() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("findUIO() error = %v", err)
			}
			if got.name != tt.name || got.mapSize != tt.size || got.devPath != DevfsPrefix+tt.name {
				t.Errorf("findUIO() = %+v, want %s size %#x", got, tt.name, tt.size)
			}
		})
	}
}

func TestFindUIOMissingLabel(t *testing.T) {
	fixture(t, map[string][2]string{"uio0": {"other", "0x1000"}})
	if _, err := findUIO(DefaultDeviceName); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("findUIO() error = %v, want ErrNotExist", err)
	}
}

// =============================================================================
// poller Tests
// =============================================================================

func TestPoller(t *testing.T) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	p, err := newPoller(fds[0])
	if err != nil {
		t.Fatalf("newPoller() error = %v", err)
	}
	defer p.close()

	if _, err := unix.Write(fds[1], []byte{1}); err != nil {
		t.Fatal(err)
	}
	ready, err := p.wait()
	if err != nil || !ready {
		t.Fatalf("wait() = %v, %v, want true", ready, err)
	}

	var buf [1]byte
	if _, err := unix.Read(fds[0], buf[:]); err != nil {
		t.Fatal(err)
	}

	if err := p.wake(); err != nil {
		t.Fatalf("wake() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		ready, err := p.wait()
		if err != nil || ready {
			t.Errorf("wait() after wake = %v, %v, want false", ready, err)
		}
	}

	if err := p.close(); err != nil {
		t.Errorf("close() error = %v", err)
	}
	if p.epfd != -1 || p.wakefd != -1 {
		t.Errorf("close() left descriptors %d/%d", p.epfd, p.wakefd)
	}
}
