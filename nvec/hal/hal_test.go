package hal

import (
	"testing"
	"time"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{0, "0"},
		{StartWrite, "IRQ|RCVD"},
		{StartRead, "IRQ|RCVD|RNW"},
		{DataWrite, "IRQ"},
		{EndRead, "IRQ|RNW|END"},
		{StatusIRQ | 1<<7, "IRQ|0x80"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%#x).String() = %q, want %q", uint32(tt.status), got, tt.want)
		}
	}
}

func TestStatusHas(t *testing.T) {
	if !StartRead.Has(StatusRNW | StatusRcvd) {
		t.Error("StartRead should have RNW|RCVD")
	}
	if DataWrite.Has(StatusRNW) {
		t.Error("DataWrite should not have RNW")
	}
}

func TestSystemClock(t *testing.T) {
	var c Clock = SystemClock{}
	a := c.Now()
	time.Sleep(time.Millisecond)
	if b := c.Now(); !b.After(a) {
		t.Errorf("clock did not advance: %v then %v", a, b)
	}
}
