package pkg

import (
	"errors"
	"fmt"
)

// NVEC protocol and driver errors.
var (
	// ErrTimeout indicates a command exhausted its retries without a response.
	ErrTimeout = errors.New("command timeout")

	// ErrIO indicates the EC rejected a command or the exchange failed.
	ErrIO = errors.New("i/o error")

	// ErrSuspended indicates a command was attempted while the chip is suspended.
	ErrSuspended = errors.New("device suspended")

	// ErrProtocol indicates a malformed frame.
	ErrProtocol = errors.New("protocol error")

	// ErrFrameTooShort indicates the frame is shorter than its header.
	ErrFrameTooShort = errors.New("frame too short")

	// ErrPayloadTooLarge indicates a payload exceeds the maximum message payload.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrAlreadyRunning indicates the chip is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the chip is not running.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrStopDispatch may be returned by an event handler to keep the
	// event from reaching handlers registered after it.
	ErrStopDispatch = errors.New("stop event dispatch")
)

// Status is the result code carried in the fourth byte of an EC response.
type Status uint8

// Status values reported by the EC.
const (
	StatusSuccess     Status = 0x00 // Command accepted and executed
	StatusUnsupported Status = 0x01 // Command category or subcommand unknown
	StatusBadParam    Status = 0x02 // Payload rejected
	StatusBusy        Status = 0x03 // EC cannot serve the command now
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnsupported:
		return "unsupported"
	case StatusBadParam:
		return "bad parameter"
	case StatusBusy:
		return "busy"
	default:
		return fmt.Sprintf("status 0x%02x", uint8(s))
	}
}

// Err returns nil for StatusSuccess and a *StatusError otherwise.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError reports a response whose status byte is not StatusSuccess.
// It matches ErrIO with errors.Is.
type StatusError struct {
	Command    uint8
	Subcommand uint8
	Status     Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ec command %02x/%02x failed: %v", e.Command, e.Subcommand, e.Status)
}

// Unwrap returns ErrIO.
func (e *StatusError) Unwrap() error {
	return ErrIO
}
