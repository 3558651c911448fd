package frame

import (
	"github.com/ardnew/softnvec/pkg"
)

// Frame geometry.
const (
	// MaxPayload is the largest payload carried by a request, response or event.
	MaxPayload = 32

	// HeaderSize is the response header length: cmd, size, subcmd, status.
	HeaderSize = 4

	// MaxSize is the largest frame on the wire.
	MaxSize = MaxPayload + HeaderSize

	// RequestOverhead is the number of bytes counted by a request's size
	// byte in addition to the payload (cmd and subcmd).
	RequestOverhead = 2
)

// BlockReadCommand is the SMBus command byte the EC writes before a
// repeated-start read to pull the AP's pending request.
const BlockReadCommand uint8 = 0x01

// Fill is sent when the master reads past the end of a request. It
// releases SDA.
const Fill uint8 = 0xFF

// Command categories.
const (
	CmdSystem   uint8 = 0x01
	CmdBattery  uint8 = 0x02
	CmdGPIO     uint8 = 0x03
	CmdSleep    uint8 = 0x04
	CmdKeyboard uint8 = 0x05
	CmdPS2      uint8 = 0x06
	CmdControl  uint8 = 0x07
	CmdOEM0     uint8 = 0x0d
)

// CmdSleep subcommands.
const (
	SleepGlobalEvents uint8 = 0x00 // payload: 1 byte, non-zero enables event reporting
	SleepAPPowerDown  uint8 = 0x01
	SleepAPSuspend    uint8 = 0x02
)

// CmdControl subcommands.
const (
	ControlReset              uint8 = 0x00
	ControlSelfTest           uint8 = 0x01
	ControlNoop               uint8 = 0x02
	ControlGetSpecVersion     uint8 = 0x10
	ControlGetFirmwareVersion uint8 = 0x15
)

// CmdSystem subcommands.
const (
	SystemGetStatus         uint8 = 0x00
	SystemConfigureEvents   uint8 = 0x01
	SystemAckEvent          uint8 = 0x02
	SystemConfigureWakeMask uint8 = 0xfd
)

// Noop is the request sent when the EC pulls while nothing is queued.
var Noop = [3]byte{RequestOverhead, CmdControl, ControlNoop}

// RequestLen returns the number of bytes on the wire for a request whose
// first (size) byte is size.
func RequestLen(size uint8) int {
	return int(size) + 1
}

// EncodeRequest writes [size][cmd][subcmd][payload...] into buf and
// returns the number of bytes written.
func EncodeRequest(buf []byte, cmd, subcmd uint8, payload []byte) (int, error) {
	if len(payload) > MaxPayload {
		return 0, pkg.ErrPayloadTooLarge
	}
	n := len(payload) + RequestOverhead + 1
	if len(buf) < n {
		return 0, pkg.ErrBufferTooSmall
	}
	buf[0] = uint8(len(payload) + RequestOverhead)
	buf[1] = cmd
	buf[2] = subcmd
	copy(buf[3:], payload)
	return n, nil
}

// DecodeRequest splits a request frame. The returned payload aliases frame.
func DecodeRequest(frame []byte) (cmd, subcmd uint8, payload []byte, err error) {
	if len(frame) < RequestOverhead+1 {
		return 0, 0, nil, pkg.ErrFrameTooShort
	}
	size := int(frame[0])
	if size < RequestOverhead || size-RequestOverhead > MaxPayload {
		return 0, 0, nil, pkg.ErrProtocol
	}
	if len(frame) < size+1 {
		return 0, 0, nil, pkg.ErrFrameTooShort
	}
	return frame[1], frame[2], frame[3 : size+1], nil
}

// Response is a decoded command response. Payload aliases the frame.
type Response struct {
	Command    uint8
	Subcommand uint8
	Status     pkg.Status
	Payload    []byte
}

// EncodeResponse writes [cmd][size][subcmd][status][payload...] into buf.
func EncodeResponse(buf []byte, cmd, subcmd uint8, status pkg.Status, payload []byte) (int, error) {
	if len(payload) > MaxPayload {
		return 0, pkg.ErrPayloadTooLarge
	}
	n := len(payload) + HeaderSize
	if len(buf) < n {
		return 0, pkg.ErrBufferTooSmall
	}
	buf[0] = cmd
	buf[1] = uint8(len(payload) + 2)
	buf[2] = subcmd
	buf[3] = uint8(status)
	copy(buf[4:], payload)
	return n, nil
}

// DecodeResponse parses a response frame into out.
func DecodeResponse(frame []byte, out *Response) error {
	if len(frame) < HeaderSize {
		return pkg.ErrFrameTooShort
	}
	size := int(frame[1])
	if size < 2 || size-2 > MaxPayload {
		return pkg.ErrProtocol
	}
	if len(frame) < size+2 {
		return pkg.ErrFrameTooShort
	}
	out.Command = frame[0]
	out.Subcommand = frame[2]
	out.Status = pkg.Status(frame[3])
	out.Payload = frame[4 : size+2]
	return nil
}
