package frame

import (
	"github.com/ardnew/softnvec/pkg"
)

// Event header byte layout.
//
//	bit  7..6  length class
//	bit     5  event flag (clear for command responses)
//	bit     4  error flag, first payload byte is a status code
//	bit  3..0  event type
const (
	EventFlag      uint8 = 0x20
	EventErrorFlag uint8 = 0x10
	EventTypeMask  uint8 = 0x0F

	lengthShift = 6
	lengthMask  = 0x03
)

// Length is an event's length class.
type Length uint8

// Length classes.
const (
	Length2     Length = iota // [header][payload]
	Length3                   // [header][payload][payload]
	LengthVar                 // [header][length][payload...]
	lengthSpare               // reserved, decoded as LengthVar
)

// String returns the length class name.
func (l Length) String() string {
	switch l {
	case Length2:
		return "2-byte"
	case Length3:
		return "3-byte"
	case LengthVar:
		return "variable"
	default:
		return "reserved"
	}
}

// Event types.
const (
	EventKeyboard uint8 = 0x00
	EventPS2      uint8 = 0x01
	EventSystem   uint8 = 0x02
	EventBattery  uint8 = 0x03
	EventGPIO     uint8 = 0x04
)

// IsEvent reports whether a frame starting with header is an event.
func IsEvent(header uint8) bool {
	return header&EventFlag != 0
}

// LengthClass extracts the length class from an event header.
func LengthClass(header uint8) Length {
	l := Length(header>>lengthShift) & lengthMask
	if l == lengthSpare {
		return LengthVar
	}
	return l
}

// EventHeader builds an event header byte.
func EventHeader(typ uint8, length Length, hasStatus bool) uint8 {
	h := EventFlag | uint8(length&lengthMask)<<lengthShift | typ&EventTypeMask
	if hasStatus {
		h |= EventErrorFlag
	}
	return h
}

// Limit returns the number of bytes a frame starting with header may
// carry once its second byte is known. Fixed-size events are bounded by
// their class; responses and variable events by their length byte.
func Limit(header, second uint8) int {
	if IsEvent(header) {
		switch LengthClass(header) {
		case Length2:
			return 2
		case Length3:
			return 3
		}
	}
	n := int(second) + 2
	if n > MaxSize {
		n = MaxSize
	}
	return n
}

// EventView is a parsed event frame. Payload aliases the frame and
// excludes the status byte.
type EventView struct {
	Header    uint8
	Type      uint8
	Length    Length
	HasStatus bool
	Status    uint8
	Payload   []byte
}

// ParseEvent decodes an event frame into out without allocating. When the
// frame is shorter than its class requires, out holds what arrived and
// ErrFrameTooShort is returned.
func ParseEvent(frame []byte, out *EventView) error {
	if len(frame) == 0 {
		return pkg.ErrFrameTooShort
	}
	h := frame[0]
	if !IsEvent(h) {
		return pkg.ErrProtocol
	}
	*out = EventView{
		Header:    h,
		Type:      h & EventTypeMask,
		Length:    LengthClass(h),
		HasStatus: h&EventErrorFlag != 0,
	}

	var err error
	var payload []byte
	switch out.Length {
	case Length2, Length3:
		want := 2
		if out.Length == Length3 {
			want = 3
		}
		end := want
		if len(frame) < want {
			end, err = len(frame), pkg.ErrFrameTooShort
		}
		payload = frame[1:end]
	default:
		if len(frame) < 2 {
			return pkg.ErrFrameTooShort
		}
		end := int(frame[1]) + 2
		if len(frame) < end {
			end, err = len(frame), pkg.ErrFrameTooShort
		}
		payload = frame[2:end]
	}

	if out.HasStatus && len(payload) > 0 {
		out.Status = payload[0]
		payload = payload[1:]
	}
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}
	out.Payload = payload
	return err
}

// EncodeEvent writes an event frame into buf. The length class is chosen
// from the payload size unless variable is set: one byte selects Length2,
// two bytes Length3. A status byte, when present, counts toward the
// payload size.
func EncodeEvent(buf []byte, typ uint8, status *uint8, payload []byte, variable bool) (int, error) {
	body := len(payload)
	if status != nil {
		body++
	}
	if body > MaxPayload {
		return 0, pkg.ErrPayloadTooLarge
	}

	length := LengthVar
	if !variable {
		switch body {
		case 1:
			length = Length2
		case 2:
			length = Length3
		}
	}

	n := 1 + body
	if length == LengthVar {
		n++
	}
	if len(buf) < n {
		return 0, pkg.ErrBufferTooSmall
	}

	buf[0] = EventHeader(typ, length, status != nil)
	i := 1
	if length == LengthVar {
		buf[i] = uint8(body)
		i++
	}
	if status != nil {
		buf[i] = *status
		i++
	}
	copy(buf[i:], payload)
	return n, nil
}
