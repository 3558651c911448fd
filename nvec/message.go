package nvec

import (
	"github.com/ardnew/softnvec/nvec/frame"
)

// Message is a command and its response sharing one buffer.
//
// Before transmission the buffer holds the request
// [size][cmd][subcmd][payload...]. Once the EC answers, the interrupt
// handler overwrites it with the response [cmd][size][subcmd][status]
// [payload...].
type Message struct {
	buf [frame.MaxSize]byte
	pos int // transmit cursor

	// completed is set by the interrupt handler, under the chip lock,
	// when the response has been copied in.
	completed bool
	done      chan struct{}
}

func newMessage(cmd, subcmd uint8, payload []byte) (*Message, error) {
	m := &Message{done: make(chan struct{}, 1)}
	if _, err := frame.EncodeRequest(m.buf[:], cmd, subcmd, payload); err != nil {
		return nil, err
	}
	return m, nil
}

// txLen returns the number of request bytes to stream.
func (m *Message) txLen() int {
	n := frame.RequestLen(m.buf[0])
	if n > frame.MaxSize {
		n = frame.MaxSize
	}
	return n
}

// Request returns the request frame.
func (m *Message) Request() []byte {
	return m.buf[:m.txLen()]
}

// Response decodes the response view. It is only meaningful once the
// message has completed.
func (m *Message) Response() (frame.Response, error) {
	var r frame.Response
	err := frame.DecodeResponse(m.buf[:], &r)
	return r, err
}
