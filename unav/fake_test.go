package unav

import (
	"bytes"
	"os"
	"sync"
	"time"

	"github.com/antongulenko/unav/drive"
)

// fakeBoard is an in-memory motor board behind a Port. It answers every frame written to it.
type fakeBoard struct {
	mutex       sync.Mutex
	output      bytes.Buffer
	readTimeout time.Duration
	closed      bool

	received     []message
	measurements [2]Measurement

	dropResponses int  // Number of following requests that remain unanswered
	corrupt       int  // Number of following responses sent with a broken checksum
	nack          bool // Reject data messages
	swapWheels    bool // Answer measure requests with the other wheel
	noise         []byte
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{readTimeout: time.Millisecond}
}

func (f *fakeBoard) Write(data []byte) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	var decoder frameDecoder
	decoder.write(data)
	for {
		payload, err := decoder.next()
		if err != nil || payload == nil {
			break
		}
		msg, err := parseMessage(payload)
		if err != nil {
			break
		}
		f.received = append(f.received, msg)
		f.respond(msg)
	}
	return len(data), nil
}

func (f *fakeBoard) respond(req message) {
	if f.dropResponses > 0 {
		f.dropResponses--
		return
	}
	resp := message{kind: req.kind, command: req.command, wheel: req.wheel}
	switch req.option {
	case optionData:
		resp.option = optionAck
		if f.nack {
			resp.option = optionNack
		}
	case optionRequest:
		resp.option = optionData
		if f.swapWheels {
			resp.wheel = 1 - resp.wheel
		}
		resp.data = encode(f.measurements[resp.wheel])
	}
	frame, _ := encodeFrame(resp.payload())
	if f.corrupt > 0 {
		f.corrupt--
		frame[len(frame)-1] ^= 0x01
	}
	f.output.Write(f.noise)
	f.output.Write(frame)
}

func (f *fakeBoard) Read(b []byte) (int, error) {
	f.mutex.Lock()
	if f.closed {
		f.mutex.Unlock()
		return 0, os.ErrClosed
	}
	if f.output.Len() > 0 {
		defer f.mutex.Unlock()
		return f.output.Read(b)
	}
	timeout := f.readTimeout
	f.mutex.Unlock()
	time.Sleep(timeout)
	return 0, nil
}

func (f *fakeBoard) SetReadTimeout(t time.Duration) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.readTimeout = t
	return nil
}

func (f *fakeBoard) ResetInputBuffer() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.output.Reset()
	return nil
}

func (f *fakeBoard) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBoard) messages() []message {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]message(nil), f.received...)
}

func (f *fakeBoard) configure(fn func(f *fakeBoard)) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	fn(f)
}

var _ Port = new(fakeBoard)
var _ drive.Transport = NewBoard(new(fakeBoard))
