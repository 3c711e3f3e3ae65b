package transport

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// PipeEndpoint is one side of an in-memory transport pair created by
// Pipe. Frames are delivered synchronously to the peer's handler in the
// sender's goroutine, which guarantees in-order, exactly-once delivery.
type PipeEndpoint struct {
	mu            sync.RWMutex
	peer          *PipeEndpoint
	textHandler   TextHandler
	binaryHandler BinaryHandler
	closeHandler  CloseHandler
	closed        bool
}

// Pipe creates a connected pair of in-memory transport endpoints.
// Everything sent on one endpoint is delivered to the other's handlers
// in send order. Both tests and callers bridging the protocol onto their
// own channel use this as the reference Transport behavior.
func Pipe() (*PipeEndpoint, *PipeEndpoint) {
	a := &PipeEndpoint{}
	b := &PipeEndpoint{}
	a.peer = b
	b.peer = a
	return a, b
}

// SendText delivers a text frame to the peer endpoint.
func (p *PipeEndpoint) SendText(data []byte) error {
	return p.send(data, true)
}

// SendBinary delivers a binary frame to the peer endpoint.
func (p *PipeEndpoint) SendBinary(data []byte) error {
	return p.send(data, false)
}

func (p *PipeEndpoint) send(data []byte, text bool) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrTransportClosed
	}

	// Deliver a copy so the receiver owns its frame.
	frame := make([]byte, len(data))
	copy(frame, data)

	return p.peer.deliver(frame, text)
}

func (p *PipeEndpoint) deliver(frame []byte, text bool) error {
	p.mu.RLock()
	closed := p.closed
	var handler func([]byte)
	if text {
		handler = p.textHandler
	} else {
		handler = p.binaryHandler
	}
	p.mu.RUnlock()

	if closed {
		return ErrTransportClosed
	}
	if handler == nil {
		logrus.WithFields(logrus.Fields{
			"function":   "deliver",
			"frame_text": text,
			"frame_len":  len(frame),
		}).Warn("Dropping frame: no handler registered")
		return nil
	}

	// The handler runs in the sender's goroutine, outside the endpoint
	// lock, so it may send frames back through the pipe.
	handler(frame)
	return nil
}

// OnText registers the handler for inbound text frames.
func (p *PipeEndpoint) OnText(handler TextHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.textHandler = handler
}

// OnBinary registers the handler for inbound binary frames.
func (p *PipeEndpoint) OnBinary(handler BinaryHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.binaryHandler = handler
}

// OnClose registers the handler invoked when either endpoint closes.
func (p *PipeEndpoint) OnClose(handler CloseHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeHandler = handler
}

// Close shuts down both endpoints of the pipe. Each side's close handler
// fires once with a nil error.
func (p *PipeEndpoint) Close() error {
	p.closeLocal()
	p.peer.closeLocal()
	return nil
}

func (p *PipeEndpoint) closeLocal() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	handler := p.closeHandler
	p.mu.Unlock()

	if handler != nil {
		handler(nil)
	}
}
