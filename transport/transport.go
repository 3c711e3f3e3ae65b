// Package transport defines the channel boundary for the transfer protocol.
//
// The protocol core assumes an already-established ordered, reliable,
// bidirectional channel carrying UTF-8 text frames and raw binary frames.
// This package provides the interface for such a channel, an in-memory
// implementation for tests and local bridging, and a Noise-secured
// wrapper for untrusted signaling paths.
package transport

import "errors"

// ErrTransportClosed indicates a send on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// TextHandler processes an inbound text frame.
type TextHandler func(data []byte)

// BinaryHandler processes an inbound binary frame.
type BinaryHandler func(data []byte)

// CloseHandler is invoked once when the transport closes. err is nil on
// an orderly close and non-nil on a channel failure.
type CloseHandler func(err error)

// Transport is one endpoint of an ordered, reliable, bidirectional
// channel. Implementations must deliver every frame sent while open
// exactly once, in order, with no interleaving between a text frame and
// the frame sent immediately after it.
//
// A transport must be dedicated to a single transfer session: the
// protocol's header/body pairing relies on no unrelated traffic sharing
// the channel.
type Transport interface {
	// SendText sends a UTF-8 text frame.
	SendText(data []byte) error

	// SendBinary sends a raw binary frame.
	SendBinary(data []byte) error

	// OnText registers the handler for inbound text frames.
	OnText(handler TextHandler)

	// OnBinary registers the handler for inbound binary frames.
	OnBinary(handler BinaryHandler)

	// OnClose registers the handler for channel close or failure.
	OnClose(handler CloseHandler)

	// Close shuts down the channel. Closing is the only abort mechanism
	// for an in-progress session.
	Close() error
}
