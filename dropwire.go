// Package dropwire implements secure peer-to-peer transfer of a single
// file over an already-established ordered, reliable, bidirectional
// message channel.
//
// The two parties exchange ephemeral P-256 keys, derive a shared
// session key, and stream the file as independently encrypted 64 KiB
// chunks, verifying a SHA-256 content digest after reassembly. The
// channel itself — connection negotiation, traversal, rendezvous — is
// the caller's concern; anything implementing transport.Transport works.
//
// Example:
//
//	a, b := transport.Pipe()
//	receiver, _ := dropwire.NewReceiver(b)
//	if err := dropwire.Send(ctx, a, "notes.txt", content); err != nil {
//	    log.Fatal(err)
//	}
//	got, _ := receiver.Bytes()
package dropwire

import (
	"context"

	"github.com/opd-ai/dropwire/transfer"
	"github.com/opd-ai/dropwire/transport"
)

// Send transfers one file over the transport from the initiating side.
// It blocks until the stream has been fully sent or the session fails;
// cancelling the context aborts a stalled handshake.
func Send(ctx context.Context, t transport.Transport, fileName string, data []byte) error {
	sender, err := transfer.NewSender(t, fileName, data)
	if err != nil {
		return err
	}
	return sender.Run(ctx)
}

// NewReceiver prepares the responder side of a transfer on the
// transport. The returned receiver reacts to inbound frames; use
// Receiver.Wait or Receiver.OnComplete to observe completion and
// Receiver.Bytes to retrieve the verified output.
func NewReceiver(t transport.Transport) (*transfer.Receiver, error) {
	return transfer.NewReceiver(t)
}
