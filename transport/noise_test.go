package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noisePair(t *testing.T) (*NoiseTransport, *NoiseTransport) {
	t.Helper()

	a, b := Pipe()

	initiator, err := NewNoiseTransport(a, true)
	require.NoError(t, err)
	responder, err := NewNoiseTransport(b, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- responder.Handshake(ctx)
	}()

	require.NoError(t, initiator.Handshake(ctx))
	require.NoError(t, <-done)

	return initiator, responder
}

func TestNoiseHandshakeEstablishesKeys(t *testing.T) {
	initiator, responder := noisePair(t)

	require.True(t, initiator.established())
	require.True(t, responder.established())
	require.NotEmpty(t, initiator.PeerStatic())
	require.NotEmpty(t, responder.PeerStatic())
}

func TestNoiseRoundTrip(t *testing.T) {
	initiator, responder := noisePair(t)

	var gotText, gotBinary []byte
	responder.OnText(func(data []byte) { gotText = data })
	responder.OnBinary(func(data []byte) { gotBinary = data })

	require.NoError(t, initiator.SendText([]byte(`{"type":"end"}`)))
	require.NoError(t, initiator.SendBinary([]byte{0xde, 0xad, 0xbe, 0xef}))

	require.Equal(t, `{"type":"end"}`, string(gotText))
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, gotBinary)

	// And the reverse direction.
	var reply []byte
	initiator.OnText(func(data []byte) { reply = data })
	require.NoError(t, responder.SendText([]byte("ok")))
	require.Equal(t, "ok", string(reply))
}

func TestNoiseFramesAreEncryptedOnTheWire(t *testing.T) {
	a, b := Pipe()

	var wire [][]byte
	// Observe ciphertext by wrapping only one side's view of the channel.
	initiator, err := NewNoiseTransport(&tapTransport{Transport: a, frames: &wire}, true)
	require.NoError(t, err)
	responder, err := NewNoiseTransport(b, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- responder.Handshake(ctx) }()
	require.NoError(t, initiator.Handshake(ctx))
	require.NoError(t, <-done)

	secret := []byte("attack at dawn, chunk by chunk")
	require.NoError(t, initiator.SendText(secret))

	require.NotEmpty(t, wire)
	for _, frame := range wire {
		require.False(t, bytes.Contains(frame, secret), "plaintext leaked onto the wire")
	}
}

func TestNoiseSendBeforeHandshakeFails(t *testing.T) {
	a, _ := Pipe()
	nt, err := NewNoiseTransport(a, true)
	require.NoError(t, err)

	err = nt.SendText([]byte("too soon"))
	require.True(t, errors.Is(err, ErrHandshakeRequired))
}

func TestNoiseHandshakeTimeout(t *testing.T) {
	a, _ := Pipe()
	nt, err := NewNoiseTransport(a, true)
	require.NoError(t, err)

	// No responder: the initiator's wait for message 2 must respect the
	// context instead of stalling forever.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = nt.Handshake(ctx)
	require.True(t, errors.Is(err, ErrHandshakeFailed))
}

// tapTransport records every binary frame it sends.
type tapTransport struct {
	Transport
	frames *[][]byte
}

func (tt *tapTransport) SendBinary(data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)
	*tt.frames = append(*tt.frames, frame)
	return tt.Transport.SendBinary(data)
}
