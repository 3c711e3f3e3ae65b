package transport

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
)

var (
	// ErrHandshakeRequired indicates a send before the Noise handshake
	// completed.
	ErrHandshakeRequired = errors.New("noise handshake not complete")

	// ErrHandshakeFailed indicates the Noise handshake could not complete.
	ErrHandshakeFailed = errors.New("noise handshake failed")
)

// Inner frame kinds tunneled through the underlying transport. Every
// wrapped frame travels as a binary frame on the underlying channel with
// a one-byte kind prefix, so ordering across text and binary is the
// underlying channel's ordering.
const (
	noiseFrameHandshake byte = 0x01
	noiseFrameText      byte = 0x02
	noiseFrameBinary    byte = 0x03
)

// NoiseTransport wraps an existing Transport with a Noise-XX handshake
// and per-frame encryption. The core protocol's key exchange is
// unauthenticated against an active interceptor on the signaling path;
// running it over a NoiseTransport gives the channel itself
// confidentiality and lets callers pin the peer's static key after the
// handshake.
type NoiseTransport struct {
	underlying Transport
	initiator  bool

	hsMu      sync.Mutex
	handshake *noise.HandshakeState
	inbound   chan []byte

	cipherMu   sync.Mutex
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState

	handlerMu     sync.RWMutex
	textHandler   TextHandler
	binaryHandler BinaryHandler
	closeHandler  CloseHandler

	peerStatic []byte
}

// NewNoiseTransport creates a Noise-XX wrapper around an open transport.
// The handshake does not run until Handshake is called; the two parties
// must agree out of band which side initiates (the transfer initiator
// normally initiates the handshake too).
func NewNoiseTransport(underlying Transport, initiator bool) (*NoiseTransport, error) {
	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

	staticKey, err := cipherSuite.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generating static key: %v", ErrHandshakeFailed, err)
	}

	state, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	nt := &NoiseTransport{
		underlying: underlying,
		initiator:  initiator,
		handshake:  state,
		inbound:    make(chan []byte, 4),
	}

	underlying.OnBinary(nt.handleFrame)
	underlying.OnText(func(data []byte) {
		logrus.WithFields(logrus.Fields{
			"function":  "NewNoiseTransport",
			"frame_len": len(data),
		}).Warn("Dropping unwrapped text frame on noise transport")
	})
	underlying.OnClose(func(err error) {
		nt.handlerMu.RLock()
		handler := nt.closeHandler
		nt.handlerMu.RUnlock()
		if handler != nil {
			handler(err)
		}
	})

	logrus.WithFields(logrus.Fields{
		"function":  "NewNoiseTransport",
		"initiator": initiator,
		"pattern":   "XX",
	}).Info("Created noise transport wrapper")

	return nt, nil
}

// Handshake runs the three-message XX exchange. Both sides must call it
// concurrently; it returns once transport keys are established or the
// context is done.
func (nt *NoiseTransport) Handshake(ctx context.Context) error {
	nt.hsMu.Lock()
	defer nt.hsMu.Unlock()

	if nt.established() {
		return nil
	}

	var err error
	if nt.initiator {
		err = nt.runInitiator(ctx)
	} else {
		err = nt.runResponder(ctx)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Handshake",
			"initiator": nt.initiator,
			"error":     err.Error(),
		}).Error("Noise handshake failed")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Handshake",
		"initiator": nt.initiator,
	}).Info("Noise handshake complete")

	return nil
}

func (nt *NoiseTransport) runInitiator(ctx context.Context) error {
	// -> e
	if err := nt.writeHandshakeMessage(); err != nil {
		return err
	}

	// <- e, ee, s, es
	if err := nt.readHandshakeMessage(ctx); err != nil {
		return err
	}

	// -> s, se — completes the handshake on the writer side.
	return nt.writeHandshakeMessage()
}

func (nt *NoiseTransport) runResponder(ctx context.Context) error {
	// <- e
	if err := nt.readHandshakeMessage(ctx); err != nil {
		return err
	}

	// -> e, ee, s, es
	if err := nt.writeHandshakeMessage(); err != nil {
		return err
	}

	// <- s, se — completes the handshake on the reader side.
	return nt.readHandshakeMessage(ctx)
}

func (nt *NoiseTransport) writeHandshakeMessage() error {
	msg, send, recv, err := nt.handshake.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if send != nil {
		nt.installCiphers(send, recv)
	}

	frame := append([]byte{noiseFrameHandshake}, msg...)
	if err := nt.underlying.SendBinary(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return nil
}

func (nt *NoiseTransport) readHandshakeMessage(ctx context.Context) error {
	select {
	case msg := <-nt.inbound:
		_, recv, send, err := nt.handshake.ReadMessage(nil, msg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
		if recv != nil {
			nt.installCiphers(send, recv)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, ctx.Err())
	}
}

func (nt *NoiseTransport) installCiphers(send, recv *noise.CipherState) {
	nt.cipherMu.Lock()
	nt.sendCipher = send
	nt.recvCipher = recv
	nt.cipherMu.Unlock()
	nt.peerStatic = nt.handshake.PeerStatic()
}

func (nt *NoiseTransport) established() bool {
	nt.cipherMu.Lock()
	defer nt.cipherMu.Unlock()
	return nt.sendCipher != nil && nt.recvCipher != nil
}

// PeerStatic returns the peer's static public key once the handshake has
// completed, for out-of-band pinning or fingerprint comparison.
func (nt *NoiseTransport) PeerStatic() []byte {
	return nt.peerStatic
}

// SendText encrypts and tunnels a text frame.
func (nt *NoiseTransport) SendText(data []byte) error {
	return nt.sendFrame(noiseFrameText, data)
}

// SendBinary encrypts and tunnels a binary frame.
func (nt *NoiseTransport) SendBinary(data []byte) error {
	return nt.sendFrame(noiseFrameBinary, data)
}

func (nt *NoiseTransport) sendFrame(kind byte, data []byte) error {
	nt.cipherMu.Lock()
	if nt.sendCipher == nil {
		nt.cipherMu.Unlock()
		return ErrHandshakeRequired
	}
	ciphertext, err := nt.sendCipher.Encrypt(nil, nil, data)
	nt.cipherMu.Unlock()
	if err != nil {
		return fmt.Errorf("encrypting frame: %w", err)
	}

	frame := append([]byte{kind}, ciphertext...)
	return nt.underlying.SendBinary(frame)
}

func (nt *NoiseTransport) handleFrame(data []byte) {
	if len(data) < 1 {
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
		}).Warn("Dropping empty frame on noise transport")
		return
	}

	kind, payload := data[0], data[1:]

	if kind == noiseFrameHandshake {
		select {
		case nt.inbound <- payload:
		default:
			logrus.WithFields(logrus.Fields{
				"function": "handleFrame",
			}).Warn("Dropping handshake message: queue full")
		}
		return
	}

	nt.cipherMu.Lock()
	if nt.recvCipher == nil {
		nt.cipherMu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
			"kind":     kind,
		}).Warn("Dropping data frame before handshake completion")
		return
	}
	plaintext, err := nt.recvCipher.Decrypt(nil, nil, payload)
	nt.cipherMu.Unlock()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
			"kind":     kind,
			"error":    err.Error(),
		}).Error("Dropping frame that failed noise decryption")
		return
	}

	nt.handlerMu.RLock()
	var handler func([]byte)
	switch kind {
	case noiseFrameText:
		handler = nt.textHandler
	case noiseFrameBinary:
		handler = nt.binaryHandler
	}
	nt.handlerMu.RUnlock()

	if handler == nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
			"kind":     kind,
		}).Warn("Dropping frame: no handler registered")
		return
	}
	handler(plaintext)
}

// OnText registers the handler for decrypted inbound text frames.
func (nt *NoiseTransport) OnText(handler TextHandler) {
	nt.handlerMu.Lock()
	defer nt.handlerMu.Unlock()
	nt.textHandler = handler
}

// OnBinary registers the handler for decrypted inbound binary frames.
func (nt *NoiseTransport) OnBinary(handler BinaryHandler) {
	nt.handlerMu.Lock()
	defer nt.handlerMu.Unlock()
	nt.binaryHandler = handler
}

// OnClose registers the close handler, forwarded from the underlying
// transport.
func (nt *NoiseTransport) OnClose(handler CloseHandler) {
	nt.handlerMu.Lock()
	defer nt.handlerMu.Unlock()
	nt.closeHandler = handler
}

// Close shuts down the underlying transport.
func (nt *NoiseTransport) Close() error {
	return nt.underlying.Close()
}
