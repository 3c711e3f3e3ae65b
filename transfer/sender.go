package transfer

import (
	"context"
	"crypto/ecdh"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dropwire/crypto"
	"github.com/opd-ai/dropwire/limits"
	"github.com/opd-ai/dropwire/protocol"
	"github.com/opd-ai/dropwire/transport"
)

// SenderState represents the sender pipeline's current phase.
type SenderState uint8

const (
	// SenderInit is the initial state before key generation.
	SenderInit SenderState = iota
	// SenderKeyReady indicates the ephemeral key pair exists.
	SenderKeyReady
	// SenderHashing indicates the content digest is being computed.
	SenderHashing
	// SenderMetaSent indicates the meta message has been emitted.
	SenderMetaSent
	// SenderAwaitingPeerKey indicates the sender is suspended until the
	// responder's exchange key arrives.
	SenderAwaitingPeerKey
	// SenderKeyDerived indicates the session key has been derived.
	SenderKeyDerived
	// SenderStreaming indicates chunks are being encrypted and sent.
	SenderStreaming
	// SenderDone indicates the end marker has been sent.
	SenderDone
	// SenderFailed is the absorbing failure state.
	SenderFailed
)

// String returns a human-readable state name.
func (s SenderState) String() string {
	switch s {
	case SenderInit:
		return "init"
	case SenderKeyReady:
		return "key_ready"
	case SenderHashing:
		return "hashing"
	case SenderMetaSent:
		return "meta_sent"
	case SenderAwaitingPeerKey:
		return "awaiting_peer_key"
	case SenderKeyDerived:
		return "key_derived"
	case SenderStreaming:
		return "streaming"
	case SenderDone:
		return "done"
	case SenderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sender drives a transfer session from the initiating side. It owns its
// transport for the duration of the session and never waits for the
// receiver except to obtain the responder's exchange key.
type Sender struct {
	mu           sync.Mutex
	id           string
	transport    transport.Transport
	fileName     string
	data         []byte
	state        SenderState
	suite        crypto.CipherSuite
	chunkSize    int
	keyPair      *crypto.KeyPair
	sessionKey   crypto.SharedKey
	peerKey      chan *ecdh.PublicKey
	closed       chan struct{}
	closeOnce    sync.Once
	progress     ProgressFunc
	interval     time.Duration
	timeProvider TimeProvider
	err          error
}

// NewSender creates a sender session for one file over an already-open
// transport. The complete file content is held in memory; this is an
// accepted simplification for the target file sizes.
func NewSender(t transport.Transport, fileName string, data []byte) (*Sender, error) {
	if err := limits.ValidateFileName(fileName); err != nil {
		return nil, err
	}
	if err := limits.ValidateFileSize(uint64(len(data))); err != nil {
		return nil, err
	}

	s := &Sender{
		id:        uuid.NewString(),
		transport: t,
		fileName:  fileName,
		data:      data,
		state:     SenderInit,
		suite:     crypto.DefaultCipherSuite,
		chunkSize: limits.ChunkSize,
		peerKey:   make(chan *ecdh.PublicKey, 1),
		closed:    make(chan struct{}),
		interval:  DefaultReportInterval,
	}

	t.OnText(s.handleText)
	t.OnBinary(s.handleBinary)
	t.OnClose(s.handleClose)

	logrus.WithFields(logrus.Fields{
		"function":  "NewSender",
		"session":   s.id,
		"file_name": fileName,
		"file_size": len(data),
	}).Info("Created sender session")

	return s, nil
}

// OnProgress sets the callback receiving throughput reports.
func (s *Sender) OnProgress(callback ProgressFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = callback
}

// SetCipherSuite selects the AEAD used for chunk encryption. Both sides
// of a session must use the same suite.
func (s *Sender) SetCipherSuite(suite crypto.CipherSuite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suite = suite
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (s *Sender) SetTimeProvider(tp TimeProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeProvider = tp
}

// SetReportInterval sets the minimum spacing between progress reports.
func (s *Sender) SetReportInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
}

// ID returns the session identifier.
func (s *Sender) ID() string { return s.id }

// State returns the pipeline's current phase.
func (s *Sender) State() SenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fingerprint returns a short fingerprint of the sender's exchange key
// for out-of-band comparison, or an empty string before key generation.
func (s *Sender) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyPair == nil {
		return ""
	}
	return crypto.Fingerprint(s.keyPair.Public)
}

// Run executes the full pipeline: key generation, hashing, handshake,
// chunk streaming, and the end marker. It blocks until the transfer
// completes or fails; cancelling the context while awaiting the peer's
// exchange key fails the session instead of stalling forever.
func (s *Sender) Run(ctx context.Context) error {
	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return s.fail(err)
	}
	s.mu.Lock()
	s.keyPair = keys
	s.mu.Unlock()
	s.setState(SenderKeyReady)

	s.setState(SenderHashing)
	digest := crypto.Digest(s.data)

	portable, err := crypto.ExportPublicKey(keys.Public)
	if err != nil {
		return s.fail(err)
	}

	meta, err := protocol.NewMeta(s.fileName, uint64(len(s.data)), digest, portable)
	if err != nil {
		return s.fail(err)
	}
	frame, err := protocol.Encode(meta)
	if err != nil {
		return s.fail(err)
	}
	if err := s.transport.SendText(frame); err != nil {
		return s.fail(err)
	}
	s.setState(SenderMetaSent)

	s.setState(SenderAwaitingPeerKey)
	peer, err := s.awaitPeerKey(ctx)
	if err != nil {
		return s.fail(err)
	}

	sessionKey, err := crypto.DeriveSharedKey(keys.Private, peer)
	if err != nil {
		return s.fail(err)
	}
	s.mu.Lock()
	s.sessionKey = sessionKey
	suite := s.suite
	chunkSize := s.chunkSize
	tracker := newProgressTracker(uint64(len(s.data)), s.interval, s.timeProvider, s.progress)
	s.mu.Unlock()
	s.setState(SenderKeyDerived)

	s.setState(SenderStreaming)
	if err := s.streamChunks(sessionKey, suite, chunkSize, tracker); err != nil {
		return s.fail(err)
	}

	endFrame, err := protocol.Encode(&protocol.End{Type: protocol.MessageEnd})
	if err != nil {
		return s.fail(err)
	}
	if err := s.transport.SendText(endFrame); err != nil {
		return s.fail(err)
	}

	s.setState(SenderDone)
	tracker.finish()

	logrus.WithFields(logrus.Fields{
		"function":  "Run",
		"session":   s.id,
		"file_name": s.fileName,
		"file_size": len(s.data),
	}).Info("Transfer sent")

	return nil
}

// awaitPeerKey suspends until the responder's exchange key arrives, the
// context is done, or the channel closes.
func (s *Sender) awaitPeerKey(ctx context.Context) (*ecdh.PublicKey, error) {
	select {
	case peer := <-s.peerKey:
		return peer, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrPeerKeyNotReceived, ctx.Err())
	case <-s.closed:
		return nil, fmt.Errorf("%w: %v", ErrPeerKeyNotReceived, transport.ErrTransportClosed)
	}
}

// streamChunks partitions the plaintext into fixed-size chunks and sends
// each as a header frame followed by its ciphertext frame. Encryption
// happens before the header is sent, so a failure never leaves a
// dangling header without its body. A zero-length file produces zero
// chunks.
func (s *Sender) streamChunks(key crypto.SharedKey, suite crypto.CipherSuite, chunkSize int, tracker *progressTracker) error {
	for offset := 0; offset < len(s.data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(s.data) {
			end = len(s.data)
		}

		nonce, ciphertext, err := crypto.EncryptWithSuite(suite, key, s.data[offset:end])
		if err != nil {
			return err
		}

		header, err := protocol.Encode(&protocol.Chunk{
			Type: protocol.MessageChunk,
			IV:   nonce,
			Len:  len(ciphertext),
		})
		if err != nil {
			return err
		}

		// Two consecutive sends; the channel's ordering keeps the body
		// adjacent to its header.
		if err := s.transport.SendText(header); err != nil {
			return err
		}
		if err := s.transport.SendBinary(ciphertext); err != nil {
			return err
		}

		tracker.add(uint64(end - offset))
	}
	return nil
}

func (s *Sender) handleText(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleText",
			"session":  s.id,
			"error":    err.Error(),
		}).Warn("Ignoring undecodable text frame")
		return
	}

	ekey, ok := msg.(*protocol.EKey)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "handleText",
			"session":  s.id,
			"message":  fmt.Sprintf("%T", msg),
		}).Warn("Ignoring unexpected message on sender side")
		return
	}

	peer, err := crypto.ImportPublicKey(ekey.Pub)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleText",
			"session":  s.id,
			"error":    err.Error(),
		}).Warn("Ignoring malformed peer exchange key")
		return
	}

	select {
	case s.peerKey <- peer:
		logrus.WithFields(logrus.Fields{
			"function":    "handleText",
			"session":     s.id,
			"fingerprint": crypto.Fingerprint(peer),
		}).Info("Received peer exchange key")
	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleText",
			"session":  s.id,
		}).Warn("Ignoring duplicate peer exchange key")
	}
}

func (s *Sender) handleBinary(data []byte) {
	// The sender never expects binary frames.
	logrus.WithFields(logrus.Fields{
		"function":  "handleBinary",
		"session":   s.id,
		"frame_len": len(data),
	}).Warn("Dropping unexpected binary frame on sender side")
}

func (s *Sender) handleClose(err error) {
	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	terminal := s.state == SenderDone || s.state == SenderFailed
	s.mu.Unlock()
	if terminal {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleClose",
		"session":  s.id,
	}).Warn("Transport closed during transfer")
}

func (s *Sender) setState(state SenderState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "setState",
		"session":  s.id,
		"from":     prev.String(),
		"to":       state.String(),
	}).Debug("Sender state transition")
}

// fail moves the pipeline into the absorbing failure state.
func (s *Sender) fail(err error) error {
	s.mu.Lock()
	s.state = SenderFailed
	s.err = err
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "fail",
		"session":  s.id,
		"error":    err.Error(),
	}).Error("Sender transfer failed")

	return err
}
