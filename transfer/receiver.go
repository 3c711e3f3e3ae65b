package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dropwire/crypto"
	"github.com/opd-ai/dropwire/protocol"
	"github.com/opd-ai/dropwire/transport"
)

// ReceiverState represents the receiver state machine's current phase.
type ReceiverState uint8

const (
	// ReceiverInit is the initial state before key generation.
	ReceiverInit ReceiverState = iota
	// ReceiverKeyReady indicates the ephemeral key pair exists.
	ReceiverKeyReady
	// ReceiverAwaitingMeta indicates the session is waiting for the
	// initiator's meta message.
	ReceiverAwaitingMeta
	// ReceiverReceiving indicates chunk headers are expected.
	ReceiverReceiving
	// ReceiverAwaitingBody indicates a chunk header has been stashed and
	// exactly one binary frame is expected next.
	ReceiverAwaitingBody
	// ReceiverVerifying indicates the final digest is being checked.
	ReceiverVerifying
	// ReceiverComplete indicates the assembled output is available.
	ReceiverComplete
	// ReceiverFailed is the absorbing failure state.
	ReceiverFailed
)

// String returns a human-readable state name.
func (s ReceiverState) String() string {
	switch s {
	case ReceiverInit:
		return "init"
	case ReceiverKeyReady:
		return "key_ready"
	case ReceiverAwaitingMeta:
		return "awaiting_meta"
	case ReceiverReceiving:
		return "receiving"
	case ReceiverAwaitingBody:
		return "awaiting_body"
	case ReceiverVerifying:
		return "verifying"
	case ReceiverComplete:
		return "complete"
	case ReceiverFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Receiver consumes inbound protocol frames, completes the handshake
// from the responder side, accumulates and decrypts chunks, and verifies
// integrity of the reassembled output. It is purely reactive: all work
// happens in the transport's delivery path.
//
// Frames that are malformed or invalid in the current state are logged
// and ignored; the session fails only on authentication failure, digest
// mismatch, a chunk header left without its body at end of stream, or
// channel failure.
type Receiver struct {
	mu           sync.Mutex
	id           string
	transport    transport.Transport
	state        ReceiverState
	suite        crypto.CipherSuite
	keyPair      *crypto.KeyPair
	sessionKey   crypto.SharedKey
	meta         *protocol.Meta
	pending      *protocol.Chunk
	chunks       [][]byte
	received     uint64
	assembled    []byte
	tracker      *progressTracker
	progress     ProgressFunc
	interval     time.Duration
	timeProvider TimeProvider
	complete     func(error)
	done         chan struct{}
	doneOnce     sync.Once
	err          error
}

// NewReceiver creates a receiver session on an already-open transport.
// The ephemeral key pair is generated eagerly, before meta arrives.
func NewReceiver(t transport.Transport) (*Receiver, error) {
	r := &Receiver{
		id:        uuid.NewString(),
		transport: t,
		state:     ReceiverInit,
		suite:     crypto.DefaultCipherSuite,
		interval:  DefaultReportInterval,
		done:      make(chan struct{}),
	}

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	r.keyPair = keys
	r.state = ReceiverKeyReady

	t.OnText(r.handleText)
	t.OnBinary(r.handleBinary)
	t.OnClose(r.handleClose)
	r.state = ReceiverAwaitingMeta

	logrus.WithFields(logrus.Fields{
		"function":    "NewReceiver",
		"session":     r.id,
		"fingerprint": crypto.Fingerprint(keys.Public),
	}).Info("Created receiver session")

	return r, nil
}

// OnProgress sets the callback receiving progress reports.
func (r *Receiver) OnProgress(callback ProgressFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = callback
}

// OnComplete sets the callback invoked once when the session reaches
// COMPLETE (nil error) or FAILED (the failure).
func (r *Receiver) OnComplete(callback func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = callback
}

// SetCipherSuite selects the AEAD used for chunk decryption. Both sides
// of a session must use the same suite.
func (r *Receiver) SetCipherSuite(suite crypto.CipherSuite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suite = suite
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (r *Receiver) SetTimeProvider(tp TimeProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeProvider = tp
}

// SetReportInterval sets the minimum spacing between progress reports.
func (r *Receiver) SetReportInterval(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interval = interval
}

// ID returns the session identifier.
func (r *Receiver) ID() string { return r.id }

// State returns the state machine's current phase.
func (r *Receiver) State() ReceiverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Fingerprint returns a short fingerprint of the receiver's exchange key
// for out-of-band comparison.
func (r *Receiver) Fingerprint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return crypto.Fingerprint(r.keyPair.Public)
}

// FileName returns the name announced in the transfer metadata, or an
// empty string before meta arrives.
func (r *Receiver) FileName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta == nil {
		return ""
	}
	return r.meta.Name
}

// Bytes returns the verified assembled output. It fails with
// ErrTransferIncomplete before completion and with the session's failure
// after FAILED; partial output is never exposed.
func (r *Receiver) Bytes() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case ReceiverComplete:
		return r.assembled, nil
	case ReceiverFailed:
		return nil, r.err
	default:
		return nil, ErrTransferIncomplete
	}
}

// Wait blocks until the session completes or fails, or the context is
// done. On completion it returns nil; on failure, the session error.
func (r *Receiver) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Receiver) handleText(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleText",
			"session":  r.id,
			"error":    err.Error(),
		}).Warn("Ignoring undecodable text frame")
		return
	}

	switch m := msg.(type) {
	case *protocol.Meta:
		r.handleMeta(m)
	case *protocol.Chunk:
		r.handleChunkHeader(m)
	case *protocol.End:
		r.handleEnd()
	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleText",
			"session":  r.id,
			"message":  fmt.Sprintf("%T", msg),
		}).Warn("Ignoring unexpected message on receiver side")
	}
}

// handleMeta imports the sender's exchange key, derives the session key,
// replies with the receiver's own exchange key, and records the
// metadata. The recorded size and digest never change afterwards.
func (r *Receiver) handleMeta(meta *protocol.Meta) {
	r.mu.Lock()
	if r.state != ReceiverAwaitingMeta {
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleMeta",
			"session":  r.id,
			"state":    r.State().String(),
		}).Warn("Ignoring meta outside awaiting_meta state")
		return
	}

	senderKey, err := crypto.ImportPublicKey(meta.ExchangePublicKey)
	if err != nil {
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleMeta",
			"session":  r.id,
			"error":    err.Error(),
		}).Warn("Ignoring meta with malformed exchange key")
		return
	}

	sessionKey, err := crypto.DeriveSharedKey(r.keyPair.Private, senderKey)
	if err != nil {
		r.mu.Unlock()
		r.fail(err)
		return
	}

	portable, err := crypto.ExportPublicKey(r.keyPair.Public)
	if err != nil {
		r.mu.Unlock()
		r.fail(err)
		return
	}
	reply, err := protocol.Encode(&protocol.EKey{Type: protocol.MessageEKey, Pub: portable})
	if err != nil {
		r.mu.Unlock()
		r.fail(err)
		return
	}

	r.sessionKey = sessionKey
	r.meta = meta
	r.tracker = newProgressTracker(meta.Size, r.interval, r.timeProvider, r.progress)
	r.state = ReceiverReceiving
	r.mu.Unlock()

	if err := r.transport.SendText(reply); err != nil {
		r.fail(err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "handleMeta",
		"session":   r.id,
		"file_name": meta.Name,
		"file_size": meta.Size,
	}).Info("Handshake complete, receiving")
}

// handleChunkHeader stashes the header and expects exactly one binary
// frame next. A second header before the body is a protocol violation:
// the new header is discarded and the pending one kept.
func (r *Receiver) handleChunkHeader(header *protocol.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case ReceiverReceiving:
		r.pending = header
		r.state = ReceiverAwaitingBody
	case ReceiverAwaitingBody:
		logrus.WithFields(logrus.Fields{
			"function": "handleChunkHeader",
			"session":  r.id,
			"error":    ErrUnexpectedFrame.Error(),
		}).Warn("Discarding chunk header received before previous body")
	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleChunkHeader",
			"session":  r.id,
			"state":    r.state.String(),
		}).Warn("Ignoring chunk header outside receiving state")
	}
}

// handleBinary decrypts a chunk body against the stashed header. A
// binary frame with no pending header is dropped; an authentication
// failure is fatal to the session.
func (r *Receiver) handleBinary(data []byte) {
	r.mu.Lock()
	if r.state != ReceiverAwaitingBody {
		state := r.state
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":  "handleBinary",
			"session":   r.id,
			"state":     state.String(),
			"frame_len": len(data),
		}).Warn("Dropping binary frame with no pending chunk header")
		return
	}

	header := r.pending
	r.pending = nil
	suite := r.suite
	key := r.sessionKey
	r.mu.Unlock()

	if len(data) != header.Len {
		logrus.WithFields(logrus.Fields{
			"function":     "handleBinary",
			"session":      r.id,
			"frame_len":    len(data),
			"declared_len": header.Len,
		}).Warn("Binary frame length differs from chunk header")
	}

	plaintext, err := crypto.DecryptWithSuite(suite, key, header.IV, data)
	if err != nil {
		r.fail(err)
		return
	}

	r.mu.Lock()
	r.chunks = append(r.chunks, plaintext)
	r.received += uint64(len(plaintext))
	r.state = ReceiverReceiving
	tracker := r.tracker
	r.mu.Unlock()

	tracker.add(uint64(len(plaintext)))
}

// handleEnd assembles the accumulated chunks in arrival order, verifies
// the digest against the metadata, and exposes the output on success.
func (r *Receiver) handleEnd() {
	r.mu.Lock()
	if r.state == ReceiverAwaitingBody {
		// End of stream with a dangling header: the pairing invariant is
		// broken and the missing body will never arrive.
		r.mu.Unlock()
		r.fail(fmt.Errorf("%w: end of stream with pending chunk header", ErrUnexpectedFrame))
		return
	}
	if r.state != ReceiverReceiving {
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleEnd",
			"session":  r.id,
			"state":    r.State().String(),
		}).Warn("Ignoring end outside receiving state")
		return
	}

	r.state = ReceiverVerifying
	assembled := make([]byte, 0, r.received)
	for _, chunk := range r.chunks {
		assembled = append(assembled, chunk...)
	}
	expected := r.meta.Hash
	tracker := r.tracker
	r.mu.Unlock()

	digest := crypto.Digest(assembled)
	if !crypto.DigestEqual(digest, expected) {
		logrus.WithFields(logrus.Fields{
			"function": "handleEnd",
			"session":  r.id,
			"expected": expected,
			"actual":   digest,
		}).Error("Reassembled content failed integrity verification")
		r.fail(fmt.Errorf("%w: expected %s, got %s", ErrIntegrityCheckFailed, expected, digest))
		return
	}

	r.mu.Lock()
	r.assembled = assembled
	r.chunks = nil
	r.state = ReceiverComplete
	callback := r.complete
	r.mu.Unlock()

	tracker.finish()

	logrus.WithFields(logrus.Fields{
		"function":  "handleEnd",
		"session":   r.id,
		"file_name": r.FileName(),
		"file_size": len(assembled),
	}).Info("Transfer complete and verified")

	if callback != nil {
		callback(nil)
	}
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *Receiver) handleClose(err error) {
	r.mu.Lock()
	terminal := r.state == ReceiverComplete || r.state == ReceiverFailed
	r.mu.Unlock()
	if terminal {
		return
	}

	cause := err
	if cause == nil {
		cause = transport.ErrTransportClosed
	}
	r.fail(cause)
}

// fail moves the state machine into the absorbing failure state and
// discards all accumulated plaintext; partial output is never exposed.
func (r *Receiver) fail(err error) {
	r.mu.Lock()
	if r.state == ReceiverFailed || r.state == ReceiverComplete {
		r.mu.Unlock()
		return
	}
	r.state = ReceiverFailed
	r.err = err
	r.pending = nil
	r.chunks = nil
	r.assembled = nil
	callback := r.complete
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "fail",
		"session":  r.id,
		"error":    err.Error(),
	}).Error("Receiver transfer failed")

	if callback != nil {
		callback(err)
	}
	r.doneOnce.Do(func() { close(r.done) })
}
