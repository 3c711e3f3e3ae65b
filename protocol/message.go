package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dropwire/crypto"
	"github.com/opd-ai/dropwire/limits"
)

// MessageType identifies the kind of a protocol text frame.
type MessageType string

const (
	// MessageMeta announces the file: name, size, digest, exchange key.
	MessageMeta MessageType = "meta"
	// MessageEKey carries the responder's exchange key.
	MessageEKey MessageType = "ekey"
	// MessageChunk is a chunk header; exactly one binary frame follows.
	MessageChunk MessageType = "chunk"
	// MessageEnd marks the end of the stream.
	MessageEnd MessageType = "end"
)

var (
	// ErrUnknownMessage indicates a text frame that does not parse as one
	// of the four protocol kinds. Non-fatal: log and ignore the frame.
	ErrUnknownMessage = errors.New("unknown protocol message")

	// ErrInvalidMessage indicates a recognized message with fields that
	// fail validation.
	ErrInvalidMessage = errors.New("invalid protocol message")
)

// Meta is sent once by the initiator before any chunk. Its fields are
// immutable for the rest of the session: the receiver's expected size
// and expected digest derive from this message and never change.
type Meta struct {
	Type              MessageType `json:"type"`
	Name              string      `json:"name"`
	Size              uint64      `json:"size"`
	Hash              string      `json:"hash"`
	ExchangePublicKey string      `json:"exchangePublicKey"`
}

// EKey is sent once by the responder after receiving meta.
type EKey struct {
	Type MessageType `json:"type"`
	Pub  string      `json:"pub"`
}

// Chunk is the header preceding exactly one binary ciphertext frame of
// Len bytes. Each header carries a freshly generated IV; headers are
// never reused.
type Chunk struct {
	Type MessageType  `json:"type"`
	IV   crypto.Nonce `json:"iv"`
	Len  int          `json:"len"`
}

// End is sent once, last.
type End struct {
	Type MessageType `json:"type"`
}

// NewMeta builds a validated meta message.
func NewMeta(name string, size uint64, hash, exchangeKey string) (*Meta, error) {
	m := &Meta{
		Type:              MessageMeta,
		Name:              name,
		Size:              size,
		Hash:              hash,
		ExchangePublicKey: exchangeKey,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks meta fields against the protocol limits.
func (m *Meta) Validate() error {
	if err := limits.ValidateFileName(m.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := limits.ValidateFileSize(m.Size); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.Hash == "" {
		return fmt.Errorf("%w: missing content hash", ErrInvalidMessage)
	}
	if m.ExchangePublicKey == "" {
		return fmt.Errorf("%w: missing exchange key", ErrInvalidMessage)
	}
	return nil
}

// Validate checks the chunk header's declared ciphertext length.
func (c *Chunk) Validate() error {
	if err := limits.ValidateCiphertextSize(c.Len); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// Encode serializes a protocol message into a text frame.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding protocol message: %w", err)
	}
	return data, nil
}

// Decode parses a text frame into one of the four message kinds. It
// returns ErrUnknownMessage for frames that are not valid JSON or carry
// an unrecognized type, and ErrInvalidMessage for recognized kinds whose
// fields fail validation.
func Decode(data []byte) (any, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Decode",
			"error":    err.Error(),
		}).Warn("Text frame is not valid JSON")
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}

	switch envelope.Type {
	case MessageMeta:
		var m Meta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return &m, nil

	case MessageEKey:
		var e EKey
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if e.Pub == "" {
			return nil, fmt.Errorf("%w: missing exchange key", ErrInvalidMessage)
		}
		return &e, nil

	case MessageChunk:
		var c Chunk
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return &c, nil

	case MessageEnd:
		return &End{Type: MessageEnd}, nil

	default:
		logrus.WithFields(logrus.Fields{
			"function":     "Decode",
			"message_type": string(envelope.Type),
		}).Warn("Unrecognized protocol message type")
		return nil, fmt.Errorf("%w: type %q", ErrUnknownMessage, envelope.Type)
	}
}
