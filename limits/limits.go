// Package limits provides centralized size limits for the transfer protocol.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ChunkSize is the plaintext size of each file chunk (64 KiB).
	// The final chunk of a file may be shorter.
	ChunkSize = 64 * 1024

	// EncryptionOverhead is the overhead added by AEAD encryption.
	// This is the 16-byte authentication tag appended by AES-GCM and
	// ChaCha20-Poly1305. The 12-byte IV is carried separately in the
	// chunk header.
	EncryptionOverhead = 16

	// MaxChunkCiphertext is the maximum size of a single ciphertext frame.
	MaxChunkCiphertext = ChunkSize + EncryptionOverhead

	// MaxFileNameLength is the maximum allowed file name length in bytes.
	// This prevents memory exhaustion from excessively long names and
	// matches typical filesystem limits.
	MaxFileNameLength = 255

	// MaxFileSize is the maximum file size accepted by a receiver (4 GiB).
	// This bounds in-memory accumulation on the receiving side.
	MaxFileSize = 4 * 1024 * 1024 * 1024
)

var (
	// ErrNameEmpty indicates an empty file name was provided.
	ErrNameEmpty = errors.New("empty file name")

	// ErrNameTooLong indicates a file name exceeds MaxFileNameLength.
	ErrNameTooLong = errors.New("file name too long")

	// ErrNameTraversal indicates a file name contains path separators or
	// directory traversal sequences.
	ErrNameTraversal = errors.New("file name contains path traversal")

	// ErrChunkTooLarge indicates a chunk exceeds the maximum allowed size.
	ErrChunkTooLarge = errors.New("chunk size exceeds maximum allowed")

	// ErrChunkEmpty indicates a zero-length chunk was declared.
	ErrChunkEmpty = errors.New("empty chunk")

	// ErrFileTooLarge indicates a declared file size exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file size exceeds maximum allowed")
)

// ValidateFileName validates a file name carried in transfer metadata.
// Names are bare file names, never paths: separators and traversal
// sequences are rejected so a receiver can safely use the name as-is.
func ValidateFileName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > MaxFileNameLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrNameTooLong, len(name), MaxFileNameLength)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return ErrNameTraversal
	}
	return nil
}

// ValidateCiphertextSize validates a declared or actual ciphertext frame size.
func ValidateCiphertextSize(size int) error {
	if size <= 0 {
		return ErrChunkEmpty
	}
	if size > MaxChunkCiphertext {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrChunkTooLarge, size, MaxChunkCiphertext)
	}
	return nil
}

// ValidatePlaintextSize validates a plaintext chunk size before encryption.
func ValidatePlaintextSize(size int) error {
	if size > ChunkSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrChunkTooLarge, size, ChunkSize)
	}
	return nil
}

// ValidateFileSize validates a declared file size from transfer metadata.
func ValidateFileSize(size uint64) error {
	if size > MaxFileSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, size, MaxFileSize)
	}
	return nil
}
