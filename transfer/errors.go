package transfer

import "errors"

var (
	// ErrIntegrityCheckFailed indicates the digest of the reassembled
	// plaintext does not match the digest announced in the transfer
	// metadata. Fatal: the assembled output is discarded.
	ErrIntegrityCheckFailed = errors.New("content digest mismatch")

	// ErrUnexpectedFrame indicates a protocol frame that is not valid in
	// the session's current state, in a position where ignoring it would
	// leave a dangling expectation.
	ErrUnexpectedFrame = errors.New("unexpected protocol frame")

	// ErrTransferIncomplete indicates the assembled output was requested
	// before the transfer reached completion.
	ErrTransferIncomplete = errors.New("transfer not complete")

	// ErrPeerKeyNotReceived indicates the sender's wait for the peer's
	// exchange key ended before the key arrived.
	ErrPeerKeyNotReceived = errors.New("peer exchange key not received")
)
