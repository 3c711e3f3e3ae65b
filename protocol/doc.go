// Package protocol defines the wire framing for the transfer protocol.
//
// Four message kinds are multiplexed on one ordered channel, each carried
// as a self-describing JSON text frame:
//
//	meta  — file name, size, content digest, sender exchange key; sent once, first
//	ekey  — responder exchange key; sent once after meta
//	chunk — IV and ciphertext length; followed by exactly one binary frame
//	end   — end of stream; sent once, last
//
// Framing is strictly positional: a binary frame is interpreted only in
// light of the most recently received, not-yet-consumed chunk header.
// There are no chunk identifiers.
package protocol
