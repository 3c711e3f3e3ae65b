// Package transfer implements the secure chunked transfer protocol: the
// sender pipeline and the receiver state machine, composed from the
// crypto primitives, the wire codec, and a caller-supplied transport.
//
// One session exists per transfer and owns its transport exclusively;
// the channel must not carry unrelated traffic, because the chunk
// header/body pairing is strictly positional.
//
// Example:
//
//	a, b := transport.Pipe()
//	receiver, _ := transfer.NewReceiver(b)
//	sender, _ := transfer.NewSender(a, "notes.txt", data)
//	if err := sender.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	content, _ := receiver.Bytes()
package transfer
