package interfaces

import "tutorhub/pkg/types"

// Channel is the per-participant bidirectional send primitive. Both
// operations are asynchronous from the caller's perspective, but two sends
// issued to the same channel in sequence must arrive in that order: a file
// payload emitted before its metadata message stays in front of it.
//
// Implementations serialize writes behind a single writer goroutine; callers
// never need additional locking.
type Channel interface {
	// SendMessage queues a JSON message frame for delivery.
	SendMessage(msg *types.Message) error

	// SendBinary queues a binary frame (file payload) for delivery.
	SendBinary(data []byte) error

	// Close tears down the channel. Idempotent.
	Close() error
}
