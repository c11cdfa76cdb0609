package stream

import "context"

// Producer defines the interface for appending messages to a stream.
type Producer interface {
	// Append adds one message built from the given fields and returns the
	// id the server assigned to it.
	Append(ctx context.Context, fields []Field) (ID, error)
}
