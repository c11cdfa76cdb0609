// Package redisx adapts go-redis replies and errors to the domain types
// in internal/stream. It keeps backend-specific knowledge (reply shapes,
// sentinel errors, server error strings) out of the coordination logic.
package redisx

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"redstream/internal/stream"
)

// Classify wraps a raw go-redis error as a stream error of the matching
// kind. Returns nil for nil input. redis.Nil is classified as an empty
// reply: call sites where a nil reply is routine (blocking reads that time
// out) must handle redis.Nil before classifying.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, redis.Nil):
		return stream.NewError(stream.KindEmptyReply, op, err)
	case isTransport(err):
		return stream.NewError(stream.KindConnection, op, err)
	default:
		return stream.NewError(stream.KindCommand, op, err)
	}
}

func isTransport(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsBusyGroup reports whether err is the server's rejection of a group
// create for a group that already exists.
func IsBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// IsNoGroup reports whether err is the server's rejection of a group
// command referencing a group or stream that does not exist.
func IsNoGroup(err error) bool {
	return err != nil && strings.HasPrefix(strings.TrimSpace(err.Error()), "NOGROUP")
}
