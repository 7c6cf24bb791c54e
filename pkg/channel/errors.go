package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrConnect indicates the transport could not be established or the
	// handshake failed. The descriptor used is invalid and must be
	// rediscovered.
	ErrConnect = errors.New("control channel connect failed")

	// ErrClosed indicates the channel is dead. Every pending call is
	// rejected with it; the owner must rediscover a fresh descriptor.
	ErrClosed = errors.New("control channel closed")

	// ErrCallTimeout indicates a single call exceeded its timeout. The
	// channel itself stays open.
	ErrCallTimeout = errors.New("call timed out")

	// ErrProtocol indicates a malformed response payload for a single call.
	// Like a timeout, it rejects only that call.
	ErrProtocol = errors.New("protocol error")
)

// RemoteError is an error reported by the remote endpoint for one call.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}
