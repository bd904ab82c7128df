// Package completion adapts a hosted chat-completion API into a lazy stream
// of reply fragments.
package completion

import (
	"context"
	"iter"

	"github.com/ashureev/aerochat/internal/domain"
)

// Request is one chat-completion call. The full transcript is sent every
// time; the server keeps no conversation state.
type Request struct {
	Model       string
	Messages    []domain.Message
	Temperature float64
	TopP        float64
}

// Streamer produces the reply for a request as text fragments.
//
// The returned sequence performs no I/O until it is ranged over, ends when
// the reply is complete, and can be consumed only once. A failure is
// delivered as a final ("", err) pair; the reply is never silently
// truncated.
type Streamer interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Factory builds a Streamer bound to one credential.
type Factory func(credential string) Streamer

// Ensure Client implements Streamer.
var _ Streamer = (*Client)(nil)
