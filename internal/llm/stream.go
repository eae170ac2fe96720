package llm

import (
	"context"
	"io"
	"sync"
)

// streamBuffer decouples the driver from the consumer for short bursts;
// correctness never depends on it.
const streamBuffer = 32

// Stream is a single-consumer, pullable chat stream. Next blocks for
// the next Item; after a ToolCallRequest the consumer must Push the
// matching result (or Close) before the turn continues. Close cancels
// the underlying provider call.
type Stream struct {
	items   chan Item
	results chan ToolCallResult
	done    chan struct{}
	cancel  context.CancelFunc

	closeOnce sync.Once
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		items:   make(chan Item, streamBuffer),
		results: make(chan ToolCallResult),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
}

// Next returns the next stream item. It returns io.EOF after the
// terminal item (Final or ProviderError) has been consumed, and the
// context error if ctx ends first.
func (s *Stream) Next(ctx context.Context) (Item, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item, ok := <-s.items:
		if !ok {
			return nil, io.EOF
		}
		return item, nil
	}
}

// Push feeds a tool result back to the model, continuing the turn.
func (s *Stream) Push(ctx context.Context, result ToolCallResult) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return io.ErrClosedPipe
	case s.results <- result:
		return nil
	}
}

// Close cancels the stream. Pending and future Next calls drain any
// buffered items and then report io.EOF. Close is idempotent.
func (s *Stream) Close() {
	s.closeOnce.Do(s.cancel)
}

// send delivers an item to the consumer, giving up when the stream
// context ends.
func (s *Stream) send(ctx context.Context, item Item) bool {
	select {
	case <-ctx.Done():
		return false
	case s.items <- item:
		return true
	}
}
