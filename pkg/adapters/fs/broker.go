package fs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/humus/pkg/core"
)

// matchID reports whether id matches a doublestar pattern. An empty pattern
// matches every id.
func matchID(pattern, id string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(pattern, id)
	return err == nil && ok
}

func validatePattern(pattern string) error {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("%w: bad pattern %q", core.ErrInvalidDocument, pattern)
	}
	return nil
}

type subscriber struct {
	pattern string
	ch      chan core.Event
}

// broker fans committed events out to Watch subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type broker struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	logger *slog.Logger
}

func newBroker(logger *slog.Logger) *broker {
	return &broker{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

func (b *broker) subscribe(ctx context.Context, pattern string, size int) (<-chan core.Event, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, core.ErrClosed
	}

	sub := &subscriber{pattern: pattern, ch: make(chan core.Event, size)}
	b.subs[sub] = struct{}{}
	context.AfterFunc(ctx, func() { b.unsubscribe(sub) })
	return sub.ch, nil
}

func (b *broker) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *broker) publish(e core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if !matchID(sub.pattern, e.ID) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.logger.Warn("dropping event for slow watcher", "id", e.ID, "seq", e.Seq)
		}
	}
}

func (b *broker) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}
