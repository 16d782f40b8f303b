package server

import (
	"context"
	"sync"

	"github.com/veranda-labs/canvass/internal/live"
)

var _ live.Feed = (*LiveFeed)(nil)

const feedBufferSize = 16

// LiveFeed fans live-position deltas out to dashboard subscribers. Sends
// never block: a subscriber that falls behind loses deltas, and the next
// merge for a rep supersedes anything it missed.
type LiveFeed struct {
	mu          sync.RWMutex
	subscribers map[int64]chan live.Delta
	nextID      int64
}

// NewLiveFeed constructs an empty feed.
func NewLiveFeed() *LiveFeed {
	return &LiveFeed{subscribers: make(map[int64]chan live.Delta)}
}

// Subscribe registers a dashboard session. After the context is cancelled
// or the returned cleanup runs, the stream receives nothing further. The
// stream is never closed, so Publish can race cleanup safely; readers must
// select on their own context rather than range over the channel.
func (f *LiveFeed) Subscribe(ctx context.Context) (<-chan live.Delta, func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	stream := make(chan live.Delta, feedBufferSize)
	f.subscribers[id] = stream
	f.mu.Unlock()

	cleanup := func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// Publish delivers a delta to every current subscriber.
func (f *LiveFeed) Publish(delta live.Delta) {
	f.mu.RLock()
	streams := make([]chan live.Delta, 0, len(f.subscribers))
	for _, stream := range f.subscribers {
		streams = append(streams, stream)
	}
	f.mu.RUnlock()
	for _, stream := range streams {
		select {
		case stream <- delta:
		default:
		}
	}
}

// SubscriberCount reports the number of open subscriptions.
func (f *LiveFeed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}
