package server

import (
	"context"
	"testing"
	"time"

	"github.com/veranda-labs/canvass/internal/geo"
	"github.com/veranda-labs/canvass/internal/live"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	feed := NewLiveFeed()
	ctx := context.Background()

	first, cancelFirst := feed.Subscribe(ctx)
	defer cancelFirst()
	second, cancelSecond := feed.Subscribe(ctx)
	defer cancelSecond()

	feed.Publish(live.Delta{Type: live.DeltaModified, Position: geo.RepPosition{RepID: "rep-1"}})

	for _, stream := range []<-chan live.Delta{first, second} {
		select {
		case delta := <-stream:
			if delta.Position.RepID != "rep-1" {
				t.Fatalf("unexpected delta: %+v", delta)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the delta")
		}
	}
}

func TestCancelledSubscriberIsUnregistered(t *testing.T) {
	feed := NewLiveFeed()
	ctx, cancel := context.WithCancel(context.Background())
	feed.Subscribe(ctx)
	cancel()

	deadline := time.Now().Add(time.Second)
	for feed.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("cancelled subscriber was never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSlowSubscriberDropsDeltasWithoutBlocking(t *testing.T) {
	feed := NewLiveFeed()
	stream, cancel := feed.Subscribe(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < feedBufferSize*2; i++ {
			feed.Publish(live.Delta{Type: live.DeltaModified, Position: geo.RepPosition{RepID: "rep-1"}})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish must never block on a full subscriber buffer")
	}
	if len(stream) != feedBufferSize {
		t.Fatalf("expected a full buffer of %d, got %d", feedBufferSize, len(stream))
	}
}
