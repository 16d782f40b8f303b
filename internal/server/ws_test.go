package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veranda-labs/canvass/internal/geo"
	"github.com/veranda-labs/canvass/internal/live"
)

func TestLiveSocketStreamsPositionDeltas(t *testing.T) {
	env := newRouterEnv(t)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/live/ws?token=" + testToken
	conn, response, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()
	defer response.Body.Close()

	// Give the server a moment to register the subscription before the
	// position arrives.
	deadline := time.Now().Add(time.Second)
	for env.feed.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket session never subscribed to the feed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	position := geo.RepPosition{
		RepID:  "rep-1",
		Fix:    geo.Fix{Lat: 33.0, Lng: -96.7, Timestamp: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)},
		Active: true,
	}
	if code := env.postJSON(t, "/v1/positions", position); code != 200 {
		t.Fatalf("expected 200 merging position, got %d", code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var delta live.Delta
	if err := conn.ReadJSON(&delta); err != nil {
		t.Fatalf("reading delta from socket: %v", err)
	}
	if delta.Type != live.DeltaModified || delta.Position.RepID != "rep-1" {
		t.Fatalf("unexpected delta: %+v", delta)
	}
}

func TestLiveSocketRejectsBadToken(t *testing.T) {
	env := newRouterEnv(t)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/live/ws?token=wrong"
	_, response, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the dial to fail")
	}
	if response == nil || response.StatusCode != 401 {
		t.Fatalf("expected a 401 handshake response, got %+v", response)
	}
	if response != nil {
		response.Body.Close()
	}
}
