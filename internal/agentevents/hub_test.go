package agentevents

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestHubBroadcastsToSubscriber(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	// Give the subscribe goroutine a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)
	hub.Publish(TaskCreated("exec-1", "session-1"))

	var got Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Kind != KindTaskCreated || got.ExecutionID != "exec-1" || got.SessionID != "session-1" {
		t.Fatalf("got %+v", got)
	}
}

func TestHubPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Publish(TaskCompleted("exec-1"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}
