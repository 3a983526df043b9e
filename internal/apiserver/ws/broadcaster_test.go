package ws_test

import (
	"encoding/json"
	"testing"

	"github.com/foundry/stdfingest/internal/apiserver/ws"
)

func TestBroadcasterPublishDeliversToRegisteredClients(t *testing.T) {
	b := ws.NewBroadcaster("job-1", nil, 0)
	c := b.Register("client-1")

	b.Publish(2500)

	raw := <-c.Send()
	var msg ws.ProgressMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Type != "progress" || msg.JobID != "job-1" || msg.Permille != 2500 {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestBroadcasterNonBlockingSendDropsOnFullBuffer(t *testing.T) {
	b := ws.NewBroadcaster("job-1", nil, 1)
	c := b.Register("client-1")

	b.Publish(1)
	b.Publish(2) // buffer (depth 1) is full; this publish must be dropped, not block

	if c.Dropped.Load() != 1 {
		t.Fatalf("Dropped = %d, want 1", c.Dropped.Load())
	}
}

func TestBroadcasterUnregisterClosesSendChannel(t *testing.T) {
	b := ws.NewBroadcaster("job-1", nil, 4)
	c := b.Register("client-1")
	b.Unregister("client-1")

	_, ok := <-c.Send()
	if ok {
		t.Fatal("Send() channel should be closed after Unregister")
	}
}

func TestBroadcasterCloseIsIdempotentAndStopsPublish(t *testing.T) {
	b := ws.NewBroadcaster("job-1", nil, 4)
	c := b.Register("client-1")
	b.Close()
	b.Close() // must not panic

	b.Publish(100) // no-op once closed

	_, ok := <-c.Send()
	if ok {
		t.Fatal("client channel should be closed after Close")
	}
}

func TestBroadcasterRegisterAfterCloseReturnsClosedClient(t *testing.T) {
	b := ws.NewBroadcaster("job-1", nil, 4)
	b.Close()

	c := b.Register("late")
	_, ok := <-c.Send()
	if ok {
		t.Fatal("a client registered after Close should receive an already-closed channel")
	}
}
