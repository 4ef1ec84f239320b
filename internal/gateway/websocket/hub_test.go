package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(hub *Hub, id string) *Client {
	c := NewClient(hub, nil)
	c.id = id
	return c
}

// runHub starts hub and stops it when the test ends.
func runHub(t *testing.T, hub *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
}

// register adds c and waits until the hub loop has recorded it.
func register(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	if !hub.Register(c) {
		t.Fatal("Register on running hub returned false")
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		ok := hub.clients[c]
		hub.mu.RUnlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("client never registered")
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
		return nil
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	runHub(t, hub)

	client := newTestClient(hub, "c1")
	register(t, hub, client)
	hub.Subscribe(client, "s1")
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount after register = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if _, ok := <-client.send; ok {
		t.Error("send channel still open after unregister")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount after unregister = %d, want 0", hub.ClientCount())
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if _, ok := hub.sessions["s1"]; ok {
		t.Error("session subscription survived unregister")
	}
}

func TestHubSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "c1")

	hub.Subscribe(client, "session-1")
	if !client.sessions["session-1"] || !hub.sessions["session-1"][client] {
		t.Fatal("subscription not recorded on both sides")
	}

	hub.Unsubscribe(client, "session-1")
	if client.sessions["session-1"] {
		t.Error("client.sessions still contains session-1")
	}
	if _, ok := hub.sessions["session-1"]; ok {
		t.Error("empty session entry not cleaned up")
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	runHub(t, hub)

	a := newTestClient(hub, "a")
	b := newTestClient(hub, "b")
	register(t, hub, a)
	register(t, hub, b)
	hub.Subscribe(a, "conv-1")

	frame := Encode(WSMessage{Type: TypePart, Session: "conv-1", Message: "привет"})
	hub.Broadcast("conv-1", frame)
	if got := receive(t, a); string(got) != string(frame) {
		t.Errorf("a received %s, want %s", got, frame)
	}

	hub.BroadcastAll([]byte(`{"type":"ping"}`))
	if got := receive(t, b); string(got) != `{"type":"ping"}` {
		t.Errorf("b received %s; session frame leaked to a non-subscriber?", got)
	}
	receive(t, a)
}

func TestHubBroadcastTyped(t *testing.T) {
	hub := NewHub()
	runHub(t, hub)

	client := newTestClient(hub, "c1")
	register(t, hub, client)

	if err := hub.BroadcastTyped(TypeKnowledgeSynced, map[string]int{"chunks": 5}); err != nil {
		t.Fatalf("BroadcastTyped: %v", err)
	}

	var msg WSMessage
	if err := json.Unmarshal(receive(t, client), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeKnowledgeSynced || string(msg.Data) != `{"chunks":5}` {
		t.Errorf("frame = %+v", msg)
	}

	if err := hub.BroadcastTyped(TypeKnowledgeSynced, func() {}); err == nil {
		t.Error("expected marshal error for func payload")
	}
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := newTestClient(hub, "c1")
	hub.Register(client)
	cancel()
	<-hub.done

	if _, ok := <-client.send; ok {
		t.Error("send channel open after hub stop")
	}
	if hub.Register(newTestClient(hub, "late")) {
		t.Error("Register after stop returned true")
	}
	hub.Broadcast("x", []byte("dropped"))
	hub.Unregister(client)
}
