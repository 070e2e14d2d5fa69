package ws

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestClient() *Client {
	return &Client{
		send: make(chan []byte, 8),
	}
}

func receiveEnvelope(t *testing.T, c *Client) *Envelope {
	t.Helper()

	select {
	case data := <-c.send:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("Failed to decode envelope: %v", err)
		}
		return &env
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for broadcast")
		return nil
	}
}

func TestHubCreation(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("Hub should not be nil")
	}
	if hub.rooms == nil {
		t.Error("Hub rooms map should be initialized")
	}
	if hub.clients == nil {
		t.Error("Hub clients map should be initialized")
	}
}

func TestBindUnbind(t *testing.T) {
	hub := NewHub()
	client := newTestClient()

	hub.add(client)
	if hub.GetClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", hub.GetClientCount())
	}

	hub.Bind(client, "AB12C3")
	if hub.GetRoomCount() != 1 {
		t.Errorf("Expected 1 room, got %d", hub.GetRoomCount())
	}
	if client.roomCode != "AB12C3" {
		t.Errorf("Expected client bound to AB12C3, got %q", client.roomCode)
	}

	hub.Unbind(client)
	if hub.GetRoomCount() != 0 {
		t.Errorf("Expected empty room index after unbind, got %d", hub.GetRoomCount())
	}
	if client.roomCode != "" {
		t.Errorf("Expected cleared room code, got %q", client.roomCode)
	}

	// Client is still connected, just not in a room
	if hub.GetClientCount() != 1 {
		t.Errorf("Expected 1 client after unbind, got %d", hub.GetClientCount())
	}
}

func TestBroadcastReachesBoundClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c1 := newTestClient()
	c2 := newTestClient()
	outsider := newTestClient()

	hub.add(c1)
	hub.add(c2)
	hub.add(outsider)
	hub.Bind(c1, "AB12C3")
	hub.Bind(c2, "AB12C3")
	hub.Bind(outsider, "ZZ99ZZ")

	hub.Broadcast("AB12C3", "race-started", map[string]string{"startedAt": "now"})

	for _, c := range []*Client{c1, c2} {
		env := receiveEnvelope(t, c)
		if env.Type != "race-started" {
			t.Errorf("Expected race-started, got %s", env.Type)
		}
	}

	select {
	case <-outsider.send:
		t.Error("Client in another room should not receive the broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastUnknownRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Must not panic or block
	hub.Broadcast("NOSUCH", "room-updated", map[string]string{})
}

func TestRemoveClosesSend(t *testing.T) {
	hub := NewHub()
	client := newTestClient()

	hub.add(client)
	hub.Bind(client, "AB12C3")
	hub.remove(client)

	if _, ok := <-client.send; ok {
		t.Error("Send channel should be closed after remove")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.GetClientCount())
	}
	if hub.GetRoomCount() != 0 {
		t.Errorf("Expected 0 rooms, got %d", hub.GetRoomCount())
	}

	// Second remove is a no-op, not a double close
	hub.remove(client)
}

func TestCloseRoomDropsBindings(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c1 := newTestClient()
	c2 := newTestClient()
	hub.add(c1)
	hub.add(c2)
	hub.Bind(c1, "AB12C3")
	hub.Bind(c2, "AB12C3")

	hub.CloseRoom("AB12C3")

	if hub.GetRoomCount() != 0 {
		t.Errorf("Expected 0 rooms after close, got %d", hub.GetRoomCount())
	}
	if c1.roomCode != "" || c2.roomCode != "" {
		t.Errorf("Expected cleared room codes, got %q and %q", c1.roomCode, c2.roomCode)
	}

	// A later room under the same code must not reach the old clients
	hub.Broadcast("AB12C3", "room-updated", map[string]string{})
	select {
	case <-c1.send:
		t.Error("Unbound client should not receive broadcasts for a reissued code")
	case <-time.After(50 * time.Millisecond):
	}

	// Both are still connected, just roomless
	if hub.GetClientCount() != 2 {
		t.Errorf("Expected 2 clients, got %d", hub.GetClientCount())
	}
}

func TestBroadcastOrderPreserved(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient()
	hub.add(client)
	hub.Bind(client, "AB12C3")

	for i := 0; i < 5; i++ {
		hub.Broadcast("AB12C3", "progress-update", map[string]int{"seq": i})
	}

	for want := 0; want < 5; want++ {
		env := receiveEnvelope(t, client)
		var payload map[string]int
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			t.Fatalf("Failed to decode payload: %v", err)
		}
		if payload["seq"] != want {
			t.Errorf("Expected seq %d, got %d", want, payload["seq"])
		}
	}
}
