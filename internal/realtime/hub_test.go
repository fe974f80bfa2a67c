package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID int64) *Client {
	return &Client{
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	hub.Unregister(c2) // second call must not panic
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestPublishOnlyReachesOwner(t *testing.T) {
	hub := NewHub(slog.Default())

	alice1 := mockClient(hub, 1)
	alice2 := mockClient(hub, 1)
	bob := mockClient(hub, 2)
	for _, c := range []*Client{alice1, alice2, bob} {
		hub.Register(c)
	}

	hub.Publish(1, NewMessage("event", "created", 42, map[string]any{"source": "voice"}))

	for _, c := range []*Client{alice1, alice2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "event_created" {
				t.Errorf("type = %q, want %q", got.Type, "event_created")
			}
			if got.ID != 42 {
				t.Errorf("id = %d, want 42", got.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	select {
	case <-bob.send:
		t.Error("another user's client should not receive the message")
	default:
	}
}

func TestPublishFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Publish(1, NewMessage("task", "created", int64(i), nil))
	}
	// Must drop rather than block.
	hub.Publish(1, NewMessage("task", "created", 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("sync", "complete", 0, nil)
	if msg.Type != "sync_complete" {
		t.Errorf("type = %q, want %q", msg.Type, "sync_complete")
	}
	if msg.Entity != "sync" || msg.Action != "complete" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			c := mockClient(hub, uid)
			hub.Register(c)
			hub.Publish(uid, NewMessage("test", "concurrent", 0, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i % 3))
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
