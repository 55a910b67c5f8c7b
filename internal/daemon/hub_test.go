package daemon

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	hub := NewHub()
	w := httptest.NewRecorder()
	client, err := NewClient(hub, w)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	hub.Register(client)
	hub.Broadcast(&Event{Type: "job.started", VideoID: "v1"})
	hub.Unregister(client)

	// Broadcasts after unregister must not reach the client.
	hub.Broadcast(&Event{Type: "job.completed", VideoID: "v1"})

	body := w.Body.String()
	if !strings.Contains(body, "job.started") {
		t.Errorf("broadcast event missing from stream: %q", body)
	}
	if strings.Contains(body, "job.completed") {
		t.Errorf("event delivered after unregister: %q", body)
	}
}

func TestHub_UnregisterTwice(t *testing.T) {
	hub := NewHub()
	w := httptest.NewRecorder()
	client, err := NewClient(hub, w)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	hub.Register(client)
	hub.Unregister(client)
	hub.Unregister(client) // must not panic on the closed done channel
}

// Broadcasts come from job goroutines while each connection runs its
// own keep-alive ticker, so both paths write the stream concurrently.
func TestHub_ConcurrentBroadcastAndKeepAlive(t *testing.T) {
	hub := NewHub()
	w := httptest.NewRecorder()
	client, err := NewClient(hub, w)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	hub.Register(client)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		client.KeepAlive(time.Microsecond)
	}()

	for i := 0; i < 200; i++ {
		hub.Broadcast(&Event{Type: "job.progress", VideoID: "v1"})
	}

	hub.Unregister(client)
	wg.Wait()

	if !strings.Contains(w.Body.String(), "job.progress") {
		t.Error("broadcast events missing from stream")
	}
}
