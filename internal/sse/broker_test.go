package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
	if b.ClientCount("") != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "state.updated", Data: map[string]string{"origin": "local"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: state.updated") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"origin":"local"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublish_TopicIsolation(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	alice := b.Subscribe("alice")
	defer b.Unsubscribe(alice)
	bob := b.Subscribe("bob")
	defer b.Unsubscribe(bob)

	if b.ClientCount("alice") != 1 || b.ClientCount("bob") != 1 || b.ClientCount("") != 0 {
		t.Fatal("unexpected per-topic counts")
	}

	b.Publish(Event{Topic: "alice", Type: "state", Data: map[string]int{"n": 1}})

	select {
	case msg := <-alice:
		if !strings.Contains(string(msg), "event: state") {
			t.Errorf("unexpected frame %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("alice did not receive her event")
	}
	select {
	case msg := <-bob:
		t.Errorf("bob received %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events/stream", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount("") != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "alert", Data: map[string]string{"title": "Reminder Due"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: alert") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount("") != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestStream_InitialAndHeartbeat(t *testing.T) {
	b := NewBroker(20 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.Stream(w, req, "u1", func() []Event {
			return []Event{{Type: "absent", Data: map[string]string{}}}
		})
		close(done)
	}()

	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, "event: absent\n") {
		t.Errorf("initial event not first: %q", body)
	}
	if !strings.Contains(body, ": ping\n\n") {
		t.Errorf("no heartbeat in %q", body)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe("")
	if b.ClientCount("") != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "state.updated", Data: map[string]string{}})
}
