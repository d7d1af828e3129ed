package core

import (
	"context"
	"testing"
	"time"

	"github.com/agromongol/agrochat-server/internal/store/memory"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustNoEvent fails if anything is queued for the connection.
func mustNoEvent(t *testing.T, c *Conn) {
	t.Helper()

	select {
	case ev := <-c.Events:
		t.Fatalf("unexpected event on %s: %+v", c.ID, ev)
	default:
	}
}

var fixedNow = time.Date(2025, 5, 4, 12, 30, 0, 0, time.UTC)

func newTestHub(t *testing.T) (*Hub, *memory.Store) {
	t.Helper()

	st := memory.New()
	hub := NewHub(st, Options{
		PersistTimeout: time.Second,
		Now:            func() time.Time { return fixedNow },
	})
	return hub, st
}

// serve runs the connection actor for the duration of the test.
func serve(t *testing.T, hub *Hub, c *Conn) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Serve(ctx, c)
}
