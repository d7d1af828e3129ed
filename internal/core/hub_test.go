package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agromongol/agrochat-server/internal/store/memory"
)

func TestHubScenarioBroadcastAndNotify(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()

	a := hub.Connect("conn-a", "")
	b := hub.Connect("conn-b", "")
	bystander := hub.Connect("conn-c", "")

	if err := hub.Register(a, "u1"); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := hub.Join(a, "r1"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := hub.Register(b, "u2"); err != nil {
		t.Fatalf("register b: %v", err)
	}

	_, err := hub.Send(ctx, a, SendRequest{
		UserID:      "u1",
		Username:    "A",
		Text:        "hello",
		Room:        "r1",
		RecipientID: "u2",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	stored, err := st.ListMessages(ctx, "r1", 10, nil)
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one persisted message, got %d (%v)", len(stored), err)
	}
	if !stored[0].CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected server timestamp %v, got %v", fixedNow, stored[0].CreatedAt)
	}

	msgEv := mustEvent(t, a.Events, EventReceiveMessage)
	if msgEv.Message.Text != "hello" || msgEv.Message.Room != "r1" || msgEv.Message.UserID != "u1" ||
		msgEv.Message.RecipientID != "u2" || msgEv.Message.ID != stored[0].ID {
		t.Fatalf("unexpected message event: %+v", msgEv.Message)
	}
	mustNoEvent(t, a)

	notifyEv := mustEvent(t, b.Events, EventNewMessageNotification)
	n := notifyEv.Notification
	if n == nil || n.FromUserID != "u1" || n.FromUsername != "A" || n.Text != "hello" || n.Room != "r1" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	mustNoEvent(t, b)
	mustNoEvent(t, bystander)
}

func TestHubRecipientInRoomGetsNoDuplicate(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	a := hub.Connect("conn-a", "")
	b := hub.Connect("conn-b", "")
	_ = hub.Register(a, "u1")
	_ = hub.Register(b, "u2")
	_ = hub.Join(a, "r1")
	_ = hub.Join(b, "r1")

	if _, err := hub.Send(ctx, a, SendRequest{UserID: "u1", Text: "hi", Room: "r1", RecipientID: "u2"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	mustEvent(t, b.Events, EventReceiveMessage)
	mustNoEvent(t, b)
	mustEvent(t, a.Events, EventReceiveMessage)
	mustNoEvent(t, a)
}

func TestHubOfflineRecipientIsNotAnError(t *testing.T) {
	hub, st := newTestHub(t)

	a := hub.Connect("conn-a", "")
	_ = hub.Join(a, "r1")

	if _, err := hub.Send(context.Background(), a, SendRequest{UserID: "u1", Text: "hi", Room: "r1", RecipientID: "nobody"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	mustEvent(t, a.Events, EventReceiveMessage)
	if st.Len() != 1 {
		t.Fatalf("expected message to be persisted")
	}
}

func TestHubPersistenceFailureDeliversNothing(t *testing.T) {
	hub, st := newTestHub(t)
	st.FailAppends(errors.New("db down"))

	a := hub.Connect("conn-a", "")
	b := hub.Connect("conn-b", "")
	_ = hub.Register(a, "u1")
	_ = hub.Register(b, "u2")
	_ = hub.Join(a, "r1")
	serve(t, hub, a)

	a.Commands <- &Command{
		Kind: CommandSendRoomMessage,
		Send: SendRequest{UserID: "u1", Text: "hello", Room: "r1", RecipientID: "u2"},
	}

	ev := mustEvent(t, a.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodePersistence || ev.Source != CommandSendRoomMessage {
		t.Fatalf("expected persistence_error, got %+v", ev)
	}
	if !errors.Is(ev.Error, ErrPersistence) {
		t.Fatalf("expected error to wrap ErrPersistence")
	}
	mustNoEvent(t, a)
	mustNoEvent(t, b)
}

func TestHubValidationErrors(t *testing.T) {
	hub, st := newTestHub(t)
	a := hub.Connect("conn-a", "")
	_ = hub.Join(a, "r1")

	tests := []struct {
		name string
		req  SendRequest
	}{
		{name: "empty body", req: SendRequest{UserID: "u1", Text: "", Room: "r1"}},
		{name: "blank body", req: SendRequest{UserID: "u1", Text: "   ", Room: "r1"}},
		{name: "missing room", req: SendRequest{UserID: "u1", Text: "hi"}},
		{name: "missing user", req: SendRequest{Text: "hi", Room: "r1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hub.Send(context.Background(), a, tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if ce := AsCoreError(err); ce.Code != ErrCodeValidation {
				t.Fatalf("expected validation_error code, got %s", ce.Code)
			}
		})
	}

	if st.Len() != 0 {
		t.Fatalf("invalid messages must not be persisted")
	}
	mustNoEvent(t, a)
}

func TestHubSendDefaultsToRegisteredUser(t *testing.T) {
	hub, _ := newTestHub(t)
	a := hub.Connect("conn-a", "")
	_ = hub.Register(a, "u1")
	_ = hub.Join(a, "r1")

	msg, err := hub.Send(context.Background(), a, SendRequest{Text: "hi", Room: "r1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.UserID != "u1" {
		t.Fatalf("expected sender u1, got %q", msg.UserID)
	}
}

func TestHubAuthenticatedIdentityMustMatch(t *testing.T) {
	hub, _ := newTestHub(t)
	a := hub.Connect("conn-a", "u1")

	if err := hub.Register(a, "u2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on register, got %v", err)
	}
	if err := hub.Register(a, "u1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = hub.Join(a, "r1")

	if _, err := hub.Send(context.Background(), a, SendRequest{UserID: "u2", Text: "spoof", Room: "r1"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on send, got %v", err)
	}
}

func TestHubDisconnectCleansPresenceAndRooms(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	a := hub.Connect("conn-a", "")
	b := hub.Connect("conn-b", "")
	_ = hub.Register(a, "u1")
	_ = hub.Register(b, "u2")
	_ = hub.Join(a, "r1")
	_ = hub.Join(b, "r1")

	hub.Disconnect(b)

	if hub.Online("u2") {
		t.Fatalf("u2 should be offline after disconnect")
	}
	if b.State() != StateDisconnected {
		t.Fatalf("expected disconnected state, got %s", b.State())
	}
	select {
	case <-b.Done():
	default:
		t.Fatalf("expected Done to be closed")
	}

	if _, err := hub.Send(ctx, a, SendRequest{UserID: "u1", Text: "still there?", Room: "r1", RecipientID: "u2"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	mustEvent(t, a.Events, EventReceiveMessage)
	mustNoEvent(t, b)

	if err := hub.Join(b, "r2"); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected for join after disconnect, got %v", err)
	}
	if err := hub.Register(b, "u2"); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected for register after disconnect, got %v", err)
	}

	stats := hub.Stats()
	if stats.Connections != 1 || stats.Users != 1 || stats.Rooms != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// Idempotent.
	hub.Disconnect(b)
}

func TestHubStaleDisconnectKeepsNewerRegistration(t *testing.T) {
	hub, _ := newTestHub(t)

	old := hub.Connect("conn-old", "")
	fresh := hub.Connect("conn-new", "")
	sender := hub.Connect("conn-sender", "")
	_ = hub.Register(old, "u2")
	_ = hub.Register(fresh, "u2")
	_ = hub.Join(sender, "r1")

	hub.Disconnect(old)

	if !hub.Online("u2") {
		t.Fatalf("u2 should still be online through the newer connection")
	}

	if _, err := hub.Send(context.Background(), sender, SendRequest{UserID: "u1", Text: "ping", Room: "r1", RecipientID: "u2"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	mustEvent(t, fresh.Events, EventNewMessageNotification)
}

func TestHubServeProcessesCommandsInOrder(t *testing.T) {
	hub, _ := newTestHub(t)

	a := hub.Connect("conn-a", "")
	b := hub.Connect("conn-b", "")
	serve(t, hub, a)
	serve(t, hub, b)

	b.Commands <- &Command{Kind: CommandRegister, UserID: "u2"}
	waitFor(t, func() bool { return hub.Online("u2") })

	a.Commands <- &Command{Kind: CommandRegister, UserID: "u1"}
	a.Commands <- &Command{Kind: CommandJoinRoom, Room: "r1"}
	a.Commands <- &Command{Kind: CommandSendRoomMessage, Send: SendRequest{Username: "A", Text: "hello", Room: "r1", RecipientID: "u2"}}

	ev := mustEvent(t, a.Events, EventReceiveMessage)
	if ev.Message.UserID != "u1" {
		t.Fatalf("expected message from u1, got %+v", ev.Message)
	}
	mustEvent(t, b.Events, EventNewMessageNotification)

	a.Commands <- &Command{Kind: CommandJoinRoom, Room: ""}
	errEv := mustEvent(t, a.Events, EventError)
	if errEv.Error.Code != ErrCodeValidation || errEv.Source != CommandJoinRoom {
		t.Fatalf("expected validation error for join, got %+v", errEv)
	}
}

func TestHubSlowConsumerIsFlagged(t *testing.T) {
	hub := NewHub(memory.New(), Options{EventBuffer: 1})

	a := hub.Connect("conn-a", "")
	_ = hub.Join(a, "r1")

	for i := 0; i < 3; i++ {
		if _, err := hub.Send(context.Background(), a, SendRequest{UserID: "u1", Text: "x", Room: "r1"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	select {
	case <-a.Slow():
	case <-time.After(time.Second):
		t.Fatalf("expected connection to be flagged as slow")
	}
}

func TestHubRunDisconnectsEverything(t *testing.T) {
	hub, _ := newTestHub(t)
	a := hub.Connect("conn-a", "")
	_ = hub.Register(a, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("hub did not stop")
	}
	if hub.Online("u1") || a.State() != StateDisconnected {
		t.Fatalf("expected all connections to be closed")
	}
}

func TestHubConcurrentRegisterAndDisconnect(t *testing.T) {
	hub, _ := newTestHub(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		c := hub.Connect("conn-"+string(rune('A'+i%26))+string(rune('a'+i/26)), "")
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = hub.Register(c, "same-user")
			_ = hub.Join(c, "r1")
		}()
		go func() {
			defer wg.Done()
			hub.Disconnect(c)
		}()
	}
	wg.Wait()

	stats := hub.Stats()
	if stats.Connections != 0 || stats.Users != 0 || stats.Rooms != 0 {
		t.Fatalf("expected empty hub after all disconnects, got %+v", stats)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestHubSendTrimsIdentifiers(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()

	a := hub.Connect("conn-a", "")
	b := hub.Connect("conn-b", "")
	_ = hub.Register(a, " u1 ")
	_ = hub.Join(a, " r1 ")
	_ = hub.Join(b, "r1")

	msg, err := hub.Send(ctx, a, SendRequest{UserID: " u1 ", Text: "  hello  ", Room: " r1 "})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.UserID != "u1" || msg.Room != "r1" || msg.Text != "hello" {
		t.Fatalf("expected trimmed message, got %+v", msg)
	}

	stored, err := st.ListMessages(ctx, "r1", 10, nil)
	if err != nil || len(stored) != 1 || stored[0].UserID != "u1" {
		t.Fatalf("expected message stored under r1 for u1, got %v (%v)", stored, err)
	}
	mustEvent(t, a.Events, EventReceiveMessage)
	mustEvent(t, b.Events, EventReceiveMessage)
	if !hub.Online("u1") {
		t.Fatalf("expected trimmed registration for u1")
	}
}

func TestHubSendDefaultsToAuthenticatedUser(t *testing.T) {
	hub, _ := newTestHub(t)

	c := hub.Connect("conn-c", "u9")
	_ = hub.Join(c, "r1")

	msg, err := hub.Send(context.Background(), c, SendRequest{Text: "hi", Room: "r1"})
	if err != nil {
		t.Fatalf("send without userId on an authenticated connection: %v", err)
	}
	if msg.UserID != "u9" {
		t.Fatalf("expected sender u9, got %q", msg.UserID)
	}
	mustEvent(t, c.Events, EventReceiveMessage)
}
