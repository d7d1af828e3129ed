package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/agromongol/agrochat-server/internal/store"
)

// sendInput is the validated shape of a send_message command.
type sendInput struct {
	UserID      string `json:"userId" validate:"required,max=128"`
	Username    string `json:"username" validate:"max=128"`
	Text        string `json:"message" validate:"required,max=4000"`
	Room        string `json:"roomId" validate:"required,max=128"`
	RecipientID string `json:"recipientId" validate:"max=128"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Dispatcher validates, persists and fans out chat messages.
type Dispatcher struct {
	presence *Presence
	rooms    *Rooms
	conns    *connTable
	store    store.MessageStore
	timeout  time.Duration
	validate *validator.Validate
	now      func() time.Time
	log      *zerolog.Logger
}

// Dispatch runs the send pipeline for a message coming from origin:
// normalize, validate, stamp, persist, broadcast to the room, then notify the
// recipient if it is online elsewhere. Nothing is delivered unless the
// message was persisted. A missing userId falls back to the registered id,
// then to the authenticated one.
func (d *Dispatcher) Dispatch(ctx context.Context, origin *Conn, req SendRequest) (*Message, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Room = strings.TrimSpace(req.Room)
	req.Text = strings.TrimSpace(req.Text)
	req.RecipientID = strings.TrimSpace(req.RecipientID)
	if req.UserID == "" {
		req.UserID = origin.UserID()
	}
	if req.UserID == "" {
		req.UserID = origin.AuthUserID
	}
	if origin.AuthUserID != "" && req.UserID != origin.AuthUserID {
		return nil, coreError(ErrCodeUnauthorized, "userId does not match the authenticated session", ErrUnauthorized)
	}
	if err := d.validateSend(req); err != nil {
		d.log.Debug().Err(err).Str("conn_id", origin.ID).Msg("rejected message")
		return nil, err
	}

	record := &store.Message{
		UserID:    req.UserID,
		Username:  req.Username,
		Body:      req.Text,
		RoomID:    req.Room,
		CreatedAt: d.now().UTC(),
	}
	if req.RecipientID != "" {
		recipient := req.RecipientID
		record.RecipientID = &recipient
	}

	// The message was accepted; a disconnect of the sender must not abort it.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	err := d.store.AppendMessage(persistCtx, record)
	cancel()
	if err != nil {
		d.log.Error().Err(err).
			Str("conn_id", origin.ID).
			Str("user_id", req.UserID).
			Str("room_id", req.Room).
			Msg("failed to persist message")
		return nil, coreError(ErrCodePersistence, "message could not be saved, try again", fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	msg := Message{
		ID:          record.ID,
		Room:        record.RoomID,
		UserID:      record.UserID,
		Username:    record.Username,
		Text:        record.Body,
		RecipientID: req.RecipientID,
		CreatedAt:   record.CreatedAt,
	}

	d.broadcast(&msg)
	if msg.RecipientID != "" {
		d.notify(origin, &msg)
	}
	return &msg, nil
}

func (d *Dispatcher) validateSend(req SendRequest) error {
	in := sendInput{
		UserID:      req.UserID,
		Username:    req.Username,
		Text:        req.Text,
		Room:        req.Room,
		RecipientID: req.RecipientID,
	}
	err := d.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return coreError(ErrCodeValidation, "invalid message", fmt.Errorf("%w: %w", ErrValidation, err))
	}
	fe := fieldErrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fe.Field() + " is required"
	case "max":
		msg = fe.Field() + " is too long (max " + fe.Param() + ")"
	default:
		msg = fe.Field() + " is invalid"
	}
	return coreError(ErrCodeValidation, msg, fmt.Errorf("%w: %w", ErrValidation, err))
}

func (d *Dispatcher) broadcast(msg *Message) {
	ev := &Event{Kind: EventReceiveMessage, Message: *msg}
	for _, connID := range d.rooms.MembersOf(msg.Room) {
		conn := d.conns.get(connID)
		if conn == nil {
			continue
		}
		if !conn.deliver(ev) {
			d.log.Warn().
				Str("conn_id", connID).
				Str("room_id", msg.Room).
				Int64("message_id", msg.ID).
				Msg("dropped room message for slow or closed connection")
		}
	}
}

// notify pushes a short notification to the recipient when they are online
// but not a member of the room. Failures are logged only.
func (d *Dispatcher) notify(origin *Conn, msg *Message) {
	connID, ok := d.presence.Lookup(msg.RecipientID)
	if !ok {
		return
	}
	if connID == origin.ID || d.rooms.IsMember(connID, msg.Room) {
		return
	}
	conn := d.conns.get(connID)
	if conn == nil {
		return
	}

	ev := &Event{
		Kind: EventNewMessageNotification,
		Notification: &Notification{
			FromUserID:   msg.UserID,
			FromUsername: msg.Username,
			Text:         msg.Text,
			Room:         msg.Room,
		},
	}
	if !conn.deliver(ev) {
		d.log.Warn().
			Str("conn_id", connID).
			Str("user_id", msg.RecipientID).
			Msg("dropped message notification")
		return
	}
	d.log.Debug().
		Str("user_id", msg.RecipientID).
		Str("conn_id", connID).
		Str("room_id", msg.Room).
		Msg("notified recipient about new message")
}
