package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/agromongol/agrochat-server/internal/proto"
)

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:5000/ws", "WebSocket address")
	user := flag.String("user", "tester", "user id to register")
	username := flag.String("username", "", "display name sent with the message")
	room := flag.String("room", "general", "room id")
	recipient := flag.String("recipient", "", "optional recipient user id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	token := flag.String("token", "", "optional JWT sent as a bearer token")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var opts *websocket.DialOptions
	if *token != "" {
		opts = &websocket.DialOptions{HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}}}
	}
	conn, _, err := websocket.Dial(ctx, *addr, opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeRegisterUser, proto.RegisterData{UserID: *user}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeJoinRoom, proto.JoinData{RoomID: *room}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeSendMessage, proto.SendMessageData{
		UserID:      *user,
		Username:    *username,
		Message:     *text,
		RoomID:      *room,
		RecipientID: *recipient,
	}); err != nil {
		return err
	}

	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			return fmt.Errorf("server rejected %s: %s (%s)", out.Event, out.Error.Msg, out.Error.Code)
		}

		switch out.Event {
		case proto.EventReceiveMessage:
			var evt proto.ReceiveMessage
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("receive_message: id=%d room=%s user=%s text=%q at=%s\n",
				evt.ID, evt.RoomID, evt.UserID, evt.Message, evt.CreatedAt.Format(time.RFC3339))
			return nil
		case proto.EventNewMessageNotification:
			var evt proto.NewMessageNotification
			if err := json.Unmarshal(out.Data, &evt); err == nil {
				fmt.Printf("notification: from=%s room=%s text=%q\n", evt.FromUserID, evt.RoomID, evt.Message)
			}
		default:
			// keep looping for our own message
		}
	}
}
