package http

import (
	"bytes"
	"encoding/json"

	"github.com/agromongol/agrochat-server/internal/core"
	"github.com/agromongol/agrochat-server/internal/proto"
)

// inboundToCommand maps a client envelope to a core command. A non-nil
// proto.Error means the envelope was rejected and should be reported back
// without reaching the hub.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeRegisterUser:
		userID, err := decodeRegister(inbound.Data)
		if err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "registerUser expects a user id"}
		}
		return &core.Command{Kind: core.CommandRegister, UserID: userID}, nil
	case proto.InboundTypeJoinRoom:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "joinRoom expects {\"roomId\"}"}
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: join.RoomID}, nil
	case proto.InboundTypeSendMessage:
		var msg proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "send_message expects a message object"}
		}
		return &core.Command{
			Kind: core.CommandSendRoomMessage,
			Send: core.SendRequest{
				UserID:      msg.UserID,
				Username:    msg.Username,
				Text:        msg.Message,
				Room:        msg.RoomID,
				RecipientID: msg.RecipientID,
			},
		}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}
	}
}

// decodeRegister accepts either "u1" or {"userId":"u1"}.
func decodeRegister(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var userID string
		err := json.Unmarshal(data, &userID)
		return userID, err
	}
	var reg proto.RegisterData
	err := json.Unmarshal(data, &reg)
	return reg.UserID, err
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventReceiveMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceiveMessage,
			Data: proto.ReceiveMessage{
				ID:          event.Message.ID,
				UserID:      event.Message.UserID,
				Username:    event.Message.Username,
				Message:     event.Message.Text,
				RoomID:      event.Message.Room,
				RecipientID: event.Message.RecipientID,
				CreatedAt:   event.Message.CreatedAt,
			},
		}
	case core.EventNewMessageNotification:
		n := event.Notification
		if n == nil {
			n = &core.Notification{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessageNotification,
			Data: proto.NewMessageNotification{
				FromUserID:   n.FromUserID,
				FromUsername: n.FromUsername,
				Message:      n.Text,
				RoomID:       n.Room,
			},
		}
	case core.EventError:
		if event.Error == nil {
			return errorOutbound(event.Source.String(), &proto.Error{Code: "unknown", Msg: "unknown error"})
		}
		return errorOutbound(event.Source.String(), &proto.Error{Code: event.Error.Code, Msg: event.Error.Message})
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func errorOutbound(inboundType string, perr *proto.Error) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeError, Event: inboundType, Error: perr}
}
