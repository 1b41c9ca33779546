package http

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/famchat/internal/core"
	"github.com/vovakirdan/famchat/internal/proto"
	"github.com/vovakirdan/famchat/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func decode(inbound proto.Inbound, v any) *proto.Error {
	if len(inbound.Data) == 0 {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: inbound.Type + ": data is required"}
	}
	if err := json.Unmarshal(inbound.Data, v); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: inbound.Type + ": malformed data"}
	}
	if err := validate.Struct(v); err != nil {
		return &proto.Error{Code: core.ErrCodeValidation, Msg: inbound.Type + ": " + err.Error()}
	}
	return nil
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeRegister, proto.InboundTypeLogin:
		var creds proto.CredentialsData
		if perr := decode(inbound, &creds); perr != nil {
			return nil, perr
		}
		kind := core.CommandLogin
		if inbound.Type == proto.InboundTypeRegister {
			kind = core.CommandRegister
		}
		return &core.Command{Kind: kind, Username: creds.Username, Password: creds.Password}, nil
	case proto.InboundTypeResume:
		var resume proto.ResumeData
		if perr := decode(inbound, &resume); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandResume, Token: resume.Token}, nil
	case proto.InboundTypeLogout:
		return &core.Command{Kind: core.CommandLogout}, nil
	case proto.InboundTypeSendMessage:
		var msg proto.SendMessageData
		if perr := decode(inbound, &msg); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:      core.CommandSendMessage,
			Recipient: msg.RecipientUsername,
			Text:      msg.Message,
		}, nil
	case proto.InboundTypeSendFile:
		var file proto.SendFileData
		if perr := decode(inbound, &file); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:      core.CommandSendFile,
			Recipient: file.RecipientUsername,
			Attachment: &store.Attachment{
				StoredName:   file.Filename,
				OriginalName: file.OriginalName,
				URL:          file.URL,
				MimeType:     file.MimeType,
				SizeBytes:    file.Size,
			},
			Caption: file.Caption,
		}, nil
	case proto.InboundTypeLoadGeneral:
		return &core.Command{Kind: core.CommandLoadGeneral}, nil
	case proto.InboundTypeLoadPrivate:
		var load proto.LoadPrivateData
		if perr := decode(inbound, &load); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandLoadDialog, Recipient: load.Username}, nil
	case proto.InboundTypeDeleteMessage:
		var del proto.DeleteMessageData
		if perr := decode(inbound, &del); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandDeleteMessage, MessageID: del.ID}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}
	}
}

func messageData(msg *store.Message) proto.MessageData {
	out := proto.MessageData{
		ID:        msg.ID,
		Username:  msg.From,
		IsGeneral: msg.IsGeneral(),
		Type:      string(msg.Kind),
		Message:   msg.Text,
		Caption:   msg.Caption,
		Timestamp: msg.CreatedAt,
	}
	if !out.IsGeneral {
		out.RecipientUsername = msg.To
	}
	if a := msg.Attachment; a != nil {
		out.Filename = a.StoredName
		out.OriginalName = a.OriginalName
		out.URL = a.URL
		out.MimeType = a.MimeType
		out.Size = a.SizeBytes
	}
	return out
}

func messagesData(msgs []*store.Message) []proto.MessageData {
	out := make([]proto.MessageData, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageData(m))
	}
	return out
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func responseData(event *core.Event) proto.ResponseData {
	resp := proto.ResponseData{
		Success:  event.Success,
		Message:  event.Text,
		Username: event.User,
		Token:    event.Token,
	}
	if event.Error != nil {
		resp.Code = event.Error.Code
	}
	return resp
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRegisterResponse:
		return eventOutbound(proto.EventRegisterResponse, responseData(event))
	case core.EventLoginResponse:
		return eventOutbound(proto.EventLoginResponse, responseData(event))
	case core.EventUsersList:
		return eventOutbound(proto.EventUsersList, proto.UsersData{Users: nonNil(event.Users)})
	case core.EventOnlineUsers:
		return eventOutbound(proto.EventOnlineUsers, proto.UsersData{Users: nonNil(event.Users)})
	case core.EventOnlineCount:
		return eventOutbound(proto.EventOnlineCount, proto.CountData{Count: event.Count})
	case core.EventUserStatus:
		status := proto.StatusOffline
		if event.Online {
			status = proto.StatusOnline
		}
		return eventOutbound(proto.EventUserStatus, proto.UserStatusData{Username: event.User, Status: status})
	case core.EventGeneralHistory:
		return eventOutbound(proto.EventGeneralHistory, proto.HistoryData{Messages: messagesData(event.Messages)})
	case core.EventDialogHistory:
		return eventOutbound(proto.EventPrivateHistory, proto.PrivateHistoryData{
			Username: event.User,
			Messages: messagesData(event.Messages),
		})
	case core.EventNewMessage:
		return eventOutbound(proto.EventNewMessage, messageData(event.Message))
	case core.EventPrivateMessage:
		return eventOutbound(proto.EventPrivateMessage, messageData(event.Message))
	case core.EventMessageDeleted:
		return eventOutbound(proto.EventMessageDeleted, proto.DeletedData{ID: event.MessageID})
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func nonNil(users []string) []string {
	if users == nil {
		return []string{}
	}
	return users
}
