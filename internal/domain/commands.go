package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound command types. Clients send JSON objects whose "type" field is
// one of these; anything else is answered with an error frame.
const (
	CmdChatMessage    = "chat_message"
	CmdTypingStart    = "typing_start"
	CmdTypingStop     = "typing_stop"
	CmdMarkRead       = "mark_read"
	CmdEditMessage    = "edit_message"
	CmdDeleteMessage  = "delete_message"
	CmdMarkAllRead    = "mark_all_read"
	CmdGetUnreadCount = "get_unread_count"
	CmdSendBulk       = "send_bulk_notification"
)

// Command is one decoded inbound frame. The concrete types below form a
// closed set per socket; the Decode functions are the only constructors,
// so a gateway handler can match exhaustively and treat anything else as
// a client error.
type Command interface {
	isCommand()
}

// baseCommand is decoded first to discover the command type.
type baseCommand struct {
	Type string `json:"type"`
}

// ChatMessageCommand posts a new message to the connection's room.
type ChatMessageCommand struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// TypingStartCommand reports that the sender began composing.
type TypingStartCommand struct {
	Type string `json:"type"`
}

// TypingStopCommand reports that the sender stopped composing.
type TypingStopCommand struct {
	Type string `json:"type"`
}

// MarkReadCommand marks room messages as read by the sender.
type MarkReadCommand struct {
	Type       string   `json:"type"`
	MessageIDs []string `json:"message_ids"`
}

// EditMessageCommand replaces the body of one of the sender's messages.
type EditMessageCommand struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// DeleteMessageCommand removes one of the sender's messages.
type DeleteMessageCommand struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// NotificationMarkReadCommand marks the sender's notifications as read.
// It shares the mark_read wire tag with MarkReadCommand; the socket the
// frame arrived on decides which one it decodes into.
type NotificationMarkReadCommand struct {
	Type            string   `json:"type"`
	NotificationIDs []string `json:"notification_ids"`
}

// MarkAllReadCommand marks every unread notification of the sender.
type MarkAllReadCommand struct {
	Type string `json:"type"`
}

// GetUnreadCountCommand asks for the sender's current unread total.
type GetUnreadCountCommand struct {
	Type string `json:"type"`
}

// BulkNotificationCommand fans a notification out to an audience of users
// and/or platform roles. An empty audience targets every active user.
type BulkNotificationCommand struct {
	Type             string   `json:"type"`
	Title            string   `json:"title"`
	Message          string   `json:"message"`
	NotificationType string   `json:"notification_type"`
	Priority         string   `json:"priority"`
	TargetUsers      []string `json:"target_users"`
	TargetRoles      []string `json:"target_roles"`
}

func (ChatMessageCommand) isCommand()          {}
func (TypingStartCommand) isCommand()          {}
func (TypingStopCommand) isCommand()           {}
func (MarkReadCommand) isCommand()             {}
func (EditMessageCommand) isCommand()          {}
func (DeleteMessageCommand) isCommand()        {}
func (NotificationMarkReadCommand) isCommand() {}
func (MarkAllReadCommand) isCommand()          {}
func (GetUnreadCountCommand) isCommand()       {}
func (BulkNotificationCommand) isCommand()     {}

func decodeBase(raw []byte) (baseCommand, error) {
	var base baseCommand
	if err := json.Unmarshal(raw, &base); err != nil {
		return baseCommand{}, errors.New("invalid command format")
	}
	return base, nil
}

// DecodeChatCommand parses one inbound frame from a chat socket. Error
// messages are client-safe and echoed back verbatim.
func DecodeChatCommand(raw []byte) (Command, error) {
	base, err := decodeBase(raw)
	if err != nil {
		return nil, err
	}

	switch base.Type {
	case CmdChatMessage:
		var cmd ChatMessageCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("invalid %s command", base.Type)
		}
		return cmd, nil
	case CmdTypingStart:
		return TypingStartCommand{Type: base.Type}, nil
	case CmdTypingStop:
		return TypingStopCommand{Type: base.Type}, nil
	case CmdMarkRead:
		var cmd MarkReadCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("invalid %s command", base.Type)
		}
		return cmd, nil
	case CmdEditMessage:
		var cmd EditMessageCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("invalid %s command", base.Type)
		}
		return cmd, nil
	case CmdDeleteMessage:
		var cmd DeleteMessageCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("invalid %s command", base.Type)
		}
		return cmd, nil
	default:
		return nil, errors.New("unknown command type")
	}
}

// DecodeNotificationCommand parses one inbound frame from a notification
// socket. mark_read carries notification ids here, unlike the chat socket.
func DecodeNotificationCommand(raw []byte) (Command, error) {
	base, err := decodeBase(raw)
	if err != nil {
		return nil, err
	}

	switch base.Type {
	case CmdMarkRead:
		var cmd NotificationMarkReadCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("invalid %s command", base.Type)
		}
		return cmd, nil
	case CmdMarkAllRead:
		return MarkAllReadCommand{Type: base.Type}, nil
	case CmdGetUnreadCount:
		return GetUnreadCountCommand{Type: base.Type}, nil
	default:
		return nil, errors.New("unknown command type")
	}
}

// DecodeBulkCommand parses one inbound frame from the staff bulk socket.
func DecodeBulkCommand(raw []byte) (Command, error) {
	base, err := decodeBase(raw)
	if err != nil {
		return nil, err
	}

	switch base.Type {
	case CmdSendBulk:
		var cmd BulkNotificationCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("invalid %s command", base.Type)
		}
		return cmd, nil
	default:
		return nil, errors.New("unknown command type")
	}
}
