package domain

import (
	"testing"
)

func TestDecodeChatCommandClosedSet(t *testing.T) {
	decoded, err := DecodeChatCommand([]byte(`{"type":"chat_message","content":"hello","reply_to":"m7"}`))
	if err != nil {
		t.Fatalf("decode chat_message: %v", err)
	}
	msg, ok := decoded.(ChatMessageCommand)
	if !ok {
		t.Fatalf("decoded = %T, want ChatMessageCommand", decoded)
	}
	if msg.Content != "hello" || msg.ReplyTo != "m7" {
		t.Fatalf("payload = %+v", msg)
	}

	decoded, err = DecodeChatCommand([]byte(`{"type":"typing_start"}`))
	if err != nil {
		t.Fatalf("decode typing_start: %v", err)
	}
	if _, ok := decoded.(TypingStartCommand); !ok {
		t.Fatalf("decoded = %T, want TypingStartCommand", decoded)
	}

	for _, raw := range []string{
		`{"type":"mark_all_read"}`,
		`{"type":"send_bulk_notification","title":"t","message":"m"}`,
		`{"type":"warp_drive"}`,
	} {
		if _, err := DecodeChatCommand([]byte(raw)); err == nil || err.Error() != "unknown command type" {
			t.Fatalf("decode %s: err = %v, want unknown command type", raw, err)
		}
	}

	if _, err := DecodeChatCommand([]byte(`not json`)); err == nil || err.Error() != "invalid command format" {
		t.Fatalf("malformed frame: err = %v", err)
	}
	if _, err := DecodeChatCommand([]byte(`{"type":"chat_message","content":42}`)); err == nil || err.Error() != "invalid chat_message command" {
		t.Fatalf("bad payload: err = %v", err)
	}
}

// mark_read is the one tag shared by two sockets; each decoder must read
// its own id list.
func TestMarkReadTagDecodesPerSocket(t *testing.T) {
	raw := []byte(`{"type":"mark_read","message_ids":["m1"],"notification_ids":["n1"]}`)

	decoded, err := DecodeChatCommand(raw)
	if err != nil {
		t.Fatalf("chat decode: %v", err)
	}
	chat, ok := decoded.(MarkReadCommand)
	if !ok {
		t.Fatalf("chat decoded = %T, want MarkReadCommand", decoded)
	}
	if len(chat.MessageIDs) != 1 || chat.MessageIDs[0] != "m1" {
		t.Fatalf("message ids = %v", chat.MessageIDs)
	}

	decoded, err = DecodeNotificationCommand(raw)
	if err != nil {
		t.Fatalf("notification decode: %v", err)
	}
	note, ok := decoded.(NotificationMarkReadCommand)
	if !ok {
		t.Fatalf("notification decoded = %T, want NotificationMarkReadCommand", decoded)
	}
	if len(note.NotificationIDs) != 1 || note.NotificationIDs[0] != "n1" {
		t.Fatalf("notification ids = %v", note.NotificationIDs)
	}

	if _, err := DecodeNotificationCommand([]byte(`{"type":"chat_message","content":"x"}`)); err == nil || err.Error() != "unknown command type" {
		t.Fatalf("chat tag on notification socket: err = %v", err)
	}
}

func TestDecodeBulkCommandClosedSet(t *testing.T) {
	decoded, err := DecodeBulkCommand([]byte(`{"type":"send_bulk_notification","title":"Assembly","message":"Hall A","target_roles":["teacher"]}`))
	if err != nil {
		t.Fatalf("decode bulk: %v", err)
	}
	bulk, ok := decoded.(BulkNotificationCommand)
	if !ok {
		t.Fatalf("decoded = %T, want BulkNotificationCommand", decoded)
	}
	if bulk.Title != "Assembly" || len(bulk.TargetRoles) != 1 || bulk.TargetRoles[0] != "teacher" {
		t.Fatalf("payload = %+v", bulk)
	}

	if _, err := DecodeBulkCommand([]byte(`{"type":"chat_message","content":"x"}`)); err == nil || err.Error() != "unknown command type" {
		t.Fatalf("chat tag on bulk socket: err = %v", err)
	}
}
