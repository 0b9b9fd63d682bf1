package audit

import (
	"context"

	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// Audit actions for the communication service.
const (
	ActionConnect       = "comm.connect"
	ActionDisconnect    = "comm.disconnect"
	ActionAccessDenied  = "comm.access_denied"
	ActionSendMessage   = "comm.send_message"
	ActionEditMessage   = "comm.edit_message"
	ActionDeleteMessage = "comm.delete_message"
	ActionBulkNotify    = "comm.bulk_notification"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
