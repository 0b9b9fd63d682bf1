package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches internal/middleware context keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Messaging domain
	FieldSessionID      = "session_id"
	FieldRoomID         = "room_id"
	FieldGroup          = "group"
	FieldMessageID      = "message_id"
	FieldNotificationID = "notification_id"
	FieldRecipientID    = "recipient_id"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
