package domain

// Group keys understood by the session registry and the broadcast router.
// A group is just a named fan-out target; these helpers keep the naming
// scheme in one place.
const (
	// GroupAllUsers receives platform-wide events for every notification
	// connection.
	GroupAllUsers = "broadcast:all"

	// GroupBulkSenders is joined by staff bulk-notification connections.
	GroupBulkSenders = "broadcast:staff"
)

// RoomGroup returns the group key for a chat room.
func RoomGroup(roomID string) string {
	return "room:" + roomID
}

// UserGroup returns the per-user group key used for notification delivery.
func UserGroup(userID string) string {
	return "user:" + userID
}
