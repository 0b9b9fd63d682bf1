package pubsub

import "strings"

// Channel naming conventions for the group fan-out bus.
const (
	groupChannelPrefix = "comm:group:"

	// GroupChannelPattern matches every group fan-out channel.
	GroupChannelPattern = groupChannelPrefix + "*"

	// TopicGroupFrames is the Kafka topic carrying all group events,
	// keyed by group so a group's frames stay ordered on one partition.
	TopicGroupFrames = "comm-group-frames"
)

// GroupChannel returns the fan-out channel name for a registry group key.
func GroupChannel(group string) string {
	return groupChannelPrefix + group
}

// GroupFromChannel extracts the group key from a fan-out channel name.
func GroupFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, groupChannelPrefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, groupChannelPrefix), true
}
