package mqtt

import "fmt"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "wss"

// Topics builds session-core MQTT topics under a configured prefix.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.NewTopics("wss")
//	topics.Health()              // "wss/health"
//	topics.SessionEvents("abc")  // "wss/session/abc/events"
type Topics struct {
	prefix string
}

// NewTopics creates a topic builder. An empty prefix uses DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Status returns the client status topic, used for online/offline/LWT
// messages.
//
// Example: wss/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix)
}

// Health returns the periodic session health report topic.
//
// Example: wss/health
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health", t.prefix)
}

// SessionEvents returns the per-session event stream topic.
//
// Example: wss/session/9f2c.../events
func (t Topics) SessionEvents(sessionID string) string {
	return fmt.Sprintf("%s/session/%s/events", t.prefix, sessionID)
}
