package realtime

// Named realtime streams.
const (
	StreamNotifications = "notifications"
	StreamAccount       = "account"
)

// KnownStreams lists every stream a client may subscribe to.
var KnownStreams = map[string]struct{}{
	StreamNotifications: {},
	StreamAccount:       {},
}
