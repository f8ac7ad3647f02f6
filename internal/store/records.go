package store

// RuntimeState is the small mutable runtime record shared across commands:
// the pause switch and the unread alert counter.
type RuntimeState struct {
	Paused       bool `json:"paused"`
	UnreadAlerts int  `json:"unread_alerts"`
}
