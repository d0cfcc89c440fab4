package session

// Status is the connection state of a session. It is owned exclusively
// by the session controller: every write happens on the session loop,
// and observers only ever see one of these three values.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
)

func (s Status) IsActive() bool {
	return s == StatusConnected || s == StatusConnecting
}
