package whatsapp

// ConnectionState is the single authoritative state of one tenant's
// gateway connection. Transitions are driven only by the gateway's own
// event stream.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StatePairing
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StatePairing:
		return "pairing"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateChange is published to listeners whenever the connection state or
// pairing code changes. QR observers on the dashboard consume these
// instead of registering callbacks on the manager.
type StateChange struct {
	TenantID    string          `json:"tenant_id"`
	State       ConnectionState `json:"state"`
	PairingCode string          `json:"pairing_code,omitempty"`
}
