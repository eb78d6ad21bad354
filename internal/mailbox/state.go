package mailbox

// State is the lifecycle state of the mailbox connection
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// TriggerKind says why a search cycle was requested
type TriggerKind int

const (
	// TriggerReady fires once after the mailbox has been selected
	TriggerReady TriggerKind = iota
	// TriggerNewMail fires on every server-pushed mailbox update
	TriggerNewMail
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerReady:
		return "ready"
	case TriggerNewMail:
		return "new-mail"
	default:
		return "unknown"
	}
}
