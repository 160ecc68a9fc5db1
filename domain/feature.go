package domain

// Feature separates the two independent real-time surfaces of a room.
type Feature string

const (
	FeatureSignaling Feature = "signaling"
	FeatureChat      Feature = "chat"
)

// DisconnectReason tells the lifecycle how a connection ended.
type DisconnectReason string

const (
	ReasonLeave      DisconnectReason = "leave"
	ReasonClosed     DisconnectReason = "closed"
	ReasonError      DisconnectReason = "error"
	ReasonSendFailed DisconnectReason = "send_failed"
	ReasonReplaced   DisconnectReason = "replaced"
	ReasonShutdown   DisconnectReason = "shutdown"
)

// Explicit is true when the participant asked to leave.
func (r DisconnectReason) Explicit() bool {
	return r == ReasonLeave
}
