package types

// Event types pushed to websocket clients.
const (
	EventNotification  = "notification"
	EventBalanceUpdate = "balance_update"
	EventAnnouncement  = "announcement"
)

// Event is the envelope written to every websocket client.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// BalanceUpdate is the payload of an EventBalanceUpdate.
type BalanceUpdate struct {
	UserID       string `json:"userId"`
	TokenBalance int64  `json:"tokenBalance"`
	Reason       string `json:"reason"`
}
