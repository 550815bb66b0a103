package model

import "time"

// DeliveryState is monotonically non-decreasing for a message as seen by the
// sending client: sent (optimistic, local only) -> delivered (persisted) -> read.
type DeliveryState int32

const (
	DeliverySent      DeliveryState = 0
	DeliveryDelivered DeliveryState = 1
	DeliveryRead      DeliveryState = 2
)

func (s DeliveryState) String() string {
	switch s {
	case DeliverySent:
		return "sent"
	case DeliveryDelivered:
		return "delivered"
	case DeliveryRead:
		return "read"
	default:
		return "unknown"
	}
}

// Message is the render-ready message entity held by the ledger. Before server
// confirmation ID carries a locally generated temp id.
type Message struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Sender    string        `json:"sender"` // display name
	SenderID  string        `json:"sender_id"`
	Avatar    string        `json:"avatar"`
	CreatedAt time.Time     `json:"created_at"`
	IsOwn     bool          `json:"is_own"`
	State     DeliveryState `json:"state"`
}

// MessageRow is the persisted shape: what the gateway returns for the messages
// table and what a change-feed insert event carries.
type MessageRow struct {
	ID        string    `json:"id" bson:"_id"`
	RoomID    string    `json:"room_id" bson:"room_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`

	// Denormalized sender profile, present on history queries only.
	SenderName   string `json:"sender_name,omitempty" bson:"sender_name,omitempty"`
	SenderAvatar string `json:"sender_avatar,omitempty" bson:"sender_avatar,omitempty"`
}

const (
	DefaultAvatar    = "U"
	OwnAvatar        = "ME"
	OwnDisplayName   = "You"
	shortSenderIDLen = 4
)

// FallbackSenderName derives a placeholder display name from a user id when no
// profile is available.
func FallbackSenderName(userID string) string {
	if len(userID) > shortSenderIDLen {
		userID = userID[:shortSenderIDLen]
	}
	return "User " + userID
}
