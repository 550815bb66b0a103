package model

import "time"

// Room is a persisted conversation row. Direct rooms carry IsDirect=true and
// exactly two members; their name is display-only and never authoritative.
type Room struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	IsDirect  bool      `json:"is_direct" bson:"is_direct"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`

	// Unread is local-only state, never persisted.
	Unread int `json:"unread,omitempty" bson:"-"`
}

// RoomMember is a row of the room membership table.
type RoomMember struct {
	RoomID string `json:"room_id" bson:"room_id"`
	UserID string `json:"user_id" bson:"user_id"`
}

// DirectConversation is the sidebar entity for a 1:1 peer. Before a backing
// room exists it is keyed by the peer's user id only; RoomID stays empty until
// the participant mapping resolves one.
type DirectConversation struct {
	PeerID   string `json:"peer_id"`
	RoomID   string `json:"room_id,omitempty"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Online   bool   `json:"online"`
	Unread   int    `json:"unread,omitempty"`
}

const directRoomMembers = 2

// IsCanonicalDirect reports whether a membership set qualifies a direct room
// as a 1:1 mapping target. Rooms with more than two members are never treated
// as direct pairs even when flagged direct.
func IsCanonicalDirect(memberCount int) bool {
	return memberCount == directRoomMembers
}
