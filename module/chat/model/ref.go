package model

// RefKind discriminates the two identifier namespaces a selection target can
// live in. Room ids and user ids share a string type at the transport; keeping
// the namespace explicit at the boundary removes lookup-miss inference.
type RefKind int32

const (
	RefRoom RefKind = iota
	RefParticipant
)

// ConversationRef is the tagged selection target: either an existing room or
// a participant we may not share a room with yet.
type ConversationRef struct {
	Kind RefKind `json:"kind"`
	ID   string  `json:"id"`
}

func RoomRef(id string) ConversationRef {
	return ConversationRef{Kind: RefRoom, ID: id}
}

func ParticipantRef(id string) ConversationRef {
	return ConversationRef{Kind: RefParticipant, ID: id}
}

func (r ConversationRef) IsRoom() bool { return r.Kind == RefRoom }
