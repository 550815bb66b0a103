// Package gateway declares the abstract contracts of the managed backend the
// engine delegates to: session provider, remote data gateway, change-feed
// subscription and presence channel. Concrete adapters live in service/pg,
// service/mgo, service/natsx, service/kafka, service/storage and
// service/session.
package gateway

import (
	"context"

	"PulseChat/module/chat/model"
)

// Session is the authenticated identity the provider exposes.
type Session struct {
	UserID string
	Email  string
}

// SessionProvider supplies current-user identity and session lifecycle events.
type SessionProvider interface {
	// Current returns the active session, or false when signed out.
	Current() (Session, bool)
	// OnChange registers a callback fired on sign-in and sign-out. The
	// callback receives the new session, or nil on sign-out.
	OnChange(fn func(*Session))
}

// Remote executes queries and inserts against the relational store. Every
// method is fallible; callers degrade to keep-prior-state on error.
type Remote interface {
	// Rooms returns all rooms ordered by created_at asc, id asc. The explicit
	// order makes first-room auto-select deterministic.
	Rooms(ctx context.Context) ([]model.Room, error)
	// Profiles returns every known user profile.
	Profiles(ctx context.Context) ([]model.Profile, error)
	// Messages returns the persisted history of one room, ascending by
	// creation time, with denormalized sender profiles.
	Messages(ctx context.Context, roomID string) ([]model.MessageRow, error)
	// MembershipsForUser returns the membership rows of one user.
	MembershipsForUser(ctx context.Context, userID string) ([]model.RoomMember, error)
	// MembershipsForRooms returns all membership rows of the given room set.
	MembershipsForRooms(ctx context.Context, roomIDs []string) ([]model.RoomMember, error)

	InsertMessage(ctx context.Context, row model.MessageRow) (model.MessageRow, error)
	InsertRoom(ctx context.Context, room model.Room) (model.Room, error)
	InsertMembers(ctx context.Context, members []model.RoomMember) error
	UpsertProfile(ctx context.Context, p model.Profile) error
}

// Subscription is an open change-feed subscription.
type Subscription interface {
	Unsubscribe() error
}

// ChangeFeed opens a subscription to row-insert events on a channel key
// (one channel per conversation). Events deliver the raw row payload.
type ChangeFeed interface {
	Subscribe(channelKey string, onInsert func(row map[string]any)) (Subscription, error)
}

// PresenceHandle is an open presence channel membership.
type PresenceHandle interface {
	// Announce marks selfKey online with optional metadata.
	Announce(selfKey string, metadata map[string]string) error
	Leave() error
}

// Presence opens a presence channel. onSync always delivers the full current
// member-key snapshot, never a diff.
type Presence interface {
	Subscribe(channelKey string, onSync func(members []string)) (PresenceHandle, error)
}
