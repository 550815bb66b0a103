package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PulseChat/module/chat/model"
	"PulseChat/service/gateway"
)

// fakeSessions is a static session provider.
type fakeSessions struct {
	mu   sync.Mutex
	sess *gateway.Session
	cbs  []func(*gateway.Session)
}

func sessionsFor(userID string) *fakeSessions {
	return &fakeSessions{sess: &gateway.Session{UserID: userID, Email: userID + "@test.local"}}
}

func (f *fakeSessions) Current() (gateway.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess == nil {
		return gateway.Session{}, false
	}
	return *f.sess, true
}

func (f *fakeSessions) OnChange(fn func(*gateway.Session)) {
	f.mu.Lock()
	f.cbs = append(f.cbs, fn)
	f.mu.Unlock()
}

// fakeRemote is an in-memory remote data gateway. Hooks allow tests to fail
// or block individual calls.
type fakeRemote struct {
	mu       sync.Mutex
	rooms    []model.Room
	members  []model.RoomMember
	messages map[string][]model.MessageRow
	profiles []model.Profile

	nextMsgID  int
	insertErr  error
	historyErr error

	insertRoomCalls int
	insertRoomDelay time.Duration

	messagesGate chan struct{} // when set, Messages blocks until closed
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{messages: make(map[string][]model.MessageRow)}
}

func (f *fakeRemote) Rooms(ctx context.Context) ([]model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Room, len(f.rooms))
	copy(out, f.rooms)
	return out, nil
}

func (f *fakeRemote) Profiles(ctx context.Context) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Profile, len(f.profiles))
	copy(out, f.profiles)
	return out, nil
}

func (f *fakeRemote) Messages(ctx context.Context, roomID string) ([]model.MessageRow, error) {
	f.mu.Lock()
	gate := f.messagesGate
	err := f.historyErr
	rows := make([]model.MessageRow, len(f.messages[roomID]))
	copy(rows, f.messages[roomID])
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *fakeRemote) MembershipsForUser(ctx context.Context, userID string) ([]model.RoomMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.RoomMember
	for _, m := range f.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRemote) MembershipsForRooms(ctx context.Context, roomIDs []string) ([]model.RoomMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		in[id] = true
	}
	var out []model.RoomMember
	for _, m := range f.members {
		if in[m.RoomID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRemote) InsertMessage(ctx context.Context, row model.MessageRow) (model.MessageRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return model.MessageRow{}, f.insertErr
	}
	f.nextMsgID++
	row.ID = fmt.Sprintf("srv-%d", f.nextMsgID)
	row.CreatedAt = time.Now()
	f.messages[row.RoomID] = append(f.messages[row.RoomID], row)
	return row, nil
}

func (f *fakeRemote) InsertRoom(ctx context.Context, room model.Room) (model.Room, error) {
	f.mu.Lock()
	f.insertRoomCalls++
	delay := f.insertRoomDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	room.CreatedAt = time.Now()
	f.rooms = append(f.rooms, room)
	return room, nil
}

func (f *fakeRemote) InsertMembers(ctx context.Context, members []model.RoomMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = append(f.members, members...)
	return nil
}

func (f *fakeRemote) UpsertProfile(ctx context.Context, p model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.profiles {
		if existing.ID == p.ID {
			return nil
		}
	}
	f.profiles = append(f.profiles, p)
	return nil
}

// fakeFeed records subscription lifecycle and lets tests push events.
type fakeFeed struct {
	mu     sync.Mutex
	log    []string // "sub:<key>" / "unsub:<key>" in order
	active map[string]func(map[string]any)
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{active: make(map[string]func(map[string]any))}
}

func (f *fakeFeed) Subscribe(channelKey string, onInsert func(row map[string]any)) (gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "sub:"+channelKey)
	f.active[channelKey] = onInsert
	return &fakeSub{feed: f, key: channelKey}, nil
}

func (f *fakeFeed) emit(channelKey string, row map[string]any) {
	f.mu.Lock()
	fn := f.active[channelKey]
	f.mu.Unlock()
	if fn != nil {
		fn(row)
	}
}

func (f *fakeFeed) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.log))
	copy(out, f.log)
	return out
}

type fakeSub struct {
	feed *fakeFeed
	key  string
}

func (s *fakeSub) Unsubscribe() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	s.feed.log = append(s.feed.log, "unsub:"+s.key)
	delete(s.feed.active, s.key)
	return nil
}

// fakePresence delivers snapshots pushed by the test.
type fakePresence struct {
	mu        sync.Mutex
	onSync    func([]string)
	announced []string
}

func (f *fakePresence) Subscribe(channelKey string, onSync func(members []string)) (gateway.PresenceHandle, error) {
	f.mu.Lock()
	f.onSync = onSync
	f.mu.Unlock()
	return f, nil
}

func (f *fakePresence) Announce(selfKey string, metadata map[string]string) error {
	f.mu.Lock()
	f.announced = append(f.announced, selfKey)
	f.mu.Unlock()
	return nil
}

func (f *fakePresence) Leave() error { return nil }

func (f *fakePresence) sync(members []string) {
	f.mu.Lock()
	fn := f.onSync
	f.mu.Unlock()
	if fn != nil {
		fn(members)
	}
}
