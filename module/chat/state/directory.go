package state

import (
	"context"
	"sort"
	"sync"

	"PulseChat/logger"
	"PulseChat/module/chat/model"
	"PulseChat/service/gateway"
	"PulseChat/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Directory knows which conversations exist, which are direct, and resolves
// ambiguous selection targets. It owns the room list, the participant
// directory, the peer -> direct-room mapping and the current selection.
type Directory struct {
	remote   gateway.Remote
	sessions gateway.SessionProvider

	mu       sync.Mutex
	rooms    []model.Room             // public rooms, gateway order (created_at asc)
	allRooms map[string]model.Room    // every room incl. direct, by id
	profiles map[string]model.Profile // every known user, by id
	mapping  map[string]string        // peer user id -> canonical direct room id
	unread   map[string]int           // room id -> local unread count
	selected string

	// creation guard: concurrent resolution calls for the same peer share one
	// in-flight room create instead of issuing a second insert
	createGroup singleflight.Group

	// onSelect is the engine hook; fired outside the directory lock
	onSelect func(roomID string)

	roomsOut    *State[[]model.Room]
	dmsOut      *State[[]model.DirectConversation]
	selectedOut *State[string]
	profilesOut *State[[]model.Profile]
}

func NewDirectory(remote gateway.Remote, sessions gateway.SessionProvider) *Directory {
	return &Directory{
		remote:      remote,
		sessions:    sessions,
		allRooms:    make(map[string]model.Room),
		profiles:    make(map[string]model.Profile),
		mapping:     make(map[string]string),
		unread:      make(map[string]int),
		roomsOut:    NewState[[]model.Room](nil),
		dmsOut:      NewState[[]model.DirectConversation](nil),
		selectedOut: NewState[string](""),
		profilesOut: NewState[[]model.Profile](nil),
	}
}

func (d *Directory) Rooms() *State[[]model.Room] { return d.roomsOut }

func (d *Directory) DirectConversations() *State[[]model.DirectConversation] { return d.dmsOut }

func (d *Directory) Selected() *State[string] { return d.selectedOut }

func (d *Directory) Profiles() *State[[]model.Profile] { return d.profilesOut }

// SetOnSelect registers the selection side-effect hook (history load and
// change-feed resubscribe). Must be set before the first load.
func (d *Directory) SetOnSelect(fn func(roomID string)) { d.onSelect = fn }

// LoadConversations fetches all rooms and partitions them into public rooms
// and direct rooms. If nothing is selected yet and a public room exists, the
// first one (by the gateway's deterministic ordering) is selected.
func (d *Directory) LoadConversations(ctx context.Context) {
	rooms, err := d.remote.Rooms(ctx)
	if err != nil {
		logger.Error("load conversations failed, keeping prior state", zap.Error(err))
		return
	}

	d.mu.Lock()
	d.allRooms = make(map[string]model.Room, len(rooms))
	pub := make([]model.Room, 0, len(rooms))
	for _, r := range rooms {
		d.allRooms[r.ID] = r
		if !r.IsDirect {
			pub = append(pub, r)
		}
	}
	d.rooms = pub
	autoSelect := ""
	if d.selected == "" && len(pub) > 0 {
		autoSelect = pub[0].ID
	}
	d.mu.Unlock()

	d.publishRooms()
	d.publishDMs()

	if autoSelect != "" {
		d.Select(autoSelect)
	}
}

// LoadParticipantDirectory fetches all known user profiles, independent of
// conversation membership, so a direct conversation can be started with
// anyone in the system.
func (d *Directory) LoadParticipantDirectory(ctx context.Context) {
	profiles, err := d.remote.Profiles(ctx)
	if err != nil {
		logger.Error("load participant directory failed, keeping prior state", zap.Error(err))
		return
	}

	d.mu.Lock()
	d.profiles = make(map[string]model.Profile, len(profiles))
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	d.mu.Unlock()

	d.profilesOut.Set(profiles)
	d.publishDMs()
}

// RefreshDirectMapping rebuilds the peer -> direct-room mapping for the
// current user: fetch the user's memberships, then all memberships of that
// room set, keep rooms flagged direct with exactly two members, first
// discovered wins. The mapping is replaced wholesale, never patched.
func (d *Directory) RefreshDirectMapping(ctx context.Context, currentUserID string) error {
	mine, err := d.remote.MembershipsForUser(ctx, currentUserID)
	if err != nil {
		logger.Error("refresh direct mapping failed, keeping prior mapping", zap.Error(err))
		return errs.ErrGatewayQuery.WrapMsg(err.Error())
	}
	roomIDs := make([]string, 0, len(mine))
	for _, m := range mine {
		roomIDs = append(roomIDs, m.RoomID)
	}

	members, err := d.remote.MembershipsForRooms(ctx, roomIDs)
	if err != nil {
		logger.Error("refresh direct mapping failed, keeping prior mapping", zap.Error(err))
		return errs.ErrGatewayQuery.WrapMsg(err.Error())
	}

	byRoom := make(map[string][]string)
	for _, m := range members {
		byRoom[m.RoomID] = append(byRoom[m.RoomID], m.UserID)
	}

	d.mu.Lock()
	mapping := make(map[string]string)
	// iterate in a stable order so "first discovered wins" is deterministic
	ordered := make([]string, 0, len(byRoom))
	for id := range byRoom {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		ri, rj := d.allRooms[ordered[i]], d.allRooms[ordered[j]]
		if ri.CreatedAt.Equal(rj.CreatedAt) {
			return ordered[i] < ordered[j]
		}
		return ri.CreatedAt.Before(rj.CreatedAt)
	})
	for _, roomID := range ordered {
		room, ok := d.allRooms[roomID]
		if !ok || !room.IsDirect {
			continue
		}
		ids := byRoom[roomID]
		if !model.IsCanonicalDirect(len(ids)) {
			// a direct-flagged room with extra members is never a 1:1 target
			continue
		}
		for _, uid := range ids {
			if uid == currentUserID {
				continue
			}
			if _, exists := mapping[uid]; !exists {
				mapping[uid] = roomID
			}
		}
	}
	d.mapping = mapping
	d.mu.Unlock()

	d.publishDMs()
	return nil
}

// RefFor tags a raw sidebar id with its namespace: a known room id selects a
// room, anything else is treated as a participant id.
func (d *Directory) RefFor(id string) model.ConversationRef {
	d.mu.Lock()
	_, isRoom := d.allRooms[id]
	d.mu.Unlock()
	if isRoom {
		return model.RoomRef(id)
	}
	return model.ParticipantRef(id)
}

// ResolveSelection resolves a selection target and selects the backing room,
// creating a direct room lazily when none exists yet for the peer. Concurrent
// calls for the same participant converge on one creation; from the caller's
// point of view the transition is straight to mapped-and-selected.
func (d *Directory) ResolveSelection(ctx context.Context, ref model.ConversationRef) (string, error) {
	if ref.IsRoom() {
		d.mu.Lock()
		_, ok := d.allRooms[ref.ID]
		d.mu.Unlock()
		if !ok {
			return "", errs.ErrUnknownRef.WithDetail(ref.ID).Wrap()
		}
		d.Select(ref.ID)
		return ref.ID, nil
	}

	peer := ref.ID
	d.mu.Lock()
	roomID, ok := d.mapping[peer]
	d.mu.Unlock()
	if ok {
		d.Select(roomID)
		return roomID, nil
	}

	v, err, _ := d.createGroup.Do(peer, func() (any, error) {
		// another caller may have finished the create while we queued
		d.mu.Lock()
		if id, ok := d.mapping[peer]; ok {
			d.mu.Unlock()
			return id, nil
		}
		d.mu.Unlock()
		return d.createDirectRoom(ctx, peer)
	})
	if err != nil {
		return "", err
	}
	roomID = v.(string)
	d.Select(roomID)
	return roomID, nil
}

// Select sets the active conversation and fires the selection hook. Unread
// count for the newly selected room is reset.
func (d *Directory) Select(roomID string) {
	d.mu.Lock()
	d.selected = roomID
	delete(d.unread, roomID)
	fn := d.onSelect
	d.mu.Unlock()

	d.selectedOut.Set(roomID)
	d.publishRooms()
	d.publishDMs()
	if fn != nil {
		fn(roomID)
	}
}

// IncrementUnread bumps the local unread counter of a non-selected room.
func (d *Directory) IncrementUnread(roomID string) {
	d.mu.Lock()
	if roomID == d.selected {
		d.mu.Unlock()
		return
	}
	d.unread[roomID]++
	d.mu.Unlock()
	d.publishRooms()
	d.publishDMs()
}

func (d *Directory) SelectedID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// MappedRoom returns the canonical direct room for a peer, if any.
func (d *Directory) MappedRoom(peerID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.mapping[peerID]
	return id, ok
}

func (d *Directory) createDirectRoom(ctx context.Context, peer string) (string, error) {
	sess, ok := d.sessions.Current()
	if !ok {
		return "", errs.ErrNoSession.Wrap()
	}

	d.mu.Lock()
	name := "Direct"
	if p, ok := d.profiles[peer]; ok && p.Username != "" {
		name = p.Username
	}
	d.mu.Unlock()

	room, err := d.remote.InsertRoom(ctx, model.Room{
		ID:       uuid.NewString(),
		Name:     name,
		IsDirect: true,
	})
	if err != nil {
		return "", errs.ErrGatewayInsert.WrapMsg(err.Error())
	}
	if err := d.remote.InsertMembers(ctx, []model.RoomMember{
		{RoomID: room.ID, UserID: sess.UserID},
		{RoomID: room.ID, UserID: peer},
	}); err != nil {
		return "", errs.ErrGatewayInsert.WrapMsg(err.Error())
	}

	d.mu.Lock()
	d.allRooms[room.ID] = room
	d.mu.Unlock()

	if err := d.RefreshDirectMapping(ctx, sess.UserID); err != nil {
		return "", err
	}

	d.mu.Lock()
	// the mapping rebuild should have picked the new room up; fall back to it
	// directly if a concurrent membership change shadowed it
	mapped, ok := d.mapping[peer]
	if !ok {
		d.mapping[peer] = room.ID
		mapped = room.ID
	}
	d.mu.Unlock()

	logger.Info("direct room created",
		zap.String("peer", peer), zap.String("room", mapped))
	return mapped, nil
}

func (d *Directory) publishRooms() {
	d.mu.Lock()
	out := make([]model.Room, len(d.rooms))
	copy(out, d.rooms)
	for i := range out {
		out[i].Unread = d.unread[out[i].ID]
	}
	d.mu.Unlock()
	d.roomsOut.Set(out)
}

// publishDMs derives the direct-conversation list: one entry per known peer
// profile (excluding self), annotated with the mapped room id when one exists.
// Online flags are filled in by the composer from the presence tracker.
func (d *Directory) publishDMs() {
	self := ""
	if s, ok := d.sessions.Current(); ok {
		self = s.UserID
	}

	d.mu.Lock()
	peers := make([]model.Profile, 0, len(d.profiles))
	for _, p := range d.profiles {
		if p.ID == self {
			continue
		}
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })

	out := make([]model.DirectConversation, 0, len(peers))
	for _, p := range peers {
		dc := model.DirectConversation{
			PeerID: p.ID,
			Name:   p.Username,
			Avatar: p.AvatarURL,
		}
		if roomID, ok := d.mapping[p.ID]; ok {
			dc.RoomID = roomID
			dc.Unread = d.unread[roomID]
		}
		out = append(out, dc)
	}
	d.mu.Unlock()
	d.dmsOut.Set(out)
}
