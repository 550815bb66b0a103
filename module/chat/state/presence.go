package state

import (
	"sort"
	"sync"
	"time"

	"PulseChat/logger"
	"PulseChat/service/gateway"
	"PulseChat/tools/errs"

	"go.uber.org/zap"
)

// PresenceChannelKey is the single shared presence channel all clients join.
const PresenceChannelKey = "online-users"

// Tracker maintains the set of currently connected user ids. Every sync event
// replaces the whole set; stale entries from a previous snapshot never linger.
type Tracker struct {
	mu     sync.Mutex
	online map[string]struct{}
	handle gateway.PresenceHandle

	out *State[[]string]
}

func NewTracker() *Tracker {
	return &Tracker{
		online: make(map[string]struct{}),
		out:    NewState[[]string](nil),
	}
}

// Online exposes the online-set as a sorted read-only stream.
func (t *Tracker) Online() *State[[]string] { return t.out }

// Start joins the presence channel keyed by the current user and announces
// itself as online.
func (t *Tracker) Start(ch gateway.Presence, selfKey string) error {
	h, err := ch.Subscribe(PresenceChannelKey, t.ApplySync)
	if err != nil {
		return errs.ErrPresence.WrapMsg(err.Error())
	}
	t.mu.Lock()
	t.handle = h
	t.mu.Unlock()

	meta := map[string]string{"online_at": time.Now().UTC().Format(time.RFC3339)}
	if err := h.Announce(selfKey, meta); err != nil {
		logger.Error("presence announce failed", zap.String("self", selfKey), zap.Error(err))
		return errs.ErrPresence.WrapMsg(err.Error())
	}
	return nil
}

// ApplySync replaces the online-set with the snapshot the channel reports.
func (t *Tracker) ApplySync(members []string) {
	next := make(map[string]struct{}, len(members))
	for _, m := range members {
		next[m] = struct{}{}
	}

	t.mu.Lock()
	t.online = next
	t.mu.Unlock()

	sorted := make([]string, 0, len(members))
	for m := range next {
		sorted = append(sorted, m)
	}
	sort.Strings(sorted)
	t.out.Set(sorted)
}

func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.online)
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	h := t.handle
	t.handle = nil
	t.mu.Unlock()
	if h != nil {
		if err := h.Leave(); err != nil {
			logger.Error("presence leave failed", zap.Error(err))
		}
	}
}
