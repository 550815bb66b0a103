package state

import (
	"context"
	"sync"

	"PulseChat/logger"
	"PulseChat/module/chat/model"
	"PulseChat/service/gateway"
	"PulseChat/tools/decode"
	"PulseChat/tools/errs"
	"PulseChat/tools/safe"

	"go.uber.org/zap"
)

// ChannelKey is the change-feed channel of one conversation.
func ChannelKey(roomID string) string { return "room:" + roomID }

// Engine wires the directory, ledger and presence tracker to the gateway
// adapters and owns the change-feed subscription lifecycle: at most one active
// subscription, torn down before (never after) the next one is opened on a
// conversation switch.
type Engine struct {
	remote   gateway.Remote
	feed     gateway.ChangeFeed
	presence gateway.Presence
	sessions gateway.SessionProvider

	Directory *Directory
	Ledger    *Ledger
	Tracker   *Tracker

	subMu sync.Mutex
	sub   gateway.Subscription

	vm *State[ViewModel]
}

func NewEngine(
	remote gateway.Remote,
	feed gateway.ChangeFeed,
	presence gateway.Presence,
	sessions gateway.SessionProvider,
) *Engine {
	e := &Engine{
		remote:    remote,
		feed:      feed,
		presence:  presence,
		sessions:  sessions,
		Directory: NewDirectory(remote, sessions),
		Ledger:    NewLedger(remote, sessions),
		Tracker:   NewTracker(),
		vm:        NewState(Compose(nil, "", nil, nil, 0, 0)),
	}
	e.Directory.SetOnSelect(e.onSelect)
	return e
}

// View is the composed render-ready snapshot stream.
func (e *Engine) View() *State[ViewModel] { return e.vm }

// Start bootstraps the engine for the current session: profile upsert,
// conversation and participant loads, direct mapping, presence. Each load
// degrades independently; a failed fetch keeps prior state.
func (e *Engine) Start(ctx context.Context) error {
	sess, ok := e.sessions.Current()
	if !ok {
		return errs.ErrNoSession.Wrap()
	}

	if err := e.remote.UpsertProfile(ctx, model.ProfileFromEmail(sess.UserID, sess.Email)); err != nil {
		logger.Error("profile bootstrap failed", zap.Error(err))
	}

	e.Directory.LoadParticipantDirectory(ctx)
	// conversations before the mapping rebuild: resolving which rooms are
	// direct needs the room list
	e.Directory.LoadConversations(ctx)
	if err := e.Directory.RefreshDirectMapping(ctx, sess.UserID); err != nil {
		logger.Error("initial direct mapping failed", zap.Error(err))
	}

	if err := e.Tracker.Start(e.presence, sess.UserID); err != nil {
		logger.Error("presence start failed", zap.Error(err))
	}

	e.wireView()

	e.sessions.OnChange(func(s *gateway.Session) {
		if s == nil {
			logger.Info("session ended, presence released")
			e.Tracker.Stop()
		}
	})
	return nil
}

// Send persists content to the selected conversation.
func (e *Engine) Send(ctx context.Context, content string) error {
	return e.Ledger.Send(ctx, content)
}

// SelectConversation selects a target by raw sidebar id, tagging the
// namespace first.
func (e *Engine) SelectConversation(ctx context.Context, id string) (string, error) {
	return e.Directory.ResolveSelection(ctx, e.Directory.RefFor(id))
}

// StartOrOpenDirectConversation opens the existing direct room with a
// participant or lazily creates one.
func (e *Engine) StartOrOpenDirectConversation(ctx context.Context, participantID string) (string, error) {
	return e.Directory.ResolveSelection(ctx, model.ParticipantRef(participantID))
}

func (e *Engine) Close() {
	e.subMu.Lock()
	sub := e.sub
	e.sub = nil
	e.subMu.Unlock()
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			logger.Error("unsubscribe failed", zap.Error(err))
		}
	}
	e.Tracker.Stop()
}

// onSelect runs on every conversation switch: rekey the ledger, swap the
// change-feed subscription (old one first), then load history off the caller's
// turn.
func (e *Engine) onSelect(roomID string) {
	e.Ledger.SwitchTo(roomID)
	e.resubscribe(roomID)
	safe.SafeGo(func() {
		e.Ledger.LoadHistory(context.Background(), roomID)
	})
}

func (e *Engine) resubscribe(roomID string) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	if e.sub != nil {
		if err := e.sub.Unsubscribe(); err != nil {
			logger.Error("unsubscribe previous channel failed",
				zap.String("room", roomID), zap.Error(err))
		}
		e.sub = nil
	}

	sub, err := e.feed.Subscribe(ChannelKey(roomID), e.onFeedEvent)
	if err != nil {
		logger.Error("change feed subscribe failed",
			zap.String("room", roomID), zap.Error(err))
		return
	}
	e.sub = sub
}

// onFeedEvent decodes an inbound row-insert and routes it: rows of the
// selected conversation merge into the ledger, rows of any other room only
// bump its unread counter.
func (e *Engine) onFeedEvent(row map[string]any) {
	ev, err := decode.DecodeRow[model.MessageRow](row)
	if err != nil {
		logger.Error("change feed row decode failed", zap.Error(err))
		return
	}
	if ev.RoomID == e.Ledger.ConversationID() {
		e.Ledger.ApplyRemoteInsert(*ev)
		return
	}
	e.Directory.IncrementUnread(ev.RoomID)
}

// wireView recomputes the composed view model whenever any input stream moves.
func (e *Engine) wireView() {
	recompute := func() {
		online := e.Tracker.Online().Get()
		onlineSet := make(map[string]struct{}, len(online))
		for _, id := range online {
			onlineSet[id] = struct{}{}
		}

		dms := e.Directory.DirectConversations().Get()
		withOnline := make([]model.DirectConversation, len(dms))
		copy(withOnline, dms)
		for i := range withOnline {
			_, withOnline[i].Online = onlineSet[withOnline[i].PeerID]
		}

		e.vm.Set(Compose(
			e.Ledger.Messages().Get(),
			e.Directory.Selected().Get(),
			e.Directory.Rooms().Get(),
			withOnline,
			len(online),
			len(e.Directory.Profiles().Get()),
		))
	}

	e.Ledger.Messages().Subscribe(func([]model.Message) { recompute() })
	e.Directory.Selected().Subscribe(func(string) { recompute() })
	e.Directory.Rooms().Subscribe(func([]model.Room) { recompute() })
	e.Directory.DirectConversations().Subscribe(func([]model.DirectConversation) { recompute() })
	e.Directory.Profiles().Subscribe(func([]model.Profile) { recompute() })
	e.Tracker.Online().Subscribe(func([]string) { recompute() })
}
