package state

import (
	"context"
	"sync"
	"time"

	"PulseChat/logger"
	"PulseChat/module/chat/model"
	"PulseChat/service/gateway"
	"PulseChat/tools/errs"
	"PulseChat/tools/ids"

	"go.uber.org/zap"
)

// SendFailure is published when a persist call fails and the optimistic entry
// has been rolled back.
type SendFailure struct {
	ConversationID string
	Content        string
	Err            error
}

// Ledger owns the ordered, deduplicated message list of the currently selected
// conversation. It merges three sources: locally optimistic sends, confirmed
// inserts and inbound change-feed events. The list is append-only per
// conversation; switching conversations invalidates in-flight responses via a
// generation counter.
type Ledger struct {
	remote   gateway.Remote
	sessions gateway.SessionProvider

	mu     sync.Mutex
	convID string
	gen    uint64
	list   []model.Message

	messages *State[[]model.Message]
	failures *Events[SendFailure]
}

func NewLedger(remote gateway.Remote, sessions gateway.SessionProvider) *Ledger {
	return &Ledger{
		remote:   remote,
		sessions: sessions,
		messages: NewState[[]model.Message](nil),
		failures: NewEvents[SendFailure](),
	}
}

func (l *Ledger) Messages() *State[[]model.Message] { return l.messages }
func (l *Ledger) Failures() *Events[SendFailure]    { return l.failures }

// SwitchTo rekeys the ledger to a new conversation. The generation bump drops
// any response still in flight for the previous conversation; the visible list
// is discarded so stale rows never bleed into the new conversation.
func (l *Ledger) SwitchTo(conversationID string) {
	l.mu.Lock()
	if l.convID == conversationID {
		l.mu.Unlock()
		return
	}
	l.convID = conversationID
	l.gen++
	l.list = nil
	l.mu.Unlock()
	l.publish()
}

// LoadHistory replaces the message list with the persisted history of
// conversationID, ascending by creation time. On failure the previous list is
// retained. A response that lands after the selection moved on is dropped.
func (l *Ledger) LoadHistory(ctx context.Context, conversationID string) {
	l.mu.Lock()
	if l.convID != conversationID {
		l.mu.Unlock()
		return
	}
	gen := l.gen
	l.mu.Unlock()

	rows, err := l.remote.Messages(ctx, conversationID)
	if err != nil {
		logger.Error("load history failed, keeping prior list",
			zap.String("conversation", conversationID), zap.Error(err))
		return
	}

	self := ""
	if s, ok := l.sessions.Current(); ok {
		self = s.UserID
	}

	msgs := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, historyMessage(r, self))
	}

	l.mu.Lock()
	if l.gen != gen {
		// selection switched while the fetch was in flight
		l.mu.Unlock()
		return
	}
	l.list = msgs
	l.mu.Unlock()
	l.publish()
}

// Send appends an optimistic entry with a temp id and sent state, then issues
// the persist call. On success the entry is replaced in place with the
// server-assigned id, delivered state and server timestamp. On failure the
// entry is removed and the failure published.
func (l *Ledger) Send(ctx context.Context, content string) error {
	sess, ok := l.sessions.Current()
	if !ok {
		logger.Warn("send dropped: no active session")
		return errs.ErrNoSession.Wrap()
	}

	l.mu.Lock()
	convID := l.convID
	if convID == "" {
		l.mu.Unlock()
		logger.Warn("send dropped: no conversation selected")
		return errs.ErrNoSelection.Wrap()
	}

	tempID := ids.TempMessageID()
	l.list = append(l.list, model.Message{
		ID:        tempID,
		Content:   content,
		Sender:    model.OwnDisplayName,
		SenderID:  sess.UserID,
		Avatar:    model.OwnAvatar,
		CreatedAt: time.Now(),
		IsOwn:     true,
		State:     model.DeliverySent,
	})
	l.mu.Unlock()
	l.publish()

	row, err := l.remote.InsertMessage(ctx, model.MessageRow{
		RoomID:  convID,
		UserID:  sess.UserID,
		Content: content,
	})
	if err != nil {
		l.removeByID(tempID)
		logger.Error("send failed, optimistic entry rolled back",
			zap.String("conversation", convID), zap.Error(err))
		l.failures.Publish(SendFailure{ConversationID: convID, Content: content, Err: err})
		return errs.ErrGatewayInsert.WrapMsg(err.Error())
	}

	l.confirm(tempID, row)
	return nil
}

// ApplyRemoteInsert merges an inbound change-feed row. Duplicate ids and own
// echoes are silent no-ops; rows of another conversation are dropped.
func (l *Ledger) ApplyRemoteInsert(row model.MessageRow) {
	self := ""
	if s, ok := l.sessions.Current(); ok {
		self = s.UserID
	}

	l.mu.Lock()
	if row.RoomID != l.convID {
		l.mu.Unlock()
		return
	}
	for _, m := range l.list {
		if m.ID == row.ID {
			l.mu.Unlock()
			return
		}
	}
	if row.UserID == self {
		// own echo, reconciled by Send's confirmation path
		l.mu.Unlock()
		return
	}
	sender := row.SenderName
	if sender == "" {
		sender = model.FallbackSenderName(row.UserID)
	}
	avatar := row.SenderAvatar
	if avatar == "" {
		avatar = model.DefaultAvatar
	}
	l.list = append(l.list, model.Message{
		ID:        row.ID,
		Content:   row.Content,
		Sender:    sender,
		SenderID:  row.UserID,
		Avatar:    avatar,
		CreatedAt: row.CreatedAt,
		IsOwn:     false,
		State:     model.DeliveryRead,
	})
	l.mu.Unlock()
	l.publish()
}

// ConversationID returns the conversation the ledger is currently keyed to.
func (l *Ledger) ConversationID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.convID
}

func (l *Ledger) Snapshot() []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Message, len(l.list))
	copy(out, l.list)
	return out
}

func (l *Ledger) confirm(tempID string, row model.MessageRow) {
	l.mu.Lock()
	for i := range l.list {
		if l.list[i].ID == tempID {
			l.list[i].ID = row.ID
			l.list[i].State = model.DeliveryDelivered
			if !row.CreatedAt.IsZero() {
				l.list[i].CreatedAt = row.CreatedAt
			}
			break
		}
	}
	l.mu.Unlock()
	l.publish()
}

func (l *Ledger) removeByID(id string) {
	l.mu.Lock()
	out := l.list[:0]
	for _, m := range l.list {
		if m.ID != id {
			out = append(out, m)
		}
	}
	l.list = out
	l.mu.Unlock()
	l.publish()
}

func (l *Ledger) publish() {
	l.messages.Set(l.Snapshot())
}

func historyMessage(r model.MessageRow, self string) model.Message {
	own := r.UserID == self
	sender := r.SenderName
	avatar := r.SenderAvatar
	if own {
		sender = model.OwnDisplayName
		if avatar == "" {
			avatar = model.OwnAvatar
		}
	}
	if sender == "" {
		sender = model.FallbackSenderName(r.UserID)
	}
	if avatar == "" {
		avatar = model.DefaultAvatar
	}
	return model.Message{
		ID:        r.ID,
		Content:   r.Content,
		Sender:    sender,
		SenderID:  r.UserID,
		Avatar:    avatar,
		CreatedAt: r.CreatedAt,
		IsOwn:     own,
		State:     model.DeliveryRead, // history defaults to read
	}
}
