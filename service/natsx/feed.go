// Package natsx adapts a NATS deployment as the change-feed transport: one
// subject per conversation channel, JSON row payloads.
package natsx

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"PulseChat/logger"
	"PulseChat/service/gateway"
	"PulseChat/tools/errs"
	"PulseChat/tools/safe"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const subjectPrefix = "chat.feed."

type Config struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

type Feed struct {
	nc *nats.Conn

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

var _ gateway.ChangeFeed = (*Feed)(nil)

func New(cfg Config) (*Feed, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrSubscribe.WithDetail("nats servers missing").Wrap()
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect")
	}
	return &Feed{nc: nc, subs: make(map[*subscription]struct{})}, nil
}

// Subject maps a channel key onto the feed subject space.
func Subject(channelKey string) string { return subjectPrefix + channelKey }

func (f *Feed) Subscribe(channelKey string, onInsert func(row map[string]any)) (gateway.Subscription, error) {
	sub, err := f.nc.Subscribe(Subject(channelKey), func(m *nats.Msg) {
		var row map[string]any
		if err := json.Unmarshal(m.Data, &row); err != nil {
			logger.Error("feed payload decode failed",
				zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		safe.SafeCall(func() { onInsert(row) })
	})
	if err != nil {
		return nil, errs.ErrSubscribe.WrapMsg(err.Error(), "channel", channelKey)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)

	s := &subscription{feed: f, sub: sub}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
	return s, nil
}

// Publish emits a row-insert event; used by tooling and tests, the production
// emitter is the backend platform.
func (f *Feed) Publish(channelKey string, row map[string]any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return errs.WrapMsg(err, "marshal row")
	}
	return errs.Wrap(f.nc.Publish(Subject(channelKey), data))
}

func (f *Feed) Close() error {
	f.mu.Lock()
	for s := range f.subs {
		_ = s.sub.Unsubscribe()
	}
	f.subs = make(map[*subscription]struct{})
	f.mu.Unlock()
	f.nc.Close()
	return nil
}

type subscription struct {
	feed *Feed
	sub  *nats.Subscription
	once sync.Once
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
	})
	return errs.Wrap(err)
}
