// Package storage implements the presence channel on Redis: TTL'd member keys
// plus a pub/sub channel that tells every peer to re-read the full snapshot.
// Sync callbacks always carry the whole member set, never a diff.
package storage

import (
	"context"
	"sync"
	"time"

	"PulseChat/logger"
	"PulseChat/service/gateway"
	"PulseChat/tools/errs"
	"PulseChat/tools/safe"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presencePrefix = "im:presence:"
	syncPrefix     = "im:presence:sync:"

	defaultTTL     = 30 * time.Second
	heartbeatEvery = 10 * time.Second
	scanBatch      = 200
)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type Presence struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ gateway.Presence = (*Presence)(nil)

func New(c Config) (*Presence, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errs.WrapMsg(err, "redis ping", "addr", c.Addr)
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Presence{rdb: rdb, ttl: ttl}, nil
}

func memberKey(channel, member string) string { return presencePrefix + channel + ":" + member }
func syncChannel(channel string) string       { return syncPrefix + channel }

func (p *Presence) Subscribe(channelKey string, onSync func(members []string)) (gateway.PresenceHandle, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := p.rdb.Subscribe(ctx, syncChannel(channelKey))
	// force the subscription before first use
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		return nil, errs.ErrPresence.WrapMsg(err.Error(), "channel", channelKey)
	}

	h := &handle{p: p, channel: channelKey, ctx: ctx, cancel: cancel, sub: sub}

	fire := func() {
		members, err := p.snapshot(ctx, channelKey)
		if err != nil {
			logger.Error("presence snapshot failed",
				zap.String("channel", channelKey), zap.Error(err))
			return
		}
		safe.SafeCall(func() { onSync(members) })
	}

	safe.SafeGo(func() {
		ch := sub.Channel()
		fire() // initial snapshot
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				fire()
			}
		}
	})
	return h, nil
}

// snapshot scans the member-key space of a channel and strips the prefix.
func (p *Presence) snapshot(ctx context.Context, channel string) ([]string, error) {
	prefix := presencePrefix + channel + ":"
	var (
		cursor  uint64
		members []string
	)
	for {
		keys, next, err := p.rdb.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, errs.Wrap(err)
		}
		for _, k := range keys {
			members = append(members, k[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			return members, nil
		}
	}
}

type handle struct {
	p       *Presence
	channel string
	ctx     context.Context
	cancel  context.CancelFunc
	sub     *redis.PubSub

	mu      sync.Mutex
	selfKey string
	beating bool
}

// Announce marks selfKey online, renews its TTL on a heartbeat, and tells
// every subscriber to re-sync.
func (h *handle) Announce(selfKey string, metadata map[string]string) error {
	val := "1"
	if at, ok := metadata["online_at"]; ok {
		val = at
	}
	if err := h.p.rdb.Set(h.ctx, memberKey(h.channel, selfKey), val, h.p.ttl).Err(); err != nil {
		return errs.ErrPresence.WrapMsg(err.Error(), "self", selfKey)
	}
	if err := h.p.rdb.Publish(h.ctx, syncChannel(h.channel), selfKey).Err(); err != nil {
		return errs.ErrPresence.WrapMsg(err.Error(), "self", selfKey)
	}

	h.mu.Lock()
	h.selfKey = selfKey
	start := !h.beating
	h.beating = true
	h.mu.Unlock()

	if start {
		safe.SafeGo(h.heartbeat)
	}
	return nil
}

func (h *handle) heartbeat() {
	t := time.NewTicker(heartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-t.C:
			h.mu.Lock()
			self := h.selfKey
			h.mu.Unlock()
			if err := h.p.rdb.Expire(h.ctx, memberKey(h.channel, self), h.p.ttl).Err(); err != nil {
				logger.Error("presence heartbeat failed", zap.String("self", self), zap.Error(err))
			}
			// peers with expired keys drop from the next snapshot
			_ = h.p.rdb.Publish(h.ctx, syncChannel(h.channel), self).Err()
		}
	}
}

func (h *handle) Leave() error {
	h.mu.Lock()
	self := h.selfKey
	h.mu.Unlock()

	var err error
	if self != "" {
		err = h.p.rdb.Del(context.Background(), memberKey(h.channel, self)).Err()
		_ = h.p.rdb.Publish(context.Background(), syncChannel(h.channel), self).Err()
	}
	h.cancel()
	_ = h.sub.Close()
	return errs.Wrap(err)
}
