// Package kafka adapts a Kafka cluster as the change-feed transport: one topic
// per conversation channel, JSON row payloads. Config-selected alternative to
// service/natsx.
package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"PulseChat/logger"
	"PulseChat/service/gateway"
	"PulseChat/tools/errs"
	"PulseChat/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

const topicPrefix = "chat.feed."

type Config struct {
	Brokers []string
	GroupID string
}

type Feed struct {
	cfg    Config
	client sarama.Client
}

var _ gateway.ChangeFeed = (*Feed)(nil)

func New(cfg Config) (*Feed, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errs.ErrSubscribe.WithDetail("kafka brokers missing").Wrap()
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka client")
	}
	return &Feed{cfg: cfg, client: client}, nil
}

// Topic maps a channel key to a Kafka topic name; ':' is not a legal topic
// character.
func Topic(channelKey string) string {
	return topicPrefix + strings.ReplaceAll(channelKey, ":", ".")
}

func (f *Feed) Subscribe(channelKey string, onInsert func(row map[string]any)) (gateway.Subscription, error) {
	group, err := sarama.NewConsumerGroupFromClient(f.cfg.GroupID, f.client)
	if err != nil {
		return nil, errs.ErrSubscribe.WrapMsg(err.Error(), "channel", channelKey)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{group: group, cancel: cancel, done: make(chan struct{})}

	h := &handler{onInsert: onInsert}
	safe.SafeGo(func() {
		defer close(s.done)
		for {
			if err := group.Consume(ctx, []string{Topic(channelKey)}, h); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("kafka consume loop error",
					zap.String("channel", channelKey), zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	})
	return s, nil
}

func (f *Feed) Close() error {
	return errs.Wrap(f.client.Close())
}

type subscription struct {
	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = s.group.Close()
	})
	return errs.Wrap(err)
}

type handler struct {
	onInsert func(row map[string]any)
}

func (h *handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var row map[string]any
		if err := json.Unmarshal(msg.Value, &row); err != nil {
			logger.Error("feed payload decode failed",
				zap.String("topic", msg.Topic), zap.Error(err))
			sess.MarkMessage(msg, "")
			continue
		}
		safe.SafeCall(func() { h.onInsert(row) })
		sess.MarkMessage(msg, "")
	}
	return nil
}
