package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

const consumeRetryBackoff = 2 * time.Second

// MessageHandler processes a single consumed record.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// ConsumerGroup routes records from subscribed topics to their handlers.
// Handler failures are logged and the offset is still marked; every
// consumer in this module is idempotent, so a poison record must not stall
// its partition.
type ConsumerGroup struct {
	group    sarama.ConsumerGroup
	prefix   string
	handlers map[string]MessageHandler
	logger   *zap.Logger
}

// NewConsumerGroup joins the configured consumer group.
func NewConsumerGroup(cfg config.KafkaSettings, logger *zap.Logger) (*ConsumerGroup, error) {
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafka consumer group is required")
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, newSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return newConsumerGroup(group, cfg.TopicPrefix, logger), nil
}

// NewBroadcastConsumerGroup joins a group of its own so this process sees
// every record, as cache invalidations require. It starts at the newest
// offset; earlier invalidations are already covered by the cache TTLs.
func NewBroadcastConsumerGroup(cfg config.KafkaSettings, logger *zap.Logger) (*ConsumerGroup, error) {
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafka consumer group is required")
	}
	saramaConfig := newSaramaConfig()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	groupID := cfg.ConsumerGroup + ".broadcast." + ksuid.New().String()
	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka broadcast group: %w", err)
	}
	return newConsumerGroup(group, cfg.TopicPrefix, logger), nil
}

func newConsumerGroup(group sarama.ConsumerGroup, prefix string, logger *zap.Logger) *ConsumerGroup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsumerGroup{
		group:    group,
		prefix:   prefix,
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

// Handle registers handler for the topic suffix. Call before Run.
func (c *ConsumerGroup) Handle(suffix string, handler MessageHandler) {
	c.handlers[topicName(c.prefix, suffix)] = handler
}

// Topics lists the subscribed topics.
func (c *ConsumerGroup) Topics() []string {
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Run consumes until ctx is cancelled or the group is closed.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	topics := c.Topics()
	if len(topics) == 0 {
		return nil
	}

	c.logger.Info("kafka consumer started", zap.Strings("topics", topics))
	for {
		if err := c.group.Consume(ctx, topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Warn("kafka consume session ended", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(consumeRetryBackoff):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (c *ConsumerGroup) Close() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	return nil
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroup) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroup) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroup) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.dispatch(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *ConsumerGroup) dispatch(ctx context.Context, msg *sarama.ConsumerMessage) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		c.logger.Warn("no handler for topic", zap.String("topic", msg.Topic))
		return
	}
	if err := handler.HandleMessage(ctx, msg); err != nil {
		c.logger.Error("kafka message handling failed",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}

var _ sarama.ConsumerGroupHandler = (*ConsumerGroup)(nil)
