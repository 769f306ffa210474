// Package kafkaconsumer applies change events from Kafka to the result cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	obs "github.com/mohammed-shakir/kg-feature-bridge/internal/core/observability"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/invalidation"
	mylog "github.com/mohammed-shakir/kg-feature-bridge/internal/logger"
)

const source = "kafka"

// Invalidator is the part of the result cache the consumer drives.
type Invalidator interface {
	InvalidateEntity(ctx context.Context, service, entity, source string) (int, error)
	InvalidateArea(ctx context.Context, service, entity string, envs []model.BBox, cells model.Cells, source string) (int, error)
	CoverPolygon(geojson string) (model.Cells, error)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	inv    Invalidator
	zlog   *zerolog.Logger
	seen   *dedupe
}

func New(cfg Config, logger *slog.Logger, inv Invalidator) *Consumer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Consumer{cfg: cfg, logger: logger, inv: inv, seen: newDedupe(cfg.DedupeSize)}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.inv == nil {
		return errors.New("kafkaconsumer: missing invalidator")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	zl := mylog.Build(mylog.Config{Level: c.cfg.LogLevel, Component: "kafka_consumer"}, nil)
	c.zlog = &zl

	handler := &groupHandler{process: c.ProcessOne, instance: c.cfg.Self, logger: c.logger}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if ctx.Err() != nil {
					continue
				}
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne applies a single event. Undecodable and invalid events are
// counted and skipped; only cache failures are returned so the message is
// retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	zl := mylog.FromContext(ctx, c.zlog)

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		zl.Error().Err(err).
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafkaConsumerError("invalid")
		zl.Warn().Err(err).
			Str("kind", "invalid").
			Int64("offset", msg.Offset).
			Msg("kafka event rejected")
		return nil
	}
	if c.cfg.Self != "" && ev.Source == c.cfg.Self {
		c.logger.Debug("skipping own event", "service", ev.Service, "entity", ev.Entity)
		return nil
	}
	key, ts := eventKey(ev), ev.TS.UnixNano()
	if c.seen.stale(key, ts) {
		c.logger.Debug("skipping already applied event", "service", ev.Service, "entity", ev.Entity, "offset", msg.Offset)
		return nil
	}

	n, err := c.apply(ctx, ev)
	obs.ObserveUpstreamLatency("kafka_invalidation", time.Since(start).Seconds())
	if err != nil {
		obs.IncKafkaConsumerError("cache")
		zl.Error().Err(err).
			Str("kind", "cache").
			Str("service", ev.Service).
			Str("entity", ev.Entity).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return fmt.Errorf("apply event: %w", err)
	}
	c.seen.record(key, ts)

	zl.Info().
		Str("event", "invalidation").
		Str("op", ev.Op).Str("service", ev.Service).Str("entity", ev.Entity).
		Int("keys", n).
		Msg("invalidated keys")
	return nil
}

func (c *Consumer) apply(ctx context.Context, ev invalidation.Event) (int, error) {
	if !ev.Spatial() {
		n, err := c.inv.InvalidateEntity(ctx, ev.Service, ev.Entity, source)
		if err != nil {
			return 0, fmt.Errorf("invalidate entity: %w", err)
		}
		return n, nil
	}

	var envs []model.BBox
	if ev.BBox != nil {
		envs = append(envs, ev.BBox.Model())
	}
	cells := model.Cells(ev.Cells)
	if len(ev.Geometry) > 0 {
		cs, err := c.inv.CoverPolygon(string(ev.Geometry))
		if err != nil {
			// an area we cannot map still changed; drop the whole entity
			c.logger.Warn("event geometry unusable, invalidating entity", "entity", ev.Entity, "err", err)
			return c.inv.InvalidateEntity(ctx, ev.Service, ev.Entity, source)
		}
		cells = append(cells, cs...)
	}
	n, err := c.inv.InvalidateArea(ctx, ev.Service, ev.Entity, envs, cells, source)
	if err != nil {
		return 0, fmt.Errorf("invalidate area: %w", err)
	}
	return n, nil
}
