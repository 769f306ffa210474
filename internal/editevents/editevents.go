// Package editevents publishes change events for successful edits so other
// bridge instances can drop their cached results.
package editevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/observability"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/invalidation"
)

type Publisher struct {
	topic   string
	source  string
	logger  *slog.Logger
	events  chan invalidation.Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	errsOut chan struct{}
}

func NewPublisher(brokers []string, topic, source string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("editevents: create async producer: %w", err)
	}
	return newWithProducer(prod, topic, source, queueSize, logger), nil
}

func newWithProducer(prod sarama.AsyncProducer, topic, source string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		topic:   topic,
		source:  source,
		logger:  logger,
		events:  make(chan invalidation.Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		errsOut: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("editevents: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Service + "/" + ev.Entity),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errsOut)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncEditEvent("failed")
				p.logger.Warn("editevents: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish queues an event for an edited entity type. It never blocks: when
// the queue is full the event is dropped and counted.
func (p *Publisher) Publish(op, service, entity string, featureID any) {
	ev := invalidation.Event{
		Version:   invalidation.Version,
		Op:        op,
		Service:   service,
		Entity:    entity,
		TS:        time.Now().UTC(),
		FeatureID: featureID,
		Source:    p.source,
	}
	select {
	case p.events <- ev:
		observability.IncEditEvent("queued")
	default:
		observability.IncEditEvent("dropped")
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errsOut
	if err != nil {
		return fmt.Errorf("editevents: close producer: %w", err)
	}
	return nil
}
