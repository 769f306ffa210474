package kafkaconsumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

// groupHandler feeds every claimed invalidation message to process. Commits
// carry the instance id as offset metadata so an operator can tell which
// bridge last applied a partition.
type groupHandler struct {
	process  messageProcessor
	instance string
	logger   *slog.Logger
}

func (h *groupHandler) log() *slog.Logger {
	if h.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.logger
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.log().Info("invalidation partitions assigned",
		"member", sess.MemberID(), "generation", sess.GenerationID(), "claims", sess.Claims())
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.log().Info("invalidation partitions released", "generation", sess.GenerationID())
	return nil
}

// ConsumeClaim processes one partition in order and marks a message only
// after it was applied; a failure ends the session so it is redelivered.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("apply invalidation (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, h.instance)
		}
	}
}
