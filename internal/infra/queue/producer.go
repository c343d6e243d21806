package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
)

// ForwardProducer публикует записи в очередь пересылки.
type ForwardProducer struct {
	broker *Broker
	log    zerolog.Logger
}

// NewForwardProducer создаёт продюсера очереди пересылки.
func NewForwardProducer(broker *Broker, log zerolog.Logger) *ForwardProducer {
	return &ForwardProducer{broker: broker, log: log}
}

// Enqueue реализует domain.ForwardQueue.
func (p *ForwardProducer) Enqueue(ctx context.Context, record domain.ForwardRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	jobID := uuid.NewString()
	if err := p.broker.Publish(ctx, domain.QueueForward, jobID, 0, body); err != nil {
		return err
	}
	p.log.Info().
		Str("job_id", jobID).
		Str("correlation_id", record.CorrelationID).
		Int64("source_channel", record.SourceChannelID).
		Int64("message_id", record.MessageID).
		Int("album_items", len(record.AlbumItems)).
		Msg("queue: задача на пересылку поставлена")
	return nil
}

// ChannelOpsProducer публикует операции над каналами.
type ChannelOpsProducer struct {
	broker *Broker
	log    zerolog.Logger
}

// NewChannelOpsProducer создаёт продюсера очереди channel-ops.
func NewChannelOpsProducer(broker *Broker, log zerolog.Logger) *ChannelOpsProducer {
	return &ChannelOpsProducer{broker: broker, log: log}
}

// EnqueueOp реализует domain.ChannelOpsQueue.
func (p *ChannelOpsProducer) EnqueueOp(ctx context.Context, job domain.ChannelOpsJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal op: %w", err)
	}
	jobID := uuid.NewString()
	if err := p.broker.Publish(ctx, domain.QueueChannelOps, jobID, 0, body); err != nil {
		return err
	}
	p.log.Info().
		Str("job_id", jobID).
		Str("operation", string(job.Operation)).
		Int64("channel_id", job.ChannelID).
		Int64("tg_channel_id", job.TGChannelID).
		Msg("queue: операция над каналом поставлена")
	return nil
}

var (
	_ domain.ForwardQueue    = (*ForwardProducer)(nil)
	_ domain.ChannelOpsQueue = (*ChannelOpsProducer)(nil)
)
