// Package forward разводит одну входящую запись по каналам-назначениям.
package forward

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
	"tg-relay-bot/internal/usecase/dedup"
	"tg-relay-bot/internal/usecase/ratelimit"
)

// Service — оркестратор пересылки: на каждую задачу независимо для каждого
// назначения выполняет дедупликацию, лимитирование и отправку.
type Service struct {
	subs    domain.SubscriptionRepo
	dedup   *dedup.Service
	limiter *ratelimit.Limiter
	sender  domain.MessageSender
	log     zerolog.Logger
}

// NewService создаёт оркестратор.
func NewService(subs domain.SubscriptionRepo, dedupSvc *dedup.Service, limiter *ratelimit.Limiter, sender domain.MessageSender, log zerolog.Logger) *Service {
	return &Service{
		subs:    subs,
		dedup:   dedupSvc,
		limiter: limiter,
		sender:  sender,
		log:     log.With().Str("component", "forwarder").Logger(),
	}
}

// Forward пересылает запись во все уникальные назначения активных списков,
// включающих канал-источник. Ошибка отправки в любое назначение проваливает
// задачу целиком: очередь повторит её, а уже доставленные назначения будут
// пропущены как дубликаты.
func (s *Service) Forward(ctx context.Context, record domain.ForwardRecord) error {
	fwdLog := s.log.With().
		Str("correlation_id", record.CorrelationID).
		Int64("source_channel", record.SourceChannelID).
		Int64("message_id", record.MessageID).
		Logger()

	destinations, err := s.subs.ListDestinations(ctx, record.SourceChannelID)
	if err != nil {
		return fmt.Errorf("выборка назначений: %w", err)
	}
	unique := uniqueIDs(destinations)
	if len(unique) == 0 {
		fwdLog.Debug().Msg("forwarder: нет активных назначений, пропускаем")
		return nil
	}

	text := record.Content()
	for _, destinationID := range unique {
		if s.dedup.IsDuplicate(ctx, destinationID, text) {
			fwdLog.Info().Int64("destination", destinationID).Msg("forwarder: дубликат, пропускаем")
			continue
		}
		err := s.limiter.Execute(ctx, destinationID, func() error {
			return s.sender.Send(ctx, destinationID, record)
		})
		if err != nil {
			metrics.ForwardErrors.Inc()
			return fmt.Errorf("отправка в %d: %w", destinationID, err)
		}
		s.dedup.MarkAsForwarded(ctx, destinationID, text)
		metrics.MessagesForwarded.WithLabelValues(string(record.MediaKind)).Inc()
		fwdLog.Info().
			Int64("destination", destinationID).
			Str("media_kind", string(record.MediaKind)).
			Msg("forwarder: сообщение доставлено")
	}
	return nil
}

// uniqueIDs убирает повторы, сохраняя порядок: одно назначение, указанное в
// нескольких списках, получает сообщение один раз.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
