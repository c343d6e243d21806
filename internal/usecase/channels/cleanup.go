package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
)

// DefaultGracePeriod — сколько канал без подписок остаётся подключённым.
const DefaultGracePeriod = 30 * 24 * time.Hour

// Cleanup раз в сутки отключает осиротевшие каналы: активные, без единой
// подписки и без обращений дольше грейс-периода.
type Cleanup struct {
	repo    domain.ChannelRepo
	manager *Manager
	grace   time.Duration
	log     zerolog.Logger

	mu   sync.Mutex
	last *domain.CleanupResult

	now func() time.Time
}

// NewCleanup создаёт сервис очистки.
func NewCleanup(repo domain.ChannelRepo, manager *Manager, grace time.Duration, log zerolog.Logger) *Cleanup {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Cleanup{
		repo:    repo,
		manager: manager,
		grace:   grace,
		log:     log.With().Str("component", "channel_cleanup").Logger(),
		now:     time.Now,
	}
}

// Run выполняет один проход очистки. Ошибка на одном кандидате логируется и
// учитывается, но не прерывает проход.
func (c *Cleanup) Run(ctx context.Context) (domain.CleanupResult, error) {
	started := c.now()
	threshold := started.Add(-c.grace)
	c.log.Info().Time("threshold", threshold).Msg("очистка осиротевших каналов начата")

	orphans, err := c.repo.ListOrphanChannels(ctx, threshold)
	if err != nil {
		return domain.CleanupResult{}, fmt.Errorf("выборка осиротевших каналов: %w", err)
	}

	result := domain.CleanupResult{Total: len(orphans)}
	for _, channel := range orphans {
		if err := c.retire(ctx, channel); err != nil {
			c.log.Error().Err(err).
				Int64("channel_id", channel.ID).
				Int64("tg_channel_id", channel.TGChannelID).
				Msg("не удалось отключить канал")
			result.Failed++
			metrics.CleanupChannels.WithLabelValues("failed").Inc()
			continue
		}
		result.Deactivated++
		metrics.CleanupChannels.WithLabelValues("deactivated").Inc()
	}

	result.FinishedAt = c.now()
	c.mu.Lock()
	c.last = &result
	c.mu.Unlock()

	c.log.Info().
		Int("deactivated", result.Deactivated).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Dur("duration", result.FinishedAt.Sub(started)).
		Msg("очистка осиротевших каналов завершена")
	return result, nil
}

func (c *Cleanup) retire(ctx context.Context, channel domain.Channel) error {
	if err := c.manager.LeaveChannel(ctx, channel.TGChannelID); err != nil {
		return err
	}
	if err := c.repo.DeactivateChannel(ctx, channel.ID); err != nil {
		return fmt.Errorf("деактивация канала: %w", err)
	}
	return nil
}

// LastResult возвращает итог последнего прохода для health-эндпоинта.
func (c *Cleanup) LastResult() *domain.CleanupResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
