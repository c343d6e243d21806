package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
)

// Postgres реализует репозитории каналов и списков подписок на pgxpool.
// Схема принадлежит административному приложению; воркер читает реестр и
// мутирует только поля членства каналов.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ChannelRepo      = (*Postgres)(nil)
	_ domain.SubscriptionRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// ListActiveChannelIDs возвращает Telegram-идентификаторы активных каналов.
func (p *Postgres) ListActiveChannelIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT tg_channel_id FROM source_channels WHERE is_active
`)
	metrics.ObserveNetworkRequest("postgres", "active_channels_select", "source_channels", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка активных каналов: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("чтение канала: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход каналов: %w", err)
	}
	return ids, nil
}

// ListDestinations возвращает назначения всех активных списков, включающих
// источник, по одному на список. Повторы намеренно не схлопываются —
// уникальность обеспечивает оркестратор.
func (p *Postgres) ListDestinations(ctx context.Context, sourceTGChannelID int64) ([]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT sl.destination_channel_id
FROM subscription_lists sl
JOIN subscription_list_channels slc ON slc.subscription_list_id = sl.id
JOIN source_channels sc ON sc.id = slc.source_channel_id
WHERE sl.is_active AND sc.tg_channel_id = $1
`, sourceTGChannelID)
	metrics.ObserveNetworkRequest("postgres", "destinations_select", "subscription_lists", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка назначений: %w", err)
	}
	defer rows.Close()

	var destinations []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("чтение назначения: %w", err)
		}
		destinations = append(destinations, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход назначений: %w", err)
	}
	return destinations, nil
}

// ActivateChannel записывает реальные реквизиты канала после вступления.
func (p *Postgres) ActivateChannel(ctx context.Context, id int64, tgChannelID int64, title string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE source_channels
SET tg_channel_id = $2, title = $3, is_active = TRUE, subscribed_at = NOW()
WHERE id = $1
`, id, tgChannelID, title)
	metrics.ObserveNetworkRequest("postgres", "channel_activate", "source_channels", start, err)
	if err != nil {
		return fmt.Errorf("активация канала %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("активация канала %d: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// DeleteChannel удаляет pending-строку канала.
func (p *Postgres) DeleteChannel(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM source_channels WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "channel_delete", "source_channels", start, err)
	if err != nil {
		return fmt.Errorf("удаление канала %d: %w", id, err)
	}
	return nil
}

// DeactivateChannel снимает флаг активности.
func (p *Postgres) DeactivateChannel(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE source_channels SET is_active = FALSE WHERE id = $1
`, id)
	metrics.ObserveNetworkRequest("postgres", "channel_deactivate", "source_channels", start, err)
	if err != nil {
		return fmt.Errorf("деактивация канала %d: %w", id, err)
	}
	return nil
}

// ListOrphanChannels возвращает активные каналы без подписок, к которым не
// обращались дольше threshold.
func (p *Postgres) ListOrphanChannels(ctx context.Context, threshold time.Time) ([]domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, tg_channel_id, COALESCE(username, ''), COALESCE(title, ''), is_active, last_referenced_at, subscribed_at
FROM source_channels sc
WHERE sc.is_active
  AND NOT EXISTS (
    SELECT 1 FROM subscription_list_channels slc WHERE slc.source_channel_id = sc.id
  )
  AND COALESCE(sc.last_referenced_at, sc.subscribed_at) < $1
`, threshold)
	metrics.ObserveNetworkRequest("postgres", "orphan_channels_select", "source_channels", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка осиротевших каналов: %w", err)
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.TGChannelID, &ch.Username, &ch.Title, &ch.IsActive, &ch.LastReferencedAt, &ch.SubscribedAt); err != nil {
			return nil, fmt.Errorf("чтение канала: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход каналов: %w", err)
	}
	return channels, nil
}
