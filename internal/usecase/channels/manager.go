// Package channels управляет членством воркера в каналах-источниках:
// вступление с квотой и рандомизированной задержкой, выход и плановая
// очистка осиротевших каналов.
package channels

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
)

const (
	// JoinQuotaPerHour — вступлений в час; больше похоже на абьюз с точки
	// зрения антиспама Telegram.
	JoinQuotaPerHour = 5
	joinWindow       = time.Hour
	joinDelayMin     = 2 * time.Second
	joinDelayMax     = 5 * time.Second
)

// RateLimitError — типизированный отказ по квоте вступлений.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("квота вступлений исчерпана, повторите через %ds", int(e.RetryAfter.Seconds()+0.5))
}

// Manager выполняет операции вступления и выхода.
type Manager struct {
	gateway domain.ChannelGateway
	repo    domain.ChannelRepo
	log     zerolog.Logger

	mu        sync.Mutex
	joinTimes []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rnd   *rand.Rand
}

// NewManager создаёт менеджер каналов.
func NewManager(gateway domain.ChannelGateway, repo domain.ChannelRepo, log zerolog.Logger) *Manager {
	return &Manager{
		gateway: gateway,
		repo:    repo,
		log:     log.With().Str("component", "channel_manager").Logger(),
		now:     time.Now,
		sleep:   sleepCtx,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// JoinChannel вступает в канал по username. При успехе записывает реальные
// реквизиты канала и помечает его активным; при неудаче удаляет pending-строку
// и возвращает ошибку.
func (m *Manager) JoinChannel(ctx context.Context, channelID int64, username string) (domain.ChannelInfo, error) {
	if err := m.checkJoinQuota(); err != nil {
		return domain.ChannelInfo{}, err
	}

	// Случайная пауза перед вступлением, чтобы серия join не выглядела
	// автоматической.
	delay := joinDelayMin + time.Duration(m.rnd.Int63n(int64(joinDelayMax-joinDelayMin)))
	if err := m.sleep(ctx, delay); err != nil {
		return domain.ChannelInfo{}, err
	}

	info, err := m.gateway.JoinChannel(ctx, username)
	if err != nil {
		m.log.Error().Err(err).Int64("channel_id", channelID).Str("username", username).Msg("вступление не удалось, удаляем pending-канал")
		if delErr := m.repo.DeleteChannel(ctx, channelID); delErr != nil {
			m.log.Error().Err(delErr).Int64("channel_id", channelID).Msg("не удалось удалить pending-канал")
		}
		return domain.ChannelInfo{}, fmt.Errorf("вступление в @%s: %w", username, err)
	}

	if err := m.repo.ActivateChannel(ctx, channelID, info.TGChannelID, info.Title); err != nil {
		return domain.ChannelInfo{}, fmt.Errorf("активация канала: %w", err)
	}

	m.mu.Lock()
	m.joinTimes = append(m.joinTimes, m.now())
	m.mu.Unlock()

	m.log.Info().
		Int64("channel_id", channelID).
		Str("username", username).
		Int64("tg_channel_id", info.TGChannelID).
		Str("title", info.Title).
		Msg("канал подключён")
	return info, nil
}

// LeaveChannel выходит из канала. Состояние в БД обновляет вызывающая сторона.
func (m *Manager) LeaveChannel(ctx context.Context, tgChannelID int64) error {
	if err := m.gateway.LeaveChannel(ctx, tgChannelID); err != nil {
		return fmt.Errorf("выход из канала %d: %w", tgChannelID, err)
	}
	m.log.Info().Int64("tg_channel_id", tgChannelID).Msg("канал покинут")
	return nil
}

// checkJoinQuota проверяет скользящее часовое окно вступлений.
func (m *Manager) checkJoinQuota() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-joinWindow)
	recent := m.joinTimes[:0]
	for _, ts := range m.joinTimes {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	m.joinTimes = recent

	if len(m.joinTimes) >= JoinQuotaPerHour {
		oldest := m.joinTimes[0]
		return &RateLimitError{RetryAfter: oldest.Add(joinWindow).Sub(m.now())}
	}
	return nil
}
