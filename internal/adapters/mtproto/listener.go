// Package mtproto слушает входящие сообщения каналов-источников через gotd
// и выполняет сетевые операции членства в каналах.
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
	"tg-relay-bot/internal/usecase/ingest"
)

// recentCapacity — размер окна защиты от повторной доставки обновлений.
const recentCapacity = 10000

// reloadInterval — период фонового перечитывания активных каналов. gotd
// переподключается молча, не перезапуская run-callback, поэтому изменения
// реестра, сделанные мимо этого воркера, подхватываются только отсюда.
const reloadInterval = time.Minute

// Listener держит живое MTProto-подключение и превращает входящие сообщения
// активных каналов в ForwardRecord.
type Listener struct {
	client   *telegram.Client
	producer domain.ForwardQueue
	batcher  *ingest.AlbumBatcher
	channels domain.ChannelRepo
	log      zerolog.Logger

	mu     sync.RWMutex
	active map[int64]struct{}
	recent *recentSet

	api       atomic.Pointer[tg.Client]
	connected atomic.Bool
}

// NewListener создаёт слушателя. Сессия хранится в файле sessionFile и должна
// быть авторизована заранее утилитой session-login.
func NewListener(apiID int, apiHash, sessionFile string, producer domain.ForwardQueue, batcher *ingest.AlbumBatcher, channels domain.ChannelRepo, log zerolog.Logger) *Listener {
	l := &Listener{
		producer: producer,
		batcher:  batcher,
		channels: channels,
		log:      log.With().Str("component", "listener").Logger(),
		active:   make(map[int64]struct{}),
		recent:   newRecentSet(recentCapacity),
	}
	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(l.onNewChannelMessage)
	l.client = telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionFile},
		UpdateHandler:  dispatcher,
	})
	return l
}

// Run блокирующе держит подключение до отмены контекста. Повторные
// подключения внутри сессии выполняет сам клиент; ошибка на старте
// поднимается наверх — перезапуск процесса остаётся за супервизором.
func (l *Listener) Run(ctx context.Context) error {
	return l.client.Run(ctx, func(ctx context.Context) error {
		status, err := l.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("проверка авторизации: %w", err)
		}
		if !status.Authorized {
			return errors.New("сессия MTProto не авторизована")
		}

		l.api.Store(tg.NewClient(l.client))
		if err := l.Reload(ctx); err != nil {
			return fmt.Errorf("загрузка активных каналов: %w", err)
		}

		l.connected.Store(true)
		defer l.connected.Store(false)
		l.log.Info().Msg("listener: подключение установлено")

		ticker := time.NewTicker(reloadInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				l.log.Info().Msg("listener: отключение")
				return ctx.Err()
			case <-ticker.C:
				l.refreshActive(ctx)
			}
		}
	})
}

// Reload перечитывает множество активных каналов из БД. Вызывается на старте
// и после операций членства: состав каналов мог измениться.
func (l *Listener) Reload(ctx context.Context) error {
	ids, err := l.channels.ListActiveChannelIDs(ctx)
	if err != nil {
		return err
	}
	active := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		active[id] = struct{}{}
	}
	l.mu.Lock()
	l.active = active
	l.mu.Unlock()
	l.log.Info().Int("channel_count", len(active)).Msg("listener: активные каналы загружены")
	return nil
}

// refreshActive перечитывает активные каналы и обновляет флаг доступности:
// неудачное перечитывание означает, что либо БД, либо транспорт нездоровы, и
// health-эндпоинт не должен рапортовать "ok" со стареющим множеством.
func (l *Listener) refreshActive(ctx context.Context) {
	if err := l.Reload(ctx); err != nil {
		l.log.Warn().Err(err).Msg("listener: не удалось перечитать активные каналы")
		l.connected.Store(false)
		return
	}
	l.connected.Store(true)
}

// Connected отражает состояние подключения для health-эндпоинта.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

func (l *Listener) isActive(channelID int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.active[channelID]
	return ok
}

func (l *Listener) onNewChannelMessage(ctx context.Context, _ tg.Entities, upd *tg.UpdateNewChannelMessage) error {
	msg, ok := upd.Message.(*tg.Message)
	if !ok {
		return nil
	}
	peer, ok := msg.PeerID.(*tg.PeerChannel)
	if !ok {
		return nil
	}
	if !l.isActive(peer.ChannelID) {
		return nil
	}
	// Сервисные события без текста и медиа не пересылаются.
	if msg.Message == "" && msg.Media == nil {
		return nil
	}

	key := fmt.Sprintf("%d:%d", peer.ChannelID, msg.ID)
	l.mu.Lock()
	fresh := l.recent.Add(key)
	l.mu.Unlock()
	if !fresh {
		return nil
	}

	metrics.MessagesReceived.Inc()
	record := ExtractRecord(msg)
	record.CorrelationID = uuid.NewString()

	l.log.Debug().
		Str("correlation_id", record.CorrelationID).
		Int64("channel", record.SourceChannelID).
		Int64("message_id", record.MessageID).
		Str("media_kind", string(record.MediaKind)).
		Msg("listener: сообщение принято")

	if record.AlbumID != "" {
		l.batcher.Add(record)
		return nil
	}
	// Постановка в очередь для слушателя fire-and-forget: ошибка логируется,
	// обработка обновлений не останавливается.
	if err := l.producer.Enqueue(ctx, record); err != nil {
		l.log.Error().Err(err).Str("correlation_id", record.CorrelationID).Msg("listener: не удалось поставить задачу")
	}
	return nil
}
