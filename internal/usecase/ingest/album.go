// Package ingest собирает сообщения одного альбома в единую запись.
// Telegram доставляет элементы альбома отдельными сообщениями с общим
// media-group id; батчер держит открытое окно на каждый альбом и закрывает
// его по тишине или по размеру.
package ingest

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
)

const (
	// FlushTimeout — тишина после последнего элемента, закрывающая альбом.
	FlushTimeout = 300 * time.Millisecond
	// MaxSize — максимальный размер альбома в Telegram.
	MaxSize = 10
)

type albumGroup struct {
	items []domain.ForwardRecord
	timer *time.Timer
	// gen растёт при каждом перевзводе таймера. Уже сработавший, но ещё не
	// взявший мьютекс таймер несёт старое поколение и не закрывает окно,
	// продлённое свежим элементом.
	gen int
}

// AlbumBatcher группирует записи по album id. Каждый альбом владеет
// собственным таймером, альбомы не влияют друг на друга.
type AlbumBatcher struct {
	mu      sync.Mutex
	groups  map[string]*albumGroup
	flush   func(domain.ForwardRecord)
	timeout time.Duration
	maxSize int
	log     zerolog.Logger
}

// NewAlbumBatcher создаёт батчер. flush вызывается с собранной записью:
// поля первой записи альбома плюс AlbumItems со всеми элементами по порядку.
func NewAlbumBatcher(flush func(domain.ForwardRecord), log zerolog.Logger) *AlbumBatcher {
	return &AlbumBatcher{
		groups:  make(map[string]*albumGroup),
		flush:   flush,
		timeout: FlushTimeout,
		maxSize: MaxSize,
		log:     log.With().Str("component", "album_batcher").Logger(),
	}
}

// Add добавляет запись в альбом. Открывает новое окно, если альбом ещё не
// собирается; при достижении максимального размера закрывает его немедленно.
func (b *AlbumBatcher) Add(record domain.ForwardRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := record.AlbumID
	group, ok := b.groups[id]
	if !ok {
		group = &albumGroup{items: []domain.ForwardRecord{record}}
		gen := group.gen
		group.timer = time.AfterFunc(b.timeout, func() { b.flushByTimer(id, gen) })
		b.groups[id] = group
		return
	}

	group.timer.Stop()
	group.gen++
	group.items = append(group.items, record)
	if len(group.items) >= b.maxSize {
		b.flushLocked(id)
		return
	}
	gen := group.gen
	group.timer = time.AfterFunc(b.timeout, func() { b.flushByTimer(id, gen) })
}

func (b *AlbumBatcher) flushByTimer(id string, gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	group, ok := b.groups[id]
	if !ok || group.gen != gen {
		return
	}
	b.flushLocked(id)
}

func (b *AlbumBatcher) flushLocked(id string) {
	group, ok := b.groups[id]
	if !ok {
		return
	}
	group.timer.Stop()
	delete(b.groups, id)

	combined := group.items[0]
	combined.AlbumItems = group.items
	metrics.AlbumsFlushed.Inc()
	b.log.Debug().
		Str("album_id", id).
		Str("correlation_id", combined.CorrelationID).
		Int("items", len(group.items)).
		Msg("альбом собран")
	b.flush(combined)
}

// Clear отменяет все открытые окна без закрытия альбомов. Используется при
// остановке: недособранный альбом теряется.
func (b *AlbumBatcher) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, group := range b.groups {
		group.timer.Stop()
		delete(b.groups, id)
	}
}
