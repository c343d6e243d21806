package ingest

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
)

type flushRecorder struct {
	mu      sync.Mutex
	flushed []domain.ForwardRecord
}

func (r *flushRecorder) flush(record domain.ForwardRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed = append(r.flushed, record)
}

func (r *flushRecorder) records() []domain.ForwardRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ForwardRecord, len(r.flushed))
	copy(out, r.flushed)
	return out
}

func record(albumID string, messageID int64) domain.ForwardRecord {
	return domain.ForwardRecord{
		MessageID:       messageID,
		SourceChannelID: 100,
		Caption:         "подпись",
		MediaKind:       domain.MediaPhoto,
		MediaRef:        "photo:1:1",
		AlbumID:         albumID,
	}
}

func waitFlush(t *testing.T, r *flushRecorder, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.records()) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("не дождались %d закрытий альбома, получили %d", want, len(r.records()))
}

func TestFlushAfterIdleTimeout(t *testing.T) {
	rec := &flushRecorder{}
	b := NewAlbumBatcher(rec.flush, zerolog.Nop())
	b.timeout = 30 * time.Millisecond

	b.Add(record("alb", 1))
	b.Add(record("alb", 2))
	b.Add(record("alb", 3))

	waitFlush(t, rec, 1)
	got := rec.records()
	if len(got) != 1 {
		t.Fatalf("ожидали ровно одно закрытие, получили %d", len(got))
	}
	if len(got[0].AlbumItems) != 3 {
		t.Fatalf("ожидали 3 элемента альбома, получили %d", len(got[0].AlbumItems))
	}
	if got[0].MessageID != 1 || got[0].Caption != "подпись" {
		t.Fatalf("собранная запись должна нести поля первого элемента")
	}
	for i, item := range got[0].AlbumItems {
		if item.MessageID != int64(i+1) {
			t.Fatalf("порядок элементов нарушен: позиция %d несёт message_id %d", i, item.MessageID)
		}
	}
}

func TestFlushAtMaxSize(t *testing.T) {
	rec := &flushRecorder{}
	b := NewAlbumBatcher(rec.flush, zerolog.Nop())
	b.timeout = time.Hour // таймер не должен понадобиться

	for i := 1; i <= MaxSize; i++ {
		b.Add(record("alb", int64(i)))
	}

	got := rec.records()
	if len(got) != 1 {
		t.Fatalf("десятый элемент должен закрыть альбом немедленно, закрытий: %d", len(got))
	}
	if len(got[0].AlbumItems) != MaxSize {
		t.Fatalf("ожидали %d элементов, получили %d", MaxSize, len(got[0].AlbumItems))
	}
}

func TestIndependentAlbums(t *testing.T) {
	rec := &flushRecorder{}
	b := NewAlbumBatcher(rec.flush, zerolog.Nop())
	b.timeout = 30 * time.Millisecond

	b.Add(record("first", 1))
	b.Add(record("second", 2))
	b.Add(record("first", 3))

	waitFlush(t, rec, 2)
	got := rec.records()
	sizes := map[string]int{}
	for _, r := range got {
		sizes[r.AlbumID] = len(r.AlbumItems)
	}
	if sizes["first"] != 2 || sizes["second"] != 1 {
		t.Fatalf("альбомы должны закрываться независимо, получили %v", sizes)
	}
}

func TestStaleTimerDoesNotCutWindowShort(t *testing.T) {
	rec := &flushRecorder{}
	b := NewAlbumBatcher(rec.flush, zerolog.Nop())
	b.timeout = time.Hour

	b.Add(record("alb", 1))
	b.Add(record("alb", 2))

	// Таймер первого элемента мог сработать до перевзвода и ждать мьютекс;
	// его поколение уже устарело и окно он закрывать не должен.
	b.flushByTimer("alb", 0)
	if got := len(rec.records()); got != 0 {
		t.Fatalf("устаревший таймер закрыл окно: %d закрытий", got)
	}

	// Актуальное поколение закрывает альбом целиком.
	b.flushByTimer("alb", 1)
	flushed := rec.records()
	if len(flushed) != 1 {
		t.Fatalf("ожидалось одно закрытие, получено %d", len(flushed))
	}
	if len(flushed[0].AlbumItems) != 2 {
		t.Fatalf("альбом должен нести оба элемента, несёт %d", len(flushed[0].AlbumItems))
	}
}

func TestClearDropsPending(t *testing.T) {
	rec := &flushRecorder{}
	b := NewAlbumBatcher(rec.flush, zerolog.Nop())
	b.timeout = 20 * time.Millisecond

	b.Add(record("alb", 1))
	b.Clear()

	time.Sleep(100 * time.Millisecond)
	if len(rec.records()) != 0 {
		t.Fatalf("после Clear недособранный альбом не должен закрываться")
	}
}
