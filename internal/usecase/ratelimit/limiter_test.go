package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		GlobalPerSecond:    100,
		GlobalMinInterval:  time.Microsecond,
		PerDestHourly:      100,
		PerDestMinInterval: time.Microsecond,
		PerDestConcurrency: 3,
	}
}

func TestExecutePassesResult(t *testing.T) {
	l := New(fastConfig())
	var calls int32
	err := l.Execute(context.Background(), 1, func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if calls != 1 {
		t.Fatalf("ожидали один вызов fn, получили %d", calls)
	}

	wantErr := errors.New("доставка не удалась")
	if err := l.Execute(context.Background(), 1, func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("ошибка fn должна возвращаться без изменений, получили %v", err)
	}
}

func TestPerDestinationReservoir(t *testing.T) {
	cfg := fastConfig()
	cfg.PerDestHourly = 2
	l := New(cfg)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Execute(ctx, 7, func() error { return nil }); err != nil {
			t.Fatalf("отправка %d должна пройти: %v", i+1, err)
		}
	}

	// Резервуар назначения исчерпан: третья отправка упирается в часовое
	// пополнение и должна отвалиться по дедлайну.
	limited, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Execute(limited, 7, func() error { return nil }); err == nil {
		t.Fatalf("ожидали ошибку по дедлайну после исчерпания резервуара")
	}

	// Другой канал-назначение не должен страдать.
	if err := l.Execute(ctx, 8, func() error { return nil }); err != nil {
		t.Fatalf("другой канал не должен быть ограничен: %v", err)
	}
}

func TestCloseWaitsForInflight(t *testing.T) {
	l := New(fastConfig())
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.Execute(context.Background(), 1, func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Close(ctx); err == nil {
		t.Fatalf("Close должен ждать незавершённую отправку")
	}

	close(release)
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("после завершения отправок Close должен вернуть nil: %v", err)
	}
}
