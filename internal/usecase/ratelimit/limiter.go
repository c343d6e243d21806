// Package ratelimit ограничивает исходящие отправки двумя уровнями бюджета:
// общий на процесс и отдельный на каждый канал-назначение. Лимитер назначения
// вложен в общий, поэтому всплеск в один канал не съедает бюджет остальных и
// не пробивает общий потолок.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tg-relay-bot/internal/infra/metrics"
)

// Config задаёт бюджеты лимитера.
type Config struct {
	// GlobalPerSecond — общий резервуар отправок в секунду.
	GlobalPerSecond int
	// GlobalMinInterval — минимальный интервал между любыми отправками.
	GlobalMinInterval time.Duration
	// PerDestHourly — резервуар отправок в час на один канал-назначение.
	PerDestHourly int
	// PerDestMinInterval — минимальный интервал между отправками в один канал.
	PerDestMinInterval time.Duration
	// PerDestConcurrency — одновременные отправки в один канал.
	PerDestConcurrency int
}

// DefaultConfig — лимиты, совместимые с ограничениями Bot API.
func DefaultConfig() Config {
	return Config{
		GlobalPerSecond:    20,
		GlobalMinInterval:  50 * time.Millisecond,
		PerDestHourly:      15,
		PerDestMinInterval: 200 * time.Millisecond,
		PerDestConcurrency: 3,
	}
}

// tier — один уровень ограничения: резервуар, минимальный интервал и
// ограничение одновременности.
type tier struct {
	reservoir *rate.Limiter
	spacing   *rate.Limiter
	slots     chan struct{}
}

func newTier(reservoir *rate.Limiter, spacing *rate.Limiter, concurrency int) *tier {
	return &tier{
		reservoir: reservoir,
		spacing:   spacing,
		slots:     make(chan struct{}, concurrency),
	}
}

func (t *tier) acquire(ctx context.Context) (func(), error) {
	select {
	case t.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-t.slots }
	if err := t.spacing.Wait(ctx); err != nil {
		release()
		return nil, err
	}
	if err := t.reservoir.Wait(ctx); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// Limiter — двухуровневый лимитер отправок.
type Limiter struct {
	cfg    Config
	global *tier

	mu      sync.Mutex
	perDest map[int64]*tier

	wg sync.WaitGroup
}

// New создаёт лимитер. Лимитеры назначений создаются лениво при первом
// обращении.
func New(cfg Config) *Limiter {
	global := newTier(
		rate.NewLimiter(rate.Limit(cfg.GlobalPerSecond), cfg.GlobalPerSecond),
		rate.NewLimiter(rate.Every(cfg.GlobalMinInterval), 1),
		cfg.GlobalPerSecond,
	)
	return &Limiter{cfg: cfg, global: global, perDest: make(map[int64]*tier)}
}

func (l *Limiter) tierFor(destinationID int64) *tier {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.perDest[destinationID]; ok {
		return t
	}
	hourly := rate.Limit(float64(l.cfg.PerDestHourly) / time.Hour.Seconds())
	t := newTier(
		rate.NewLimiter(hourly, l.cfg.PerDestHourly),
		rate.NewLimiter(rate.Every(l.cfg.PerDestMinInterval), 1),
		l.cfg.PerDestConcurrency,
	)
	l.perDest[destinationID] = t
	return t
}

// Execute прогоняет fn через лимитер назначения, вложенный в общий лимитер,
// и возвращает результат без изменений.
func (l *Limiter) Execute(ctx context.Context, destinationID int64, fn func() error) error {
	l.wg.Add(1)
	defer l.wg.Done()

	start := time.Now()
	releaseDest, err := l.tierFor(destinationID).acquire(ctx)
	if err != nil {
		return fmt.Errorf("destination limiter: %w", err)
	}
	defer releaseDest()

	releaseGlobal, err := l.global.acquire(ctx)
	if err != nil {
		return fmt.Errorf("global limiter: %w", err)
	}
	defer releaseGlobal()

	metrics.RateLimiterWait.Observe(time.Since(start).Seconds())
	return fn()
}

// Close дожидается завершения уже запланированных отправок в пределах
// контекста.
func (l *Limiter) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
