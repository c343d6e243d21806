package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"tg-relay-bot/internal/adapters/mtproto"
	"tg-relay-bot/internal/adapters/repo"
	"tg-relay-bot/internal/adapters/telegram"
	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/cache"
	"tg-relay-bot/internal/infra/config"
	"tg-relay-bot/internal/infra/db"
	httpinfra "tg-relay-bot/internal/infra/http"
	applog "tg-relay-bot/internal/infra/log"
	"tg-relay-bot/internal/infra/metrics"
	"tg-relay-bot/internal/infra/queue"
	channelsusecase "tg-relay-bot/internal/usecase/channels"
	"tg-relay-bot/internal/usecase/dedup"
	"tg-relay-bot/internal/usecase/forward"
	"tg-relay-bot/internal/usecase/ingest"
	"tg-relay-bot/internal/usecase/ratelimit"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PGDSN == "" {
		logger.Fatal().Msg("worker: не указан адрес БД (PG_DSN)")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	dedupCache := cache.NewRedis(redisClient)
	dedupSvc := dedup.NewService(dedupCache, logger)

	if cfg.RabbitURL == "" {
		logger.Fatal().Msg("worker: не указан адрес RabbitMQ (RABBITMQ_URL)")
	}
	broker, err := queue.Connect(cfg.RabbitURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось подключиться к RabbitMQ")
	}
	defer broker.Close()

	forwardProducer := queue.NewForwardProducer(broker, logger)

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("worker: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать бота")
	}
	sender := telegram.NewSender(botAPI, logger)

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.GlobalPerSecond = cfg.Limits.GlobalPerSecond
	limiterCfg.PerDestHourly = cfg.Limits.PerDestHourly
	limiter := ratelimit.New(limiterCfg)

	batcher := ingest.NewAlbumBatcher(func(record domain.ForwardRecord) {
		enqueueCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := forwardProducer.Enqueue(enqueueCtx, record); err != nil {
			logger.Error().Err(err).Str("correlation_id", record.CorrelationID).Msg("worker: не удалось поставить альбом в очередь")
		}
	}, logger)

	if cfg.Telegram.APIID == 0 || cfg.Telegram.APIHash == "" {
		logger.Fatal().Msg("worker: не указаны реквизиты MTProto (TG_API_ID, TG_API_HASH)")
	}
	listener := mtproto.NewListener(cfg.Telegram.APIID, cfg.Telegram.APIHash, cfg.MTProto.SessionFile, forwardProducer, batcher, repoAdapter, logger)
	gateway := mtproto.NewGateway(listener)

	manager := channelsusecase.NewManager(gateway, repoAdapter, logger)
	opsHandler := channelsusecase.NewOpsHandler(manager, func(ctx context.Context) {
		if err := listener.Reload(ctx); err != nil {
			logger.Error().Err(err).Msg("worker: не удалось перечитать активные каналы")
		}
	}, logger)

	forwardSvc := forward.NewService(repoAdapter, dedupSvc, limiter, sender, logger)
	forwardHandler := func(ctx context.Context, body []byte) error {
		var record domain.ForwardRecord
		if err := json.Unmarshal(body, &record); err != nil {
			return fmt.Errorf("разбор задачи пересылки: %w", err)
		}
		return forwardSvc.Forward(ctx, record)
	}

	forwardConsumer := queue.NewConsumer(broker, domain.QueueForward, domain.QueueForwardDLQ, cfg.Limits.ForwardWorkers, forwardHandler, logger)
	opsConsumer := queue.NewConsumer(broker, domain.QueueChannelOps, "", 1, opsHandler.Handle, logger)

	grace := time.Duration(cfg.Cleanup.GraceDays) * 24 * time.Hour
	cleanup := channelsusecase.NewCleanup(repoAdapter, manager, grace, logger)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Cleanup.Schedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := cleanup.Run(runCtx); err != nil {
			logger.Error().Err(err).Msg("worker: очистка каналов завершилась с ошибкой")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.Cleanup.Schedule).Msg("worker: некорректное расписание очистки")
	}
	scheduler.Start()

	server := httpinfra.NewServer(logger, httpinfra.Health{
		ListenerConnected: listener.Connected,
		QueueDepths:       broker.Depths,
		CachePing:         dedupCache.Ping,
		LastCleanup:       cleanup.LastResult,
	})
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("worker: HTTP сервер остановлен с ошибкой")
		}
	}()

	listenerCtx, stopListener := context.WithCancel(ctx)
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	defer stopListener()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Run(listenerCtx); err != nil && listenerCtx.Err() == nil {
			logger.Error().Err(err).Msg("worker: слушатель остановлен с ошибкой")
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := forwardConsumer.Run(consumerCtx); err != nil && consumerCtx.Err() == nil {
			logger.Error().Err(err).Msg("worker: консьюмер пересылки остановлен с ошибкой")
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := opsConsumer.Run(consumerCtx); err != nil && consumerCtx.Err() == nil {
			logger.Error().Err(err).Msg("worker: консьюмер операций остановлен с ошибкой")
			stop()
		}
	}()

	go reportQueueDepths(consumerCtx, broker)

	logger.Info().Msg("worker: запущен")
	<-ctx.Done()
	logger.Info().Msg("worker: останов, завершаем работу")

	// Остановка строго по порядку: сначала приём новых сообщений, затем
	// брошенные альбомы, затем обработка очередей и отправка.
	stopListener()
	batcher.Clear()
	stopConsumers()
	wg.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := limiter.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("worker: лимитер не дождался завершения отправок")
	}

	<-scheduler.Stop().Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("worker: HTTP сервер не остановился вовремя")
	}

	logger.Info().Msg("worker: остановлен")
}

// reportQueueDepths периодически переносит глубины очередей в метрики.
func reportQueueDepths(ctx context.Context, broker *queue.Broker) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depths, err := broker.Depths()
			if err != nil {
				continue
			}
			metrics.QueueDepth.WithLabelValues(domain.QueueForward).Set(float64(depths.Forward))
			metrics.QueueDepth.WithLabelValues(domain.QueueForwardDLQ).Set(float64(depths.ForwardDLQ))
			metrics.QueueDepth.WithLabelValues(domain.QueueChannelOps).Set(float64(depths.ChannelOps))
		}
	}
}
