// Утилита постановки операций над каналами в очередь channel-ops. Основной
// продюсер этих задач — внешний API-сервис; утилита нужна для ручных операций
// и отладки.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/rs/zerolog/log"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/config"
	"tg-relay-bot/internal/infra/queue"
)

func main() {
	var (
		op        string
		channelID int64
		username  string
		tgID      int64
	)
	flag.StringVar(&op, "op", "", "Операция: join или leave")
	flag.Int64Var(&channelID, "channel", 0, "Идентификатор строки канала в БД (для join)")
	flag.StringVar(&username, "username", "", "Username канала без @ (для join)")
	flag.Int64Var(&tgID, "tg-id", 0, "Telegram-идентификатор канала (для leave)")
	flag.Parse()

	job := domain.ChannelOpsJob{
		Operation:   domain.ChannelOperation(op),
		ChannelID:   channelID,
		Username:    username,
		TGChannelID: tgID,
	}
	switch job.Operation {
	case domain.ChannelOpJoin:
		if job.ChannelID == 0 || job.Username == "" {
			log.Fatal().Msg("channelctl: для join нужны -channel и -username")
		}
	case domain.ChannelOpLeave:
		if job.TGChannelID == 0 {
			log.Fatal().Msg("channelctl: для leave нужен -tg-id")
		}
	default:
		log.Fatal().Str("op", op).Msg("channelctl: неизвестная операция")
	}

	cfg := config.Load()
	if cfg.RabbitURL == "" {
		log.Fatal().Msg("channelctl: не указан адрес RabbitMQ (RABBITMQ_URL)")
	}
	broker, err := queue.Connect(cfg.RabbitURL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("channelctl: не удалось подключиться к RabbitMQ")
	}
	defer broker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	producer := queue.NewChannelOpsProducer(broker, log.Logger)
	if err := producer.EnqueueOp(ctx, job); err != nil {
		log.Fatal().Err(err).Msg("channelctl: не удалось поставить операцию")
	}
}
