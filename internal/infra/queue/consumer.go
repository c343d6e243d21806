package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
)

// Handler обрабатывает тело одного сообщения очереди.
type Handler func(ctx context.Context, body []byte) error

// publisher — часть брокера, нужная для переиздания и DLQ.
type publisher interface {
	Publish(ctx context.Context, queueName, messageID string, attempts int, body []byte) error
}

// Consumer читает очередь с ограниченной конкуррентностью и политикой
// повторов: после каждой ошибки сообщение переиздаётся с увеличенным
// счётчиком попыток и экспоненциальной задержкой, после исчерпания попыток
// уходит в DLQ. Счётчик живёт в заголовке сообщения, поэтому переживает
// рестарт воркера.
type Consumer struct {
	broker      *Broker
	pub         publisher
	queue       string
	dlq         string
	concurrency int
	maxAttempts int
	backoffBase time.Duration
	handler     Handler
	log         zerolog.Logger
}

// NewConsumer создаёт консьюмера очереди. dlq может быть пустым — тогда
// исчерпанные задачи только логируются (используется для channel-ops).
func NewConsumer(broker *Broker, queueName, dlq string, concurrency int, handler Handler, log zerolog.Logger) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{
		broker:      broker,
		pub:         broker,
		queue:       queueName,
		dlq:         dlq,
		concurrency: concurrency,
		maxAttempts: domain.QueueMaxAttempts,
		backoffBase: domain.QueueBackoffBase,
		handler:     handler,
		log:         log.With().Str("queue", queueName).Logger(),
	}
}

// Run блокирующе обрабатывает очередь до отмены контекста.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.broker.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.concurrency)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				wg.Wait()
				return fmt.Errorf("delivery channel closed for %s", c.queue)
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				c.process(ctx, d)
			}(d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	attempt := attemptsFrom(d.Headers) + 1
	jobLog := c.log.With().Str("job_id", d.MessageId).Int("attempt", attempt).Logger()

	err := c.handler(ctx, d.Body)
	if err == nil {
		metrics.JobsProcessed.WithLabelValues(c.queue, "completed").Inc()
		if ackErr := d.Ack(false); ackErr != nil {
			jobLog.Error().Err(ackErr).Msg("queue: не удалось подтвердить задачу")
		}
		return
	}

	if attempt >= c.maxAttempts {
		jobLog.Warn().Err(err).Msg("queue: попытки исчерпаны, перекладываем в DLQ")
		// Подтверждаем исходную доставку только после успешной публикации в
		// DLQ, иначе полезная нагрузка была бы потеряна безвозвратно.
		if dlqErr := c.deadLetter(ctx, d, attempt, err); dlqErr != nil {
			jobLog.Error().Err(dlqErr).Msg("queue: не удалось опубликовать DLQ-запись, возвращаем брокеру")
			if nackErr := d.Nack(false, true); nackErr != nil {
				jobLog.Error().Err(nackErr).Msg("queue: не удалось вернуть задачу брокеру")
			}
			return
		}
		metrics.JobsProcessed.WithLabelValues(c.queue, "dead_lettered").Inc()
		if ackErr := d.Ack(false); ackErr != nil {
			jobLog.Error().Err(ackErr).Msg("queue: не удалось подтвердить исчерпанную задачу")
		}
		return
	}

	delay := BackoffFor(c.backoffBase, attempt)
	jobLog.Warn().Err(err).Dur("delay", delay).Msg("queue: задача завершилась ошибкой, повторим")
	metrics.JobsProcessed.WithLabelValues(c.queue, "retried").Inc()
	select {
	case <-ctx.Done():
		// Возвращаем доставку брокеру, повтор случится после рестарта.
		if nackErr := d.Nack(false, true); nackErr != nil {
			jobLog.Error().Err(nackErr).Msg("queue: не удалось вернуть задачу брокеру")
		}
		return
	case <-time.After(delay):
	}
	if pubErr := c.pub.Publish(ctx, c.queue, d.MessageId, attempt, d.Body); pubErr != nil {
		jobLog.Error().Err(pubErr).Msg("queue: не удалось переиздать задачу, возвращаем брокеру")
		if nackErr := d.Nack(false, true); nackErr != nil {
			jobLog.Error().Err(nackErr).Msg("queue: не удалось вернуть задачу брокеру")
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		jobLog.Error().Err(ackErr).Msg("queue: не удалось подтвердить переизданную задачу")
	}
}

func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, attempt int, cause error) error {
	if c.dlq == "" {
		return nil
	}
	record := domain.DeadLetterRecord{
		OriginalJobID: d.MessageId,
		OriginalQueue: c.queue,
		Payload:       json.RawMessage(d.Body),
		FailureReason: cause.Error(),
		AttemptsMade:  attempt,
		FailedAt:      time.Now().UTC(),
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("сериализация DLQ-записи: %w", err)
	}
	if err := c.pub.Publish(ctx, c.dlq, d.MessageId, 0, body); err != nil {
		return fmt.Errorf("публикация в %s: %w", c.dlq, err)
	}
	return nil
}
