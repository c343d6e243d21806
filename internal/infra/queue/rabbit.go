package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
)

const headerAttempts = "x-attempts"

// Broker держит соединение с RabbitMQ и канал для публикаций.
// Все рабочие очереди объявляются durable, сообщения публикуются persistent,
// поэтому незавершённые задачи переживают рестарт процесса.
type Broker struct {
	conn *amqp.Connection

	mu  sync.Mutex
	pub *amqp.Channel

	log zerolog.Logger
}

// Connect открывает соединение и объявляет все очереди воркера.
func Connect(url string, log zerolog.Logger) (*Broker, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	b := &Broker{conn: conn, pub: pub, log: log}
	for _, name := range []string{domain.QueueForward, domain.QueueForwardDLQ, domain.QueueChannelOps} {
		if err := b.declare(pub, name); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Broker) declare(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Publish кладёт сообщение в очередь с учётом счётчика попыток.
func (b *Broker) Publish(ctx context.Context, queueName, messageID string, attempts int, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()
	err := b.pub.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{headerAttempts: int32(attempts)},
		Body:         body,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", queueName, start, err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}

// Depth возвращает количество готовых сообщений в очереди.
func (b *Broker) Depth(queueName string) (int, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	q, err := ch.QueueDeclarePassive(queueName, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("inspect queue %s: %w", queueName, err)
	}
	return q.Messages, nil
}

// Depths собирает глубины всех очередей воркера.
func (b *Broker) Depths() (domain.QueueDepths, error) {
	var depths domain.QueueDepths
	var err error
	if depths.Forward, err = b.Depth(domain.QueueForward); err != nil {
		return depths, err
	}
	if depths.ForwardDLQ, err = b.Depth(domain.QueueForwardDLQ); err != nil {
		return depths, err
	}
	if depths.ChannelOps, err = b.Depth(domain.QueueChannelOps); err != nil {
		return depths, err
	}
	return depths, nil
}

// Close закрывает соединение. Неподтверждённые доставки вернутся в очередь.
func (b *Broker) Close() error {
	return b.conn.Close()
}

func attemptsFrom(headers amqp.Table) int {
	switch v := headers[headerAttempts].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// BackoffFor возвращает задержку перед попыткой attempt (нумерация с 1):
// base, 2*base, 4*base и так далее.
func BackoffFor(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
