package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
)

type published struct {
	queue    string
	attempts int
	body     []byte
}

type fakePublisher struct {
	published []published
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, queueName, _ string, attempts int, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{queue: queueName, attempts: attempts, body: body})
	return nil
}

type fakeAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcker) Ack(uint64, bool) error { f.acked = true; return nil }
func (f *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}
func (f *fakeAcker) Reject(_ uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func testConsumer(pub publisher, handler Handler) *Consumer {
	return &Consumer{
		pub:         pub,
		queue:       "test-queue",
		dlq:         "test-dlq",
		concurrency: 1,
		maxAttempts: domain.QueueMaxAttempts,
		backoffBase: time.Millisecond,
		handler:     handler,
		log:         zerolog.Nop(),
	}
}

func delivery(acker *fakeAcker, attempts int, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: acker,
		MessageId:    "job-1",
		Headers:      amqp.Table{headerAttempts: int32(attempts)},
		Body:         body,
	}
}

func TestConsumerAcksOnSuccess(t *testing.T) {
	pub := &fakePublisher{}
	c := testConsumer(pub, func(context.Context, []byte) error { return nil })
	acker := &fakeAcker{}

	c.process(context.Background(), delivery(acker, 0, []byte(`{}`)))

	if !acker.acked {
		t.Fatalf("успешная задача должна быть подтверждена")
	}
	if len(pub.published) != 0 {
		t.Fatalf("успешная задача не должна переиздаваться: %v", pub.published)
	}
}

func TestConsumerRetriesThenDeadLetters(t *testing.T) {
	pub := &fakePublisher{}
	calls := 0
	c := testConsumer(pub, func(context.Context, []byte) error {
		calls++
		return errors.New("постоянная ошибка")
	})

	// Прогоняем задачу по полному циклу: каждое переиздание обрабатываем
	// заново, как сделал бы брокер.
	body := []byte(`{"message_id":7}`)
	attempts := 0
	for i := 0; i < domain.QueueMaxAttempts; i++ {
		acker := &fakeAcker{}
		c.process(context.Background(), delivery(acker, attempts, body))
		if !acker.acked {
			t.Fatalf("попытка %d: доставка должна быть подтверждена после переиздания", i+1)
		}
		if len(pub.published) == 0 {
			t.Fatalf("попытка %d: ожидалась публикация", i+1)
		}
		last := pub.published[len(pub.published)-1]
		if last.queue == "test-dlq" {
			break
		}
		attempts = last.attempts
	}

	if calls != domain.QueueMaxAttempts {
		t.Fatalf("обработчик вызван %d раз, ожидалось %d", calls, domain.QueueMaxAttempts)
	}

	last := pub.published[len(pub.published)-1]
	if last.queue != "test-dlq" {
		t.Fatalf("после исчерпания попыток задача должна уйти в DLQ, попала в %s", last.queue)
	}
	var record domain.DeadLetterRecord
	if err := json.Unmarshal(last.body, &record); err != nil {
		t.Fatalf("DLQ-запись не разбирается: %v", err)
	}
	if string(record.Payload) != string(body) {
		t.Fatalf("DLQ-запись должна нести исходное тело: %s", record.Payload)
	}
	if record.AttemptsMade != domain.QueueMaxAttempts {
		t.Fatalf("AttemptsMade = %d, ожидалось %d", record.AttemptsMade, domain.QueueMaxAttempts)
	}
	if record.FailureReason != "постоянная ошибка" {
		t.Fatalf("FailureReason = %q", record.FailureReason)
	}
	if record.OriginalQueue != "test-queue" {
		t.Fatalf("OriginalQueue = %q", record.OriginalQueue)
	}

	dlqCount := 0
	for _, p := range pub.published {
		if p.queue == "test-dlq" {
			dlqCount++
		}
	}
	if dlqCount != 1 {
		t.Fatalf("в DLQ должна попасть ровно одна запись, попало %d", dlqCount)
	}
}

func TestConsumerRepublishesWithIncrementedAttempts(t *testing.T) {
	pub := &fakePublisher{}
	c := testConsumer(pub, func(context.Context, []byte) error { return errors.New("временная ошибка") })
	acker := &fakeAcker{}

	c.process(context.Background(), delivery(acker, 0, []byte(`{}`)))

	if len(pub.published) != 1 {
		t.Fatalf("ожидалось одно переиздание, получено %d", len(pub.published))
	}
	if pub.published[0].queue != "test-queue" {
		t.Fatalf("переиздание должно идти в исходную очередь, попало в %s", pub.published[0].queue)
	}
	if pub.published[0].attempts != 1 {
		t.Fatalf("счётчик попыток = %d, ожидалось 1", pub.published[0].attempts)
	}
	if !acker.acked {
		t.Fatalf("исходная доставка должна быть подтверждена после переиздания")
	}
}

func TestConsumerKeepsDeliveryWhenDeadLetterFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("брокер недоступен")}
	c := testConsumer(pub, func(context.Context, []byte) error { return errors.New("постоянная ошибка") })
	acker := &fakeAcker{}

	// Последняя попытка: без DLQ-записи доставка должна вернуться брокеру,
	// иначе тело задачи теряется.
	c.process(context.Background(), delivery(acker, domain.QueueMaxAttempts-1, []byte(`{"message_id":7}`)))

	if acker.acked {
		t.Fatalf("доставка не должна подтверждаться при неудачной публикации в DLQ")
	}
	if !acker.nacked || !acker.requeue {
		t.Fatalf("доставка должна вернуться брокеру с requeue")
	}
}

func TestConsumerReturnsDeliveryWhenRepublishFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("брокер недоступен")}
	c := testConsumer(pub, func(context.Context, []byte) error { return errors.New("ошибка обработки") })
	acker := &fakeAcker{}

	c.process(context.Background(), delivery(acker, 0, []byte(`{}`)))

	if acker.acked {
		t.Fatalf("без переиздания доставка не должна подтверждаться")
	}
	if !acker.nacked || !acker.requeue {
		t.Fatalf("доставка должна вернуться брокеру с requeue")
	}
}
