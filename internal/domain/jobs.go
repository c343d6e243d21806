package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Имена очередей и политика повторов. Значения совпадают с лимитами Telegram
// и подобраны так, чтобы временная недоступность Bot API не приводила к потере
// сообщений.
const (
	QueueForward     = "message-forward"
	QueueForwardDLQ  = "message-forward-dlq"
	QueueChannelOps  = "channel-ops"
	QueueMaxAttempts = 3
	QueueBackoffBase = 5 * time.Second
)

// ChannelOperation — тип операции над каналом-источником.
type ChannelOperation string

const (
	ChannelOpJoin  ChannelOperation = "join"
	ChannelOpLeave ChannelOperation = "leave"
)

// ChannelOpsJob — задача на вступление в канал или выход из него.
// При join заполнены ChannelID (строка в БД) и Username, при leave — TGChannelID.
type ChannelOpsJob struct {
	Operation   ChannelOperation `json:"operation"`
	ChannelID   int64            `json:"channel_id,omitempty"`
	Username    string           `json:"username,omitempty"`
	TGChannelID int64            `json:"tg_channel_id,omitempty"`
}

// DeadLetterRecord — обёртка задачи, исчерпавшей попытки. Лежит в DLQ только
// для ручного разбора, автоматически не переобрабатывается.
type DeadLetterRecord struct {
	OriginalJobID string          `json:"original_job_id"`
	OriginalQueue string          `json:"original_queue"`
	Payload       json.RawMessage `json:"payload"`
	FailureReason string          `json:"failure_reason"`
	AttemptsMade  int             `json:"attempts_made"`
	FailedAt      time.Time       `json:"failed_at"`
}

// ForwardQueue публикует записи на пересылку.
type ForwardQueue interface {
	Enqueue(ctx context.Context, record ForwardRecord) error
}

// ChannelOpsQueue публикует операции над каналами.
type ChannelOpsQueue interface {
	EnqueueOp(ctx context.Context, job ChannelOpsJob) error
}

// QueueDepths — счётчики глубины очередей для health-эндпоинта.
type QueueDepths struct {
	Forward    int `json:"forward"`
	ForwardDLQ int `json:"forward_dlq"`
	ChannelOps int `json:"channel_ops"`
}
