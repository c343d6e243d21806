package domain

import (
	"context"
	"time"
)

// ChannelRepo управляет каналами-источниками.
type ChannelRepo interface {
	// ListActiveChannelIDs возвращает Telegram-идентификаторы всех активных каналов.
	ListActiveChannelIDs(ctx context.Context) ([]int64, error)
	// ActivateChannel записывает реальные реквизиты канала после вступления
	// и помечает его активным.
	ActivateChannel(ctx context.Context, id int64, tgChannelID int64, title string) error
	// DeleteChannel удаляет pending-строку канала после неудачного вступления.
	DeleteChannel(ctx context.Context, id int64) error
	// DeactivateChannel снимает флаг активности.
	DeactivateChannel(ctx context.Context, id int64) error
	// ListOrphanChannels возвращает активные каналы без подписок, последнее
	// обращение к которым старше threshold.
	ListOrphanChannels(ctx context.Context, threshold time.Time) ([]Channel, error)
}

// SubscriptionRepo читает реестр списков подписок.
type SubscriptionRepo interface {
	// ListDestinations возвращает каналы-назначения всех активных списков,
	// включающих указанный источник, по одному на список (возможны повторы).
	ListDestinations(ctx context.Context, sourceTGChannelID int64) ([]int64, error)
}

// DedupCache — разделяемый кэш с TTL для отпечатков пересланных сообщений.
type DedupCache interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// MessageSender отправляет запись в канал-назначение.
type MessageSender interface {
	Send(ctx context.Context, destinationID int64, record ForwardRecord) error
}

// ChannelGateway выполняет сетевые операции вступления и выхода.
type ChannelGateway interface {
	JoinChannel(ctx context.Context, username string) (ChannelInfo, error)
	LeaveChannel(ctx context.Context, tgChannelID int64) error
}
