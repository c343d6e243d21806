package channels

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
)

// OpsHandler разбирает задачи channel-ops и выполняет их через Manager.
// Консьюмер очереди работает с конкуррентностью 1, поэтому операции
// сериализованы и делят общую квоту вступлений честно.
type OpsHandler struct {
	manager *Manager
	// onApplied вызывается после успешной операции, чтобы слушатель
	// перечитал активные каналы без ожидания реконнекта.
	onApplied func(ctx context.Context)
	log       zerolog.Logger
}

// NewOpsHandler создаёт обработчик операций. onApplied может быть nil.
func NewOpsHandler(manager *Manager, onApplied func(ctx context.Context), log zerolog.Logger) *OpsHandler {
	return &OpsHandler{
		manager:   manager,
		onApplied: onApplied,
		log:       log.With().Str("component", "channel_ops").Logger(),
	}
}

// Handle — обработчик тела сообщения очереди channel-ops. Ошибки
// поднимаются в политику повторов очереди.
func (h *OpsHandler) Handle(ctx context.Context, body []byte) error {
	var job domain.ChannelOpsJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("разбор channel-ops задачи: %w", err)
	}

	switch job.Operation {
	case domain.ChannelOpJoin:
		if _, err := h.manager.JoinChannel(ctx, job.ChannelID, job.Username); err != nil {
			return err
		}
	case domain.ChannelOpLeave:
		if err := h.manager.LeaveChannel(ctx, job.TGChannelID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("неизвестная операция %q", job.Operation)
	}

	if h.onApplied != nil {
		h.onApplied(ctx)
	}
	return nil
}
