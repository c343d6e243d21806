// Package telegram отправляет пересылаемые записи в каналы-назначения через Bot API.
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
)

// Sender реализует domain.MessageSender поверх Bot API. Бот должен быть
// администратором каналов-назначений.
type Sender struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

// NewSender создаёт отправителя.
func NewSender(bot *tgbotapi.BotAPI, log zerolog.Logger) *Sender {
	return &Sender{
		bot: bot,
		log: log.With().Str("component", "sender").Logger(),
	}
}

var _ domain.MessageSender = (*Sender)(nil)

// Send отправляет запись в канал-назначение. Запись с AlbumItems уходит одной
// медиагруппой, длинный текст режется по лимиту Telegram.
func (s *Sender) Send(ctx context.Context, destinationID int64, record domain.ForwardRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := s.send(destinationID, record)
	metrics.ObserveNetworkRequest("telegram", "send_message", "bot_api", start, err)
	if err != nil {
		return fmt.Errorf("отправка в %d: %w", destinationID, err)
	}
	return nil
}

func (s *Sender) send(destinationID int64, record domain.ForwardRecord) error {
	if len(record.AlbumItems) > 1 {
		return s.sendAlbum(destinationID, record)
	}

	if record.MediaKind == domain.MediaNone {
		return s.sendText(destinationID, record)
	}
	return s.sendMedia(destinationID, record)
}

func (s *Sender) sendText(destinationID int64, record domain.ForwardRecord) error {
	parts := SplitMessage(record.Text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(destinationID, part)
		// Разметка валидна только для нерезаного сообщения: смещения entity
		// после разбиения не пересчитываются.
		if i == 0 && len(parts) == 1 {
			msg.Entities = convertEntities(record.Entities)
		}
		if _, err := s.bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) sendMedia(destinationID int64, record domain.ForwardRecord) error {
	file := tgbotapi.FileID(record.MediaRef)
	caption := record.Caption
	entities := convertEntities(record.Entities)

	var chattable tgbotapi.Chattable
	switch record.MediaKind {
	case domain.MediaPhoto:
		cfg := tgbotapi.NewPhoto(destinationID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaVideo:
		cfg := tgbotapi.NewVideo(destinationID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaAnimation:
		cfg := tgbotapi.NewAnimation(destinationID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaAudio:
		cfg := tgbotapi.NewAudio(destinationID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaVoice:
		cfg := tgbotapi.NewVoice(destinationID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaSticker:
		// Стикеры и кружки не несут подписей.
		chattable = tgbotapi.NewSticker(destinationID, file)
	case domain.MediaVideoNote:
		chattable = tgbotapi.NewVideoNote(destinationID, 0, file)
	default:
		cfg := tgbotapi.NewDocument(destinationID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	}

	_, err := s.bot.Send(chattable)
	return err
}

func (s *Sender) sendAlbum(destinationID int64, record domain.ForwardRecord) error {
	media := make([]interface{}, 0, len(record.AlbumItems))
	for i, item := range record.AlbumItems {
		input, err := inputMediaFor(item)
		if err != nil {
			return err
		}
		// Подпись несёт только первый элемент медиагруппы.
		if i == 0 {
			switch m := input.(type) {
			case tgbotapi.InputMediaPhoto:
				m.Caption = record.Caption
				m.CaptionEntities = convertEntities(record.Entities)
				input = m
			case tgbotapi.InputMediaVideo:
				m.Caption = record.Caption
				m.CaptionEntities = convertEntities(record.Entities)
				input = m
			case tgbotapi.InputMediaDocument:
				m.Caption = record.Caption
				m.CaptionEntities = convertEntities(record.Entities)
				input = m
			case tgbotapi.InputMediaAudio:
				m.Caption = record.Caption
				m.CaptionEntities = convertEntities(record.Entities)
				input = m
			}
		}
		media = append(media, input)
	}

	group := tgbotapi.MediaGroupConfig{ChatID: destinationID, Media: media}
	_, err := s.bot.SendMediaGroup(group)
	return err
}

func inputMediaFor(item domain.ForwardRecord) (interface{}, error) {
	file := tgbotapi.FileID(item.MediaRef)
	switch item.MediaKind {
	case domain.MediaPhoto:
		return tgbotapi.NewInputMediaPhoto(file), nil
	case domain.MediaVideo:
		return tgbotapi.NewInputMediaVideo(file), nil
	case domain.MediaDocument:
		return tgbotapi.NewInputMediaDocument(file), nil
	case domain.MediaAudio:
		return tgbotapi.NewInputMediaAudio(file), nil
	default:
		return nil, fmt.Errorf("медиа %q не поддерживается в альбоме", item.MediaKind)
	}
}

func convertEntities(entities []domain.MessageEntity) []tgbotapi.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]tgbotapi.MessageEntity, 0, len(entities))
	for _, e := range entities {
		entity := tgbotapi.MessageEntity{
			Type:     e.Type,
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		}
		if e.UserID != 0 {
			entity.User = &tgbotapi.User{ID: e.UserID}
		}
		out = append(out, entity)
	}
	return out
}
