package mtproto

import (
	"fmt"
	"strconv"

	"github.com/gotd/td/tg"

	"tg-relay-bot/internal/domain"
)

// ExtractRecord строит ForwardRecord из сообщения MTProto. Текст кладётся в
// Text для чисто текстовых сообщений и в Caption при наличии медиа.
func ExtractRecord(msg *tg.Message) domain.ForwardRecord {
	kind, ref := mediaOf(msg)
	record := domain.ForwardRecord{
		MessageID: int64(msg.ID),
		MediaKind: kind,
		MediaRef:  ref,
		Entities:  extractEntities(msg.Entities),
		Timestamp: int64(msg.Date),
	}
	if peer, ok := msg.PeerID.(*tg.PeerChannel); ok {
		record.SourceChannelID = peer.ChannelID
	}
	if kind == domain.MediaNone {
		record.Text = msg.Message
	} else {
		record.Caption = msg.Message
	}
	if groupedID, ok := msg.GetGroupedID(); ok {
		record.AlbumID = strconv.FormatInt(groupedID, 10)
	}
	return record
}

// mediaOf определяет тип медиа и его опорную ссылку. Ссылка — непрозрачная
// строка, однозначно идентифицирующая блоб на стороне Telegram; её формат
// дальше нигде не разбирается.
func mediaOf(msg *tg.Message) (domain.MediaKind, string) {
	switch media := msg.Media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := media.GetPhoto()
		if !ok {
			return domain.MediaNone, ""
		}
		p, ok := photo.(*tg.Photo)
		if !ok {
			return domain.MediaNone, ""
		}
		return domain.MediaPhoto, fmt.Sprintf("photo:%d:%d", p.ID, p.AccessHash)
	case *tg.MessageMediaDocument:
		doc, ok := media.GetDocument()
		if !ok {
			return domain.MediaNone, ""
		}
		d, ok := doc.(*tg.Document)
		if !ok {
			return domain.MediaNone, ""
		}
		return documentKind(d), fmt.Sprintf("document:%d:%d", d.ID, d.AccessHash)
	default:
		return domain.MediaNone, ""
	}
}

func documentKind(doc *tg.Document) domain.MediaKind {
	kind := domain.MediaDocument
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeAnimated:
			return domain.MediaAnimation
		case *tg.DocumentAttributeSticker:
			return domain.MediaSticker
		case *tg.DocumentAttributeVideo:
			if a.RoundMessage {
				return domain.MediaVideoNote
			}
			kind = domain.MediaVideo
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return domain.MediaVoice
			}
			kind = domain.MediaAudio
		}
	}
	return kind
}

// extractEntities переводит разметку MTProto в термины Bot API; смещения в
// обоих протоколах считаются в UTF-16 и передаются как есть.
func extractEntities(entities []tg.MessageEntityClass) []domain.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]domain.MessageEntity, 0, len(entities))
	for _, raw := range entities {
		entity := domain.MessageEntity{
			Offset: raw.GetOffset(),
			Length: raw.GetLength(),
		}
		switch e := raw.(type) {
		case *tg.MessageEntityBold:
			entity.Type = "bold"
		case *tg.MessageEntityItalic:
			entity.Type = "italic"
		case *tg.MessageEntityUnderline:
			entity.Type = "underline"
		case *tg.MessageEntityStrike:
			entity.Type = "strikethrough"
		case *tg.MessageEntityCode:
			entity.Type = "code"
		case *tg.MessageEntityPre:
			entity.Type = "pre"
			entity.Language = e.Language
		case *tg.MessageEntityURL:
			entity.Type = "url"
		case *tg.MessageEntityTextURL:
			entity.Type = "text_link"
			entity.URL = e.URL
		case *tg.MessageEntityMention:
			entity.Type = "mention"
		case *tg.MessageEntityMentionName:
			entity.Type = "text_mention"
			entity.UserID = e.UserID
		case *tg.MessageEntityHashtag:
			entity.Type = "hashtag"
		case *tg.MessageEntityCashtag:
			entity.Type = "cashtag"
		case *tg.MessageEntityBotCommand:
			entity.Type = "bot_command"
		case *tg.MessageEntityEmail:
			entity.Type = "email"
		case *tg.MessageEntityPhone:
			entity.Type = "phone_number"
		case *tg.MessageEntitySpoiler:
			entity.Type = "spoiler"
		case *tg.MessageEntityBlockquote:
			entity.Type = "blockquote"
		default:
			continue
		}
		out = append(out, entity)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
