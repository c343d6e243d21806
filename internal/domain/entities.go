package domain

import "time"

// MediaKind описывает тип медиа в пересылаемом сообщении.
type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAnimation MediaKind = "animation"
	MediaAudio     MediaKind = "audio"
	MediaSticker   MediaKind = "sticker"
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
)

// MessageEntity описывает элемент разметки текста (bold, ссылка и т.п.).
type MessageEntity struct {
	Type     string `json:"type"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	URL      string `json:"url,omitempty"`
	Language string `json:"language,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
}

// ForwardRecord — каноничное представление одного пересылаемого сообщения.
// Заполнено либо Text, либо медиа (MediaKind != MediaNone) с опциональным Caption.
// AlbumItems устанавливается только на записи, собранной из альбома.
type ForwardRecord struct {
	MessageID       int64           `json:"message_id"`
	SourceChannelID int64           `json:"source_channel_id"`
	Text            string          `json:"text,omitempty"`
	Caption         string          `json:"caption,omitempty"`
	Entities        []MessageEntity `json:"entities,omitempty"`
	MediaKind       MediaKind       `json:"media_kind,omitempty"`
	MediaRef        string          `json:"media_ref,omitempty"`
	AlbumID         string          `json:"album_id,omitempty"`
	AlbumItems      []ForwardRecord `json:"album_items,omitempty"`
	Timestamp       int64           `json:"timestamp"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
}

// Content возвращает текст записи независимо от того, пришёл он как text или caption.
func (r ForwardRecord) Content() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Caption
}

// Channel описывает канал-источник в БД. Воркер меняет только isActive и
// реквизиты, записываемые при подтверждении подписки.
type Channel struct {
	ID               int64
	TGChannelID      int64
	Username         string
	Title            string
	IsActive         bool
	LastReferencedAt *time.Time
	SubscribedAt     time.Time
}

// ChannelInfo — реквизиты канала, полученные от Telegram при вступлении.
type ChannelInfo struct {
	TGChannelID int64
	Title       string
}

// CleanupResult — итог одного прохода очистки осиротевших каналов.
type CleanupResult struct {
	Deactivated int       `json:"deactivated"`
	Failed      int       `json:"failed"`
	Total       int       `json:"total"`
	FinishedAt  time.Time `json:"finished_at"`
}
