package mtproto

import (
	"testing"

	"github.com/gotd/td/tg"

	"tg-relay-bot/internal/domain"
)

func channelMessage(id int, text string) *tg.Message {
	return &tg.Message{
		ID:      id,
		Message: text,
		PeerID:  &tg.PeerChannel{ChannelID: 777},
		Date:    1700000000,
	}
}

func TestExtractRecordText(t *testing.T) {
	msg := channelMessage(42, "привет, мир")

	record := ExtractRecord(msg)

	if record.MessageID != 42 {
		t.Fatalf("MessageID = %d, ожидалось 42", record.MessageID)
	}
	if record.SourceChannelID != 777 {
		t.Fatalf("SourceChannelID = %d, ожидалось 777", record.SourceChannelID)
	}
	if record.Text != "привет, мир" || record.Caption != "" {
		t.Fatalf("текст должен попасть в Text: text=%q caption=%q", record.Text, record.Caption)
	}
	if record.MediaKind != domain.MediaNone {
		t.Fatalf("MediaKind = %q, ожидалось пустое", record.MediaKind)
	}
}

func TestExtractRecordPhotoCaption(t *testing.T) {
	msg := channelMessage(1, "подпись")
	msg.Media = &tg.MessageMediaPhoto{}
	msg.Media.(*tg.MessageMediaPhoto).SetPhoto(&tg.Photo{ID: 9001, AccessHash: 5})

	record := ExtractRecord(msg)

	if record.MediaKind != domain.MediaPhoto {
		t.Fatalf("MediaKind = %q, ожидалось photo", record.MediaKind)
	}
	if record.MediaRef != "photo:9001:5" {
		t.Fatalf("MediaRef = %q", record.MediaRef)
	}
	if record.Caption != "подпись" || record.Text != "" {
		t.Fatalf("текст должен попасть в Caption: text=%q caption=%q", record.Text, record.Caption)
	}
}

func TestExtractRecordDocumentKinds(t *testing.T) {
	cases := []struct {
		name  string
		attrs []tg.DocumentAttributeClass
		want  domain.MediaKind
	}{
		{"без атрибутов", nil, domain.MediaDocument},
		{"видео", []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{}}, domain.MediaVideo},
		{"кружок", []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{RoundMessage: true}}, domain.MediaVideoNote},
		{"анимация", []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{}, &tg.DocumentAttributeAnimated{}}, domain.MediaAnimation},
		{"стикер", []tg.DocumentAttributeClass{&tg.DocumentAttributeSticker{}}, domain.MediaSticker},
		{"аудио", []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{}}, domain.MediaAudio},
		{"голосовое", []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{Voice: true}}, domain.MediaVoice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := channelMessage(1, "")
			media := &tg.MessageMediaDocument{}
			media.SetDocument(&tg.Document{ID: 7, AccessHash: 3, Attributes: tc.attrs})
			msg.Media = media

			record := ExtractRecord(msg)

			if record.MediaKind != tc.want {
				t.Fatalf("MediaKind = %q, ожидалось %q", record.MediaKind, tc.want)
			}
			if record.MediaRef != "document:7:3" {
				t.Fatalf("MediaRef = %q", record.MediaRef)
			}
		})
	}
}

func TestExtractRecordAlbumID(t *testing.T) {
	msg := channelMessage(1, "")
	media := &tg.MessageMediaPhoto{}
	media.SetPhoto(&tg.Photo{ID: 1, AccessHash: 1})
	msg.Media = media
	msg.SetGroupedID(123456789)

	record := ExtractRecord(msg)

	if record.AlbumID != "123456789" {
		t.Fatalf("AlbumID = %q, ожидалось 123456789", record.AlbumID)
	}
}

func TestExtractEntities(t *testing.T) {
	msg := channelMessage(1, "bold link @user code")
	msg.Entities = []tg.MessageEntityClass{
		&tg.MessageEntityBold{Offset: 0, Length: 4},
		&tg.MessageEntityTextURL{Offset: 5, Length: 4, URL: "https://example.com"},
		&tg.MessageEntityMentionName{Offset: 10, Length: 5, UserID: 99},
		&tg.MessageEntityPre{Offset: 16, Length: 4, Language: "go"},
		&tg.MessageEntityUnknown{Offset: 0, Length: 1},
	}

	record := ExtractRecord(msg)

	if len(record.Entities) != 4 {
		t.Fatalf("entities = %d, ожидалось 4 (unknown пропускается)", len(record.Entities))
	}
	if record.Entities[0].Type != "bold" || record.Entities[0].Length != 4 {
		t.Fatalf("первая entity: %+v", record.Entities[0])
	}
	if record.Entities[1].Type != "text_link" || record.Entities[1].URL != "https://example.com" {
		t.Fatalf("вторая entity: %+v", record.Entities[1])
	}
	if record.Entities[2].Type != "text_mention" || record.Entities[2].UserID != 99 {
		t.Fatalf("третья entity: %+v", record.Entities[2])
	}
	if record.Entities[3].Type != "pre" || record.Entities[3].Language != "go" {
		t.Fatalf("четвёртая entity: %+v", record.Entities[3])
	}
}
