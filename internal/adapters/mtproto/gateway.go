package mtproto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
)

// ErrNotConnected возвращается, когда операция членства запрошена до того,
// как MTProto-подключение поднялось.
var ErrNotConnected = errors.New("mtproto: подключение не установлено")

// Gateway выполняет операции вступления и выхода через авторизованную
// MTProto-сессию слушателя.
type Gateway struct {
	listener *Listener
}

// NewGateway создаёт шлюз поверх уже созданного слушателя.
func NewGateway(l *Listener) *Gateway {
	return &Gateway{listener: l}
}

func (g *Gateway) api() (*tg.Client, error) {
	api := g.listener.api.Load()
	if api == nil || !g.listener.Connected() {
		return nil, ErrNotConnected
	}
	return api, nil
}

// JoinChannel резолвит username и вступает в канал. Возвращает реквизиты
// канала для записи в БД.
func (g *Gateway) JoinChannel(ctx context.Context, username string) (domain.ChannelInfo, error) {
	api, err := g.api()
	if err != nil {
		return domain.ChannelInfo{}, err
	}

	start := time.Now()
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	metrics.ObserveNetworkRequest("telegram", "resolve_username", "mtproto", start, err)
	if err != nil {
		return domain.ChannelInfo{}, fmt.Errorf("резолв username %q: %w", username, err)
	}

	var channel *tg.Channel
	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			channel = ch
			break
		}
	}
	if channel == nil {
		return domain.ChannelInfo{}, fmt.Errorf("username %q не является каналом", username)
	}

	start = time.Now()
	_, err = api.ChannelsJoinChannel(ctx, &tg.InputChannel{
		ChannelID:  channel.ID,
		AccessHash: channel.AccessHash,
	})
	metrics.ObserveNetworkRequest("telegram", "join_channel", "mtproto", start, err)
	if err != nil {
		return domain.ChannelInfo{}, fmt.Errorf("вступление в канал %q: %w", username, err)
	}

	return domain.ChannelInfo{TGChannelID: channel.ID, Title: channel.Title}, nil
}

// LeaveChannel выходит из канала по его Telegram-идентификатору. Перед выходом
// канал запрашивается повторно, чтобы получить актуальный access hash.
func (g *Gateway) LeaveChannel(ctx context.Context, tgChannelID int64) error {
	api, err := g.api()
	if err != nil {
		return err
	}

	start := time.Now()
	chats, err := api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: tgChannelID},
	})
	metrics.ObserveNetworkRequest("telegram", "get_channels", "mtproto", start, err)
	if err != nil {
		return fmt.Errorf("запрос канала %d: %w", tgChannelID, err)
	}

	var list []tg.ChatClass
	switch v := chats.(type) {
	case *tg.MessagesChats:
		list = v.Chats
	case *tg.MessagesChatsSlice:
		list = v.Chats
	}

	var channel *tg.Channel
	for _, chat := range list {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == tgChannelID {
			channel = ch
			break
		}
	}
	if channel == nil {
		return fmt.Errorf("канал %d не найден", tgChannelID)
	}

	start = time.Now()
	_, err = api.ChannelsLeaveChannel(ctx, &tg.InputChannel{
		ChannelID:  channel.ID,
		AccessHash: channel.AccessHash,
	})
	metrics.ObserveNetworkRequest("telegram", "leave_channel", "mtproto", start, err)
	if err != nil {
		return fmt.Errorf("выход из канала %d: %w", tgChannelID, err)
	}
	return nil
}
