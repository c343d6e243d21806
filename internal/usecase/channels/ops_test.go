package channels

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("не удалось сериализовать задачу: %v", err)
	}
	return body
}

func TestOpsHandleJoin(t *testing.T) {
	gateway := &stubGateway{info: domain.ChannelInfo{TGChannelID: 777, Title: "Новости"}}
	repo := &stubChannelRepo{}
	manager, _ := newTestManager(gateway, repo)

	var reloaded bool
	handler := NewOpsHandler(manager, func(context.Context) { reloaded = true }, zerolog.Nop())

	body := mustJSON(t, domain.ChannelOpsJob{Operation: domain.ChannelOpJoin, ChannelID: 42, Username: "news"})
	if err := handler.Handle(context.Background(), body); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(gateway.joined) != 1 || gateway.joined[0] != "news" {
		t.Fatalf("ожидали вступление в news, получили %v", gateway.joined)
	}
	if !reloaded {
		t.Fatalf("после успешной операции должен сработать onApplied")
	}
}

func TestOpsHandleLeave(t *testing.T) {
	gateway := &stubGateway{}
	manager, _ := newTestManager(gateway, &stubChannelRepo{})
	handler := NewOpsHandler(manager, nil, zerolog.Nop())

	body := mustJSON(t, domain.ChannelOpsJob{Operation: domain.ChannelOpLeave, TGChannelID: 777})
	if err := handler.Handle(context.Background(), body); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(gateway.left) != 1 || gateway.left[0] != 777 {
		t.Fatalf("ожидали выход из 777, получили %v", gateway.left)
	}
}

func TestOpsHandleUnknownOperation(t *testing.T) {
	manager, _ := newTestManager(&stubGateway{}, &stubChannelRepo{})
	handler := NewOpsHandler(manager, nil, zerolog.Nop())

	body := mustJSON(t, domain.ChannelOpsJob{Operation: "rename"})
	if err := handler.Handle(context.Background(), body); err == nil {
		t.Fatalf("неизвестная операция должна возвращать ошибку")
	}
}

func TestOpsHandleBadPayload(t *testing.T) {
	manager, _ := newTestManager(&stubGateway{}, &stubChannelRepo{})
	handler := NewOpsHandler(manager, nil, zerolog.Nop())

	if err := handler.Handle(context.Background(), []byte("{broken")); err == nil {
		t.Fatalf("битое тело должно возвращать ошибку")
	}
}
