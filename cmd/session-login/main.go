// Утилита первичной авторизации MTProto-сессии. Запрашивает код подтверждения
// в интерактивном режиме и сохраняет сессию в файл, который затем использует
// воркер.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog/log"

	"tg-relay-bot/internal/infra/config"
)

func main() {
	var phone string
	flag.StringVar(&phone, "phone", "", "Номер телефона аккаунта в международном формате")
	flag.Parse()

	if phone == "" {
		log.Fatal().Msg("session-login: номер телефона обязателен (-phone)")
	}

	cfg := config.Load()
	if cfg.Telegram.APIID == 0 || cfg.Telegram.APIHash == "" {
		log.Fatal().Msg("session-login: не указаны TG_API_ID и TG_API_HASH")
	}

	client := telegram.NewClient(cfg.Telegram.APIID, cfg.Telegram.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.MTProto.SessionFile},
	})

	ctx := context.Background()
	err := client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(
			auth.Constant(phone, "", auth.CodeAuthenticatorFunc(readCode)),
			auth.SendCodeOptions{},
		)
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return err
		}

		self, err := client.Self(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Авторизован как %s %s (id=%d), сессия сохранена в %s\n",
			self.FirstName, self.LastName, self.ID, cfg.MTProto.SessionFile)
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("session-login: авторизация не удалась")
	}
}

func readCode(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Print("Код подтверждения: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}
