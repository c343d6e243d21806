// Package dedup не даёт одному и тому же тексту уйти в канал-назначение
// дважды. Отпечаток строится по нормализованному тексту и живёт в общем
// кэше с TTL; недоступность кэша никогда не блокирует доставку.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
	"tg-relay-bot/internal/infra/metrics"
)

// TTL хранения отпечатков пересланных сообщений.
const TTL = 72 * time.Hour

const maxTokens = 10

// Normalize приводит текст к каноничной форме: нижний регистр, только буквы,
// цифры и пробелы, схлопнутые пробелы, не более maxTokens первых слов.
func Normalize(text string) string {
	lowered := strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	tokens := strings.Fields(b.String())
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	return strings.Join(tokens, " ")
}

// Fingerprint возвращает SHA-256 нормализованного текста в hex.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Service проверяет и помечает пересланные сообщения.
type Service struct {
	cache domain.DedupCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewService создаёт сервис дедупликации.
func NewService(cache domain.DedupCache, log zerolog.Logger) *Service {
	return &Service{cache: cache, ttl: TTL, log: log.With().Str("component", "dedup").Logger()}
}

func key(destinationID int64, text string) string {
	return fmt.Sprintf("dedup:%d:%s", destinationID, Fingerprint(text))
}

// IsDuplicate сообщает, уходил ли такой текст в этот канал за время TTL.
// Пустой нормализованный текст дубликатом не считается. При недоступности
// кэша отвечает "не дубликат" — доставка важнее идеальной дедупликации.
func (s *Service) IsDuplicate(ctx context.Context, destinationID int64, text string) bool {
	if Normalize(text) == "" {
		return false
	}
	k := key(destinationID, text)
	exists, err := s.cache.Exists(ctx, k)
	if err != nil {
		s.log.Warn().Err(err).Str("key", k).Msg("кэш недоступен при проверке дубликата, пропускаем проверку")
		return false
	}
	if exists {
		metrics.DedupSkipped.Inc()
	}
	return exists
}

// MarkAsForwarded запоминает отпечаток на время TTL. Ошибка кэша только
// логируется.
func (s *Service) MarkAsForwarded(ctx context.Context, destinationID int64, text string) {
	if Normalize(text) == "" {
		return
	}
	k := key(destinationID, text)
	if err := s.cache.SetWithTTL(ctx, k, "1", s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", k).Msg("кэш недоступен при записи отпечатка, запись пропущена")
	}
}
