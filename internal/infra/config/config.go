package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию воркера.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token   string `envconfig:"TG_BOT_TOKEN"`
		APIID   int    `envconfig:"TG_API_ID"`
		APIHash string `envconfig:"TG_API_HASH"`
	} `envconfig:""`

	MTProto struct {
		SessionFile string `envconfig:"MTPROTO_SESSION_FILE" default:"mtproto.session"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Limits struct {
		GlobalPerSecond int `envconfig:"FORWARD_GLOBAL_RATE_LIMIT" default:"20"`
		PerDestHourly   int `envconfig:"FORWARD_PER_DEST_RATE_LIMIT" default:"15"`
		ForwardWorkers  int `envconfig:"FORWARD_WORKERS" default:"4"`
	} `envconfig:""`

	Cleanup struct {
		Schedule  string `envconfig:"CLEANUP_SCHEDULE" default:"0 3 * * *"`
		GraceDays int    `envconfig:"CLEANUP_GRACE_DAYS" default:"30"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
