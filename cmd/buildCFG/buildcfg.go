package buildCFG

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type QueueConfig struct {
	OfferTTL time.Duration
}

type PaymentConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, defaulting to 8080")
	}
	return ServerConfig{Port: port}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("db.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("db.master_dsn is required")
	}
	slaveDSNs := cfg.GetStringSlice("db.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("db.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("db.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("db.conn_max_lifetime"),
	}

	log.Info().Int("slaves", len(slaveDSNs)).Msg("DB config built")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" || rc.Exchange == "" || rc.Queue == "" {
		return RabbitConfig{}, fmt.Errorf("rabbit.url, rabbit.exchange and rabbit.queue are required")
	}
	return rc, nil
}

func BuildQueueConfig(cfg *config.Config, log *zerolog.Logger) QueueConfig {
	minutes := cfg.GetInt("queue.offer_ttl_minutes")
	if minutes <= 0 {
		minutes = 15
		log.Warn().Msg("queue.offer_ttl_minutes not set, defaulting to 15")
	}
	return QueueConfig{OfferTTL: time.Duration(minutes) * time.Minute}
}

func BuildPaymentConfig(cfg *config.Config, log *zerolog.Logger) (PaymentConfig, error) {
	pc := PaymentConfig{
		BaseURL:       cfg.GetString("payment.base_url"),
		SecretKey:     cfg.GetString("payment.secret_key"),
		WebhookSecret: cfg.GetString("payment.webhook_secret"),
	}
	if pc.SecretKey == "" || pc.WebhookSecret == "" {
		return PaymentConfig{}, fmt.Errorf("payment.secret_key and payment.webhook_secret are required")
	}
	if pc.BaseURL == "" {
		pc.BaseURL = "https://api.paystack.co"
	}
	return pc, nil
}
