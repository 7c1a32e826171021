package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the bot needs at startup. It is built once in main
// and passed by reference into each component's constructor.
type Config struct {
	TelegramBotToken string
	DatabaseFile     string
	RedisAddr        string

	WGDashboardURL    string
	WGDashboardAPIKey string
	WGConfigName      string

	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaReturnURL string

	WebhookListenAddr string

	PromoFile         string
	CustomClientsFile string

	SweepInterval     time.Duration
	PreExpiryWindow   time.Duration
	PendingPaymentTTL time.Duration
}

func Load() (*Config, error) {
	// .env is optional, for local development only.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseFile:      getEnv("DATABASE_FILE", "data/wgbot.db"),
		RedisAddr:         getEnv("REDIS_HOST", "localhost:6379"),
		WGConfigName:      getEnv("WG_CONFIG_NAME", "awg0"),
		YooKassaShopID:    os.Getenv("YOOKASSA_SHOP_ID"),
		YooKassaSecretKey: os.Getenv("YOOKASSA_SECRET_KEY"),
		YooKassaReturnURL: getEnv("YOOKASSA_RETURN_URL", "https://t.me/nikonvpn_bot"),
		WebhookListenAddr: getEnv("WEBHOOK_LISTEN_ADDR", ":8001"),
		PromoFile:         getEnv("PROMO_FILE", "data/promo.txt"),
		CustomClientsFile: getEnv("CUSTOM_CLIENTS_FILE", "data/custom_clients.txt"),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		PreExpiryWindow:   getEnvDuration("PRE_EXPIRY_WINDOW", 24*time.Hour),
		PendingPaymentTTL: getEnvDuration("PENDING_PAYMENT_TTL", time.Hour),
	}

	var err error
	if cfg.TelegramBotToken, err = mustGetEnv("TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.WGDashboardURL, err = mustGetEnv("WG_DASHBOARD_URL"); err != nil {
		return nil, err
	}
	if cfg.WGDashboardAPIKey, err = mustGetEnv("WG_DASHBOARD_API_KEY"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// YooKassaEnabled reports whether card payments are configured. The bot still
// runs without them, offering Stars only.
func (c *Config) YooKassaEnabled() bool {
	return c.YooKassaShopID != "" && c.YooKassaSecretKey != ""
}

func mustGetEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is required", key)
	}
	return v, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
