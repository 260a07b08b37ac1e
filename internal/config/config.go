package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig holds credentials for one external payment provider.
type GatewayConfig struct {
	Enabled       bool
	BaseURL       string
	APIKey        string
	Secret        string
	WebhookSecret string
}

// ContractConfig is the fallback numbering configuration used when the
// database holds no active numbering row.
type ContractConfig struct {
	Template        string
	Prefix          string
	SequenceWidth   int
	InitialSequence int64
	ResetPolicy     string
}

// Config is loaded once from the environment at startup and threaded through
// fx. Jobs re-read database-backed configuration per invocation; nothing here
// is mutated after Load.
type Config struct {
	Environment string
	HTTPAddr    string
	DatabaseDSN string

	Currency       string
	GatewayTimeout time.Duration
	JobBatchSize   int

	WebhookRateLimit  int
	WebhookRateWindow time.Duration

	Contract ContractConfig
	Gateways map[string]GatewayConfig
}

func (c Config) IsProduction() bool { return c.Environment == "production" }

// Load reads configuration from the environment, applying defaults suitable
// for local development.
func Load() (Config, error) {
	cfg := Config{
		Environment:       getEnv("ADMINIRED_ENV", "development"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseDSN:       getEnv("DATABASE_DSN", "host=localhost user=adminired dbname=adminired sslmode=disable"),
		Currency:          strings.ToUpper(getEnv("BILLING_CURRENCY", "MXN")),
		GatewayTimeout:    getDuration("GATEWAY_TIMEOUT", 15*time.Second),
		JobBatchSize:      getInt("JOB_BATCH_SIZE", 100),
		WebhookRateLimit:  getInt("WEBHOOK_RATE_LIMIT", 120),
		WebhookRateWindow: getDuration("WEBHOOK_RATE_WINDOW", time.Minute),
		Contract: ContractConfig{
			Template:        getEnv("CONTRACT_TEMPLATE", "{PREFIX}-{YYYY}{MM}-{SEQ}"),
			Prefix:          getEnv("CONTRACT_PREFIX", "INST"),
			SequenceWidth:   getInt("CONTRACT_SEQUENCE_WIDTH", 5),
			InitialSequence: int64(getInt("CONTRACT_INITIAL_SEQUENCE", 1)),
			ResetPolicy:     getEnv("CONTRACT_RESET_POLICY", "never"),
		},
		Gateways: map[string]GatewayConfig{
			"mercadopago": loadGateway("MERCADOPAGO", "https://api.mercadopago.com"),
			"stripe":      loadGateway("STRIPE", "https://api.stripe.com"),
			"paypal":      loadGateway("PAYPAL", "https://api-m.paypal.com"),
		},
	}

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return cfg, errors.New("missing_database_dsn")
	}
	return cfg, nil
}

func loadGateway(prefix, defaultBaseURL string) GatewayConfig {
	apiKey := getEnv(prefix+"_API_KEY", "")
	return GatewayConfig{
		Enabled:       apiKey != "",
		BaseURL:       getEnv(prefix+"_BASE_URL", defaultBaseURL),
		APIKey:        apiKey,
		Secret:        getEnv(prefix+"_SECRET", ""),
		WebhookSecret: getEnv(prefix+"_WEBHOOK_SECRET", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
