package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	AdminJWTSecret    string
	ProviderJWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Pricing
	CreditPriceCents   int
	CategorySurcharges map[string]int

	// Deposits
	ActivationPolicy     string
	DefaultRegion        string
	PremiumMonthlyCents  int
	PremiumLifetimeCents int
	DepositMaxPerWindow  int
	DepositWindowHours   int
	BankName             string
	BankAccountNumber    string
	BankBranchCode       string
	BankAccountHolder    string

	// Reconciliation
	BankWebhookSecret string
	BankFeedURL       string
	BankFeedToken     string
	ReconcileSchedule string
	RepairSchedule    string
	ExpirySchedule    string

	// Notifications
	OutboxInterval    time.Duration
	NotifyQueueURL    string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	OpsEmail          string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ProofBucket         string
	ProofURLTTL         time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		AdminJWTSecret:    getEnv("ADMIN_JWT_SECRET", ""),
		ProviderJWTSecret: getEnv("PROVIDER_JWT_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CreditPriceCents:   getEnvAsInt("CREDIT_PRICE_CENTS", 5000),
		CategorySurcharges: parseSurcharges(getEnv("CATEGORY_SURCHARGES", "")),

		ActivationPolicy:     strings.ToLower(strings.TrimSpace(getEnv("ACTIVATION_POLICY", "manual"))),
		DefaultRegion:        strings.ToUpper(getEnv("DEFAULT_REGION", "ZA")),
		PremiumMonthlyCents:  getEnvAsInt("PREMIUM_MONTHLY_CENTS", 29900),
		PremiumLifetimeCents: getEnvAsInt("PREMIUM_LIFETIME_CENTS", 299900),
		DepositMaxPerWindow:  getEnvAsInt("DEPOSIT_MAX_PER_WINDOW", 5),
		DepositWindowHours:   getEnvAsInt("DEPOSIT_WINDOW_HOURS", 24),
		BankName:             getEnv("BANK_NAME", "First National Bank"),
		BankAccountNumber:    getEnv("BANK_ACCOUNT_NUMBER", ""),
		BankBranchCode:       getEnv("BANK_BRANCH_CODE", "250655"),
		BankAccountHolder:    getEnv("BANK_ACCOUNT_HOLDER", "ProConnectSA"),

		BankWebhookSecret: getEnv("BANK_WEBHOOK_SECRET", ""),
		BankFeedURL:       getEnv("BANK_FEED_URL", ""),
		BankFeedToken:     getEnv("BANK_FEED_TOKEN", ""),
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 2m"),
		RepairSchedule:    getEnv("REPAIR_SCHEDULE", "@every 10m"),
		ExpirySchedule:    getEnv("EXPIRY_SCHEDULE", "@hourly"),

		OutboxInterval:    getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		NotifyQueueURL:    getEnv("NOTIFY_QUEUE_URL", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "ProConnectSA"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		OpsEmail:          getEnv("OPS_EMAIL", ""),

		AWSRegion:           getEnv("AWS_REGION", "af-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ProofBucket:         getEnv("PROOF_BUCKET", ""),
		ProofURLTTL:         getEnvAsDuration("PROOF_URL_TTL", 15*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseSurcharges reads "plumbing:1,electrical:2". Malformed or negative entries are skipped.
func parseSurcharges(raw string) map[string]int {
	out := map[string]int{}
	for _, part := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(name))] = n
	}
	return out
}
