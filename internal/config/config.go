package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"satoshicheckout/internal/logging"
)

// Status modes select how payment status is answered.
const (
	StatusModeCached = "cached"
	StatusModeLive   = "live"
)

// Store backends for the status cache.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds the service configuration loaded from the environment.
type Config struct {
	BTCPayURL     string
	APIKey        string
	StoreID       string
	WebhookSecret string
	Port          string
	AuthScheme    string // "Token" or "Bearer"

	FallbackToLightning bool
	StatusMode          string
	LiveFallback        bool
	MaxPendingInvoices  int

	StoreBackend  string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ArchiveDir string
	B2KeyID    string
	B2AppKey   string
	B2Bucket   string
	B2Prefix   string
	B2Endpoint string

	CORSOrigins []string
}

// Load reads configuration from envFile (if present) and the process environment.
// Missing values never cause an error; use Configured and Missing to inspect them.
func Load(envFile string) *Config {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		logging.Internal.Printf("no %s file found, using system environment variables", envFile)
	}

	cfg := &Config{
		BTCPayURL:     strings.TrimRight(os.Getenv("BTCPAY_URL"), "/"),
		APIKey:        os.Getenv("BTCPAY_API_KEY"),
		StoreID:       os.Getenv("BTCPAY_STORE_ID"),
		WebhookSecret: os.Getenv("BTCPAY_WEBHOOK_SECRET"),
		Port:          getEnv("PORT", "8080"),
		AuthScheme:    authScheme(getEnv("BTCPAY_AUTH_SCHEME", "token")),

		FallbackToLightning: getBool("FALLBACK_TO_LIGHTNING", false),
		StatusMode:          strings.ToLower(getEnv("STATUS_MODE", StatusModeCached)),
		LiveFallback:        getBool("STATUS_LIVE_FALLBACK", false),
		MaxPendingInvoices:  getInt("MAX_PENDING_INVOICES", 5),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		SQLitePath:    getEnv("SQLITE_PATH", "satoshicheckout.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		ArchiveDir: os.Getenv("ARCHIVE_DIR"),
		B2KeyID:    os.Getenv("B2_KEY_ID"),
		B2AppKey:   os.Getenv("B2_APP_KEY"),
		B2Bucket:   os.Getenv("B2_BUCKET"),
		B2Prefix:   os.Getenv("B2_PREFIX"),
		B2Endpoint: getEnv("B2_ENDPOINT", "s3.us-east-005.backblazeb2.com"),

		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),
	}
	return cfg
}

// Configured reports whether every value needed to talk to the provider is present.
func (c *Config) Configured() bool {
	return len(c.Missing()) == 0
}

// Missing lists the required environment variables that are unset.
func (c *Config) Missing() []string {
	var missing []string
	if c.BTCPayURL == "" {
		missing = append(missing, "BTCPAY_URL")
	}
	if c.APIKey == "" {
		missing = append(missing, "BTCPAY_API_KEY")
	}
	if c.StoreID == "" {
		missing = append(missing, "BTCPAY_STORE_ID")
	}
	if c.WebhookSecret == "" {
		missing = append(missing, "BTCPAY_WEBHOOK_SECRET")
	}
	if c.Port == "" {
		missing = append(missing, "PORT")
	}
	return missing
}

func authScheme(v string) string {
	if strings.EqualFold(v, "bearer") {
		return "Bearer"
	}
	return "Token"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
