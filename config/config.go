package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	Store            string

	SearchQueries []string

	TikiPages        int
	TikiURLTemplate  string
	TikiRequestDelay time.Duration

	LazadaPages       int
	LazadaMaxItems    int
	LazadaURLTemplate string
	LazadaScrollDelay time.Duration
	LazadaPageDelay   time.Duration
	LazadaWaitTimeout time.Duration

	ReviewWorkers     int
	ReviewTimeout     time.Duration
	ReviewRetries     int
	ReviewRateLimitMs int
	ReviewBackoffUnit time.Duration

	BackfillSeed int64

	CSVOutputPath string
	ChromeBin     string
	LogDebug      bool
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "etl"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "etl123"),
		PostgresDB:       getEnv("POSTGRES_DB", "products_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		Store:            strings.ToLower(getEnv("STORE", StorePostgres)),

		SearchQueries: getEnvList("SEARCH_QUERIES", []string{"dien thoai", "laptop", "may tinh bang"}),

		TikiPages:        getEnvInt("TIKI_PAGES", 8),
		TikiURLTemplate:  getEnv("TIKI_URL_TEMPLATE", DefaultTikiURLTemplate),
		TikiRequestDelay: getEnvMillis("TIKI_REQUEST_DELAY_MS", 1000),

		LazadaPages:       getEnvInt("LAZADA_PAGES", 6),
		LazadaMaxItems:    getEnvInt("LAZADA_MAX_ITEMS", 180),
		LazadaURLTemplate: getEnv("LAZADA_URL_TEMPLATE", DefaultLazadaURLTemplate),
		LazadaScrollDelay: getEnvMillis("LAZADA_SCROLL_DELAY_MS", 1200),
		LazadaPageDelay:   getEnvMillis("LAZADA_PAGE_DELAY_MS", 1000),
		LazadaWaitTimeout: time.Duration(getEnvInt("LAZADA_WAIT_TIMEOUT_SEC", 20)) * time.Second,

		ReviewWorkers:     getEnvInt("REVIEW_WORKERS", 8),
		ReviewTimeout:     time.Duration(getEnvInt("REVIEW_TIMEOUT_SEC", 15)) * time.Second,
		ReviewRetries:     getEnvInt("REVIEW_RETRIES", 2),
		ReviewRateLimitMs: getEnvInt("REVIEW_RATE_LIMIT_MS", 0),
		ReviewBackoffUnit: getEnvMillis("REVIEW_BACKOFF_UNIT_MS", 1000),

		BackfillSeed: int64(getEnvInt("BACKFILL_SEED", 0)),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/raw_listings.csv"),
		ChromeBin:     getEnv("CHROME_BIN", ""),
		LogDebug:      getEnvBool("LOG_DEBUG", false),
	}
}

// Default source URL templates. {query}, {page} and {limit} are substituted
// by the adapters.
const (
	DefaultTikiURLTemplate = "https://tiki.vn/api/personalish/v1/blocks/listings" +
		"?limit={limit}&include=advertisement&aggregations=2&version=home-persionalized" +
		"&urlKey={query}&category=1789&page={page}"
	DefaultLazadaURLTemplate = "https://www.lazada.vn/catalog/?q={query}&page={page}"
)

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
