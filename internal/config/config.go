package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"picklist/internal/util"
)

type Config struct {
	DBPath    string
	OutputDir string

	LogLevel  string
	LogFormat string

	StoreTimeoutMs          int
	OfferCacheSize          int
	BatchWorkers            int
	PreferenceRetentionDays int

	MatchPrefixLen     int
	MatchMinLen        int
	MatchPolishKeyword []string
	MatchToolKeyword   []string
	MatchStopWords     []string

	PriceFeedBaseURL      string
	PriceFeedToken        string
	PriceFeedRateLimitRPS int
	PriceFeedTimeoutMs    int

	HTTPAddr string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	ListenerMailbox     string
	ListenerIntervalSec int
	ListenerFetchMax    int
	ListenerUserID      string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "picklist.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreTimeoutMs:          getEnvInt("STORE_TIMEOUT_MS", 5000),
		OfferCacheSize:          getEnvInt("OFFER_CACHE_SIZE", 512),
		BatchWorkers:            getEnvInt("BATCH_WORKERS", 1),
		PreferenceRetentionDays: getEnvInt("PREFERENCE_RETENTION_DAYS", 365),

		MatchPrefixLen:     getEnvInt("MATCH_PREFIX_LEN", 15),
		MatchMinLen:        getEnvInt("MATCH_MIN_LEN", 3),
		MatchPolishKeyword: getEnvList("MATCH_POLISH_KEYWORDS", "polish,gel,lacquer,color,duo"),
		MatchToolKeyword:   getEnvList("MATCH_TOOL_KEYWORDS", "brush,tool,dotting,file,buffer"),
		MatchStopWords:     getEnvList("MATCH_STOP_WORDS", "nail,nails,polish,color,colour,glue,lacquer,coat,base,top,gel"),

		PriceFeedBaseURL:      getEnv("PRICE_FEED_BASE_URL", "https://prices.example.com/api/v1"),
		PriceFeedToken:        getEnv("PRICE_FEED_TOKEN", ""),
		PriceFeedRateLimitRPS: getEnvInt("PRICE_FEED_RATE_LIMIT_RPS", 5),
		PriceFeedTimeoutMs:    getEnvInt("PRICE_FEED_TIMEOUT_MS", 30000),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		ListenerMailbox:     getEnv("LISTENER_MAILBOX", "INBOX"),
		ListenerIntervalSec: getEnvInt("LISTENER_INTERVAL_SEC", 30),
		ListenerFetchMax:    getEnvInt("LISTENER_FETCH_MAX", 20),
		ListenerUserID:      getEnv("LISTENER_USER_ID", "mailbox"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMs) * time.Millisecond
}

func (c Config) PriceFeedTimeout() time.Duration {
	return time.Duration(c.PriceFeedTimeoutMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key, fallback string) []string {
	return util.SplitList(getEnv(key, fallback))
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
