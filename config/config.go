package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/joho/godotenv"

	"insta-analyzer/models"
)

const (
	credentialsSection = "meta_app_info_main"
	defaultBaseURL     = "https://graph.facebook.com/v13.0/"
)

// DefaultMediaFields is the fixed media field projection requested for every post.
var DefaultMediaFields = []string{"timestamp", "like_count", "comments_count"}

// Config holds all application configuration loaded from environment
// variables and the optional local credentials file.
type Config struct {
	GraphBaseURL string

	// Credentials. AccessToken is sensitive and must never be logged.
	BusinessAccountID string
	AccessToken       string
	TargetUsername    string

	MediaFields   []string
	InsightMetric string
	PostLimit     int

	MaxConcurrency   int
	RateLimitMs      int
	MaxRetries       int
	RetryBaseDelayMs int
	HTTPTimeoutSec   int
	CacheSize        int

	CredentialsPath string
	OutputFormat    string
	Debug           bool
}

// Load reads the .env file and the credentials file and returns a populated
// Config struct. Environment variables win over the credentials file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		GraphBaseURL: getEnv("GRAPH_BASE_URL", defaultBaseURL),

		TargetUsername: getEnv("TARGET_USERNAME", ""),

		MediaFields:   DefaultMediaFields,
		InsightMetric: getEnv("INSIGHT_METRIC", "reach"),
		PostLimit:     getEnvInt("POST_LIMIT", 25),

		MaxConcurrency:   getEnvInt("MAX_CONCURRENCY", 4),
		RateLimitMs:      getEnvInt("RATE_LIMIT_MS", 0),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelayMs: getEnvInt("RETRY_BASE_DELAY_MS", 500),
		HTTPTimeoutSec:   getEnvInt("HTTP_TIMEOUT_SEC", 10),
		CacheSize:        getEnvInt("CACHE_SIZE", 64),

		CredentialsPath: getEnv("CREDENTIALS_PATH", "secret/config.ini"),
		OutputFormat:    strings.ToLower(getEnv("OUTPUT_FORMAT", "table")),
		Debug:           getEnv("DEBUG", "") == "true",
	}

	if err := cfg.loadCredentialsFile(); err != nil {
		log.Printf("[config] Could not read credentials file %s: %v", cfg.CredentialsPath, err)
	}

	cfg.BusinessAccountID = getEnv("BUSINESS_ACCOUNT_ID", cfg.BusinessAccountID)
	cfg.AccessToken = getEnv("ACCESS_TOKEN", cfg.AccessToken)

	return cfg
}

// loadCredentialsFile fills the account id and token from the ini file when
// it exists. A missing file is not an error.
func (c *Config) loadCredentialsFile() error {
	if _, err := os.Stat(c.CredentialsPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	f, err := ini.Load(c.CredentialsPath)
	if err != nil {
		return err
	}

	section := f.Section(credentialsSection)
	c.BusinessAccountID = strings.TrimSpace(section.Key("business_account_id").String())
	c.AccessToken = strings.TrimSpace(section.Key("access_token").String())
	return nil
}

// HTTPTimeout returns the per-request timeout for Graph API calls.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// RetryBaseDelay returns the first back-off delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// Credentials is the resolved input of one analysis run.
type Credentials struct {
	Username    string
	AccountID   string
	AccessToken string
}

// ResolveCredentials returns the credentials for an analysis of username, or
// a *models.CredentialMissingError naming every empty field.
func (c *Config) ResolveCredentials(username string) (Credentials, error) {
	creds := Credentials{
		Username:    strings.TrimSpace(username),
		AccountID:   strings.TrimSpace(c.BusinessAccountID),
		AccessToken: strings.TrimSpace(c.AccessToken),
	}

	var missing []string
	if creds.Username == "" {
		missing = append(missing, "username")
	}
	if creds.AccountID == "" {
		missing = append(missing, "business_account_id")
	}
	if creds.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return creds, &models.CredentialMissingError{Fields: missing}
	}
	return creds, nil
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
