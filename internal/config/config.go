package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	MongoDBName string

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	SMTPServer   string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	Recipients   []string

	Timezone        string
	TrackingBaseURL string
	HTTPAddr        string

	// RabbitURI empty disables engagement-event publishing.
	RabbitURI      string
	RabbitExchange string

	Timeout time.Duration
}

const (
	MongoURI    = "MONGO_URI"
	MongoDBName = "MONGO_DB_NAME"

	OpenAIKey     = "OPENAI_API_KEY"
	OpenAIModel   = "OPENAI_MODEL"
	OpenAIBaseURL = "OPENAI_BASE_URL"

	SMTPServer      = "SMTP_SERVER"
	SMTPPort        = "SMTP_PORT"
	SMTPUsername    = "SMTP_USERNAME"
	SMTPPassword    = "SMTP_PASSWORD"
	EmailFrom       = "EMAIL_FROM"
	EmailRecipients = "EMAIL_RECIPIENTS"

	Timezone        = "NEWS_TIMEZONE"
	TrackingBaseURL = "TRACKING_BASE_URL"
	HTTPAddr        = "HTTP_ADDR"

	RabbitURIEnv      = "RABBIT_URI"
	RabbitExchangeEnv = "RABBIT_EXCHANGE"

	Timeout = "TIMEOUT"
)

// FromEnv loads configuration from the environment. A .env file in the
// working directory is applied first when present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	var cfg Config

	cfg.MongoURI = getEnv(MongoURI, "mongodb://localhost:27017")
	cfg.MongoDBName = getEnv(MongoDBName, "newsdigest")

	cfg.OpenAIKey = getEnv(OpenAIKey, "")
	cfg.OpenAIModel = getEnv(OpenAIModel, "gpt-3.5-turbo")
	cfg.OpenAIBaseURL = getEnv(OpenAIBaseURL, "https://api.openai.com/v1")

	cfg.SMTPServer = getEnv(SMTPServer, "")
	cfg.SMTPUsername = getEnv(SMTPUsername, "")
	cfg.SMTPPassword = getEnv(SMTPPassword, "")
	cfg.EmailFrom = getEnv(EmailFrom, "")
	cfg.Recipients = splitList(getEnv(EmailRecipients, ""))

	cfg.Timezone = getEnv(Timezone, "Asia/Dubai")
	cfg.TrackingBaseURL = getEnv(TrackingBaseURL, "http://localhost:8080")
	cfg.HTTPAddr = getEnv(HTTPAddr, ":8080")

	cfg.RabbitURI = getEnv(RabbitURIEnv, "")
	cfg.RabbitExchange = getEnv(RabbitExchangeEnv, "digest.engagement")

	var err error
	if cfg.SMTPPort, err = getEnvInt(SMTPPort, 587); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", SMTPPort, err)
	}
	timeoutStr := getEnv(Timeout, "30s")
	if cfg.Timeout, err = time.ParseDuration(timeoutStr); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", Timeout, err)
	}

	return cfg, nil
}

// Location resolves the business timezone used to define "today". Articles
// are matched against a calendar day in this zone, not the server's locale.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("UTC+4", 4*60*60)
	}
	return loc
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return i, nil
}
