package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Automation AutomationConfig `yaml:"automation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	AWS        AWSConfig        `yaml:"aws"`
	Bedrock    BedrockConfig    `yaml:"bedrock"`
	SES        SESConfig        `yaml:"ses"`
	SMS        SMSConfig        `yaml:"sms"`
	Inbound    InboundConfig    `yaml:"inbound"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// APIToken, when set, is required as a bearer token on /api routes.
	APIToken string `yaml:"api_token"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis-backed
// locks and the fired-once guard.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AutomationConfig holds rule engine scheduling settings
type AutomationConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	BatchSize       int  `yaml:"batch_size"`
	LockTTLSeconds  int  `yaml:"lock_ttl_seconds"`
	// FiredOnce enables per rule/lead/event suppression of repeat fires.
	FiredOnce       bool `yaml:"fired_once"`
	FiredTTLHours   int  `yaml:"fired_ttl_hours"`
}

// Interval returns the due-timer scan interval.
func (c AutomationConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LockTTL returns the per-lead lock lifetime.
func (c AutomationConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// FiredTTL returns how long a fire is remembered.
func (c AutomationConfig) FiredTTL() time.Duration {
	return time.Duration(c.FiredTTLHours) * time.Hour
}

// IngestConfig holds webhook import settings
type IngestConfig struct {
	RatePerMinute    int    `yaml:"rate_per_minute"`
	HMACSecret       string `yaml:"hmac_secret"`
	JWTSecret        string `yaml:"jwt_secret"`
	MatchFunctionURL string `yaml:"match_function_url"`
	MatchToken       string `yaml:"match_token"`
	ArchiveBucket    string `yaml:"archive_bucket"`
	ArchivePrefix    string `yaml:"archive_prefix"`
}

// AWSConfig holds shared AWS credentials. Empty keys use the default chain.
type AWSConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// BedrockConfig holds the AI model settings
type BedrockConfig struct {
	Enabled bool   `yaml:"enabled"`
	ModelID string `yaml:"model_id"`
}

// SESConfig holds email notification settings
type SESConfig struct {
	FromAddress      string `yaml:"from_address"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// SMSConfig holds SMS gateway settings
type SMSConfig struct {
	GatewayURL     string `yaml:"gateway_url"`
	Token          string `yaml:"token"`
	FromNumber     string `yaml:"from_number"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the timeout as a time.Duration
func (c SMSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// InboundConfig holds the SQS queue that carries lead replies from the
// SMS and email providers. An empty QueueURL disables the consumer.
type InboundConfig struct {
	QueueURL          string `yaml:"queue_url"`
	WaitSeconds       int    `yaml:"wait_seconds"`
	MaxMessages       int    `yaml:"max_messages"`
	VisibilitySeconds int    `yaml:"visibility_seconds"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Automation.IntervalSeconds == 0 {
		cfg.Automation.IntervalSeconds = 60
	}
	if cfg.Automation.BatchSize == 0 {
		cfg.Automation.BatchSize = 100
	}
	if cfg.Automation.LockTTLSeconds == 0 {
		cfg.Automation.LockTTLSeconds = 30
	}
	if cfg.Automation.FiredTTLHours == 0 {
		cfg.Automation.FiredTTLHours = 24 * 7
	}
	if cfg.Ingest.RatePerMinute == 0 {
		cfg.Ingest.RatePerMinute = 100
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.SMS.TimeoutSeconds == 0 {
		cfg.SMS.TimeoutSeconds = 15
	}
	if cfg.SMS.MaxRetries == 0 {
		cfg.SMS.MaxRetries = 3
	}
	if cfg.Inbound.WaitSeconds == 0 {
		cfg.Inbound.WaitSeconds = 20
	}
	if cfg.Inbound.MaxMessages == 0 {
		cfg.Inbound.MaxMessages = 10
	}
	if cfg.Inbound.VisibilitySeconds == 0 {
		cfg.Inbound.VisibilitySeconds = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Server.APIToken, "API_TOKEN")
	setInt(&cfg.Server.Port, "PORT")

	setString(&cfg.Ingest.HMACSecret, "ZAPIER_HMAC_SECRET")
	setString(&cfg.Ingest.JWTSecret, "AUTH_JWT_SECRET")
	setString(&cfg.Ingest.MatchFunctionURL, "MATCH_FUNCTION_URL")
	setString(&cfg.Ingest.MatchToken, "MATCH_FUNCTION_TOKEN")
	setInt(&cfg.Ingest.RatePerMinute, "INGEST_RATE_PER_MINUTE")
	setString(&cfg.Ingest.ArchiveBucket, "IMPORT_ARCHIVE_BUCKET")

	setString(&cfg.AWS.Region, "AWS_REGION")
	setString(&cfg.AWS.AccessKey, "AWS_ACCESS_KEY_ID")
	setString(&cfg.AWS.SecretKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.Bedrock.ModelID, "BEDROCK_MODEL_ID")
	setString(&cfg.SES.FromAddress, "SES_FROM_ADDRESS")

	setString(&cfg.SMS.GatewayURL, "SMS_GATEWAY_URL")
	setString(&cfg.SMS.Token, "SMS_GATEWAY_TOKEN")
	setString(&cfg.SMS.FromNumber, "SMS_FROM_NUMBER")

	setString(&cfg.Inbound.QueueURL, "INBOUND_QUEUE_URL")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("AUTOMATION_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Automation.Enabled = b
		}
	}
	return cfg, nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
