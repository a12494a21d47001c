// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port              string
	Environment       string
	LogLevel          string
	InngestEventKey   string
	InngestSigningKey string
	Dispatcher        string // "inngest" or "local"
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	GeminiAPIKey      string
	SlackWebhookURL   string
	DatabaseURL       string
	Database          DatabaseConfig
	Redis             RedisConfig
	Storage           StorageConfig
	Pipeline          PipelineConfig
}

// DatabaseConfig describes the PostgreSQL connection and pool.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	MigrationsTable string
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig is used for job leases. An empty Addr selects the in-process locker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Backend string // "minio", "supabase" or "memory"
	Bucket  string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	MinIORegion    string
	// PublicBaseURL, when set, is used instead of presigned URLs.
	PublicBaseURL string
	URLExpiry     time.Duration

	SupabaseURL string
	SupabaseKey string
}

// PipelineConfig holds every tunable of the report pipeline.
type PipelineConfig struct {
	Model              string
	Temperature        float64
	BatchSize          int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	MinQuestions       int
	RequiredQuestions  int
	CostPer1KTokensEUR float64
	CostLimitEUR       float64
	LeaseTTL           time.Duration
	LocalConcurrency   int
	StallAfter         time.Duration // idle time before a processing job counts as stalled
	ResumeCron         string
	ResumeLimit        int
}

// DefaultPipeline returns the production defaults.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		Model:              "gpt-4o-mini",
		Temperature:        0.3,
		BatchSize:          20,
		MaxRetries:         3,
		RetryBaseDelay:     500 * time.Millisecond,
		MinQuestions:       50,
		RequiredQuestions:  100,
		CostPer1KTokensEUR: 0.01,
		CostLimitEUR:       20,
		LeaseTTL:           15 * time.Minute,
		LocalConcurrency:   4,
		StallAfter:         30 * time.Minute,
		ResumeCron:         "*/15 * * * *",
		ResumeLimit:        50,
	}
}

func Load() *Config {
	defaults := DefaultPipeline()

	config := &Config{
		Port:              getEnv("PORT", "8000"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		InngestEventKey:   os.Getenv("INNGEST_EVENT_KEY"),
		InngestSigningKey: os.Getenv("INNGEST_SIGNING_KEY"),
		Dispatcher:        getEnv("DISPATCHER", "inngest"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		SlackWebhookURL:   os.Getenv("SLACK_WEBHOOK_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
	}

	// Parse database configuration
	dbConfig, err := parseDatabaseConfig()
	if err != nil {
		// If DATABASE_URL parsing fails, try individual env vars as fallback
		dbConfig = DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "visibility"),
			SSLMode:         getEnv("DB_SSLMODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		}
	}
	dbConfig.MigrationsTable = getEnv("DB_MIGRATIONS_TABLE", "schema_migrations")
	config.Database = dbConfig

	config.Redis = RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	config.Storage = StorageConfig{
		Backend:        getEnv("STORAGE_BACKEND", "minio"),
		Bucket:         getEnv("STORAGE_BUCKET", "reports"),
		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinIORegion:    getEnv("MINIO_REGION", "us-east-1"),
		PublicBaseURL:  os.Getenv("STORAGE_PUBLIC_BASE_URL"),
		URLExpiry:      getEnvDuration("STORAGE_URL_EXPIRY", 7*24*time.Hour),
		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
	}

	config.Pipeline = PipelineConfig{
		Model:              getEnv("OPENAI_MODEL", defaults.Model),
		Temperature:        getEnvFloat("TEMPERATURE", defaults.Temperature),
		BatchSize:          getEnvInt("BATCH_SIZE", defaults.BatchSize),
		MaxRetries:         getEnvInt("MAX_RETRIES", defaults.MaxRetries),
		RetryBaseDelay:     getEnvDuration("RETRY_BASE_DELAY", defaults.RetryBaseDelay),
		MinQuestions:       getEnvInt("MIN_QUESTIONS", defaults.MinQuestions),
		RequiredQuestions:  getEnvInt("REQUIRED_QUESTIONS", defaults.RequiredQuestions),
		CostPer1KTokensEUR: getEnvFloat("COST_PER_1K_TOKENS", defaults.CostPer1KTokensEUR),
		CostLimitEUR:       getEnvFloat("COST_LIMIT_EUR", defaults.CostLimitEUR),
		LeaseTTL:           getEnvDuration("LEASE_TTL", defaults.LeaseTTL),
		LocalConcurrency:   getEnvInt("LOCAL_CONCURRENCY", defaults.LocalConcurrency),
		StallAfter:         getEnvDuration("STALL_AFTER", defaults.StallAfter),
		ResumeCron:         getEnv("RESUME_CRON", defaults.ResumeCron),
		ResumeLimit:        getEnvInt("RESUME_LIMIT", defaults.ResumeLimit),
	}

	return config
}

// Validate reports every invalid pipeline setting at once.
func (c *Config) Validate() error {
	var problems []string
	p := c.Pipeline
	if p.BatchSize <= 0 {
		problems = append(problems, "BATCH_SIZE must be positive")
	}
	if p.MaxRetries < 0 {
		problems = append(problems, "MAX_RETRIES must not be negative")
	}
	if p.MinQuestions <= 0 {
		problems = append(problems, "MIN_QUESTIONS must be positive")
	}
	if p.MinQuestions > p.RequiredQuestions {
		problems = append(problems, "MIN_QUESTIONS must not exceed REQUIRED_QUESTIONS")
	}
	if p.CostPer1KTokensEUR < 0 {
		problems = append(problems, "COST_PER_1K_TOKENS must not be negative")
	}
	if p.LocalConcurrency <= 0 {
		problems = append(problems, "LOCAL_CONCURRENCY must be positive")
	}
	if p.StallAfter <= p.LeaseTTL {
		problems = append(problems, "STALL_AFTER must exceed LEASE_TTL")
	}
	switch c.Dispatcher {
	case "inngest", "local":
	default:
		problems = append(problems, fmt.Sprintf("unknown DISPATCHER %q", c.Dispatcher))
	}
	switch c.Storage.Backend {
	case "minio", "supabase", "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

func parseDatabaseConfig() (DatabaseConfig, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL not set")
	}

	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	config := DatabaseConfig{
		Host:            parsedURL.Hostname(),
		Port:            5432, // default
		User:            parsedURL.User.Username(),
		Name:            strings.TrimPrefix(parsedURL.Path, "/"),
		SSLMode:         getEnv("DB_SSLMODE", "require"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
	}

	if mode := parsedURL.Query().Get("sslmode"); mode != "" {
		config.SSLMode = mode
	}

	if password, ok := parsedURL.User.Password(); ok {
		config.Password = password
	}

	if parsedURL.Port() != "" {
		if port, err := strconv.Atoi(parsedURL.Port()); err == nil {
			config.Port = port
		}
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("2s") or a bare integer of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
