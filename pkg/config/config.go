package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Analysis AnalysisConfig
	Stream   StreamConfig
	Batch    BatchConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// AnalysisConfig configures the Azure Document Intelligence collaborator.
type AnalysisConfig struct {
	Endpoint     string
	APIKey       string
	APIVersion   string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// StreamConfig tunes progress delivery. The retry constants are deliberately
// configuration, not hard-coded: tests run them at near-zero.
type StreamConfig struct {
	AttachWait         time.Duration // how long publish waits for a listener to attach
	AttachPollInterval time.Duration
	MessageDelay       time.Duration // pause between queued messages on flush
	MaxAttempts        int
	RetryBackoff       time.Duration // base backoff, doubled per failed attempt
}

type BatchConfig struct {
	MaxFiles int
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	// No .env file is fine: environment variables are used directly
	// (useful for Docker/K8s).

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "lumifax"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Analysis: AnalysisConfig{
			Endpoint:     getEnv("ANALYSIS_ENDPOINT", ""),
			APIKey:       getEnv("ANALYSIS_API_KEY", ""),
			APIVersion:   getEnv("ANALYSIS_API_VERSION", "2024-11-30"),
			PollInterval: getEnvDuration("ANALYSIS_POLL_INTERVAL", 2*time.Second),
			PollTimeout:  getEnvDuration("ANALYSIS_POLL_TIMEOUT", 2*time.Minute),
		},
		Stream: StreamConfig{
			AttachWait:         getEnvDuration("STREAM_ATTACH_WAIT", 10*time.Second),
			AttachPollInterval: getEnvDuration("STREAM_ATTACH_POLL_INTERVAL", 200*time.Millisecond),
			MessageDelay:       getEnvDuration("STREAM_MESSAGE_DELAY", 100*time.Millisecond),
			MaxAttempts:        getEnvInt("STREAM_MAX_ATTEMPTS", 5),
			RetryBackoff:       getEnvDuration("STREAM_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Batch: BatchConfig{
			MaxFiles: getEnvInt("BATCH_MAX_FILES", 20),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration syntax ("500ms", "2m") and falls back to
// whole seconds for bare integers.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
