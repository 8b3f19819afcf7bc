package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	AI       AIConfig
	Extract  ExtractConfig
	Callback CallbackConfig
	Queue    QueueConfig
	Billing  BillingConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds HTTP front-door configuration
type ServerConfig struct {
	Addr              string
	TempDir           string
	MaxUploadBytes    int64
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RateLimitEvery    time.Duration
	RateLimitBurst    int
}

// AIConfig holds model-service configuration
type AIConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// ExtractConfig holds text/vision extraction configuration
type ExtractConfig struct {
	Tesseract     string
	TesseractLang string
	TessdataDir   string
	Pdftoppm      string
	DPI           int
	MaxPages      int // vision strategy page cap; pages beyond this are silently dropped
	MaxConcurrent int64
}

// CallbackConfig holds webhook delivery configuration
type CallbackConfig struct {
	Attempts  int
	Timeout   time.Duration
	BaseDelay time.Duration
}

// QueueConfig holds job queue configuration
type QueueConfig struct {
	Workers int
	Size    int
}

// BillingConfig holds credit metering configuration
type BillingConfig struct {
	MinCharge int64 // floor applied to the token-measured cost of a job
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			Addr:              getEnv("HTTP_ADDR", ":8080"),
			TempDir:           getEnv("TEMP_DIR", "./tmp"),
			MaxUploadBytes:    getEnvAsInt64("MAX_UPLOAD_BYTES", 25<<20),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
			RateLimitEvery:    getEnvAsDuration("RATE_LIMIT_EVERY", 600*time.Millisecond),
			RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		AI: AIConfig{
			BaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			MaxTokens: getEnvAsInt("OPENAI_MAX_TOKENS", 2048),
			Timeout:   getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Extract: ExtractConfig{
			Tesseract:     getEnv("TESSERACT", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			Pdftoppm:      getEnv("PDFTOPPM", "pdftoppm"),
			DPI:           getEnvAsInt("RENDER_DPI", 150),
			MaxPages:      getEnvAsInt("VISION_MAX_PAGES", 10),
			MaxConcurrent: getEnvAsInt64("EXTRACT_MAX_CONCURRENT", 4),
		},
		Callback: CallbackConfig{
			Attempts:  getEnvAsInt("CALLBACK_ATTEMPTS", 3),
			Timeout:   getEnvAsDuration("CALLBACK_TIMEOUT", 30*time.Second),
			BaseDelay: getEnvAsDuration("CALLBACK_BASE_DELAY", 2*time.Second),
		},
		Queue: QueueConfig{
			Workers: getEnvAsInt("QUEUE_WORKERS", 4),
			Size:    getEnvAsInt("QUEUE_SIZE", 256),
		},
		Billing: BillingConfig{
			MinCharge: getEnvAsInt64("MIN_CHARGE", 1),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.AI.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Callback.Attempts <= 0 {
		return NewAppError("CONFIG_ERROR", "CALLBACK_ATTEMPTS must be positive", ErrInvalidInput)
	}
	return nil
}
