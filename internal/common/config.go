package common

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	OCR       OCRConfig
	LLM       LLMConfig
	Pipeline  PipelineConfig
	Defaults  JobDefaults
	LogLevel  string
	OutputDir string
}

// DatabaseConfig holds archive database configuration. DSN selects Postgres;
// SQLitePath selects an embedded SQLite file. Both empty disables archiving.
type DatabaseConfig struct {
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// OCRConfig holds rasterization and recognition configuration
type OCRConfig struct {
	Tesseract        string
	Pdftoppm         string
	TessdataDir      string
	ArtifactCacheDir string
	PSM              int
	OEM              int
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	MaxPages         int
	MaxFileSizeMB    int
	CleanImages      bool
}

// LLMConfig holds model backend configuration
type LLMConfig struct {
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float32
	Timeout           time.Duration
	OllamaBaseURL     string
	OllamaModel       string
	AnthropicAPIKey   string
	AnthropicBaseURL  string
	AnthropicModel    string
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
}

// RetryPolicy bounds retries of timed-out model calls.
func (c LLMConfig) RetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: c.MaxAttempts, BaseDelay: c.BaseDelay, MaxDelay: c.MaxDelay}
}

// PipelineConfig holds scheduling configuration
type PipelineConfig struct {
	MaxActiveJobs int
	PageWorkers   int
	QueueSize     int
	JobTimeout    time.Duration
	PenaltyWeight float64
}

// JobDefaults fill fields a submission leaves unset.
type JobDefaults struct {
	OCRBackend          string      `toml:"ocr_backend"`
	ModelBackend        string      `toml:"model_backend"`
	ResolutionDPI       int         `toml:"resolution_dpi"`
	ConfidenceThreshold float64     `toml:"confidence_threshold"`
	Language            string      `toml:"language"`
	MergePolicy         string      `toml:"merge_policy"`
	RegionOfInterest    *[4]float64 `toml:"region_of_interest"` // min_lat, min_lon, max_lat, max_lon
}

// fileConfig is the optional TOML overlay named by GEOEXTRACT_CONFIG.
type fileConfig struct {
	Job      JobDefaults `toml:"job"`
	Pipeline struct {
		MaxActiveJobs int    `toml:"max_active_jobs"`
		PageWorkers   int    `toml:"page_workers"`
		QueueSize     int    `toml:"queue_size"`
		JobTimeout    string `toml:"job_timeout"`
	} `toml:"pipeline"`
	OCR struct {
		MaxPages    int `toml:"max_pages"`
		MaxAttempts int `toml:"max_attempts"`
	} `toml:"ocr"`
}

// LoadConfig loads .env (if present), the optional TOML file, then environment variables.
// Environment values win over the file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config.dotenv.load_failed", "error", err)
	}

	var fc fileConfig
	if path := os.Getenv("GEOEXTRACT_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := toml.Unmarshal(b, &fc); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "parse config file "+path, err)
		}
	}

	roi := fc.Job.RegionOfInterest
	if v := os.Getenv("REGION_OF_INTEREST"); v != "" {
		parsed, err := ParseBBox(v)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "REGION_OF_INTEREST", err)
		}
		roi = &parsed
	}

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("ARCHIVE_SQLITE", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		OCR: OCRConfig{
			Tesseract:        getEnv("TESSERACT_BIN", "tesseract"),
			Pdftoppm:         getEnv("PDFTOPPM_BIN", "pdftoppm"),
			TessdataDir:      getEnv("TESSDATA_PREFIX", ""),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", os.TempDir()),
			PSM:              getEnvAsInt("TESSERACT_PSM", 0),
			OEM:              getEnvAsInt("TESSERACT_OEM", 0),
			MaxAttempts:      getEnvAsInt("OCR_MAX_ATTEMPTS", orInt(fc.OCR.MaxAttempts, 3)),
			BaseDelay:        getEnvAsDuration("OCR_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:         getEnvAsDuration("OCR_MAX_DELAY", 10*time.Second),
			MaxPages:         getEnvAsInt("MAX_PAGES", fc.OCR.MaxPages),
			MaxFileSizeMB:    getEnvAsInt("MAX_FILE_SIZE_MB", 100),
			CleanImages:      getEnvAsBool("CLEAN_IMAGES", false),
		},
		LLM: LLMConfig{
			Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			BaseURL:           getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature:       getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:           getEnvAsDuration("MODEL_TIMEOUT", 45*time.Second),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_MODEL", "llama3.1:8b"),
			AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL:  getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
			RequestsPerSecond: getEnvAsFloat64("MODEL_RPS", 2.0),
			Burst:             getEnvAsInt("MODEL_BURST", 4),
			MaxAttempts:       getEnvAsInt("MODEL_MAX_ATTEMPTS", 2),
			BaseDelay:         getEnvAsDuration("MODEL_BASE_DELAY", time.Second),
			MaxDelay:          getEnvAsDuration("MODEL_MAX_DELAY", 10*time.Second),
		},
		Pipeline: PipelineConfig{
			MaxActiveJobs: getEnvAsInt("MAX_ACTIVE_JOBS", orInt(fc.Pipeline.MaxActiveJobs, 2)),
			PageWorkers:   getEnvAsInt("PAGE_WORKERS", orInt(fc.Pipeline.PageWorkers, 4)),
			QueueSize:     getEnvAsInt("QUEUE_SIZE", orInt(fc.Pipeline.QueueSize, 256)),
			JobTimeout:    getEnvAsDuration("JOB_TIMEOUT", orDuration(fc.Pipeline.JobTimeout, 30*time.Minute)),
			PenaltyWeight: getEnvAsFloat64("OCR_PENALTY_WEIGHT", 1.0),
		},
		Defaults: JobDefaults{
			OCRBackend:          getEnv("OCR_BACKEND", orString(fc.Job.OCRBackend, "tesseract")),
			ModelBackend:        getEnv("MODEL_BACKEND", orString(fc.Job.ModelBackend, "none")),
			ResolutionDPI:       getEnvAsInt("PDF_DPI", orInt(fc.Job.ResolutionDPI, 300)),
			ConfidenceThreshold: getEnvAsFloat64("CONFIDENCE_THRESHOLD", orFloat(fc.Job.ConfidenceThreshold, 0.6)),
			Language:            getEnv("OCR_LANGUAGE", orString(fc.Job.Language, "en")),
			MergePolicy:         getEnv("MERGE_POLICY", orString(fc.Job.MergePolicy, "prefer-confidence")),
			RegionOfInterest:    roi,
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		OutputDir: getEnv("OUTPUT_DIR", "./output"),
	}, nil
}

// ParseBBox parses "minLat,minLon,maxLat,maxLon".
func ParseBBox(s string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, fmt.Errorf("want 4 comma-separated numbers, got %d", len(parts))
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("bbox[%d]: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// SlogLevel maps LogLevel onto slog levels.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDuration(v string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Defaults.ModelBackend == "openai" && c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required when MODEL_BACKEND=openai", ErrInvalidInput)
	}
	if c.Pipeline.MaxActiveJobs <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_ACTIVE_JOBS must be positive", ErrInvalidInput)
	}
	if c.Pipeline.PageWorkers <= 0 {
		return NewAppError("CONFIG_ERROR", "PAGE_WORKERS must be positive", ErrInvalidInput)
	}
	if c.OCR.MaxAttempts <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_MAX_ATTEMPTS must be positive", ErrInvalidInput)
	}
	if c.LLM.MaxAttempts < 0 {
		return NewAppError("CONFIG_ERROR", "MODEL_MAX_ATTEMPTS must not be negative", ErrInvalidInput)
	}
	if c.Defaults.ConfidenceThreshold < 0 || c.Defaults.ConfidenceThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "CONFIDENCE_THRESHOLD must be within [0,1]", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}
