package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all engine configuration, loaded from environment
// variables with defaults.
type Config struct {
	Port   string
	DBPath string

	// Model backend
	OllamaURL       string
	DispatchTimeout time.Duration
	DispatchRate    float64 // requests per second toward the backend
	ModelsFile      string

	// Scheduler
	Workers          int
	MaxContentLength int
	RetryBackoff     time.Duration
	PollInterval     time.Duration

	// Context budget
	ContextBudgetTokens int
	SessionIdleExpiry   time.Duration

	// Scoring thresholds
	PermanentThreshold int
	IncubationMin      int

	// Archival
	DailyPermanentQuota int
	ScratchRetention    time.Duration

	// Incubation
	IncubationMaxDwell       time.Duration
	IncubationReviewInterval time.Duration

	// Behavioral learning
	LearningInterval   time.Duration
	CheckpointInterval time.Duration

	// CurationSchedule is a standard cron expression for the daily
	// curation job, validated at load time.
	CurationSchedule string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:   getEnv("PORT", "8787"),
		DBPath: getEnv("SUBCONSCIOUS_DB_PATH", "data/subconscious.db"),

		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		DispatchTimeout: getDurationEnv("DISPATCH_TIMEOUT", 30*time.Second),
		DispatchRate:    getFloatEnv("DISPATCH_RATE", 1.0),
		ModelsFile:      getEnv("SUBCONSCIOUS_MODELS_FILE", "models.yaml"),

		Workers:          getIntEnv("SUBCONSCIOUS_WORKERS", 3),
		MaxContentLength: getIntEnv("SUBCONSCIOUS_MAX_CONTENT_LENGTH", 4000),
		RetryBackoff:     getDurationEnv("SUBCONSCIOUS_RETRY_BACKOFF", 5*time.Second),
		PollInterval:     getDurationEnv("SUBCONSCIOUS_POLL_INTERVAL", 2*time.Second),

		ContextBudgetTokens: getIntEnv("SUBCONSCIOUS_CONTEXT_BUDGET", 2048),
		SessionIdleExpiry:   getDurationEnv("SUBCONSCIOUS_SESSION_IDLE_EXPIRY", 30*time.Minute),

		PermanentThreshold: getIntEnv("SUBCONSCIOUS_PERMANENT_THRESHOLD", 7),
		IncubationMin:      getIntEnv("SUBCONSCIOUS_INCUBATION_MIN", 4),

		DailyPermanentQuota: getIntEnv("SUBCONSCIOUS_DAILY_PERMANENT_QUOTA", 3),
		ScratchRetention:    getDurationEnv("SUBCONSCIOUS_SCRATCH_RETENTION", 72*time.Hour),

		IncubationMaxDwell:       getDurationEnv("SUBCONSCIOUS_INCUBATION_MAX_DWELL", 48*time.Hour),
		IncubationReviewInterval: getDurationEnv("SUBCONSCIOUS_INCUBATION_REVIEW_INTERVAL", 15*time.Minute),

		LearningInterval:   getDurationEnv("SUBCONSCIOUS_LEARNING_INTERVAL", 30*time.Minute),
		CheckpointInterval: getDurationEnv("SUBCONSCIOUS_CHECKPOINT_INTERVAL", 10*time.Minute),

		CurationSchedule: getEnv("SUBCONSCIOUS_CURATION_SCHEDULE", "0 3 * * *"),
	}
}

// Validate checks cross-field constraints that a bad environment could
// violate.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.ContextBudgetTokens < 64 {
		return fmt.Errorf("context budget too small: %d tokens", c.ContextBudgetTokens)
	}
	if c.IncubationMin >= c.PermanentThreshold {
		return fmt.Errorf("incubation band is empty: min %d >= permanent threshold %d",
			c.IncubationMin, c.PermanentThreshold)
	}
	if c.PermanentThreshold > 10 || c.IncubationMin < 0 {
		return fmt.Errorf("thresholds must lie within the 0-10 significance scale")
	}
	if _, err := cron.ParseStandard(c.CurationSchedule); err != nil {
		return fmt.Errorf("invalid curation schedule %q: %w", c.CurationSchedule, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
