package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the seatwatch server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Detector  DetectorConfig
	Occupancy OccupancyConfig
	Jobs      JobsConfig
	Storage   StorageConfig
	Events    EventsConfig
	Auth      AuthConfig
	Live      LiveConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	RequestsPerMin int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// DetectorConfig describes the external inference service that turns frames
// into detection batches.
type DetectorConfig struct {
	Provider      string
	BaseURL       string
	Timeout       time.Duration
	ConfThreshold float64
	IOUThreshold  float64
	ImageSize     int
	Classes       []int
}

// OccupancyConfig tunes the seat tracking state machine.
type OccupancyConfig struct {
	TimeThreshold      time.Duration
	ProximityThreshold float64
	GraceWindow        time.Duration
	DebounceWindow     time.Duration
	SnapshotEvery      int
}

type JobsConfig struct {
	MaxConcurrent int
	QueueCapacity int
	RetentionAge  time.Duration
}

type StorageConfig struct {
	UploadDir         string
	OutputDir         string
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// EventsConfig controls optional AMQP publishing of seat transitions.
// An empty URL disables publishing.
type EventsConfig struct {
	AMQPURL string
	Queue   string
}

// AuthConfig carries the optional API key hash. An empty hash disables auth.
type AuthConfig struct {
	APIKeyHash string
}

type LiveConfig struct {
	SnapshotURL     string
	CaptureInterval time.Duration
}

var validProviders = map[string]bool{
	"http": true,
	"mock": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("SEATWATCH_PORT", 8080),
			Env:            envString("SEATWATCH_ENV", "development"),
			RequestsPerMin: envInt("SEATWATCH_RATE_LIMIT_PER_MIN", 120),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Detector: DetectorConfig{
			Provider:      envString("DETECTOR_PROVIDER", "http"),
			BaseURL:       os.Getenv("DETECTOR_BASE_URL"),
			Timeout:       envDuration("DETECTOR_TIMEOUT", 30*time.Second),
			ConfThreshold: envFloat("DETECTOR_CONF_THRESHOLD", 0.25),
			IOUThreshold:  envFloat("DETECTOR_IOU_THRESHOLD", 0.45),
			ImageSize:     envInt("DETECTOR_IMG_SIZE", 640),
			Classes:       envIntList("DETECTOR_CLASSES", []int{0, 56}),
		},
		Occupancy: OccupancyConfig{
			TimeThreshold:      envDurationSecs("OCCUPANCY_TIME_THRESHOLD_SECS", 10*time.Second),
			ProximityThreshold: envFloat("OCCUPANCY_PROXIMITY_PX", 100),
			GraceWindow:        envDurationSecs("OCCUPANCY_GRACE_SECS", 10*time.Second),
			DebounceWindow:     envDurationSecs("OCCUPANCY_DEBOUNCE_SECS", 0),
			SnapshotEvery:      envInt("OCCUPANCY_SNAPSHOT_EVERY", 30),
		},
		Jobs: JobsConfig{
			MaxConcurrent: envInt("JOBS_MAX_CONCURRENT", 3),
			QueueCapacity: envInt("JOBS_QUEUE_CAPACITY", 256),
			RetentionAge:  envDuration("JOBS_RETENTION_AGE", 24*time.Hour),
		},
		Storage: StorageConfig{
			UploadDir:         envString("STORAGE_UPLOAD_DIR", "uploads"),
			OutputDir:         envString("STORAGE_OUTPUT_DIR", "outputs"),
			MaxUploadBytes:    envInt64("STORAGE_MAX_UPLOAD_BYTES", 500*1024*1024),
			AllowedExtensions: envStringList("STORAGE_ALLOWED_EXTENSIONS", []string{"mp4", "avi", "mov", "mkv", "webm"}),
		},
		Events: EventsConfig{
			AMQPURL: os.Getenv("AMQP_URL"),
			Queue:   envString("AMQP_EVENTS_QUEUE", "seat.transitions"),
		},
		Auth: AuthConfig{
			APIKeyHash: os.Getenv("SEATWATCH_API_KEY_HASH"),
		},
		Live: LiveConfig{
			SnapshotURL:     os.Getenv("LIVE_SNAPSHOT_URL"),
			CaptureInterval: envDuration("LIVE_CAPTURE_INTERVAL", time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validProviders[c.Detector.Provider] {
		return fmt.Errorf("DETECTOR_PROVIDER must be one of http, mock; got %q", c.Detector.Provider)
	}
	if c.Detector.Provider == "http" {
		if c.Detector.BaseURL == "" {
			return fmt.Errorf("DETECTOR_BASE_URL is required when DETECTOR_PROVIDER is http")
		}
		if !strings.HasPrefix(c.Detector.BaseURL, "http://") && !strings.HasPrefix(c.Detector.BaseURL, "https://") {
			return fmt.Errorf("DETECTOR_BASE_URL must start with http:// or https://, got %q", c.Detector.BaseURL)
		}
	}

	if c.Detector.ConfThreshold < 0 || c.Detector.ConfThreshold > 1 {
		return fmt.Errorf("DETECTOR_CONF_THRESHOLD must be in [0,1], got %v", c.Detector.ConfThreshold)
	}

	if c.Occupancy.ProximityThreshold <= 0 {
		return fmt.Errorf("OCCUPANCY_PROXIMITY_PX must be positive, got %v", c.Occupancy.ProximityThreshold)
	}
	if c.Occupancy.GraceWindow <= 0 {
		return fmt.Errorf("OCCUPANCY_GRACE_SECS must be positive")
	}

	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("JOBS_MAX_CONCURRENT must be at least 1, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.QueueCapacity < 1 {
		return fmt.Errorf("JOBS_QUEUE_CAPACITY must be at least 1, got %d", c.Jobs.QueueCapacity)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envStringList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envIntList(key string, defaultVal []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultVal
		}
		out = append(out, i)
	}
	return out
}
