package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Tracking TrackingConfig `yaml:"tracking"`
	Session  SessionConfig  `yaml:"session"`
	Behavior BehaviorConfig `yaml:"behavior"`
	Detector DetectorConfig `yaml:"detector"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// PipelineConfig tunes the shared frame pipeline: dedup cache and inference
// batching. Batch size vs. wait is the central latency/throughput knob.
type PipelineConfig struct {
	BatchMaxSize   int           `yaml:"batch_max_size"`
	BatchMaxWait   time.Duration `yaml:"batch_max_wait"`
	FailureCeiling time.Duration `yaml:"failure_ceiling"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheCapacity  int           `yaml:"cache_capacity"`
}

// TrackingConfig tunes the per-session multi-object tracker.
type TrackingConfig struct {
	IoUThreshold  float64       `yaml:"iou_threshold"`
	NInit         int           `yaml:"n_init"`
	MaxMisses     int           `yaml:"max_misses"`
	MaxAge        time.Duration `yaml:"max_age"`
	HistoryLen    int           `yaml:"history_len"`
	ConfirmPolicy string        `yaml:"confirm_policy"` // reset or decrement
}

// SessionConfig tunes client session lifecycle and backpressure.
type SessionConfig struct {
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	ReconnectPolicy      string        `yaml:"reconnect_policy"` // refuse or replace
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBackoff     time.Duration `yaml:"reconnect_backoff"`
	InboundBuffer        int           `yaml:"inbound_buffer"`
	OutboundBuffer       int           `yaml:"outbound_buffer"`
}

// BehaviorConfig tunes the finished-track pattern thresholds. Distances are
// in source-frame pixels, speeds in pixels per second. Unset fields fall back
// to the analyzer's defaults.
type BehaviorConfig struct {
	LoiterMinDuration time.Duration `yaml:"loiter_min_duration"`
	LoiterRange       float64       `yaml:"loiter_range"`
	ErraticSpeedCV    float64       `yaml:"erratic_speed_cv"`
	ErraticMinSamples int           `yaml:"erratic_min_samples"`
	FastSpeed         float64       `yaml:"fast_speed"`
}

type DetectorConfig struct {
	ModelPath    string   `yaml:"model_path"`
	InputSize    int      `yaml:"input_size"`
	Threshold    float64  `yaml:"threshold"`
	NMSThreshold float64  `yaml:"nms_threshold"`
	Labels       []string `yaml:"labels"`
}

// EmbedderConfig tunes the appearance re-identification model used for
// cross-event similarity search. An empty model_path disables embedding
// extraction; events then persist without an appearance vector.
type EmbedderConfig struct {
	ModelPath   string `yaml:"model_path"`
	InputWidth  int    `yaml:"input_width"`
	InputHeight int    `yaml:"input_height"`
	Dim         int    `yaml:"dim"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable
// overrides, then fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Default returns a config with all defaults applied and no file read.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Pipeline.BatchMaxSize == 0 {
		cfg.Pipeline.BatchMaxSize = 4
	}
	if cfg.Pipeline.BatchMaxWait == 0 {
		cfg.Pipeline.BatchMaxWait = 100 * time.Millisecond
	}
	if cfg.Pipeline.FailureCeiling == 0 {
		cfg.Pipeline.FailureCeiling = 5 * time.Second
	}
	if cfg.Pipeline.CacheTTL == 0 {
		cfg.Pipeline.CacheTTL = time.Second
	}
	if cfg.Pipeline.CacheCapacity == 0 {
		cfg.Pipeline.CacheCapacity = 256
	}
	if cfg.Tracking.IoUThreshold == 0 {
		cfg.Tracking.IoUThreshold = 0.3
	}
	if cfg.Tracking.NInit == 0 {
		cfg.Tracking.NInit = 3
	}
	if cfg.Tracking.MaxMisses == 0 {
		cfg.Tracking.MaxMisses = 30
	}
	if cfg.Tracking.MaxAge == 0 {
		cfg.Tracking.MaxAge = 10 * time.Second
	}
	if cfg.Tracking.HistoryLen == 0 {
		cfg.Tracking.HistoryLen = 30
	}
	if cfg.Tracking.ConfirmPolicy == "" {
		cfg.Tracking.ConfirmPolicy = "reset"
	}
	if cfg.Session.HeartbeatInterval == 0 {
		cfg.Session.HeartbeatInterval = 5 * time.Second
	}
	if cfg.Session.HeartbeatTimeout == 0 {
		cfg.Session.HeartbeatTimeout = 30 * time.Second
	}
	if cfg.Session.ReconnectPolicy == "" {
		cfg.Session.ReconnectPolicy = "replace"
	}
	if cfg.Session.MaxReconnectAttempts == 0 {
		cfg.Session.MaxReconnectAttempts = 3
	}
	if cfg.Session.ReconnectBackoff == 0 {
		cfg.Session.ReconnectBackoff = 200 * time.Millisecond
	}
	if cfg.Session.InboundBuffer == 0 {
		cfg.Session.InboundBuffer = 8
	}
	if cfg.Session.OutboundBuffer == 0 {
		cfg.Session.OutboundBuffer = 64
	}
	if cfg.Detector.InputSize == 0 {
		cfg.Detector.InputSize = 640
	}
	if cfg.Detector.Threshold == 0 {
		cfg.Detector.Threshold = 0.5
	}
	if cfg.Detector.NMSThreshold == 0 {
		cfg.Detector.NMSThreshold = 0.45
	}
	if cfg.Embedder.InputWidth == 0 {
		cfg.Embedder.InputWidth = 128
	}
	if cfg.Embedder.InputHeight == 0 {
		cfg.Embedder.InputHeight = 256
	}
	if cfg.Embedder.Dim == 0 {
		cfg.Embedder.Dim = 512
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("VT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("VT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("VT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("VT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("VT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("VT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("VT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("VT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("VT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("VT_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("VT_MODEL_PATH"); v != "" {
		cfg.Detector.ModelPath = v
	}
	if v := os.Getenv("VT_EMBED_MODEL_PATH"); v != "" {
		cfg.Embedder.ModelPath = v
	}
	if v := os.Getenv("VT_BATCH_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.BatchMaxSize = n
		}
	}
	if v := os.Getenv("VT_BATCH_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.BatchMaxWait = d
		}
	}
	if v := os.Getenv("VT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.CacheTTL = d
		}
	}
	if v := os.Getenv("VT_HEARTBEAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.HeartbeatTimeout = d
		}
	}
}
