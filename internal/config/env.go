package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool          `yaml:"send"`
	APIKey        string        `yaml:"api_key"`
	OrgID         string        `yaml:"org_id"`
	Dataset       string        `yaml:"dataset"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// PipelineConfig holds conversion defaults.
type PipelineConfig struct {
	Quality     int     `yaml:"quality"`
	Width       int     `yaml:"width"`
	DPI         float64 `yaml:"dpi"`
	MaxPages    int     `yaml:"max_pages"`
	AVIFSpeed   int     `yaml:"avif_speed"`
	RembgOrder  string  `yaml:"rembg_order"`
	PDFOptimize bool    `yaml:"pdf_optimize"`
	// SizeSystem is IEC (1024) or SI (1000) for target size strings.
	SizeSystem string `yaml:"size_system"`
}

// RembgConfig configures the background removal tool.
type RembgConfig struct {
	Binary     string        `yaml:"binary"`
	ConfigPath string        `yaml:"config_path"`
	Workers    int           `yaml:"workers"`
	Timeout    time.Duration `yaml:"timeout"`
}

// S3Config is empty-bucket disabled.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	Bucket          string `yaml:"bucket"`
}

// StorageConfig covers S3 and the server workspace.
type StorageConfig struct {
	S3              S3Config      `yaml:"s3"`
	WorkspaceDir    string        `yaml:"workspace_dir"`
	CleanupMaxAge   time.Duration `yaml:"cleanup_max_age"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RedisConfig enables the shared job status store and limiter. An empty URL
// keeps both in-process.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// ServerConfig configures `imgconvert serve`.
type ServerConfig struct {
	Addr                 string        `yaml:"addr"`
	MaxConcurrentUploads int           `yaml:"max_concurrent_uploads"`
	MaxUploadMB          int           `yaml:"max_upload_mb"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Axiom    AxiomConfig    `yaml:"axiom"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Rembg    RembgConfig    `yaml:"rembg"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Logging: LoggingConfig{
			Level:      "info",
			Pretty:     parseBool(devDefaultPretty()),
			File:       "",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Axiom: AxiomConfig{
			Dataset:       "dev_imgconvert",
			FlushInterval: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			Quality:    85,
			DPI:        300,
			AVIFSpeed:  8,
			RembgOrder: "before_resize",
			SizeSystem: "IEC",
		},
		Rembg: RembgConfig{
			Binary:     "rembg",
			ConfigPath: "rembg_config.json",
			Workers:    1,
			Timeout:    120 * time.Second,
		},
		Storage: StorageConfig{
			CleanupMaxAge:   time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Redis: RedisConfig{StatusTTL: 24 * time.Hour},
		Server: ServerConfig{
			Addr:                 ":8080",
			MaxConcurrentUploads: 2,
			MaxUploadMB:          200,
			ShutdownTimeout:      10 * time.Second,
		},
	}
}

// LoadDotEnv reads .env into the process environment if present.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

// Load overlays the YAML file at path on the defaults, then applies the
// environment. An empty path behaves like FromEnv.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	l := &cfg.Logging
	l.Level = getEnv("LOG_LEVEL", l.Level)
	l.Pretty = envBool("LOG_PRETTY", l.Pretty)
	l.File = getEnv("LOG_FILE", l.File)
	l.MaxSizeMB = parseInt(os.Getenv("LOG_MAX_SIZE_MB"), l.MaxSizeMB)
	l.MaxBackups = parseInt(os.Getenv("LOG_MAX_BACKUPS"), l.MaxBackups)
	l.MaxAgeDays = parseInt(os.Getenv("LOG_MAX_AGE_DAYS"), l.MaxAgeDays)
	l.Compress = envBool("LOG_COMPRESS", l.Compress)

	a := &cfg.Axiom
	a.Send = envBool("SEND_LOGS_TO_AXIOM", a.Send)
	a.APIKey = getEnv("AXIOM_API_KEY", a.APIKey)
	a.OrgID = getEnv("AXIOM_ORG_ID", a.OrgID)
	if v := os.Getenv("AXIOM_DATASET"); v != "" {
		a.Dataset = v + "_imgconvert"
	}
	a.FlushInterval = parseDuration(os.Getenv("AXIOM_FLUSH_INTERVAL"), a.FlushInterval)

	p := &cfg.Pipeline
	p.Quality = parseInt(os.Getenv("DEFAULT_QUALITY"), p.Quality)
	p.Width = parseInt(os.Getenv("DEFAULT_WIDTH"), p.Width)
	p.DPI = parseFloat(os.Getenv("PDF_DPI"), p.DPI)
	p.MaxPages = parseInt(os.Getenv("PDF_MAX_PAGES"), p.MaxPages)
	p.AVIFSpeed = parseInt(os.Getenv("AVIF_SPEED"), p.AVIFSpeed)
	p.RembgOrder = getEnv("REMBG_ORDER", p.RembgOrder)
	p.PDFOptimize = envBool("PDF_OPTIMIZE", p.PDFOptimize)
	p.SizeSystem = strings.ToUpper(getEnv("SIZE_SYSTEM", p.SizeSystem))

	r := &cfg.Rembg
	r.Binary = getEnv("REMBG_BINARY", r.Binary)
	r.ConfigPath = getEnv("REMBG_CONFIG_PATH", r.ConfigPath)
	r.Workers = parseInt(os.Getenv("REMBG_WORKERS"), r.Workers)
	r.Timeout = parseDuration(os.Getenv("REMBG_TIMEOUT"), r.Timeout)

	s := &cfg.Storage
	s.S3.Region = getEnv("AWS_REGION", s.S3.Region)
	s.S3.Endpoint = getEnv("S3_ENDPOINT", s.S3.Endpoint)
	s.S3.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", s.S3.AccessKeyID)
	s.S3.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", s.S3.SecretAccessKey)
	s.S3.UsePathStyle = envBool("S3_USE_PATH_STYLE", s.S3.UsePathStyle)
	s.S3.Bucket = getEnv("S3_BUCKET", s.S3.Bucket)
	s.WorkspaceDir = getEnv("WORKSPACE_DIR", s.WorkspaceDir)
	s.CleanupMaxAge = parseDuration(os.Getenv("CLEANUP_MAX_AGE"), s.CleanupMaxAge)
	s.CleanupInterval = parseDuration(os.Getenv("CLEANUP_INTERVAL"), s.CleanupInterval)

	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.StatusTTL = parseDuration(os.Getenv("JOB_STATUS_TTL"), cfg.Redis.StatusTTL)

	srv := &cfg.Server
	if port := os.Getenv("PORT"); port != "" {
		srv.Addr = ":" + port
	}
	srv.Addr = getEnv("SERVER_ADDR", srv.Addr)
	srv.MaxConcurrentUploads = parseInt(os.Getenv("MAX_CONCURRENT_UPLOADS"), srv.MaxConcurrentUploads)
	srv.MaxUploadMB = parseInt(os.Getenv("MAX_UPLOAD_MB"), srv.MaxUploadMB)
	srv.ShutdownTimeout = parseDuration(os.Getenv("SHUTDOWN_TIMEOUT"), srv.ShutdownTimeout)
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return parseBool(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
