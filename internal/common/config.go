package common

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Vocabulary VocabularyConfig `mapstructure:"vocabulary"`
	Export     ExportConfig     `mapstructure:"export"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gte=0"`
}

// StoreConfig selects and tunes the task status backend.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	DSN             string        `mapstructure:"dsn" validate:"required_unless=Driver memory"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ConnectRetry    time.Duration `mapstructure:"connect_retry"`
}

// QueueConfig sizes the worker pool.
type QueueConfig struct {
	Workers        int           `mapstructure:"workers" validate:"gt=0"`
	Size           int           `mapstructure:"size" validate:"gte=0"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"` // 0 = run to completion
}

// FetchConfig tunes resume downloads.
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
	RateLimit float64       `mapstructure:"rate_limit" validate:"gte=0"` // requests/sec, 0 = unlimited
	Burst     int           `mapstructure:"burst" validate:"gte=0"`
	UserAgent string        `mapstructure:"user_agent"`
}

// ExtractConfig holds text extraction configuration
type ExtractConfig struct {
	Pdfinfo       string `mapstructure:"pdfinfo"`
	Pdftotext     string `mapstructure:"pdftotext"`
	Pdftoppm      string `mapstructure:"pdftoppm"`
	Tesseract     string `mapstructure:"tesseract"`
	OCRFallback   bool   `mapstructure:"ocr_fallback"`
	TesseractLang string `mapstructure:"tesseract_lang"`
	DPI           int    `mapstructure:"dpi" validate:"gte=0"`
	MaxPages      int    `mapstructure:"max_pages" validate:"gte=0"`
	WorkDir       string `mapstructure:"work_dir"`
}

// VocabularyConfig points at an optional vocabulary override file.
type VocabularyConfig struct {
	File string `mapstructure:"file"`
}

// ExportConfig describes the XLSX result sink.
type ExportConfig struct {
	Path  string `mapstructure:"path"`
	Sheet string `mapstructure:"sheet" validate:"required"`
}

// TracingConfig enables OTLP span export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// env bindings keep the flat variable names used by deployments.
var envBindings = map[string]string{
	"server.http_addr":         "HTTP_ADDR",
	"server.grpc_addr":         "GRPC_ADDR",
	"server.shutdown_timeout":  "SHUTDOWN_TIMEOUT",
	"server.max_upload_bytes":  "MAX_UPLOAD_BYTES",
	"store.driver":             "STORE_DRIVER",
	"store.dsn":                "DB_URL",
	"store.max_conns":          "DB_MAX_CONNS",
	"store.min_conns":          "DB_MIN_CONNS",
	"store.max_conn_lifetime":  "DB_MAX_CONN_LIFETIME",
	"store.max_conn_idle_time": "DB_MAX_CONN_IDLE_TIME",
	"store.dial_timeout":       "DB_DIAL_TIMEOUT",
	"store.connect_retry":      "DB_CONNECT_RETRY",
	"queue.workers":            "WORKERS",
	"queue.size":               "QUEUE_SIZE",
	"queue.process_timeout":    "PROCESS_TIMEOUT",
	"fetch.timeout":            "FETCH_TIMEOUT",
	"fetch.max_bytes":          "FETCH_MAX_BYTES",
	"fetch.rate_limit":         "FETCH_RATE_LIMIT",
	"fetch.burst":              "FETCH_BURST",
	"fetch.user_agent":         "FETCH_USER_AGENT",
	"extract.pdfinfo":          "PDFINFO",
	"extract.pdftotext":        "PDFTOTEXT",
	"extract.pdftoppm":         "PDFTOPPM",
	"extract.tesseract":        "TESSERACT",
	"extract.ocr_fallback":     "OCR_FALLBACK",
	"extract.tesseract_lang":   "TESSERACT_LANG",
	"extract.dpi":              "OCR_DPI",
	"extract.max_pages":        "MAX_PAGES",
	"extract.work_dir":         "ARTIFACT_CACHE_DIR",
	"vocabulary.file":          "VOCABULARY_FILE",
	"export.path":              "EXPORT_PATH",
	"export.sheet":             "EXPORT_SHEET",
	"tracing.endpoint":         "OTEL_EXPORTER_OTLP_ENDPOINT",
	"tracing.service_name":     "OTEL_SERVICE_NAME",
	"log.level":                "LOG_LEVEL",
	"log.json":                 "LOG_JSON",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8000")
	v.SetDefault("server.grpc_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(10<<20))

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.max_conns", int32(20))
	v.SetDefault("store.min_conns", int32(2))
	v.SetDefault("store.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("store.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("store.dial_timeout", 3*time.Second)
	v.SetDefault("store.connect_retry", time.Minute)

	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.size", 256)
	v.SetDefault("queue.process_timeout", time.Duration(0))

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", int64(20<<20))
	v.SetDefault("fetch.rate_limit", 0.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.user_agent", "resume-scanner/1.0")

	v.SetDefault("extract.pdfinfo", "pdfinfo")
	v.SetDefault("extract.pdftotext", "pdftotext")
	v.SetDefault("extract.pdftoppm", "pdftoppm")
	v.SetDefault("extract.tesseract", "tesseract")
	v.SetDefault("extract.ocr_fallback", false)
	v.SetDefault("extract.tesseract_lang", "eng")
	v.SetDefault("extract.dpi", 300)
	v.SetDefault("extract.max_pages", 0)
	v.SetDefault("extract.work_dir", "")

	v.SetDefault("export.path", "results.xlsx")
	v.SetDefault("export.sheet", "Sheet1")

	v.SetDefault("tracing.service_name", "resume-scanner")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// LoadConfig reads configuration from v (config file and flags already attached by
// the caller) layered over environment variables and defaults.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "decode configuration", err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	return &cfg, nil
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report keys the way they are written in the config file
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewAppError("CONFIG_ERROR", "validate configuration", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", key, fe.Tag(), fe.Value()))
		}
	}
	return NewAppError("CONFIG_ERROR", strings.Join(msgs, "; "), ErrInvalidInput)
}
