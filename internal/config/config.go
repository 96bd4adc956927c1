package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	mu     sync.Mutex
	active *viper.Viper
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Best-effort: a missing .env is not an error
	_ = godotenv.Load()

	config := GetDefaults()

	v := viper.New()
	setDefaults(v, config)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/scan-redactor/")
	v.AddConfigPath("$HOME/.scan-redactor/")

	// Environment variable overrides, e.g. REDACTOR_REDACTION_MODE
	v.SetEnvPrefix("REDACTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mu.Lock()
	active = v
	mu.Unlock()

	return config, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it
// even when no config file mentions the key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)

	v.SetDefault("redaction.mode", d.Redaction.Mode)
	v.SetDefault("redaction.categories", d.Redaction.Categories)
	v.SetDefault("redaction.ocr_tolerance", d.Redaction.OCRTolerance)

	v.SetDefault("ner.enabled", d.NER.Enabled)
	v.SetDefault("ner.backend", d.NER.Backend)
	v.SetDefault("ner.url", d.NER.URL)
	v.SetDefault("ner.timeout", d.NER.Timeout)
	v.SetDefault("ner.model_path", d.NER.ModelPath)
	v.SetDefault("ner.vocab_path", d.NER.VocabPath)
	v.SetDefault("ner.max_length", d.NER.MaxLength)

	v.SetDefault("ocr.languages", d.OCR.Languages)
	v.SetDefault("ocr.workers", d.OCR.Workers)
	v.SetDefault("ocr.preprocess", d.OCR.Preprocess)
	v.SetDefault("ocr.threshold", d.OCR.Threshold)
	v.SetDefault("ocr.min_width", d.OCR.MinWidth)
	v.SetDefault("ocr.clean", d.OCR.Clean)

	v.SetDefault("export.output_dir", d.Export.OutputDir)
	v.SetDefault("export.formats", d.Export.Formats)
	v.SetDefault("export.font_size", d.Export.FontSize)
	v.SetDefault("export.margin", d.Export.Margin)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("cache.default_ttl", d.Cache.DefaultTTL)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)

	v.SetDefault("store.enabled", d.Store.Enabled)
	v.SetDefault("store.database_url", d.Store.DatabaseURL)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("websocket.username", d.WebSocket.Username)
	v.SetDefault("websocket.password", d.WebSocket.Password)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_min", d.RateLimit.RequestsPerMin)
}

// Validate validates the loaded configuration
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	mode := strings.ToLower(config.Redaction.Mode)
	if mode != "conservative" && mode != "aggressive" {
		return fmt.Errorf("invalid redaction mode: %s (must be conservative or aggressive)", config.Redaction.Mode)
	}

	if len(config.Redaction.Categories) == 0 {
		return fmt.Errorf("at least one redaction category must be enabled")
	}

	if config.NER.Enabled && config.NER.Backend != "http" && config.NER.Backend != "onnx" {
		return fmt.Errorf("invalid ner backend: %s (must be http or onnx)", config.NER.Backend)
	}

	if config.OCR.Threshold < 0 || config.OCR.Threshold > 255 {
		return fmt.Errorf("invalid ocr threshold: %d (must be 0-255)", config.OCR.Threshold)
	}

	for _, f := range config.Export.Formats {
		if f != "pdf" && f != "docx" && f != "txt" {
			return fmt.Errorf("invalid export format: %s (must be pdf, docx, or txt)", f)
		}
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes. The callback
// receives only configurations that pass validation; onError receives the
// reason a change was ignored and may be nil.
func Watch(callback func(*Config), onError func(error)) error {
	mu.Lock()
	v := active
	mu.Unlock()

	if v == nil {
		return fmt.Errorf("configuration has not been loaded")
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no configuration file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		if err := Validate(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
