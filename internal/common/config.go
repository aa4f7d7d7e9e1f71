package common

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Suggest    SuggestConfig    `mapstructure:"suggest" yaml:"suggest"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver" yaml:"driver"`
	DSN              string        `mapstructure:"dsn" yaml:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time" yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string `mapstructure:"grpc_addr" yaml:"grpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// ExtractionConfig drives the background OCR pipeline and its backends.
type ExtractionConfig struct {
	Workers        int           `mapstructure:"workers" yaml:"workers"`
	QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout" yaml:"process_timeout"`
	LeaseTimeout   time.Duration `mapstructure:"lease_timeout" yaml:"lease_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	ClaimInterval  time.Duration `mapstructure:"claim_interval" yaml:"claim_interval"`
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`

	Tesseract     string `mapstructure:"tesseract" yaml:"tesseract"`
	TessdataDir   string `mapstructure:"tessdata_dir" yaml:"tessdata_dir"`
	Language      string `mapstructure:"language" yaml:"language"`
	PSM           int    `mapstructure:"psm" yaml:"psm"`
	HeicConverter string `mapstructure:"heic_converter" yaml:"heic_converter"`
	FixturePath   string `mapstructure:"fixture_path" yaml:"fixture_path"`

	AWSRegion          string `mapstructure:"aws_region" yaml:"aws_region"`
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id" yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key" yaml:"aws_secret_access_key"`
	RetryAttempts      uint   `mapstructure:"retry_attempts" yaml:"retry_attempts"`
}

// SuggestConfig controls the spelling suggestion engine.
type SuggestConfig struct {
	DictionaryPath string `mapstructure:"dictionary_path" yaml:"dictionary_path"`
	MaxResults     int    `mapstructure:"max_results" yaml:"max_results"`
}

// StorageConfig locates page images on disk.
type StorageConfig struct {
	ImageRoot string `mapstructure:"image_root" yaml:"image_root"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:libriscan.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			GRPCAddr:    ":8080",
			MetricsAddr: ":9090",
		},
		Extraction: ExtractionConfig{
			Workers:            3,
			QueueSize:          100,
			ProcessTimeout:     5 * time.Minute,
			LeaseTimeout:       10 * time.Minute,
			SweepInterval:      10 * time.Minute,
			ClaimInterval:      5 * time.Second,
			BatchSize:          500,
			Tesseract:          "tesseract",
			Language:           "eng",
			AWSAccessKeyID:     "${AWS_ACCESS_KEY_ID}",
			AWSSecretAccessKey: "${AWS_SECRET_ACCESS_KEY}",
			RetryAttempts:      3,
		},
		Suggest: SuggestConfig{
			MaxResults: 3,
		},
		Storage: StorageConfig{
			ImageRoot: "./images",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// envAliases keeps the older unprefixed variable names working.
var envAliases = map[string][]string{
	"database.dsn":            {"DB_URL"},
	"extraction.tessdata_dir": {"TESSDATA_PREFIX"},
	"extraction.aws_region":   {"AWS_REGION"},
}

// Loader reads configuration from defaults, an optional YAML file and LIBRISCAN_* env vars.
type Loader struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewLoader builds a Loader and reads the initial configuration.
// An empty cfgFile searches ./config.yaml and $HOME/.libriscan; a missing file is fine.
func NewLoader(cfgFile string) (*Loader, error) {
	l := &Loader{v: viper.New()}
	if err := l.init(cfgFile); err != nil {
		return nil, err
	}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.config = cfg
	return l, nil
}

func (l *Loader) init(cfgFile string) error {
	v := l.v
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("LIBRISCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{"LIBRISCAN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.libriscan")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("database.max_conn_lifetime", d.Database.MaxConnLifetime)
	v.SetDefault("database.max_conn_idle_time", d.Database.MaxConnIdleTime)
	v.SetDefault("database.dial_timeout", d.Database.DialTimeout)
	v.SetDefault("database.statement_timeout", d.Database.StatementTimeout)

	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.metrics_addr", d.Server.MetricsAddr)

	v.SetDefault("extraction.workers", d.Extraction.Workers)
	v.SetDefault("extraction.queue_size", d.Extraction.QueueSize)
	v.SetDefault("extraction.process_timeout", d.Extraction.ProcessTimeout)
	v.SetDefault("extraction.lease_timeout", d.Extraction.LeaseTimeout)
	v.SetDefault("extraction.sweep_interval", d.Extraction.SweepInterval)
	v.SetDefault("extraction.claim_interval", d.Extraction.ClaimInterval)
	v.SetDefault("extraction.batch_size", d.Extraction.BatchSize)
	v.SetDefault("extraction.tesseract", d.Extraction.Tesseract)
	v.SetDefault("extraction.tessdata_dir", d.Extraction.TessdataDir)
	v.SetDefault("extraction.language", d.Extraction.Language)
	v.SetDefault("extraction.psm", d.Extraction.PSM)
	v.SetDefault("extraction.heic_converter", d.Extraction.HeicConverter)
	v.SetDefault("extraction.fixture_path", d.Extraction.FixturePath)
	v.SetDefault("extraction.aws_region", d.Extraction.AWSRegion)
	v.SetDefault("extraction.aws_access_key_id", d.Extraction.AWSAccessKeyID)
	v.SetDefault("extraction.aws_secret_access_key", d.Extraction.AWSSecretAccessKey)
	v.SetDefault("extraction.retry_attempts", d.Extraction.RetryAttempts)

	v.SetDefault("suggest.dictionary_path", d.Suggest.DictionaryPath)
	v.SetDefault("suggest.max_results", d.Suggest.MaxResults)

	v.SetDefault("storage.image_root", d.Storage.ImageRoot)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func (l *Loader) load() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Extraction.AWSAccessKeyID = ResolveEnvVars(cfg.Extraction.AWSAccessKeyID)
	cfg.Extraction.AWSSecretAccessKey = ResolveEnvVars(cfg.Extraction.AWSSecretAccessKey)
	return &cfg, nil
}

// Get returns the current configuration.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// ConfigFile reports the file that was read, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// OnChange registers a callback run after the config file is reloaded.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

// Watch reloads the configuration whenever the file changes.
func (l *Loader) Watch() {
	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := l.load()
		if err != nil {
			return
		}
		l.mu.Lock()
		l.config = cfg
		callbacks := make([]func(*Config), len(l.callbacks))
		copy(callbacks, l.callbacks)
		l.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	l.v.WatchConfig()
}

// LoadConfig reads the configuration once, without watching.
func LoadConfig(cfgFile string) (*Config, error) {
	l, err := NewLoader(cfgFile)
	if err != nil {
		return nil, err
	}
	return l.Get(), nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// WriteDefault writes the default configuration to path as YAML.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	header := []byte("# libriscan configuration\n# Every key can be overridden with LIBRISCAN_<SECTION>_<KEY>.\n\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported database.driver %q", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "database.dsn is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "server.grpc_addr is required", ErrInvalidInput)
	}
	if c.Extraction.Workers <= 0 || c.Extraction.QueueSize <= 0 {
		return NewAppError("CONFIG_ERROR", "extraction.workers and extraction.queue_size must be positive", ErrInvalidInput)
	}
	if c.Extraction.LeaseTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "extraction.lease_timeout must be positive", ErrInvalidInput)
	}
	if c.Suggest.MaxResults <= 0 {
		return NewAppError("CONFIG_ERROR", "suggest.max_results must be positive", ErrInvalidInput)
	}
	return nil
}
