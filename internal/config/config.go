package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/yuanying/epubweb/internal/log"
)

// EnvPrefix prefixes environment overrides, e.g. EPUBWEB_STORAGE_S3_BUCKET.
const EnvPrefix = "EPUBWEB"

const (
	defaultServerAddr  = ":8080"
	defaultJPEGQuality = 85
	defaultMaxWidth    = 1600
)

// Config is the runtime configuration shared by the CLI commands.
type Config struct {
	ImageBaseURL string        `mapstructure:"image_base_url" yaml:"image_base_url"`
	LinkBaseURL  string        `mapstructure:"link_base_url" yaml:"link_base_url"`
	Log          LogConfig     `mapstructure:"log" yaml:"log"`
	Server       ServerConfig  `mapstructure:"server" yaml:"server"`
	Storage      StorageConfig `mapstructure:"storage" yaml:"storage"`
	Images       ImageConfig   `mapstructure:"images" yaml:"images"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Adapter string        `mapstructure:"adapter" yaml:"adapter"`
	Local   LocalStorage  `mapstructure:"local" yaml:"local"`
	S3      S3StorageOpts `mapstructure:"s3" yaml:"s3"`
}

type LocalStorage struct {
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

type S3StorageOpts struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
}

type ImageConfig struct {
	// Optimize enables resizing and re-encoding of raster images on publish and serve.
	Optimize    bool `mapstructure:"optimize" yaml:"optimize"`
	MaxWidth    int  `mapstructure:"max_width" yaml:"max_width"`
	JPEGQuality int  `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

// LoggerOptions converts the log section for log.New.
func (c LogConfig) LoggerOptions() log.Options {
	return log.Options{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// NewViper returns a viper instance with every key defaulted and
// environment overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("image_base_url", "")
	v.SetDefault("link_base_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
	v.SetDefault("server.addr", defaultServerAddr)
	v.SetDefault("storage.adapter", "local")
	v.SetDefault("storage.local.base_path", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("images.optimize", false)
	v.SetDefault("images.max_width", defaultMaxWidth)
	v.SetDefault("images.jpeg_quality", defaultJPEGQuality)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (when not empty) into v and decodes the merged settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "unable to read config file %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// Validate checks the fields that every command relies on. Storage
// settings are checked separately by ValidateStorage.
func Validate(cfg *Config) error {
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "console", "text", "json":
	default:
		return errors.Errorf("log.format: unsupported format %q", cfg.Log.Format)
	}
	if cfg.Images.MaxWidth < 0 {
		return errors.Errorf("images.max_width must not be negative: %d", cfg.Images.MaxWidth)
	}
	if cfg.Images.JPEGQuality < 1 || cfg.Images.JPEGQuality > 100 {
		return errors.Errorf("images.jpeg_quality must be between 1 and 100: %d", cfg.Images.JPEGQuality)
	}
	return nil
}

// ValidateStorage checks the storage section before publishing.
func ValidateStorage(cfg StorageConfig) error {
	switch cfg.Adapter {
	case "local":
		if cfg.Local.BasePath == "" {
			return errors.New("storage.local.base_path is required")
		}
	case "s3":
		if cfg.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required")
		}
		if cfg.S3.Region == "" {
			return errors.New("storage.s3.region is required")
		}
	default:
		return errors.Errorf("invalid storage adapter: %s (must be 'local' or 's3')", cfg.Adapter)
	}
	return nil
}
