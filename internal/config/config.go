package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cchat/internal/upload"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CCHAT_API_BASE_URL.
const EnvPrefix = "CCHAT"

// Config holds the application configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Session  SessionConfig  `mapstructure:"session"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Locale   LocaleConfig   `mapstructure:"locale"`
}

// APIConfig holds the REST client configuration
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RealtimeConfig holds the websocket client configuration
type RealtimeConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectEvery time.Duration `mapstructure:"reconnect_every"`
	ReconnectBurst int           `mapstructure:"reconnect_burst"`
}

// UploadConfig selects and configures the attachment store
type UploadConfig struct {
	Provider   string           `mapstructure:"provider"`
	MaxSize    string           `mapstructure:"max_size"`
	Cloudinary CloudinaryConfig `mapstructure:"cloudinary"`
	S3         S3Config         `mapstructure:"s3"`
}

// CloudinaryConfig holds the unsigned upload settings
type CloudinaryConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	Preset    string `mapstructure:"preset"`
	Endpoint  string `mapstructure:"endpoint"`
}

// S3Config holds the bucket settings
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Prefix string `mapstructure:"prefix"`
}

// SessionConfig holds where the credential is persisted
type SessionConfig struct {
	Dir string `mapstructure:"dir"`
}

// ServerConfig holds the reference backend configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	AllowOrigins string        `mapstructure:"allow_origins"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	DatabaseURL  string        `mapstructure:"database_url"`
}

// LogConfig holds the logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LocaleConfig holds the notice language
type LocaleConfig struct {
	Lang string `mapstructure:"lang"`
}

// Upload providers.
const (
	ProviderNone       = "none"
	ProviderCloudinary = "cloudinary"
	ProviderS3         = "s3"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080/v1")
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("realtime.url", "ws://localhost:8080/v1/ws")
	v.SetDefault("realtime.reconnect_every", 2*time.Second)
	v.SetDefault("realtime.reconnect_burst", 1)

	v.SetDefault("upload.provider", ProviderCloudinary)
	v.SetDefault("upload.max_size", upload.DefaultMaxSize)
	v.SetDefault("upload.cloudinary.cloud_name", "dbx1xoswm")
	v.SetDefault("upload.cloudinary.preset", "cchat-upload")
	v.SetDefault("upload.cloudinary.endpoint", "")
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.region", "us-east-1")
	v.SetDefault("upload.s3.prefix", "attachments")

	v.SetDefault("session.dir", ".cchat")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allow_origins", "*")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_ttl", 7*24*time.Hour)
	v.SetDefault("server.database_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("locale.lang", "en")
}

// Load reads .env (if present), then path (or ./config.yaml when path is
// empty and the file exists), then CCHAT_* environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Realtime.URL == "" {
		errs = append(errs, errors.New("realtime.url is required"))
	}
	if c.Realtime.ReconnectEvery <= 0 {
		errs = append(errs, errors.New("realtime.reconnect_every must be positive"))
	}
	if _, err := upload.ParseMaxSize(c.Upload.MaxSize); err != nil {
		errs = append(errs, err)
	}
	switch c.Upload.Provider {
	case ProviderNone, ProviderCloudinary:
	case ProviderS3:
		if c.Upload.S3.Bucket == "" {
			errs = append(errs, errors.New("upload.s3.bucket is required for the s3 provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown upload.provider %q", c.Upload.Provider))
	}
	return errors.Join(errs...)
}

// Uploader builds the configured attachment store, or nil for "none".
func (c *Config) Uploader() (upload.Uploader, error) {
	maxSize, err := upload.ParseMaxSize(c.Upload.MaxSize)
	if err != nil {
		return nil, err
	}
	switch c.Upload.Provider {
	case ProviderCloudinary:
		return &upload.Cloudinary{
			CloudName: c.Upload.Cloudinary.CloudName,
			Preset:    c.Upload.Cloudinary.Preset,
			Endpoint:  c.Upload.Cloudinary.Endpoint,
			MaxSize:   maxSize,
		}, nil
	case ProviderS3:
		return upload.NewS3(c.Upload.S3.Region, c.Upload.S3.Bucket, c.Upload.S3.Prefix, maxSize)
	default:
		return nil, nil
	}
}
