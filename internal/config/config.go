package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Reactor ReactorConfig `mapstructure:"reactor"`
	Slack   SlackConfig   `mapstructure:"slack"`
	Keys    KeyConfig     `mapstructure:"keys"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Redis   RedisConfig   `mapstructure:"redis"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ReactorConfig struct {
	APIPrefix string `mapstructure:"api_prefix"`
	AuthToken string `mapstructure:"auth_token"`
}

type SlackConfig struct {
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	SigningSecret string   `mapstructure:"signing_secret"`
	APIBase       string   `mapstructure:"api_base"`
	AuthorizeURL  string   `mapstructure:"authorize_url"`
	Scopes        []string `mapstructure:"scopes"`
	UserScopes    []string `mapstructure:"user_scopes"`
	FileHosts     []string `mapstructure:"file_hosts"`
}

// KeyConfig holds the token cipher material. PEM values are the key text
// itself, not file paths.
type KeyConfig struct {
	Passphrase    string `mapstructure:"passphrase"`
	PublicKeyPEM  string `mapstructure:"public_key_pem"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
}

type HTTPConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type DedupConfig struct {
	Backend string        `mapstructure:"backend"` // "memory" | "redis" | "none"
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type CORSConfig struct {
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	AllowedMethods []string      `mapstructure:"allowed_methods"`
	AllowedHeaders []string      `mapstructure:"allowed_headers"`
	MaxAge         time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings keeps the deployment's historical variable names working.
var envBindings = map[string]string{
	"server.host":             "HOST",
	"server.port":             "PORT",
	"server.mode":             "SERVER_MODE",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
	"reactor.api_prefix":      "REACTOR_API_PREFIX",
	"reactor.auth_token":      "REACTOR_AUTH_TOKEN",
	"slack.client_id":         "SLACK_APP_CLIENT_ID",
	"slack.client_secret":     "SLACK_APP_CLIENT_SECRET",
	"slack.signing_secret":    "SLACK_SIGNING_SECRET",
	"slack.api_base":          "SLACK_API_BASE",
	"slack.authorize_url":     "SLACK_AUTHORIZE_URL",
	"slack.scopes":            "SLACK_SCOPES",
	"slack.user_scopes":       "SLACK_USER_SCOPES",
	"slack.file_hosts":        "SLACK_FILE_HOSTS",
	"keys.passphrase":         "PASSPHRASE",
	"keys.public_key_pem":     "PUBLIC_KEY_PEM",
	"keys.private_key_pem":    "PRIVATE_KEY_PEM",
	"http.timeout":            "HTTP_TIMEOUT",
	"http.fetch_concurrency":  "FETCH_CONCURRENCY",
	"upload.max_bytes":        "UPLOAD_MAX_BYTES",
	"dedup.backend":           "DEDUP_BACKEND",
	"dedup.ttl":               "DEDUP_TTL",
	"redis.host":              "REDIS_HOST",
	"redis.port":              "REDIS_PORT",
	"redis.password":          "REDIS_PASSWORD",
	"redis.db":                "REDIS_DB",
	"cors.allowed_origins":    "CORS_ALLOWED_ORIGINS",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("slack.api_base", "https://slack.com/api")
	v.SetDefault("slack.authorize_url", "https://slack.com/oauth/v2/authorize")
	v.SetDefault("slack.file_hosts", []string{"files.slack.com"})
	v.SetDefault("http.timeout", 120*time.Second)
	v.SetDefault("http.fetch_concurrency", 4)
	v.SetDefault("upload.max_bytes", 10<<20)
	v.SetDefault("dedup.backend", "memory")
	v.SetDefault("dedup.ttl", time.Hour)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization"})
	v.SetDefault("cors.max_age", 12*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads an optional YAML file and .env, overlays the process
// environment, and returns a validated Config. An empty path skips the file.
func Load(path string) (*Config, error) {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		env   string
		value string
	}{
		{"REACTOR_API_PREFIX", c.Reactor.APIPrefix},
		{"REACTOR_AUTH_TOKEN", c.Reactor.AuthToken},
		{"PASSPHRASE", c.Keys.Passphrase},
		{"PUBLIC_KEY_PEM", c.Keys.PublicKeyPEM},
		{"PRIVATE_KEY_PEM", c.Keys.PrivateKeyPEM},
		{"SLACK_APP_CLIENT_ID", c.Slack.ClientID},
		{"SLACK_APP_CLIENT_SECRET", c.Slack.ClientSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s not set", r.env))
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload max bytes must be positive"))
	}
	switch c.Dedup.Backend {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown dedup backend %q", c.Dedup.Backend))
	}

	return errors.Join(errs...)
}
