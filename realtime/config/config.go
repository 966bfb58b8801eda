package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/mcp-training/roomhub/realtime/hub"
	"github.com/wricardo/mcp-training/roomhub/realtime/identity"
	"github.com/wricardo/mcp-training/roomhub/realtime/persistence"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Auth modes.
const (
	AuthNone   = "none"
	AuthStatic = "static"
	AuthJWT    = "jwt"
)

type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Hub         HubConfig          `yaml:"hub"`
	Liveness    LivenessConfig     `yaml:"liveness"`
	Auth        AuthConfig         `yaml:"auth"`
	Persistence persistence.Config `yaml:"persistence"`
	Log         LogConfig          `yaml:"log"`
	Ngrok       NgrokConfig        `yaml:"ngrok"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins restricts WebSocket upgrades. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type HubConfig struct {
	MaxConnections              int             `yaml:"max_connections"`
	// HistorySize is the per-topic replay buffer. -1 disables history; 0 is
	// rejected because the hub would read it as the default.
	HistorySize                 int             `yaml:"history_size"`
	RequireAuth                 bool            `yaml:"require_auth"`
	PublishRequiresSubscription bool            `yaml:"publish_requires_subscription"`
	EchoToSender                bool            `yaml:"echo_to_sender"`
	SendBuffer                  int             `yaml:"send_buffer"`
	MaxMessageBytes             int64           `yaml:"max_message_bytes"`
	RateLimit                   RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type LivenessConfig struct {
	Period  time.Duration `yaml:"period"`
	Timeout time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	Mode string `yaml:"mode"`
	JWT  struct {
		Secret   string        `yaml:"secret"`
		Issuer   string        `yaml:"issuer"`
		Audience string        `yaml:"audience"`
		Leeway   time.Duration `yaml:"leeway"`
	} `yaml:"jwt"`
	// Tokens maps static tokens to user ids.
	Tokens map[string]string `yaml:"tokens"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type NgrokConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Domain    string `yaml:"domain"`
	Authtoken string `yaml:"authtoken"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Hub: HubConfig{
			HistorySize:                 hub.DefaultHistorySize,
			PublishRequiresSubscription: true,
			SendBuffer:                  256,
			MaxMessageBytes:             64 << 10,
		},
		Liveness: LivenessConfig{
			Period:  hub.DefaultLivenessPeriod,
			Timeout: hub.DefaultLivenessTimeout,
		},
		Auth: AuthConfig{Mode: AuthNone},
		Persistence: persistence.Config{
			Driver:    persistence.DriverNone,
			QueueSize: persistence.DefaultQueueSize,
			Retention: persistence.DefaultRetention,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes YAML from r over the defaults and validates it.
func Parse(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem found, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Hub.MaxConnections < 0 {
		add("hub.max_connections must not be negative")
	}
	if c.Hub.HistorySize == 0 {
		add("hub.history_size must be positive, or -1 to disable history")
	}
	if c.Hub.SendBuffer <= 0 {
		add("hub.send_buffer must be positive")
	}
	if c.Hub.MaxMessageBytes <= 0 {
		add("hub.max_message_bytes must be positive")
	}
	if c.Hub.RateLimit.PerSecond < 0 || c.Hub.RateLimit.Burst < 0 {
		add("hub.rate_limit values must not be negative")
	}
	if c.Liveness.Period <= 0 {
		add("liveness.period must be positive")
	}
	if c.Liveness.Timeout != 0 && c.Liveness.Timeout < c.Liveness.Period {
		add("liveness.timeout must be at least liveness.period")
	}

	switch c.Auth.Mode {
	case AuthNone:
		if c.Hub.RequireAuth {
			add("hub.require_auth needs auth.mode static or jwt")
		}
	case AuthStatic:
		if len(c.Auth.Tokens) == 0 {
			add("auth.tokens is required for static auth")
		}
	case AuthJWT:
		if c.Auth.JWT.Secret == "" {
			add("auth.jwt.secret is required for jwt auth")
		}
	default:
		add("auth.mode %q is not one of none, static, jwt", c.Auth.Mode)
	}

	switch c.Persistence.Driver {
	case persistence.DriverNone:
	case persistence.DriverFile:
		if c.Persistence.File.Dir == "" {
			add("persistence.file.dir is required")
		}
	case persistence.DriverRedis:
		if c.Persistence.Redis.Addr == "" {
			add("persistence.redis.addr is required")
		}
	case persistence.DriverPostgres:
		if c.Persistence.Postgres.DSN == "" {
			add("persistence.postgres.dsn is required")
		}
	default:
		add("persistence.driver %q is not one of none, file, redis, postgres", c.Persistence.Driver)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		add("log.format %q is not console or json", c.Log.Format)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// HubOptions translates the hub and liveness sections. Collaborators
// (verifier, hook, metrics, logger) are left for the caller to set.
func (c Config) HubOptions() hub.Options {
	opts := hub.Options{
		MaxConnections:              c.Hub.MaxConnections,
		HistorySize:                 c.Hub.HistorySize,
		RequireAuth:                 c.Hub.RequireAuth,
		PublishRequiresSubscription: c.Hub.PublishRequiresSubscription,
		EchoToSender:                c.Hub.EchoToSender,
		LivenessPeriod:              c.Liveness.Period,
		LivenessTimeout:             c.Liveness.Timeout,
	}
	if c.Hub.RateLimit.PerSecond > 0 {
		opts.RateLimit = rate.Limit(c.Hub.RateLimit.PerSecond)
		opts.RateBurst = c.Hub.RateLimit.Burst
	}
	return opts
}

// Verifier builds the credential verifier for the auth mode. It returns nil
// for AuthNone.
func (a AuthConfig) Verifier() (hub.Verifier, error) {
	switch a.Mode {
	case AuthStatic:
		return identity.NewStatic(a.Tokens), nil
	case AuthJWT:
		v, err := identity.NewJWT(identity.JWTConfig{
			Secret:   a.JWT.Secret,
			Issuer:   a.JWT.Issuer,
			Audience: a.JWT.Audience,
			Leeway:   a.JWT.Leeway,
		})
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, nil
}
