// Package config loads entropass settings from defaults, an optional config
// file and ENTROPASS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/entropass/pkg/capture"
	"github.com/teslashibe/entropass/pkg/entropy"
	"github.com/teslashibe/entropass/pkg/password"
	"github.com/teslashibe/entropass/pkg/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. ENTROPASS_CAPTURE_RETRIES.
const EnvPrefix = "ENTROPASS"

// Profile selects the defaults that differ between the command line and the server.
type Profile int

const (
	ProfileCLI Profile = iota
	ProfileServer
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Password PasswordConfig `mapstructure:"password"`
	Digest   DigestConfig   `mapstructure:"digest"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	StaticDir       string        `mapstructure:"static_dir"`
}

// CaptureConfig configures device acquisition and frame sampling.
type CaptureConfig struct {
	FrameInterval  time.Duration `mapstructure:"frame_interval"`
	FrameTimeout   time.Duration `mapstructure:"frame_timeout"`
	GridMin        int           `mapstructure:"grid_min"`
	GridMax        int           `mapstructure:"grid_max"`
	PreferredIndex int           `mapstructure:"preferred_index"`
	ProbeOthers    bool          `mapstructure:"probe_others"`
	MaxIndex       int           `mapstructure:"max_index"`
	Retries        int           `mapstructure:"retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	Preview        bool          `mapstructure:"preview"`

	// Resolution is a preset name ("720p") or "WIDTHxHEIGHT". Empty keeps the driver default.
	Resolution string `mapstructure:"resolution"`
}

// PasswordConfig holds the default request shape.
type PasswordConfig struct {
	Length   int    `mapstructure:"length"`
	Groups   string `mapstructure:"groups"`
	Required string `mapstructure:"required"`
	Extra    string `mapstructure:"extra"`
}

// DigestConfig selects the hash and salt size.
type DigestConfig struct {
	Hash     string `mapstructure:"hash"`
	SaltSize int    `mapstructure:"salt_size"`
}

// BackupConfig enables the optional sample backups. Empty paths disable them.
type BackupConfig struct {
	JSONPath   string `mapstructure:"json_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Default returns the defaults for a profile.
func Default(p Profile) *Config {
	open := capture.DefaultOpenOptions()
	opts := pipeline.DefaultOptions()

	cfg := &Config{
		Server: ServerConfig{
			Port:            5000,
			RateLimitMax:    10,
			RateLimitWindow: 60 * time.Second,
			RequestTimeout:  60 * time.Second,
			StaticDir:       "./web",
		},
		Capture: CaptureConfig{
			FrameInterval:  opts.FrameInterval,
			FrameTimeout:   opts.FrameTimeout,
			GridMin:        opts.GridMin,
			GridMax:        opts.GridMax,
			PreferredIndex: open.PreferredIndex,
			ProbeOthers:    open.ProbeOthers,
			MaxIndex:       open.MaxIndex,
			Retries:        open.Retries,
			RetryDelay:     open.RetryDelay,
			Preview:        true,
		},
		Password: PasswordConfig{
			Length: password.DefaultLength,
			Groups: "upper,lower,digits,symbols",
		},
		Digest: DigestConfig{
			Hash:     string(entropy.SHA512),
			SaltSize: entropy.DefaultSaltSize,
		},
		Log: LogConfig{
			Level: "info",
			File:  "logs/entropass.log",
		},
	}

	if p == ProfileServer {
		cfg.Capture.MaxIndex = 3
		cfg.Capture.Retries = 3
		cfg.Capture.Preview = false
	}
	return cfg
}

// New returns a viper instance with defaults for p, env overrides bound and
// the config file (if any) registered. Flags may be bound to it before Load.
func New(p Profile, file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v, p)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("entropass")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	return v
}

// SetDefaults registers every key with its profile default.
func SetDefaults(v *viper.Viper, p Profile) {
	d := Default(p)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.rate_limit_max", d.Server.RateLimitMax)
	v.SetDefault("server.rate_limit_window", d.Server.RateLimitWindow)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.static_dir", d.Server.StaticDir)

	v.SetDefault("capture.frame_interval", d.Capture.FrameInterval)
	v.SetDefault("capture.frame_timeout", d.Capture.FrameTimeout)
	v.SetDefault("capture.grid_min", d.Capture.GridMin)
	v.SetDefault("capture.grid_max", d.Capture.GridMax)
	v.SetDefault("capture.preferred_index", d.Capture.PreferredIndex)
	v.SetDefault("capture.probe_others", d.Capture.ProbeOthers)
	v.SetDefault("capture.max_index", d.Capture.MaxIndex)
	v.SetDefault("capture.retries", d.Capture.Retries)
	v.SetDefault("capture.retry_delay", d.Capture.RetryDelay)
	v.SetDefault("capture.preview", d.Capture.Preview)
	v.SetDefault("capture.resolution", d.Capture.Resolution)

	v.SetDefault("password.length", d.Password.Length)
	v.SetDefault("password.groups", d.Password.Groups)
	v.SetDefault("password.required", d.Password.Required)
	v.SetDefault("password.extra", d.Password.Extra)

	v.SetDefault("digest.hash", d.Digest.Hash)
	v.SetDefault("digest.salt_size", d.Digest.SaltSize)

	v.SetDefault("backup.json_path", d.Backup.JSONPath)
	v.SetDefault("backup.sqlite_path", d.Backup.SQLitePath)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// Load reads the config file if present, applies overrides and validates.
func Load(v *viper.Viper) (*Config, error) {
	// A missing entropass.yaml is fine; a missing explicit file is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ValidationErrors collects every configuration problem.
type ValidationErrors []string

func (e ValidationErrors) Error() string {
	return "invalid config: " + strings.Join(e, "; ")
}

// Validate returns a list of problems, empty when the config is usable.
func (c *Config) Validate() []string {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimitMax < 1 {
		errs = append(errs, "server.rate_limit_max must be positive")
	}
	if c.Server.RateLimitWindow <= 0 {
		errs = append(errs, "server.rate_limit_window must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "server.request_timeout must be positive")
	}

	if c.Capture.FrameInterval < 0 {
		errs = append(errs, "capture.frame_interval must not be negative")
	}
	if c.Capture.FrameTimeout < capture.MinReadTimeout {
		errs = append(errs, fmt.Sprintf("capture.frame_timeout must be at least %s", capture.MinReadTimeout))
	}
	if c.Capture.GridMin < 1 || c.Capture.GridMax < c.Capture.GridMin {
		errs = append(errs, fmt.Sprintf("capture grid range %d-%d is invalid", c.Capture.GridMin, c.Capture.GridMax))
	}
	if c.Capture.PreferredIndex < 0 || c.Capture.MaxIndex < 0 {
		errs = append(errs, "capture device indices must not be negative")
	}
	if c.Capture.Retries < 1 {
		errs = append(errs, "capture.retries must be at least 1")
	}
	if c.Capture.RetryDelay < 0 {
		errs = append(errs, "capture.retry_delay must not be negative")
	}
	if _, err := capture.LookupResolution(c.Capture.Resolution); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Password.Length < password.MinLength || c.Password.Length > password.MaxLength {
		errs = append(errs, fmt.Sprintf("password.length must be %d-%d, got %d",
			password.MinLength, password.MaxLength, c.Password.Length))
	}
	if _, err := password.BuildCharset(password.ParseGroups(c.Password.Groups), c.Password.Extra); err != nil {
		errs = append(errs, fmt.Sprintf("password.groups: %v", err))
	}

	if !validHash(c.Digest.Hash) {
		errs = append(errs, fmt.Sprintf("digest.hash %q is not supported", c.Digest.Hash))
	}
	if c.Digest.SaltSize < entropy.MinSaltSize {
		errs = append(errs, fmt.Sprintf("digest.salt_size must be at least %d", entropy.MinSaltSize))
	}

	return errs
}

func validHash(name string) bool {
	for _, a := range entropy.Algorithms() {
		if string(a) == name {
			return true
		}
	}
	return false
}

// OpenOptions returns the device acquisition policy.
func (c *Config) OpenOptions() capture.OpenOptions {
	return capture.OpenOptions{
		PreferredIndex: c.Capture.PreferredIndex,
		ProbeOthers:    c.Capture.ProbeOthers,
		MaxIndex:       c.Capture.MaxIndex,
		Retries:        c.Capture.Retries,
		RetryDelay:     c.Capture.RetryDelay,
	}
}

// PipelineOptions returns the capture session options.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		FrameInterval: c.Capture.FrameInterval,
		FrameTimeout:  c.Capture.FrameTimeout,
		GridMin:       c.Capture.GridMin,
		GridMax:       c.Capture.GridMax,
		Open:          c.OpenOptions(),
	}
}

// Request returns a password request of length n over the configured groups.
func (c *Config) Request(n int) password.Request {
	return password.Request{
		Length:   n,
		Allowed:  password.ParseGroups(c.Password.Groups),
		Required: password.ParseGroups(c.Password.Required),
		Extra:    c.Password.Extra,
	}
}

// NewBuilder returns a digest builder for the configured hash and salt size.
func (c *Config) NewBuilder(opts ...entropy.Option) (*entropy.Builder, error) {
	base := []entropy.Option{
		entropy.WithAlgorithm(entropy.Algorithm(c.Digest.Hash)),
		entropy.WithSaltSize(c.Digest.SaltSize),
	}
	return entropy.NewBuilder(append(base, opts...)...)
}
