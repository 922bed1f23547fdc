package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Server struct {
		Host              string        `yaml:"host"`
		Port              string        `yaml:"port"`
		Debug             bool          `yaml:"debug"`
		ProxyHeader       string        `yaml:"proxy_header"`
		TrustedProxies    []string      `yaml:"trusted_proxies"`
		BodyLimitBytes    int           `yaml:"body_limit_bytes"`
		ReadTimeout       time.Duration `yaml:"read_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		IdleTimeout       time.Duration `yaml:"idle_timeout"`
		MaxRequests       int           `yaml:"max_requests"`
		MaxRequestsJitter int           `yaml:"max_requests_jitter"`
		Monitor           bool          `yaml:"monitor"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
		Console    bool   `yaml:"console"`
	} `yaml:"logger"`

	RateLimiter struct {
		GlobalLimit    int           `yaml:"global_limit"`
		GlobalInterval time.Duration `yaml:"global_interval"`
		RemoveLimit    int           `yaml:"remove_limit"`
		RemoveInterval time.Duration `yaml:"remove_interval"`
		Redis          RedisConfig   `yaml:"redis"`
	} `yaml:"rate_limiter"`

	Upload struct {
		AllowedExtensions []string `yaml:"allowed_extensions"`
		SniffContent      bool     `yaml:"sniff_content"`
	} `yaml:"upload"`

	Engine EngineConfig `yaml:"engine"`

	Security SecurityConfig `yaml:"security"`
}

// RedisConfig selects the shared limiter store. An empty Addr keeps limiter
// state in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// EngineConfig describes the inference backend the process is pinned to.
type EngineConfig struct {
	Backend       string        `yaml:"backend"`
	Model         string        `yaml:"model"`
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	WarmupTimeout time.Duration `yaml:"warmup_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Tolerance     float64       `yaml:"tolerance"`
}

// SecurityConfig holds the header values attached to every response.
type SecurityConfig struct {
	ContentSecurityPolicy string `yaml:"content_security_policy"`
	XFrameOptions         string `yaml:"x_frame_options"`
	ReferrerPolicy        string `yaml:"referrer_policy"`
	PermissionsPolicy     string `yaml:"permissions_policy"`
}

const (
	BackendRemote  = "remote"
	BackendBuiltin = "builtin"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = ":5000"
	cfg.Server.BodyLimitBytes = 10 * 1024 * 1024
	cfg.Server.ReadTimeout = 120 * time.Second
	cfg.Server.WriteTimeout = 120 * time.Second
	cfg.Server.IdleTimeout = 5 * time.Second
	cfg.Server.MaxRequests = 1000
	cfg.Server.MaxRequestsJitter = 50

	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 1
	cfg.Logger.MaxBackups = 10
	cfg.Logger.Console = true

	cfg.RateLimiter.GlobalLimit = 100
	cfg.RateLimiter.GlobalInterval = time.Hour
	cfg.RateLimiter.RemoveLimit = 10
	cfg.RateLimiter.RemoveInterval = time.Minute

	cfg.Upload.AllowedExtensions = []string{"png", "jpg", "jpeg", "webp"}

	cfg.Engine.Backend = BackendRemote
	cfg.Engine.Model = "u2net"
	cfg.Engine.URL = "http://127.0.0.1:7000"
	cfg.Engine.Timeout = 120 * time.Second
	cfg.Engine.WarmupTimeout = 5 * time.Minute
	cfg.Engine.MaxConcurrent = 2
	cfg.Engine.Tolerance = 0.12

	cfg.Security.ContentSecurityPolicy = "default-src 'self'; " +
		"connect-src 'self' http://localhost:* http://127.0.0.1:*; " +
		"img-src 'self' data: https: blob:; " +
		"style-src 'self' 'unsafe-inline'; " +
		"script-src 'self' 'unsafe-inline';"
	cfg.Security.XFrameOptions = "DENY"
	cfg.Security.ReferrerPolicy = "no-referrer-when-downgrade"
	cfg.Security.PermissionsPolicy = "geolocation=(), microphone=()"
	return cfg
}

// Load reads the file named by CONFIG_PATH (if any) on top of the defaults and
// applies environment overrides. It panics on invalid configuration.
func Load() Config {
	return LoadFrom(os.Getenv("CONFIG_PATH"))
}

// LoadFrom is Load with an explicit path. An empty path skips the file.
func LoadFrom(path string) Config {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			panic(fmt.Sprintf("config: read %s: %v", path, err))
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if !strings.HasPrefix(v, ":") {
			v = ":" + v
		}
		cfg.Server.Port = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			cfg.Server.Debug = debug
		}
	}
	if cfg.Server.Debug {
		cfg.Logger.Level = "debug"
	}
	if cfg.Logger.File == "" {
		cfg.Logger.File = filepath.Join(LogDir(), "app.log")
	}
	if v := os.Getenv("REMBG_MODEL"); v != "" {
		cfg.Engine.Model = v
	}
	if v := os.Getenv("REMBG_BACKEND"); v != "" {
		cfg.Engine.Backend = v
	}
	if v := os.Getenv("REMBG_URL"); v != "" {
		cfg.Engine.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RateLimiter.Redis.Addr = v
	}
}

// LogDir picks the log directory. Hosted deployments (RENDER set) only have a
// writable /tmp.
func LogDir() string {
	if os.Getenv("RENDER") != "" {
		return "/tmp/logs"
	}
	return "logs"
}

// Validate checks the values a running server depends on.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is empty")
	}
	if c.Server.BodyLimitBytes <= 0 {
		return fmt.Errorf("server.body_limit_bytes must be positive")
	}
	if c.Server.MaxRequests < 0 || c.Server.MaxRequestsJitter < 0 {
		return fmt.Errorf("server.max_requests and server.max_requests_jitter must not be negative")
	}
	if c.RateLimiter.GlobalLimit <= 0 || c.RateLimiter.GlobalInterval <= 0 {
		return fmt.Errorf("rate_limiter global window must be positive")
	}
	if c.RateLimiter.RemoveLimit <= 0 || c.RateLimiter.RemoveInterval <= 0 {
		return fmt.Errorf("rate_limiter remove window must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("upload.allowed_extensions is empty")
	}
	switch c.Engine.Backend {
	case BackendRemote:
		if c.Engine.URL == "" {
			return fmt.Errorf("engine.url is required for the remote backend")
		}
	case BackendBuiltin:
	default:
		return fmt.Errorf("unknown engine.backend %q", c.Engine.Backend)
	}
	if c.Engine.Model == "" {
		return fmt.Errorf("engine.model is empty")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive")
	}
	if c.Engine.MaxConcurrent <= 0 {
		return fmt.Errorf("engine.max_concurrent must be positive")
	}
	if c.Engine.Tolerance < 0 || c.Engine.Tolerance > 1 {
		return fmt.Errorf("engine.tolerance must be within [0, 1]")
	}
	return nil
}
