// Package config загружает конфигурацию сервера.
//
// Порядок загрузки (каждый следующий источник перекрывает предыдущий):
//  1. значения по умолчанию
//  2. .env (godotenv, не перезаписывает уже заданные переменные)
//  3. YAML файл: CONFIG_FILE или configs/{APP_ENV}.yaml
//  4. переменные окружения
//  5. флаги командной строки
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/iudanet/finauth/internal/server/storage/database"
	"github.com/iudanet/finauth/internal/server/token"
)

// Defaults
const (
	DefaultEnv             = "dev"
	DefaultDatabaseURL     = "sqlite:///./finauth.db"
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultRateLimit       = 60
	DefaultBcryptCost      = 12
	DefaultShutdownTimeout = 10 * time.Second
)

// DefaultCORSOrigins are the local development frontends.
var DefaultCORSOrigins = []string{
	"http://localhost:8501",
	"http://localhost:3000",
	"http://localhost:8000",
	"http://127.0.0.1:8501",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:8000",
}

// Config is the resolved server configuration.
type Config struct {
	Env         string
	SecretKey   string
	Algorithm   string
	DatabaseURL string
	APIHost     string
	LogLevel    string
	LogFormat   string
	RedisURL    string

	CORSOrigins []string
	// TrustedProxies are IPs or CIDRs whose forwarding headers are believed.
	TrustedProxies []string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	DBPoolRecycle   time.Duration
	ShutdownTimeout time.Duration

	APIPort            int
	DBPoolSize         int
	DBMaxOverflow      int
	RateLimitPerMinute int
	BcryptCost         int

	ShowVersion bool
}

// fileConfig is the YAML file layout. Secrets are not read from YAML.
type fileConfig struct {
	Server struct {
		Host        string   `yaml:"host"`
		Port        int      `yaml:"port"`
		CORSOrigins    []string `yaml:"cors_origins"`
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`
	Security struct {
		Algorithm                string `yaml:"algorithm"`
		AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes"`
		RefreshTokenExpireDays   int    `yaml:"refresh_token_expire_days"`
		RateLimitPerMinute       int    `yaml:"rate_limit_per_minute"`
		BcryptCost               int    `yaml:"bcrypt_cost"`
	} `yaml:"security"`
	Database struct {
		URL                string `yaml:"url"`
		PoolSize           int    `yaml:"pool_size"`
		MaxOverflow        *int   `yaml:"max_overflow"`
		PoolRecycleSeconds int    `yaml:"pool_recycle_seconds"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env:                DefaultEnv,
		SecretKey:          token.PlaceholderSecret,
		Algorithm:          token.DefaultAlgorithm,
		AccessTokenTTL:     token.DefaultAccessTTL,
		RefreshTokenTTL:    token.DefaultRefreshTTL,
		DatabaseURL:        DefaultDatabaseURL,
		DBPoolSize:         database.DefaultPoolSize,
		DBMaxOverflow:      database.DefaultMaxOverflow,
		DBPoolRecycle:      database.DefaultPoolRecycle,
		APIHost:            DefaultHost,
		APIPort:            DefaultPort,
		CORSOrigins:        append([]string(nil), DefaultCORSOrigins...),
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
		RateLimitPerMinute: DefaultRateLimit,
		BcryptCost:         DefaultBcryptCost,
		ShutdownTimeout:    DefaultShutdownTimeout,
	}
}

// Load resolves the configuration from all sources. args are the command
// line arguments without the program name.
func Load(args []string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg.Env = envOr("APP_ENV", DefaultEnv)

	if err := cfg.loadFile(); err != nil {
		return nil, err
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile() error {
	path, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit || path == "" {
		path = filepath.Join("configs", c.Env+".yaml")
		explicit = false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.applyFile(&fc)
	return nil
}

func (c *Config) applyFile(fc *fileConfig) {
	setString(&c.APIHost, fc.Server.Host)
	setInt(&c.APIPort, fc.Server.Port)
	if len(fc.Server.CORSOrigins) > 0 {
		c.CORSOrigins = fc.Server.CORSOrigins
	}
	if len(fc.Server.TrustedProxies) > 0 {
		c.TrustedProxies = fc.Server.TrustedProxies
	}

	setString(&c.Algorithm, fc.Security.Algorithm)
	if fc.Security.AccessTokenExpireMinutes != 0 {
		c.AccessTokenTTL = time.Duration(fc.Security.AccessTokenExpireMinutes) * time.Minute
	}
	if fc.Security.RefreshTokenExpireDays != 0 {
		c.RefreshTokenTTL = time.Duration(fc.Security.RefreshTokenExpireDays) * 24 * time.Hour
	}
	setInt(&c.RateLimitPerMinute, fc.Security.RateLimitPerMinute)
	setInt(&c.BcryptCost, fc.Security.BcryptCost)

	setString(&c.DatabaseURL, fc.Database.URL)
	setInt(&c.DBPoolSize, fc.Database.PoolSize)
	if fc.Database.MaxOverflow != nil {
		c.DBMaxOverflow = *fc.Database.MaxOverflow
	}
	if fc.Database.PoolRecycleSeconds != 0 {
		c.DBPoolRecycle = time.Duration(fc.Database.PoolRecycleSeconds) * time.Second
	}

	setString(&c.RedisURL, fc.Redis.URL)
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
}

func (c *Config) loadEnv() error {
	var errs []error
	intEnv := func(key string, dst *int) {
		if err := envInt(key, dst); err != nil {
			errs = append(errs, err)
		}
	}

	if v, ok := os.LookupEnv("SECRET_KEY"); ok {
		c.SecretKey = v
	}
	c.Algorithm = envOr("ALGORITHM", c.Algorithm)
	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
	c.APIHost = envOr("API_HOST", c.APIHost)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)
	c.RedisURL = envOr("REDIS_URL", c.RedisURL)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("TRUSTED_PROXIES"); ok {
		c.TrustedProxies = splitList(v)
	}

	accessMinutes := int(c.AccessTokenTTL / time.Minute)
	intEnv("ACCESS_TOKEN_EXPIRE_MINUTES", &accessMinutes)
	c.AccessTokenTTL = time.Duration(accessMinutes) * time.Minute

	refreshDays := int(c.RefreshTokenTTL / (24 * time.Hour))
	intEnv("REFRESH_TOKEN_EXPIRE_DAYS", &refreshDays)
	c.RefreshTokenTTL = time.Duration(refreshDays) * 24 * time.Hour

	recycleSeconds := int(c.DBPoolRecycle / time.Second)
	intEnv("DB_POOL_RECYCLE_SECONDS", &recycleSeconds)
	c.DBPoolRecycle = time.Duration(recycleSeconds) * time.Second

	intEnv("DB_POOL_SIZE", &c.DBPoolSize)
	intEnv("DB_MAX_OVERFLOW", &c.DBMaxOverflow)
	intEnv("API_PORT", &c.APIPort)
	intEnv("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	intEnv("BCRYPT_COST", &c.BcryptCost)

	return errors.Join(errs...)
}

// parseFlags применяет флаги командной строки.
//
//	-a string   address to listen on (host:port)
//	-d string   database URL
//	-s string   token signing secret
//	-version    print version and exit
func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet("finauth-server", flag.ContinueOnError)

	addr := flags.String("a", c.Addr(), "address and port to run server")
	flags.StringVar(&c.DatabaseURL, "d", c.DatabaseURL, "database URL")
	flags.StringVar(&c.SecretKey, "s", c.SecretKey, "token signing secret")
	flags.BoolVar(&c.ShowVersion, "version", false, "show version information")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *addr != c.Addr() {
		host, port, err := net.SplitHostPort(*addr)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", *addr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port in address %q: %w", *addr, err)
		}
		c.APIHost = host
		c.APIPort = p
	}

	return nil
}

// Validate checks value ranges and the database URL.
func (c *Config) Validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY cannot be empty"))
	}
	if !strings.HasPrefix(c.Algorithm, "HS") {
		errs = append(errs, fmt.Errorf("ALGORITHM %q is not supported, use HS256, HS384 or HS512", c.Algorithm))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_EXPIRE_DAYS must be positive"))
	}
	if c.DBPoolSize <= 0 {
		errs = append(errs, errors.New("DB_POOL_SIZE must be positive"))
	}
	if c.DBMaxOverflow < 0 {
		errs = append(errs, errors.New("DB_MAX_OVERFLOW cannot be negative"))
	}
	if c.DBPoolRecycle < 0 {
		errs = append(errs, errors.New("DB_POOL_RECYCLE_SECONDS cannot be negative"))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("API_PORT %d is out of range", c.APIPort))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE cannot be negative"))
	}
	if _, _, err := database.ParseDSN(c.DatabaseURL); err != nil {
		errs = append(errs, fmt.Errorf("DATABASE_URL: %w", err))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.APIHost, strconv.Itoa(c.APIPort))
}

// MaskedDSN returns the database URL with the password hidden.
func (c *Config) MaskedDSN() string {
	return database.MaskDSN(c.DatabaseURL)
}

// TrustedProxyPrefixes parses TrustedProxies. A bare IP becomes a single
// host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, v := range c.TrustedProxies {
		if p, err := netip.ParsePrefix(v); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", v)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// InsecureSecret reports whether the signing secret is the placeholder or too weak.
func (c *Config) InsecureSecret() bool {
	return token.IsInsecureSecret(c.SecretKey)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
