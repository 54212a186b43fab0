package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}
func (s *Secret) UnmarshalYAML(n *yaml.Node) error {
	var v string
	if err := n.Decode(&v); err != nil {
		return err
	}
	*s = NewSecret(v)
	return nil
}

type Cfg struct {
	Port                    string        `yaml:"port"`
	Environment             string        `yaml:"environment"`
	LogLevel                string        `yaml:"log_level"`
	Backend                 string        `yaml:"backend"`
	RedisURL                string        `yaml:"redis_url"`
	RedisTLS                bool          `yaml:"redis_tls"`
	RedisUsername           string        `yaml:"redis_username"`
	RedisPassword           Secret        `yaml:"redis_password"`
	RedisTimeout            time.Duration `yaml:"redis_timeout"`
	RedisKeyPrefix          string        `yaml:"redis_key_prefix"`
	KeyRetention            time.Duration `yaml:"key_retention"`
	DatabasePath            string        `yaml:"database_path"`
	DBMaxOpenConns          int           `yaml:"db_max_open_conns"`
	DBMaxIdleConns          int           `yaml:"db_max_idle_conns"`
	DBQueryTimeout          time.Duration `yaml:"db_query_timeout"`
	MemoryCapacity          int           `yaml:"memory_capacity"`
	MaxPasteSize            int64         `yaml:"max_paste_size"`
	ContextTimeout          time.Duration `yaml:"context_timeout"`
	AllowedOrigins          []string      `yaml:"allowed_origins"`
	MetricsUser             string        `yaml:"metrics_user"`
	MetricsPass             Secret        `yaml:"metrics_pass"`
	BaseURL                 string        `yaml:"base_url"`
	TestMode                bool          `yaml:"test_mode"`
	RevealUnavailableReason bool          `yaml:"reveal_unavailable_reason"`
}

func Default() *Cfg {
	return &Cfg{
		Port:           "8080",
		Environment:    "development",
		LogLevel:       "info",
		Backend:        BackendRedis,
		RedisTimeout:   5 * time.Second,
		RedisKeyPrefix: "paste:",
		DatabasePath:   "burnbin.db",
		DBMaxOpenConns: 100,
		DBMaxIdleConns: 10,
		DBQueryTimeout: 5 * time.Second,
		MemoryCapacity: 10000,
		MaxPasteSize:   512 * 1024,
		ContextTimeout: 5 * time.Second,
	}
}

// Load builds the configuration from defaults, then CONFIG_FILE (YAML) if
// set, then the environment. A dotenv file (ENV_FILE, or ./.env when present)
// seeds the environment without overriding variables already set.
func Load() (*Cfg, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}
	c := Default()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, c); err != nil {
			return nil, err
		}
	}
	c.Port = getEnv("PORT", c.Port)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Backend = strings.ToLower(getEnv("STORE_BACKEND", c.Backend))
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisUsername = getEnv("REDIS_USERNAME", c.RedisUsername)
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		c.RedisPassword = NewSecret(v)
	}
	c.RedisKeyPrefix = getEnv("REDIS_KEY_PREFIX", c.RedisKeyPrefix)
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.MetricsUser = getEnv("METRICS_USER", c.MetricsUser)
	if v, ok := os.LookupEnv("METRICS_PASS"); ok {
		c.MetricsPass = NewSecret(v)
	}
	c.BaseURL = strings.TrimRight(getEnv("BASE_URL", c.BaseURL), "/")
	c.RedisTLS = getBool("REDIS_TLS", c.RedisTLS)
	c.TestMode = getBool("TEST_MODE", c.TestMode)
	c.RevealUnavailableReason = getBool("REVEAL_UNAVAILABLE_REASON", c.RevealUnavailableReason)

	var err error
	if c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", c.RedisTimeout); err != nil {
		return nil, err
	}
	if c.KeyRetention, err = getDuration("KEY_RETENTION", c.KeyRetention); err != nil {
		return nil, err
	}
	if c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", c.DBMaxOpenConns); err != nil {
		return nil, err
	}
	if c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", c.DBMaxIdleConns); err != nil {
		return nil, err
	}
	if c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", c.DBQueryTimeout); err != nil {
		return nil, err
	}
	if c.MemoryCapacity, err = getInt("MEMORY_CAPACITY", c.MemoryCapacity); err != nil {
		return nil, err
	}
	if c.MaxPasteSize, err = getInt64("MAX_PASTE_SIZE", c.MaxPasteSize); err != nil {
		return nil, err
	}
	if c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", c.ContextTimeout); err != nil {
		return nil, err
	}
	return c, nil
}
func loadDotenv() error {
	path := getEnv("ENV_FILE", "")
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load env file %s", path)
	}
	return nil
}
func loadFile(path string, c *Cfg) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config file")
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return errors.Wrap(err, "decode config file")
	}
	return nil
}
func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	switch c.Backend {
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORE_BACKEND=redis")
		}
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
		if c.RedisTimeout <= 0 {
			return errors.New("REDIS_TIMEOUT must be positive")
		}
		if c.RedisKeyPrefix == "" {
			return errors.New("REDIS_KEY_PREFIX must not be empty")
		}
		if c.KeyRetention < 0 {
			return errors.New("KEY_RETENTION must not be negative")
		}
	case BackendSQLite:
		if err := validateDatabasePath(c.DatabasePath); err != nil {
			return err
		}
		if c.DBMaxOpenConns <= 0 {
			return errors.New("DB_MAX_OPEN_CONNS must be positive")
		}
		if c.DBQueryTimeout <= 0 {
			return errors.New("DB_QUERY_TIMEOUT must be positive")
		}
	case BackendMemory:
		if c.MemoryCapacity <= 0 {
			return errors.New("MEMORY_CAPACITY must be positive")
		}
		if c.Environment == "production" {
			return errors.New("STORE_BACKEND=memory is not shared across processes and cannot be used in production")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q (supported: redis, sqlite, memory)", c.Backend)
	}

	if c.MaxPasteSize <= 0 {
		return errors.New("MAX_PASTE_SIZE must be positive")
	}
	if c.MaxPasteSize > 10*1024*1024 {
		return errors.New("MAX_PASTE_SIZE cannot exceed 10MB")
	}
	if c.ContextTimeout <= 0 {
		return errors.New("CONTEXT_TIMEOUT must be positive")
	}
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return errors.New("BASE_URL must start with http:// or https://")
	}

	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
		if c.TestMode {
			return errors.New("TEST_MODE must not be enabled in production")
		}
	}
	return nil
}
func validateDatabasePath(path string) error {
	if path == "" {
		return errors.New("DATABASE_PATH is required")
	}
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	absDBPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_PATH: %w", err)
	}
	if !strings.HasPrefix(absDBPath, absWorkDir+string(filepath.Separator)) && absDBPath != absWorkDir {
		return fmt.Errorf("DATABASE_PATH must be within working directory %s", absWorkDir)
	}
	return nil
}
func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
}
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
