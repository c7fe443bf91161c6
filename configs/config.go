package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Network      NetworkConfig
	Auth         AuthConfig
	Device       DeviceConfig
	Cache        CacheConfig
	Events       EventsConfig
	Connectivity ConnectivityConfig
	LocalStore   LocalStoreConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Diagnostics  DiagnosticsConfig
	Log          LogConfig
	Prefetch     PrefetchConfig
}

type NetworkConfig struct {
	BaseURL            string
	Timeout            time.Duration // per attempt
	MaxRetryAttempts   int
	RetryBaseDelay     time.Duration
	MinRequestInterval time.Duration // per endpoint
	UseMockData        bool
}

type AuthConfig struct {
	Endpoint      string
	APIKey        string
	RefreshMargin time.Duration
}

type DeviceConfig struct {
	ID         string
	Platform   string
	AppVersion string
	UserAgent  string
}

type CacheConfig struct {
	Capacity      int
	NetworkTTL    time.Duration
	LocalTTL      time.Duration
	SweepInterval time.Duration
}

type EventsConfig struct {
	HistoryCapacity int
}

type ConnectivityConfig struct {
	ProbePath     string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

type LocalStoreConfig struct {
	Driver string // sqlite, postgres or redis
	DSN    string
	// EncryptionKey is hex encoded, 32 bytes. Empty disables at-rest encryption.
	EncryptionKey string
	RedisTTL      time.Duration
}

type DatabaseConfig struct {
	Driver string
	DSN    string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type DiagnosticsConfig struct {
	Enabled      bool
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

type PrefetchConfig struct {
	UserKeys []string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Network: NetworkConfig{
			BaseURL:            strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080/api"), "/"),
			Timeout:            getDurationEnv("API_TIMEOUT", 30*time.Second),
			MaxRetryAttempts:   getIntEnv("API_MAX_RETRY_ATTEMPTS", 3),
			RetryBaseDelay:     getDurationEnv("API_RETRY_BASE_DELAY", time.Second),
			MinRequestInterval: getDurationEnv("API_MIN_REQUEST_INTERVAL", time.Second),
			UseMockData:        getBoolEnv("API_USE_MOCK_DATA", false),
		},
		Auth: AuthConfig{
			Endpoint:      getEnv("AUTH_ENDPOINT", "/auth/token"),
			APIKey:        getEnv("AUTH_API_KEY", ""),
			RefreshMargin: getDurationEnv("AUTH_REFRESH_MARGIN", 5*time.Minute),
		},
		Device: DeviceConfig{
			ID:         getEnv("DEVICE_ID", ""),
			Platform:   getEnv("DEVICE_PLATFORM", "desktop"),
			AppVersion: getEnv("APP_VERSION", "1.0.0"),
			UserAgent:  getEnv("USER_AGENT", ""),
		},
		Cache: CacheConfig{
			Capacity:      getIntEnv("CACHE_CAPACITY", 100),
			NetworkTTL:    getDurationEnv("CACHE_NETWORK_TTL", 10*time.Minute),
			LocalTTL:      getDurationEnv("CACHE_LOCAL_TTL", time.Hour),
			SweepInterval: getDurationEnv("CACHE_SWEEP_INTERVAL", time.Minute),
		},
		Events: EventsConfig{
			HistoryCapacity: getIntEnv("EVENT_HISTORY_CAPACITY", 50),
		},
		Connectivity: ConnectivityConfig{
			ProbePath:     getEnv("CONNECTIVITY_PROBE_PATH", "/health"),
			ProbeInterval: getDurationEnv("CONNECTIVITY_PROBE_INTERVAL", 15*time.Second),
			ProbeTimeout:  getDurationEnv("CONNECTIVITY_PROBE_TIMEOUT", 3*time.Second),
		},
		LocalStore: LocalStoreConfig{
			Driver:        getEnv("LOCAL_STORE_DRIVER", "sqlite"),
			DSN:           getEnv("LOCAL_STORE_DSN", "file:local_store.db?_pragma=busy_timeout(5000)"),
			EncryptionKey: getEnv("LOCAL_STORE_ENCRYPTION_KEY", ""),
			RedisTTL:      getDurationEnv("LOCAL_STORE_REDIS_TTL", 0),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 4),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 4),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:      getBoolEnv("DIAG_ENABLED", true),
			Host:         getEnv("DIAG_HOST", "127.0.0.1"),
			Port:         getEnv("DIAG_PORT", "9090"),
			ReadTimeout:  getDurationEnv("DIAG_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("DIAG_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("DIAG_IDLE_TIMEOUT", 60*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Prefetch: PrefetchConfig{
			UserKeys: getListEnv("PREFETCH_USER_KEYS", nil),
		},
	}

	// A stable device id should come from the environment; generate one for ad-hoc runs.
	if cfg.Device.ID == "" {
		cfg.Device.ID = uuid.NewString()
	}
	if cfg.Device.UserAgent == "" {
		cfg.Device.UserAgent = fmt.Sprintf("resilient-client/%s (%s)", cfg.Device.AppVersion, cfg.Device.Platform)
	}

	// The SQL store shares the database pool settings
	cfg.Database.Driver = cfg.LocalStore.Driver
	cfg.Database.DSN = cfg.LocalStore.DSN

	switch cfg.LocalStore.Driver {
	case "sqlite", "postgres", "redis":
	default:
		return nil, fmt.Errorf("unsupported LOCAL_STORE_DRIVER %q", cfg.LocalStore.Driver)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
