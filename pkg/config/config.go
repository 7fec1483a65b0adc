package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Outbox   OutboxConfig
	Route    RouteConfig
	Schedule ScheduleConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres or sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogQueries   bool   `mapstructure:"log_queries"`
}

type RedisConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	Issuer     string        `mapstructure:"issuer"`
	AdminToken string        `mapstructure:"admin_token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BackoffStep  time.Duration `mapstructure:"backoff_step"`
	Workers      int           `mapstructure:"workers"`
	WakeDriver   string        `mapstructure:"wake_driver"` // local, redis or postgres
	WakeChannel  string        `mapstructure:"wake_channel"`
	Embedded     bool          `mapstructure:"embedded"`
}

type RouteConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Attempts   int           `mapstructure:"attempts"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	RateLimit  int           `mapstructure:"rate_limit"` // requests per minute
	RateBurst  int           `mapstructure:"rate_burst"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"` // 0 disables the redis cache

	BreakerEnabled          bool          `mapstructure:"breaker_enabled"`
	BreakerFailureThreshold int           `mapstructure:"breaker_failure_threshold"`
	BreakerMinRequests      int           `mapstructure:"breaker_min_requests"`
	BreakerInterval         time.Duration `mapstructure:"breaker_interval"`
	BreakerRecoveryTime     time.Duration `mapstructure:"breaker_recovery_time"`
	BreakerHalfOpenRequests int           `mapstructure:"breaker_half_open_requests"`
}

type ScheduleConfig struct {
	Timezone     string `mapstructure:"timezone"`
	MaxPerMember int    `mapstructure:"max_per_member"`
}

var envKeyReplacer = strings.NewReplacer(".", "_")

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/commutealarm/")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COMMUTEALARM")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "commutealarm.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "commutealarm")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("outbox.poll_interval", "60s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.backoff_step", "5m")
	v.SetDefault("outbox.workers", 2)
	v.SetDefault("outbox.wake_driver", "local")
	v.SetDefault("outbox.wake_channel", "commutealarm:outbox:wake")
	v.SetDefault("outbox.embedded", true)
	v.SetDefault("route.timeout", "3s")
	v.SetDefault("route.attempts", 2)
	v.SetDefault("route.retry_delay", "500ms")
	v.SetDefault("route.rate_limit", 600)
	v.SetDefault("route.rate_burst", 5)
	v.SetDefault("route.cache_ttl", "10m")
	v.SetDefault("route.breaker_enabled", true)
	v.SetDefault("route.breaker_failure_threshold", 5)
	v.SetDefault("route.breaker_min_requests", 10)
	v.SetDefault("route.breaker_interval", "60s")
	v.SetDefault("route.breaker_recovery_time", "30s")
	v.SetDefault("route.breaker_half_open_requests", 3)
	v.SetDefault("schedule.timezone", "Asia/Seoul")
	v.SetDefault("schedule.max_per_member", 0)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
