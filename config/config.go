package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort     string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost     string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName    string `env:"SERVICE_NAME" envDefault:"attendly"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"v1"`

	// 签到页面所在的源，逗号分隔；为空时允许任意源
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:","`

	// 存储后端：postgres 或 memory（memory 仅用于本地演示）
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"postgres"`
	SeedPath       string `env:"SEED_PATH"` // memory 模式下的初始数据（JSON）

	// PostgreSQL 配置
	PostgreSQLHost         string   `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort         string   `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser         string   `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword     string   `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase     string   `env:"POSTGRESQL_DATABASE" envDefault:"attendly"`
	PostgreSQLSchema       string   `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode      string   `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle      int      `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen      int      `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`
	PostgreSQLReplicaHosts []string `env:"POSTGRESQL_REPLICA_HOSTS" envSeparator:","` // 只读副本，统计与进度查询走副本

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"atd"`

	// RabbitMQ 配置
	RabbitMQAddr       string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort       string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername   string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword   string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost      string `env:"RABBITMQ_VHOST" envDefault:"/"`
	MarkEventsExchange string `env:"MARK_EVENTS_EXCHANGE" envDefault:"attendance.events"`

	// 操作员 JWT 配置（志愿者 / 管理员设备）
	JWTSecret        string `env:"JWT_SECRET"`
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"720"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// 身份凭证（二维码载荷）配置
	IdentityTokenSecret   string `env:"IDENTITY_TOKEN_SECRET"`
	IdentityTokenTTLHours int    `env:"IDENTITY_TOKEN_TTL_HOURS" envDefault:"720"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 速率限制配置，扫码接口按操作员限流
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitScanRPM int  `env:"RATE_LIMIT_SCAN_RPM" envDefault:"120"`

	// 签到引擎配置
	BulkMarkConcurrency     int `env:"BULK_MARK_CONCURRENCY" envDefault:"8"`
	BulkMarkMaxItems        int `env:"BULK_MARK_MAX_ITEMS" envDefault:"500"`
	MarkClockSkewSeconds    int `env:"MARK_CLOCK_SKEW_SECONDS" envDefault:"300"`
	StrategyCacheTTLSeconds int `env:"STRATEGY_CACHE_TTL_SECONDS" envDefault:"300"`
}

// Load 读取 .env 与环境变量，进程入口处调用一次
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	return validateConfig(&Cfg)
}

// MustLoad 同 Load，失败直接退出
func MustLoad() {
	if err := Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func validateConfig(c *Config) error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.IdentityTokenSecret == "" {
		return fmt.Errorf("IDENTITY_TOKEN_SECRET is required")
	}

	if c.IdentityTokenSecret == c.JWTSecret {
		log.Printf("WARN: IDENTITY_TOKEN_SECRET equals JWT_SECRET, identity tokens could be replayed as operator tokens")
	}

	if c.StorageBackend != "postgres" && c.StorageBackend != "memory" {
		return fmt.Errorf("STORAGE_BACKEND must be postgres or memory, got %q", c.StorageBackend)
	}

	if c.BulkMarkConcurrency <= 0 {
		c.BulkMarkConcurrency = 1
	}

	if c.BulkMarkMaxItems <= 0 {
		return fmt.Errorf("BULK_MARK_MAX_ITEMS must be positive")
	}

	if c.IsMemoryBackend() && c.IsProduction() {
		log.Printf("WARN: STORAGE_BACKEND=memory in production, attendance data will not survive a restart")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return c.dsnForHost(c.PostgreSQLHost)
}

// GetReplicaDSNs 返回只读副本的连接串，端口与账号沿用主库
func (c *Config) GetReplicaDSNs() []string {
	dsns := make([]string, 0, len(c.PostgreSQLReplicaHosts))
	for _, host := range c.PostgreSQLReplicaHosts {
		if host == "" {
			continue
		}
		dsns = append(dsns, c.dsnForHost(host))
	}
	return dsns
}

func (c *Config) dsnForHost(host string) string {
	return "host=" + host +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsMemoryBackend() bool {
	return c.StorageBackend == "memory"
}

func (c *Config) MarkClockSkew() time.Duration {
	return time.Duration(c.MarkClockSkewSeconds) * time.Second
}

func (c *Config) StrategyCacheTTL() time.Duration {
	return time.Duration(c.StrategyCacheTTLSeconds) * time.Second
}

func (c *Config) IdentityTokenTTL() time.Duration {
	return time.Duration(c.IdentityTokenTTLHours) * time.Hour
}
