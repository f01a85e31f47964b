package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Chat      ChatConfig      `yaml:"chat"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            int           `yaml:"port" env:"STOREBOT_PORT"`
	Name            string        `yaml:"name" env:"SERVICE_NAME"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" env:"DATABASE_DSN"`
	AutoMigrate     bool          `yaml:"autoMigrate" env:"DATABASE_AUTO_MIGRATE"`
	MaxOpenConns    int           `yaml:"maxOpenConns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"maxIdleConns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED"`
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     int    `yaml:"port" env:"REDIS_PORT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// AuthConfig 鉴权配置
type AuthConfig struct {
	JWTSecret string        `yaml:"jwtSecret" env:"JWT_SECRET"`
	Issuer    string        `yaml:"issuer" env:"JWT_ISSUER"`
	TokenTTL  time.Duration `yaml:"tokenTTL" env:"JWT_TOKEN_TTL"`
}

// CatalogConfig 商品/订单数据源配置
type CatalogConfig struct {
	Source         string        `yaml:"source" env:"CATALOG_SOURCE"` // database, http
	ProductService string        `yaml:"productService" env:"PRODUCT_SERVICE_URL"`
	TradeService   string        `yaml:"tradeService" env:"TRADE_SERVICE_URL"`
	Timeout        time.Duration `yaml:"timeout" env:"CATALOG_TIMEOUT"`
	CacheSize      int           `yaml:"cacheSize" env:"CATALOG_CACHE_SIZE"`
	CacheTTL       time.Duration `yaml:"cacheTTL" env:"CATALOG_CACHE_TTL"`
}

// ChatConfig 聊天核心配置
type ChatConfig struct {
	RulesPath       string        `yaml:"rulesPath" env:"CHAT_RULES_PATH"`
	ContextStore    string        `yaml:"contextStore" env:"CHAT_CONTEXT_STORE"` // memory, redis
	ContextMaxIdle  time.Duration `yaml:"contextMaxIdle" env:"CHAT_CONTEXT_MAX_IDLE"`
	SweepSchedule   string        `yaml:"sweepSchedule" env:"CHAT_SWEEP_SCHEDULE"`
	SocketHistory   int           `yaml:"socketHistory" env:"CHAT_SOCKET_HISTORY"`
	WelcomeWindow   time.Duration `yaml:"welcomeWindow" env:"CHAT_WELCOME_WINDOW"`
	WelcomeDelay    time.Duration `yaml:"welcomeDelay" env:"CHAT_WELCOME_DELAY"`
	ConcurrentSends bool          `yaml:"concurrentSends" env:"CHAT_CONCURRENT_SENDS"` // 关闭同一用户的串行化
	LockTTL         time.Duration `yaml:"lockTTL" env:"CHAT_LOCK_TTL"`
	RandomSeed      int64         `yaml:"randomSeed" env:"CHAT_RANDOM_SEED"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" env:"WS_HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeatTimeout" env:"WS_HEARTBEAT_TIMEOUT"`
	MaxMissedBeats    int           `yaml:"maxMissedBeats" env:"WS_MAX_MISSED_BEATS"`
}

// TelemetryConfig 链路追踪配置
type TelemetryConfig struct {
	TracingEnabled bool   `yaml:"tracingEnabled" env:"OTEL_ENABLED"`
	OTLPEndpoint   string `yaml:"otlpEndpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Environment    string `yaml:"environment" env:"ENVIRONMENT"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"` // debug, info, warn, error
}

// LoadConfig 加载配置文件，环境变量覆盖文件中的值
func LoadConfig(path string) (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults 为未设置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Name == "" {
		c.Server.Name = "storebot"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "storebot"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Catalog.Source == "" {
		c.Catalog.Source = CatalogSourceDatabase
	}
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = 5 * time.Second
	}
	if c.Catalog.CacheTTL == 0 {
		c.Catalog.CacheTTL = 30 * time.Second
	}
	if c.Chat.ContextStore == "" {
		c.Chat.ContextStore = ContextStoreMemory
	}
	if c.Chat.ContextMaxIdle == 0 {
		c.Chat.ContextMaxIdle = time.Hour
	}
	if c.Chat.SweepSchedule == "" {
		c.Chat.SweepSchedule = "* * * * *"
	}
	if c.Chat.SocketHistory == 0 {
		c.Chat.SocketHistory = 50
	}
	if c.Chat.WelcomeWindow == 0 {
		c.Chat.WelcomeWindow = time.Hour
	}
	if c.Chat.WelcomeDelay == 0 {
		c.Chat.WelcomeDelay = time.Second
	}
	if c.Chat.LockTTL == 0 {
		c.Chat.LockTTL = 30 * time.Second
	}
	if c.WebSocket.HeartbeatInterval == 0 {
		c.WebSocket.HeartbeatInterval = 30 * time.Second
	}
	if c.WebSocket.HeartbeatTimeout == 0 {
		c.WebSocket.HeartbeatTimeout = 60 * time.Second
	}
	if c.WebSocket.MaxMissedBeats == 0 {
		c.WebSocket.MaxMissedBeats = 3
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

const (
	CatalogSourceDatabase = "database"
	CatalogSourceHTTP     = "http"

	ContextStoreMemory = "memory"
	ContextStoreRedis  = "redis"
)

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwtSecret 不能为空"))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn 不能为空"))
	}
	switch c.Catalog.Source {
	case CatalogSourceDatabase:
	case CatalogSourceHTTP:
		if c.Catalog.ProductService == "" || c.Catalog.TradeService == "" {
			errs = append(errs, errors.New("catalog.source=http 需要 productService 和 tradeService"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的 catalog.source: %s", c.Catalog.Source))
	}
	switch c.Chat.ContextStore {
	case ContextStoreMemory:
	case ContextStoreRedis:
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("chat.contextStore=redis 需要 redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的 chat.contextStore: %s", c.Chat.ContextStore))
	}
	return errors.Join(errs...)
}

// Addr 返回 HTTP 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
