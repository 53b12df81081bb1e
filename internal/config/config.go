package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置（健康检查、指标、协议控制台）
type HTTPConfig struct {
	Addr          string        `mapstructure:"addr"`
	ReadTimeout   time.Duration `mapstructure:"readTimeout"`
	WriteTimeout  time.Duration `mapstructure:"writeTimeout"`
	EnableConsole bool          `mapstructure:"enableConsole"`
	APIKeys       []string      `mapstructure:"apiKeys"` // 控制台认证，为空则不校验
}

// TCPConfig TCP 通道公共参数
type TCPConfig struct {
	ReadTimeout          time.Duration `mapstructure:"readTimeout"`
	WriteTimeout         time.Duration `mapstructure:"writeTimeout"`
	MaxConnections       int           `mapstructure:"maxConnections"`
	AcceptRate           int           `mapstructure:"acceptRate"`
	AcceptBurst          int           `mapstructure:"acceptBurst"`
	MaxConsecutiveErrors int           `mapstructure:"maxConsecutiveErrors"`
}

// ChannelConfig 一个逻辑通道：监听地址 + 该通道使用的 schema
type ChannelConfig struct {
	Name   string `mapstructure:"name"`
	Addr   string `mapstructure:"addr"`
	Schema string `mapstructure:"schema"`
}

// SchemasConfig schema 来源
type SchemasConfig struct {
	Builtin bool   `mapstructure:"builtin"`
	Dir     string `mapstructure:"dir"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig 遥测发布用的 Redis 配置
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	PoolSize      int           `mapstructure:"poolSize"`
	DialTimeout   time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout   time.Duration `mapstructure:"readTimeout"`
	WriteTimeout  time.Duration `mapstructure:"writeTimeout"`
	ChannelPrefix string        `mapstructure:"channelPrefix"`
}

// DatabaseConfig PostgreSQL 遥测归档
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
	AutoMigrate     bool          `mapstructure:"autoMigrate"`
}

// WebhookConfig 遥测 HTTP 推送
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"apiKey"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// Config 顶层配置结构
type Config struct {
	App      AppConfig       `mapstructure:"app"`
	HTTP     HTTPConfig      `mapstructure:"http"`
	TCP      TCPConfig       `mapstructure:"tcp"`
	Channels []ChannelConfig `mapstructure:"channels"`
	Schemas  SchemasConfig   `mapstructure:"schemas"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Webhook  WebhookConfig   `mapstructure:"webhook"`
	Database DatabaseConfig  `mapstructure:"database"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 FRAMELINK_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 FRAMELINK_，并将点号替换为下划线
	v.SetEnvPrefix("FRAMELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查通道配置
func (c *Config) Validate() error {
	seenName := make(map[string]bool, len(c.Channels))
	seenAddr := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" || ch.Addr == "" || ch.Schema == "" {
			return fmt.Errorf("channels[%d]: name, addr and schema are required", i)
		}
		if seenName[ch.Name] {
			return fmt.Errorf("channels[%d]: duplicate name %q", i, ch.Name)
		}
		if seenAddr[ch.Addr] {
			return fmt.Errorf("channels[%d]: duplicate addr %q", i, ch.Addr)
		}
		seenName[ch.Name] = true
		seenAddr[ch.Addr] = true
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return errors.New("webhook: url is required when enabled")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return errors.New("database: dsn is required when enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "framelink")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.enableConsole", true)

	v.SetDefault("tcp.readTimeout", "60s")
	v.SetDefault("tcp.writeTimeout", "10s")
	v.SetDefault("tcp.maxConnections", 256)
	v.SetDefault("tcp.acceptRate", 50)
	v.SetDefault("tcp.acceptBurst", 100)
	v.SetDefault("tcp.maxConsecutiveErrors", 8)

	v.SetDefault("schemas.builtin", true)
	v.SetDefault("schemas.dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.channelPrefix", "framelink:telemetry:")

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.timeout", "5s")
	v.SetDefault("webhook.retries", 3)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 2)
	v.SetDefault("database.connMaxLifetime", "1h")
	v.SetDefault("database.autoMigrate", true)
}
