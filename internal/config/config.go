package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
)

// Auth providers.
const (
	AuthJWT      = "jwt"
	AuthSupabase = "supabase"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Log    LogConfig
	Store  StoreConfig
	Auth   AuthConfig
	Quota  QuotaConfig
	AI     AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	server, err := loadServerConfig(cfg.Server)
	if err != nil {
		return nil, err
	}
	cfg.Server = server

	if err := cfg.Store.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Auth.validate(); err != nil {
		return nil, err
	}
	cfg.AI.normalize()

	return &cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(server ServerConfig) (ServerConfig, error) {
	port := strings.TrimSpace(server.Port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Port: port, Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Port: port, Addr: ":" + port}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Development bool `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// StoreConfig 描述记录存储。
type StoreConfig struct {
	Driver      string `env:"STORE_DRIVER" envDefault:"memory"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"companions.db"`
	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SeedAuthor  string `env:"STORE_SEED_AUTHOR" envDefault:"system"`
	Breaker     BreakerConfig
}

// BreakerConfig 描述存储熔断器。
type BreakerConfig struct {
	Enabled          bool          `env:"STORE_BREAKER_ENABLED" envDefault:"true"`
	MaxRequests      uint32        `env:"STORE_BREAKER_MAX_REQUESTS" envDefault:"5"`
	Interval         time.Duration `env:"STORE_BREAKER_INTERVAL" envDefault:"30s"`
	Timeout          time.Duration `env:"STORE_BREAKER_TIMEOUT" envDefault:"60s"`
	FailureThreshold float64       `env:"STORE_BREAKER_FAILURE_RATIO" envDefault:"0.8"`
	MinRequests      uint32        `env:"STORE_BREAKER_MIN_REQUESTS" envDefault:"5"`
}

func (c *StoreConfig) validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case DriverSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase store")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER value: %q", c.Driver)
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1 {
		return fmt.Errorf("invalid STORE_BREAKER_FAILURE_RATIO value: %v", c.Breaker.FailureThreshold)
	}
	return nil
}

// AuthConfig 描述调用方身份解析。
type AuthConfig struct {
	Provider    string `env:"AUTH_PROVIDER" envDefault:"jwt"`
	JWTSecret   string `env:"AUTH_JWT_SECRET"`
	JWTIssuer   string `env:"AUTH_JWT_ISSUER"`
	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
}

// Enabled 表示是否具备解析身份所需的凭证。
func (c AuthConfig) Enabled() bool {
	switch c.Provider {
	case AuthJWT:
		return c.JWTSecret != ""
	case AuthSupabase:
		return c.SupabaseURL != "" && c.SupabaseKey != ""
	default:
		return false
	}
}

func (c *AuthConfig) validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case AuthJWT, AuthSupabase:
		return nil
	default:
		return fmt.Errorf("invalid AUTH_PROVIDER value: %q", c.Provider)
	}
}

// QuotaConfig 描述创建配额规则来源。
type QuotaConfig struct {
	UnlimitedPlan string `env:"QUOTA_UNLIMITED_PLAN" envDefault:"pro"`
	RulesFile     string `env:"QUOTA_RULES_FILE"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string   `env:"ARK_API_KEY"`
	AccessKey      string   `env:"ARK_ACCESS_KEY"`
	SecretKey      string   `env:"ARK_SECRET_KEY"`
	Model          string   `env:"Model"`
	BaseURL        string   `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region         string   `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature    *float64 `env:"ARK_TEMPERATURE"`
	TopP           *float64 `env:"ARK_TOP_P"`
	MaxTokens      *int     `env:"ARK_MAX_TOKENS"`
	StreamResponse bool     `env:"ARK_STREAM" envDefault:"true"`
}

func (c *AIConfig) normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.AccessKey = strings.TrimSpace(c.AccessKey)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.Model = strings.TrimSpace(c.Model)
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}
