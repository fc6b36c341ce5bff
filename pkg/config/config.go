package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App struct {
		Name string `yaml:"name" env:"APP_NAME"`
		Env  string `yaml:"env" env:"APP_ENV"`
		// MetricsAddr 后台服务暴露/metrics的地址
		MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	} `yaml:"app"`

	API struct {
		Port         string        `yaml:"port" env:"API_PORT"`
		ReadTimeout  time.Duration `yaml:"read_timeout" env:"API_READ_TIMEOUT"`
		WriteTimeout time.Duration `yaml:"write_timeout" env:"API_WRITE_TIMEOUT"`
		// ScanTimeout 单次扫描请求的最长执行时间
		ScanTimeout time.Duration `yaml:"scan_timeout" env:"API_SCAN_TIMEOUT"`
	} `yaml:"api"`

	Log LogConfig `yaml:"log"`

	Database struct {
		// Driver 为 memory 时使用内存存储（开发/演示）
		Driver          string        `yaml:"driver" env:"DB_DRIVER"`
		DSN             string        `yaml:"dsn" env:"DB_DSN"`
		MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
		MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
		AutoMigrate     bool          `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`

	NATS struct {
		URL string `yaml:"url" env:"NATS_URL"`
	} `yaml:"nats"`

	LLM struct {
		Provider    string        `yaml:"provider" env:"LLM_PROVIDER"` // openai | anthropic
		APIURL      string        `yaml:"api_url" env:"LLM_API_URL"`
		APIKey      string        `yaml:"api_key" env:"LLM_API_KEY"`
		ModelName   string        `yaml:"model_name" env:"LLM_MODEL_NAME"`
		Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE"`
		MaxTokens   int64         `yaml:"max_tokens" env:"LLM_MAX_TOKENS"`
		Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT"`
	} `yaml:"llm"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
		Audience  string `yaml:"audience" env:"AUTH_AUDIENCE"`
		Issuer    string `yaml:"issuer" env:"AUTH_ISSUER"`
	} `yaml:"auth"`

	MarketData struct {
		BinanceBaseURL string        `yaml:"binance_base_url" env:"BINANCE_BASE_URL"`
		YahooBaseURL   string        `yaml:"yahoo_base_url" env:"YAHOO_BASE_URL"`
		Timeout        time.Duration `yaml:"timeout" env:"MARKET_DATA_TIMEOUT"`
	} `yaml:"market_data"`

	Scanner struct {
		Concurrency int  `yaml:"concurrency" env:"SCANNER_CONCURRENCY"`
		CandleLimit int  `yaml:"candle_limit" env:"SCANNER_CANDLE_LIMIT"`
		WindowSize  int  `yaml:"window_size" env:"SCANNER_WINDOW_SIZE"`
		Strict      bool `yaml:"strict" env:"SCANNER_STRICT"`
	} `yaml:"scanner"`

	Matcher struct {
		Mode string `yaml:"mode" env:"MATCHER_MODE"` // ai | rules | ensemble
	} `yaml:"matcher"`

	Rules struct {
		MinScore float64 `yaml:"min_score" env:"RULES_MIN_SCORE"`
	} `yaml:"rules"`

	Parser struct {
		CacheTTL time.Duration `yaml:"cache_ttl" env:"PARSER_CACHE_TTL"`
	} `yaml:"parser"`

	Scheduler struct {
		RescanSpec string `yaml:"rescan_spec" env:"SCHEDULER_RESCAN_SPEC"`
		HealthSpec string `yaml:"health_spec" env:"SCHEDULER_HEALTH_SPEC"`
	} `yaml:"scheduler"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL"`
	} `yaml:"notify"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Encoding    string `yaml:"encoding" env:"LOG_ENCODING"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
	Sampling    bool   `yaml:"sampling" env:"LOG_SAMPLING"`
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	var config Config

	// 读取配置文件
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && envOnly():
		// 仅使用环境变量
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 环境变量覆盖
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

func envOnly() bool {
	v := strings.TrimSpace(os.Getenv("CONFIG_ENV_ONLY"))
	return strings.EqualFold(v, "true") || v == "1"
}

// applyDefaults 填充未配置项的默认值
func applyDefaults(c *Config) {
	if c.App.Name == "" {
		c.App.Name = "strategy-radar"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9091"
	}
	if c.API.Port == "" {
		c.API.Port = "8080"
	}
	if c.API.ReadTimeout <= 0 {
		c.API.ReadTimeout = 15 * time.Second
	}
	if c.API.ScanTimeout <= 0 {
		c.API.ScanTimeout = 5 * time.Minute
	}
	if c.API.WriteTimeout <= 0 {
		c.API.WriteTimeout = c.API.ScanTimeout + 10*time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.ModelName == "" {
		c.LLM.ModelName = "gpt-4o-mini"
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = "authenticated"
	}
	if c.MarketData.BinanceBaseURL == "" {
		c.MarketData.BinanceBaseURL = "https://api.binance.com"
	}
	if c.MarketData.YahooBaseURL == "" {
		c.MarketData.YahooBaseURL = "https://query1.finance.yahoo.com"
	}
	if c.MarketData.Timeout <= 0 {
		c.MarketData.Timeout = 10 * time.Second
	}
	if c.Scanner.Concurrency <= 0 {
		c.Scanner.Concurrency = 4
	}
	if c.Scanner.CandleLimit <= 0 {
		c.Scanner.CandleLimit = 100
	}
	if c.Scanner.WindowSize <= 0 {
		c.Scanner.WindowSize = 10
	}
	if c.Matcher.Mode == "" {
		c.Matcher.Mode = "ai"
	}
	if c.Rules.MinScore <= 0 {
		c.Rules.MinScore = 0.6
	}
	if c.Parser.CacheTTL <= 0 {
		c.Parser.CacheTTL = 7 * 24 * time.Hour
	}
	if c.Scheduler.RescanSpec == "" {
		c.Scheduler.RescanSpec = "@every 1h"
	}
	if c.Scheduler.HealthSpec == "" {
		c.Scheduler.HealthSpec = "@every 5m"
	}
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}
