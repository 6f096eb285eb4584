package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 服务配置
// 注意：时间字段统一使用毫秒
type Config struct {
	Server struct {
		Port     int    `yaml:"port" json:"port"`
		LogLevel string `yaml:"log_level" json:"log_level"`
	} `yaml:"server" json:"server"`

	Database struct {
		DSN                string `yaml:"dsn" json:"dsn"`
		MaxOpenConns       int    `yaml:"max_open_conns" json:"max_open_conns"`
		MaxIdleConns       int    `yaml:"max_idle_conns" json:"max_idle_conns"`
		ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec" json:"conn_max_lifetime_sec"`
	} `yaml:"database" json:"database"`

	Redis struct {
		Addr     string `yaml:"addr" json:"addr"`
		Password string `yaml:"password" json:"password"`
		DB       int    `yaml:"db" json:"db"`
	} `yaml:"redis" json:"redis"`

	RocketMQ struct {
		Endpoint       string `yaml:"endpoint" json:"endpoint"`
		AccessKey      string `yaml:"access_key" json:"access_key"`
		SecretKey      string `yaml:"secret_key" json:"secret_key"`
		ProducerTopics string `yaml:"producer_topics" json:"producer_topics"` // 逗号分隔
		ConsumerGroup  string `yaml:"consumer_group" json:"consumer_group"`
		// 外部市场开奖结果主题（为空则不启动消费者）
		MarketTopic string `yaml:"market_topic" json:"market_topic"`
	} `yaml:"rocketmq" json:"rocketmq"`

	Observability struct {
		EnableProm bool `yaml:"enable_prom" json:"enable_prom"`
	} `yaml:"observability" json:"observability"`

	Auth struct {
		DemoMode bool `yaml:"demo_mode" json:"demo_mode"` // 演示模式：Header 直带平台用户
		Admin    struct {
			Enabled bool   `yaml:"enabled" json:"enabled"`
			Token   string `yaml:"token" json:"token"`
		} `yaml:"admin" json:"admin"`
	} `yaml:"auth" json:"auth"`

	RateLimit struct {
		Enabled bool `yaml:"enabled" json:"enabled"`
		Global  struct {
			RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`
		} `yaml:"global" json:"global"`
		ByIP struct {
			RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`
			WindowSeconds     int `yaml:"window_seconds" json:"window_seconds"`
		} `yaml:"by_ip" json:"by_ip"`
		ByPlatform struct {
			RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`
			WindowSeconds     int `yaml:"window_seconds" json:"window_seconds"`
		} `yaml:"by_platform" json:"by_platform"`
		ByUser struct {
			RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`
			WindowSeconds     int `yaml:"window_seconds" json:"window_seconds"`
		} `yaml:"by_user" json:"by_user"`
	} `yaml:"rate_limit" json:"rate_limit"`

	CORS struct {
		Enabled          bool     `yaml:"enabled" json:"enabled"`
		AllowedOrigins   []string `yaml:"allowed_origins" json:"allowed_origins"`
		AllowedMethods   []string `yaml:"allowed_methods" json:"allowed_methods"`
		AllowedHeaders   []string `yaml:"allowed_headers" json:"allowed_headers"`
		ExposedHeaders   []string `yaml:"exposed_headers" json:"exposed_headers"`
		MaxAge           int      `yaml:"max_age" json:"max_age"`
		AllowCredentials bool     `yaml:"allow_credentials" json:"allow_credentials"`
	} `yaml:"cors" json:"cors"`

	// Game 回合与开奖行为
	Game struct {
		// 每种玩法的下注窗口（秒），缺省 30
		BettingWindowSec map[string]int `yaml:"betting_window_sec" json:"betting_window_sec"`
		// 调度器轮询间隔（毫秒），缺省 1000
		SchedulerIntervalMs int `yaml:"scheduler_interval_ms" json:"scheduler_interval_ms"`
		// 结果由外部市场决定的玩法（轮询外部结果缓存，未就绪不作废）
		ExternalGames []string `yaml:"external_games" json:"external_games"`
		// 干预结果/外部结果在 Redis 中的存活时间（秒），缺省 600
		OutcomeCacheTTLSec int `yaml:"outcome_cache_ttl_sec" json:"outcome_cache_ttl_sec"`
		// 人工干预开关：关闭时干预接口直接拒绝（默认关闭）
		Override struct {
			Enabled bool `yaml:"enabled" json:"enabled"`
		} `yaml:"override" json:"override"`
		// 单注限额
		MinStake float64 `yaml:"min_stake" json:"min_stake"`
		MaxStake float64 `yaml:"max_stake" json:"max_stake"`
	} `yaml:"game" json:"game"`
}

// BettingWindowSec 返回玩法的下注窗口秒数
func (c *Config) BettingWindowSec(gameType string) int {
	if c != nil {
		if v, ok := c.Game.BettingWindowSec[gameType]; ok && v > 0 {
			return v
		}
	}
	return 30
}

// IsExternalGame 玩法结果是否来自外部市场
func (c *Config) IsExternalGame(gameType string) bool {
	if c == nil {
		return false
	}
	for _, g := range c.Game.ExternalGames {
		if g == gameType {
			return true
		}
	}
	return false
}

// Load 从本地文件加载配置
// CONFIG_FILE 指定路径（默认 config/dev.yaml），按扩展名选择 YAML/JSON 解析
func Load() (*Config, error) {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config/dev.yaml"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	switch filepath.Ext(configFile) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .json, .yaml, .yml)", configFile)
	}

	fmt.Printf("[Config] 配置已加载: file=%s\n", configFile)
	return &cfg, nil
}

// 全局配置实例
var globalConfig *Config

// Set 设置全局配置
func Set(cfg *Config) {
	globalConfig = cfg
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}
