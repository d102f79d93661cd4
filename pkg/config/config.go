// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体（scholard 网关与 scholar 客户端共用一份文件）
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Client     ClientConfig     `mapstructure:"client"`
	Model      ModelConfig      `mapstructure:"model"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig scholard 网关服务配置
type ServerConfig struct {
	Port        int              `mapstructure:"port"`
	Host        string           `mapstructure:"host"`
	Timeout     string           `mapstructure:"timeout"`
	ScenarioDir string           `mapstructure:"scenario_dir"` // agent 模式剧本目录
	CORS        CORSConfig       `mapstructure:"cors"`
	Middleware  MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "24h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "24h"
}

// ClientConfig scholar 客户端配置
type ClientConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Timeout    string `mapstructure:"timeout"`     // REST 请求超时，如 "30s"；流式请求不受此限制
	RetryCount int    `mapstructure:"retry_count"` // REST 请求重试次数
	TokenFile  string `mapstructure:"token_file"`  // 登录后保存 token 的文件
}

// ModelConfig 模型配置（normal 模式直连 OpenAI 兼容端点）
type ModelConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Defaults  DefaultsConfig            `mapstructure:"defaults"`
}

// ProviderConfig 模型提供商配置（Qwen / DeepSeek 等 OpenAI 兼容服务）
type ProviderConfig struct {
	APIKey  string               `mapstructure:"api_key"`
	BaseURL string               `mapstructure:"base_url"`
	Models  map[string]ModelInfo `mapstructure:"models"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// DefaultsConfig 默认模型配置
type DefaultsConfig struct {
	LLM string `mapstructure:"llm"`
}

// QuotaConfig 免费额度与限流配置
type QuotaConfig struct {
	FreeDailyLimit    int     `mapstructure:"free_daily_limit"`    // 免费档每日对话次数，<=0 使用默认 20
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"` // 每用户 RPM，<=0 使用默认 30
	Burst             int     `mapstructure:"burst"`               // 突发额度，<=0 使用默认 5
	PaidPricePer1K    float64 `mapstructure:"paid_price_per_1k"`   // 付费档每千 token 计费单价
}

// StorageConfig 存储配置
type StorageConfig struct {
	Sessions  SessionStoreConfig  `mapstructure:"sessions"`
	Cache     CacheConfig         `mapstructure:"cache"`
	Documents DocumentStoreConfig `mapstructure:"documents"`
	Metadata  MetadataStoreConfig `mapstructure:"metadata"`
}

// SessionStoreConfig 会话/消息存储配置
type SessionStoreConfig struct {
	Type     string `mapstructure:"type"`      // memory | sqlite | postgres
	Path     string `mapstructure:"path"`      // sqlite 文件路径，type=sqlite 时必填
	DSN      string `mapstructure:"dsn"`       // Postgres 连接串，type=postgres 时必填
	PoolSize int    `mapstructure:"pool_size"` // Postgres 连接池大小
}

// CacheConfig 缓存配置（redis 不可用时回退内存）
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"` // 如 "5m"，空则默认 5m
}

// DocumentStoreConfig 上传文档的对象存储配置
type DocumentStoreConfig struct {
	Store       string `mapstructure:"store"`         // memory | file
	Dir         string `mapstructure:"dir"`           // store=file 时的落盘目录
	MaxUploadMB int    `mapstructure:"max_upload_mb"` // 单文件上限，<=0 使用默认 100
}

// MetadataStoreConfig 文档元数据存储配置
type MetadataStoreConfig struct {
	Type string `mapstructure:"type"` // memory | sqlite
	Path string `mapstructure:"path"` // sqlite 文件路径，type=sqlite 时必填
}

// SecretsConfig 密钥来源配置（模型 API Key 经 secrets.Store 解析）
type SecretsConfig struct {
	Backend string `mapstructure:"backend"` // env | memory | k8s | vault
	Vault   struct {
		Addr  string `mapstructure:"addr"`
		Token string `mapstructure:"token"`
		Mount string `mapstructure:"mount"`
	} `mapstructure:"vault"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量
	replaceEnvVars(&config)

	return &config, nil
}

// replaceEnvVars 替换配置中 ${VAR} 形式的模型 API Key
func replaceEnvVars(config *Config) {
	for provider, providerConfig := range config.Model.Providers {
		if strings.HasPrefix(providerConfig.APIKey, "$") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(providerConfig.APIKey, "}"), "${")
			if val := os.Getenv(envVar); val != "" {
				providerConfig.APIKey = val
				config.Model.Providers[provider] = providerConfig
			}
		}
	}
}

// Load 加载默认配置：SCHOLAR_CONFIG 指定路径，否则 configs/config.yaml
func Load() (*Config, error) {
	path := os.Getenv("SCHOLAR_CONFIG")
	if path == "" {
		path = "configs/config.yaml"
	}
	return LoadConfig(path)
}
