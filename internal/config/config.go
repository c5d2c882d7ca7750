package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"SeiFlow/internal/cache"
	"SeiFlow/internal/chain"
	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/llm"
	"SeiFlow/internal/mcp"
	"SeiFlow/internal/parser"
	"SeiFlow/internal/sei"
	"SeiFlow/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "SEIFLOW_CONFIG"

// DefaultPath 是未设置 SEIFLOW_CONFIG 时使用的配置文件。
var DefaultPath = filepath.Join("configs", "seiflow.json")

// Config 描述了 SeiFlow 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   logger.Config   `json:"logging"`
	LLM       LLMConfig       `json:"llm"`
	Sei       SeiConfig       `json:"sei"`
	Chains    ChainsConfig    `json:"chains"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Cache     cache.Config    `json:"cache"`
	Storage   StorageConfig   `json:"storage"`
	TaskQueue TaskQueueConfig `json:"task_queue"`
	Alerting  AlertingConfig  `json:"alerting"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
	// MetricsAddress 非空时额外启动独立的 /metrics 服务。
	MetricsAddress string `json:"metrics_address"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider        string `json:"provider"`
	APIKey          string `json:"api_key"`
	APIKeyEnv       string `json:"api_key_env"`
	BaseURL         string `json:"base_url"`
	Model           string `json:"model"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	FallbackOnError bool   `json:"fallback_on_error"`
}

// Timeout 返回单次补全调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 依次读取 api_key、api_key_env 与提供方的默认环境变量。
func (c LLMConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	if c.APIKeyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(c.APIKeyEnv)); key != "" {
			return key
		}
	}
	return strings.TrimSpace(os.Getenv(parser.APIKeyEnv(llm.Provider(strings.ToLower(c.Provider)))))
}

// ParserConfig 转换为解析器配置。
func (c LLMConfig) ParserConfig() parser.Config {
	return parser.Config{
		Provider:        llm.Provider(c.Provider),
		APIKey:          c.ResolveAPIKey(),
		BaseURL:         c.BaseURL,
		Model:           c.Model,
		Timeout:         c.Timeout(),
		FallbackOnError: c.FallbackOnError,
	}
}

// SeiConfig 描述 Sei 网络服务与 MCP 服务器。
type SeiConfig struct {
	Network         string    `json:"network"`
	RPCURL          string    `json:"rpc_url"`
	PrivateKey      string    `json:"private_key"`
	CacheTTLSeconds int       `json:"cache_ttl_seconds"`
	MCP             MCPConfig `json:"mcp"`
}

// MCPConfig 描述 MCP 服务器连接方式。
type MCPConfig struct {
	ServerURL      string `json:"server_url"`
	Mode           string `json:"mode"`
	Transport      string `json:"transport"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Retries        int    `json:"retries"`
}

// ServiceConfig 转换为 sei.Service 配置。
func (c SeiConfig) ServiceConfig() (sei.Config, error) {
	network, err := chain.ParseNetwork(c.Network)
	if err != nil {
		return sei.Config{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "sei.network 配置无效")
	}
	mode, err := mcp.ParseMode(c.MCP.Mode)
	if err != nil {
		return sei.Config{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "sei.mcp.mode 配置无效")
	}
	return sei.Config{
		Network:    network,
		PrivateKey: c.PrivateKey,
		RPCURL:     c.RPCURL,
		CacheTTL:   time.Duration(c.CacheTTLSeconds) * time.Second,
		MCP: mcp.SeiConfig{
			ServerURL:  c.MCP.ServerURL,
			Network:    network,
			PrivateKey: c.PrivateKey,
			Mode:       mode,
			Transport:  c.MCP.Transport,
			Timeout:    time.Duration(c.MCP.TimeoutSeconds) * time.Second,
			Retries:    c.MCP.Retries,
		},
	}, nil
}

// ChainsConfig 指定链注册表的 YAML 覆盖文件。
type ChainsConfig struct {
	OverlayPath string `json:"overlay_path"`
}

// Registry 返回内置注册表，配置了覆盖文件时合并之。
func (c ChainsConfig) Registry() (*chain.Registry, error) {
	if c.OverlayPath == "" {
		return chain.Default(), nil
	}
	return chain.Load(c.OverlayPath)
}

// KnowledgeConfig 指定提示词补充知识的来源。
type KnowledgeConfig struct {
	Source     string `json:"source"`
	MaxResults int    `json:"max_results"`
}

// StorageConfig 描述任务状态的存储位置。
type StorageConfig struct {
	TaskStore TaskStoreConfig `json:"task_store"`
}

// TaskStoreConfig 支持 memory 与 redis 两种驱动，任务状态只短期保存。
type TaskStoreConfig struct {
	Driver     string      `json:"driver"`
	Retries    int         `json:"retries"`
	TTLSeconds int         `json:"ttl_seconds"`
	Redis      RedisConfig `json:"redis"`
}

// TTL 返回任务状态的保留时间。
func (c TaskStoreConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RedisConfig 是通用的 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// TaskQueueConfig 描述任务队列。
type TaskQueueConfig struct {
	Driver   string              `json:"driver"`
	Worker   int                 `json:"worker"`
	Buffer   int                 `json:"buffer"`
	Redis    RedisQueueConfig    `json:"redis"`
	RabbitMQ RabbitMQQueueConfig `json:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis list 队列。
type RedisQueueConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列。
type RabbitMQQueueConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// AlertingConfig 描述任务失败告警的去向。
type AlertingConfig struct {
	Log      bool            `json:"log"`
	Webhooks []WebhookConfig `json:"webhooks"`
}

// WebhookConfig 描述单个 webhook 接收方。
type WebhookConfig struct {
	URL     string            `json:"url"`
	Format  string            `json:"format"`
	Headers map[string]string `json:"headers"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Path 返回 SEIFLOW_CONFIG 或默认配置文件路径。
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Default 返回仅含默认值的配置，环境变量覆盖同样生效。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	cfg.applyEnv()
	return cfg
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	cfg.applyEnv()

	return &cfg, nil
}

// LoadOptional 与 Load 相同，但文件不存在时返回默认配置。CLI 使用该入口。
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = string(llm.ProviderGroq)
	}

	if c.Sei.Network == "" {
		c.Sei.Network = string(chain.NetworkTestnet)
	}
	if c.Sei.CacheTTLSeconds <= 0 {
		c.Sei.CacheTTLSeconds = int(sei.DefaultCacheTTL / time.Second)
	}
	if c.Sei.MCP.ServerURL == "" {
		c.Sei.MCP.ServerURL = mcp.DefaultServerURL
	}
	if c.Sei.MCP.Transport == "" {
		c.Sei.MCP.Transport = "http"
	}
	if c.Sei.MCP.TimeoutSeconds <= 0 {
		c.Sei.MCP.TimeoutSeconds = 30
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	c.Chains.OverlayPath = resolve(baseDir, c.Chains.OverlayPath)
	c.Knowledge.Source = resolve(baseDir, c.Knowledge.Source)
	if c.Knowledge.MaxResults <= 0 {
		c.Knowledge.MaxResults = 3
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = cache.DriverMemory
	}
	if c.Cache.Driver == cache.DriverSQLite && c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(c.Runtime.DataDir, "cache.db")
	}

	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}
	if c.Storage.TaskStore.Retries <= 0 {
		c.Storage.TaskStore.Retries = 3
	}
	if c.Storage.TaskStore.TTLSeconds <= 0 {
		c.Storage.TaskStore.TTLSeconds = 3600
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Worker <= 0 {
		c.TaskQueue.Worker = 4
	}
	if c.TaskQueue.Buffer <= 0 {
		c.TaskQueue.Buffer = 1024
	}
}

// applyEnv 使用环境变量覆盖密钥类配置，密钥不必写入配置文件。
func (c *Config) applyEnv() {
	if key := strings.TrimSpace(os.Getenv("SEI_PRIVATE_KEY")); key != "" {
		c.Sei.PrivateKey = key
	}
	if url := strings.TrimSpace(os.Getenv("SEI_MCP_SERVER_URL")); url != "" {
		c.Sei.MCP.ServerURL = url
	}
	if c.LLM.APIKey == "" && c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = parser.APIKeyEnv(llm.Provider(strings.ToLower(c.LLM.Provider)))
	}
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
