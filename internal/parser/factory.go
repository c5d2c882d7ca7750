package parser

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/llm"
	"SeiFlow/internal/llm/anthropic"
	"SeiFlow/internal/llm/mock"
	"SeiFlow/internal/llm/openai"
	"SeiFlow/pkg/logger"
)

// Config 描述解析器使用的大模型提供方。
type Config struct {
	Provider        llm.Provider
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	FallbackOnError bool
}

// APIKeyEnv 返回提供方对应的 API Key 环境变量名。
func APIKeyEnv(provider llm.Provider) string {
	switch provider {
	case llm.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case llm.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "GROQ_API_KEY"
	}
}

// New 根据配置构建解析器。未提供 API Key 时退回到模拟回复。
func New(cfg Config, opts ...Option) (*Parser, error) {
	client, provider, err := NewLLMClient(cfg)
	if err != nil {
		return nil, err
	}
	all := make([]Option, 0, len(opts)+2)
	all = append(all, WithProviderLabel(provider), WithLLMTimeout(cfg.Timeout))
	all = append(all, opts...)
	return NewParser(client, all...), nil
}

// NewLLMClient 构建提供方客户端，并按规则包裹失败回退。
func NewLLMClient(cfg Config) (llm.Client, llm.Provider, error) {
	provider := llm.Provider(strings.ToLower(strings.TrimSpace(string(cfg.Provider))))
	if provider == "" {
		provider = llm.ProviderGroq
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	switch provider {
	case llm.ProviderGroq, llm.ProviderOpenAI, llm.ProviderAnthropic:
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv(APIKeyEnv(provider)))
		}
	case llm.ProviderMock:
		return mock.Fallback(), llm.ProviderMock, nil
	default:
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unsupported AI provider: %s", cfg.Provider))
	}

	if apiKey == "" {
		logger.Named("parser").Warn("AI API key not provided, using mock responses",
			slog.String("provider", string(provider)))
		return mock.ForProvider(provider), provider, nil
	}

	var (
		client llm.Client
		err    error
	)
	switch provider {
	case llm.ProviderAnthropic:
		client, err = anthropic.NewClient(anthropic.Config{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		client, err = openai.NewClient(openai.Config{
			Provider: provider,
			APIKey:   apiKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Timeout:  cfg.Timeout,
		})
	}
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化大模型客户端失败")
	}

	if provider == llm.ProviderGroq || cfg.FallbackOnError {
		client = llm.WithFallback(client, mock.Fallback())
	}
	return client, provider, nil
}
