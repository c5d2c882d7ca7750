package llm

import (
	"context"
	"log/slog"

	"SeiFlow/pkg/logger"
)

// Provider 标识大模型服务提供方。
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGroq      Provider = "groq"
	ProviderMock      Provider = "mock"
)

// Request 描述一次补全调用。
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Response 是大模型返回的原始文本。
type Response struct {
	Content  string
	Model    string
	Provider Provider
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc 允许使用普通函数实现 Client。
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Complete 实现 Client 接口。
func (f ClientFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

type fallbackClient struct {
	primary  Client
	fallback Client
}

// WithFallback 在主客户端失败时记录告警并改用备用客户端的回复。
func WithFallback(primary, fallback Client) Client {
	if fallback == nil {
		return primary
	}
	return &fallbackClient{primary: primary, fallback: fallback}
}

func (c *fallbackClient) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	logger.Named("llm").Warn("大模型调用失败，使用备用回复", slog.Any("error", err))
	return c.fallback.Complete(context.WithoutCancel(ctx), req)
}
