// Package parser 将自然语言请求解析为结构化意图与执行计划。
package parser

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"SeiFlow/internal/chain"
	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/intent"
	"SeiFlow/internal/knowledge"
	"SeiFlow/internal/llm"
	"SeiFlow/internal/observability/metrics"
	"SeiFlow/pkg/logger"
)

// 解析相关错误码。
const (
	CodeIntentParseFailed xerrors.Code = "INTENT_PARSE_FAILED"
	CodeLLMUnavailable    xerrors.Code = "LLM_UNAVAILABLE"
)

func init() {
	xerrors.Register(CodeIntentParseFailed, xerrors.Attributes{
		Message:    "intent parsing failed",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusUnprocessableEntity,
	})
	xerrors.Register(CodeLLMUnavailable, xerrors.Attributes{
		Message:    "language model unavailable",
		Severity:   xerrors.SeverityWarning,
		Retryable:  true,
		Alert:      true,
		HTTPStatus: http.StatusBadGateway,
	})
}

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 2000
)

// Parser 调用大模型并把回复解码为意图。
type Parser struct {
	client      llm.Client
	provider    llm.Provider
	registry    *chain.Registry
	knowledge   knowledge.Provider
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// Option 定义可选的 Parser 配置。
type Option func(*Parser)

// WithKnowledgeProvider 配置知识库，用于在推理前补充上下文。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(p *Parser) {
		p.knowledge = provider
	}
}

// WithRegistry 指定链与代币注册表。
func WithRegistry(registry *chain.Registry) Option {
	return func(p *Parser) {
		if registry != nil {
			p.registry = registry
		}
	}
}

// WithLLMTimeout 设置调用大模型的超时时间，非正值表示不限制。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(p *Parser) {
		if timeout <= 0 {
			p.timeout = 0
			return
		}
		p.timeout = timeout
	}
}

// WithProviderLabel 设置日志与指标中使用的提供方名称。
func WithProviderLabel(provider llm.Provider) Option {
	return func(p *Parser) {
		p.provider = provider
	}
}

// WithSampling 覆盖温度与最大 token 数。
func WithSampling(temperature float64, maxTokens int) Option {
	return func(p *Parser) {
		if temperature >= 0 {
			p.temperature = temperature
		}
		if maxTokens > 0 {
			p.maxTokens = maxTokens
		}
	}
}

// NewParser 基于已构建好的大模型客户端创建 Parser。
func NewParser(client llm.Client, opts ...Option) *Parser {
	p := &Parser{
		client:      client,
		provider:    llm.ProviderMock,
		registry:    chain.Default(),
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Provider 返回当前使用的提供方。
func (p *Parser) Provider() llm.Provider { return p.provider }

// Parse 解析一条用户请求。
func (p *Parser) Parse(ctx context.Context, userInput string) (*intent.ParsedIntentResult, error) {
	if p.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "用户输入不能为空")
	}

	start := time.Now()
	result, err := p.parse(ctx, userInput)
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(string(xerrors.CodeOf(err)))
	}
	metrics.ObserveIntentParse(string(p.provider), outcome, time.Since(start))
	if err != nil {
		logger.Named("parser").Warn("意图解析失败",
			slog.String("provider", string(p.provider)),
			slog.Any("error", err))
		return nil, err
	}

	logger.Audit().Info("intent parsed",
		slog.String("intent_id", result.Intent.ID),
		slog.String("type", string(result.Intent.Type)),
		slog.String("provider", string(p.provider)),
		slog.Float64("confidence", result.Confidence),
		slog.Int("risk_score", result.ExecutionPlan.RiskScore))
	return result, nil
}

func (p *Parser) parse(ctx context.Context, userInput string) (*intent.ParsedIntentResult, error) {
	var hints []knowledge.Snippet
	if p.knowledge != nil {
		hints = p.knowledge.Query(userInput)
	}

	llmCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.Complete(llmCtx, llm.Request{
		System:      systemPrompt,
		User:        buildUserPrompt(userInput, hints),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "intent parsing failed")
		}
		return nil, xerrors.Wrap(CodeLLMUnavailable, err, "intent parsing failed")
	}

	result, err := intent.DecodeAIResponse(resp.Content, userInput, p.registry)
	if err != nil {
		return nil, xerrors.Wrap(CodeIntentParseFailed, err, "intent parsing failed")
	}
	return result, nil
}
