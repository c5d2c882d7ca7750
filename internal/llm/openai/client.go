package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"SeiFlow/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second

	// GroqBaseURL 是 Groq 的 OpenAI 兼容接口地址。
	GroqBaseURL = "https://api.groq.com/openai/v1"
	// GroqDefaultModel 是 Groq 的默认模型。
	GroqDefaultModel = "llama3-8b-8192"
)

// Config 描述了调用 Chat Completions 接口所需的信息。
type Config struct {
	Provider llm.Provider
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// Client 通过 HTTP 调用 OpenAI 兼容的大模型接口（OpenAI、Groq）。
type Client struct {
	provider   llm.Provider
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 API Key")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = llm.ProviderOpenAI
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	model := strings.TrimSpace(cfg.Model)
	switch provider {
	case llm.ProviderGroq:
		if baseURL == "" {
			baseURL = GroqBaseURL
		}
		if model == "" {
			model = GroqDefaultModel
		}
	case llm.ProviderOpenAI:
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		if model == "" {
			model = defaultModelName
		}
	default:
		return nil, fmt.Errorf("不支持的 OpenAI 兼容提供方: %s", provider)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		provider: provider,
		apiKey:   apiKey,
		baseURL:  baseURL,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Model 返回实际使用的模型名称。
func (c *Client) Model() string { return c.model }

// Complete 调用 /chat/completions 并返回第一条回复内容。
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 %s 请求失败: %w", c.provider, err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", c.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%s 返回错误状态 %d: %s", c.provider, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 %s 响应失败: %w", c.provider, err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%s 响应中没有有效的 choices", c.provider)
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("no response from %s", c.provider)
	}

	model := decoded.Model
	if model == "" {
		model = c.model
	}
	return &llm.Response{Content: content, Model: model, Provider: c.provider}, nil
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := make([]message, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, message{Role: "system", Content: system})
	}
	messages = append(messages, message{Role: "user", Content: req.User})

	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.JSONMode {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 %s 请求失败: %w", c.provider, err)
	}
	return encoded, nil
}

var _ llm.Client = (*Client)(nil)
