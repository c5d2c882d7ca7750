// Package mock returns canned completions so the parser works without an API key.
package mock

import (
	"context"

	"SeiFlow/internal/llm"
)

const (
	// BridgeResponse is the canned answer for the openai provider.
	BridgeResponse = `{"type":"bridge","fromChain":"ethereum","toChain":"sei","token":"USDC","amount":"100","confidence":0.85,"reasoning":"User wants to bridge USDC from Ethereum to Sei network","steps":[{"type":"bridge","description":"Bridge 100 USDC from Ethereum to Sei using Wormhole","estimatedCost":"15.00","estimatedTime":300}]}`

	// TransferResponse is the canned answer for the anthropic provider.
	TransferResponse = `{"type":"transfer","toChain":"sei","token":"SEI","amount":"1","targetAddress":"0x742d35Cc6634C0532925a3b8D4C4d4b4f1F7c7f7","confidence":0.9,"reasoning":"Direct SEI transfer on Sei network","steps":[{"type":"transfer","description":"Transfer 1 SEI to specified address","estimatedCost":"0.01","estimatedTime":10}]}`

	// FallbackResponse is served when a real provider call fails.
	FallbackResponse = `{"type":"transfer","toChain":"sei","token":"SEI","amount":"1","confidence":0.7,"reasoning":"Fallback response due to API error","steps":[{"type":"transfer","description":"Transfer operation (fallback mode)","estimatedCost":"0.01","estimatedTime":10}]}`
)

// Client always answers with the same content.
type Client struct {
	content  string
	provider llm.Provider
}

// New returns a client that answers with content.
func New(content string) *Client {
	return &Client{content: content, provider: llm.ProviderMock}
}

// ForProvider returns the canned client matching a provider's sample output.
func ForProvider(p llm.Provider) *Client {
	switch p {
	case llm.ProviderOpenAI:
		return &Client{content: BridgeResponse, provider: p}
	case llm.ProviderAnthropic:
		return &Client{content: TransferResponse, provider: p}
	default:
		return &Client{content: FallbackResponse, provider: p}
	}
}

// Fallback returns the client used after a provider error.
func Fallback() *Client {
	return &Client{content: FallbackResponse, provider: llm.ProviderMock}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.Response{Content: c.content, Model: "mock", Provider: c.provider}, nil
}

var _ llm.Client = (*Client)(nil)
