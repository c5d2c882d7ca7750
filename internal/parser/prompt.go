package parser

import (
	"fmt"
	"strings"

	"SeiFlow/internal/knowledge"
)

const systemPrompt = `You are SeiFlow's intent parser. Your job is to understand user requests for cross-chain operations and return structured JSON.

SUPPORTED OPERATIONS:
1. TRANSFER - Send tokens to an address
2. BRIDGE - Move tokens between chains
3. SWAP - Exchange one token for another
4. STAKE - Stake tokens for rewards

SUPPORTED CHAINS:
- Ethereum (eth, ethereum)
- Sei Network (sei, sei-testnet)
- BSC (bsc, binance)
- Polygon (poly, polygon, matic)

SUPPORTED TOKENS:
- SEI (native on Sei)
- ETH (native on Ethereum)
- USDC, USDT (common stablecoins)
- BNB (native on BSC)

RESPONSE FORMAT (JSON only):
{
  "type": "transfer|bridge|swap|stake",
  "fromChain": "chainName or null",
  "toChain": "chainName or null",
  "token": "tokenSymbol or null",
  "amount": "number as string or null",
  "targetAddress": "0x... or null",
  "confidence": 0.0-1.0,
  "reasoning": "explanation of parsing",
  "steps": [
    {
      "type": "approve|bridge|transfer|swap",
      "description": "what this step does",
      "estimatedCost": "0.01",
      "estimatedTime": 30
    }
  ]
}

EXAMPLES:
Input: "Send 10 USDC from Ethereum to Sei"
Output: {"type":"bridge","fromChain":"ethereum","toChain":"sei","token":"USDC","amount":"10","confidence":0.95,"reasoning":"Clear bridge request with specific amount and chains","steps":[{"type":"bridge","description":"Bridge 10 USDC from Ethereum to Sei via Wormhole","estimatedCost":"5.00","estimatedTime":300}]}

Input: "Transfer 1 SEI to 0x123..."
Output: {"type":"transfer","toChain":"sei","token":"SEI","amount":"1","targetAddress":"0x123...","confidence":0.9,"reasoning":"Direct transfer on Sei network","steps":[{"type":"transfer","description":"Transfer 1 SEI to specified address","estimatedCost":"0.01","estimatedTime":10}]}

BE PRECISE. Return only valid JSON.`

const maxHintLength = 240

// buildUserPrompt 构造用户提示词，并附加知识库命中的提示。
func buildUserPrompt(input string, hints []knowledge.Snippet) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Parse this user request: %q\n\n", input))
	builder.WriteString("Return only the JSON response, no additional text.")

	written := 0
	for _, hint := range hints {
		title := strings.TrimSpace(hint.Title)
		content := truncate(hint.Content)
		if title == "" && content == "" {
			continue
		}
		if written == 0 {
			builder.WriteString("\n\nRelevant notes:\n")
		}
		builder.WriteString(fmt.Sprintf("- %s: %s\n", title, content))
		written++
	}
	return builder.String()
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxHintLength {
		return string(runes[:maxHintLength]) + "..."
	}
	return text
}
