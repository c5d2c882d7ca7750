package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"SeiFlow/internal/chain"
)

// AIResponse 对应模型被要求输出的 JSON 结构。
type AIResponse struct {
	Type          string       `json:"type"`
	FromChain     *string      `json:"fromChain"`
	ToChain       *string      `json:"toChain"`
	Token         *string      `json:"token"`
	Amount        flexString   `json:"amount"`
	TargetAddress *string      `json:"targetAddress"`
	Confidence    float64      `json:"confidence"`
	Reasoning     string       `json:"reasoning"`
	Steps         []AIStepSpec `json:"steps"`
}

// AIStepSpec 是模型输出中的单个步骤。
type AIStepSpec struct {
	Type          string     `json:"type"`
	Description   string     `json:"description"`
	EstimatedCost flexString `json:"estimatedCost"`
	EstimatedTime flexInt    `json:"estimatedTime"`
}

// DecodeAIResponse 将模型返回的 JSON 文本转换为意图与执行计划。
func DecodeAIResponse(content, userInput string, registry *chain.Registry) (*ParsedIntentResult, error) {
	var parsed AIResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	intentType, err := ParseType(parsed.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	// 缺失或为 null 的 steps 视为无效回复；空数组允许。
	if parsed.Steps == nil {
		return nil, fmt.Errorf("failed to parse AI response: steps missing")
	}

	specs := make([]StepSpec, 0, len(parsed.Steps))
	for idx, step := range parsed.Steps {
		stepType, err := ParseStepType(step.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to parse AI response: step %d: %w", idx, err)
		}
		specs = append(specs, StepSpec{
			Type:         stepType,
			Description:  step.Description,
			Cost:         string(step.EstimatedCost),
			TimeEstimate: int64(step.EstimatedTime),
		})
	}

	plan, err := BuildPlan(intentType, specs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	if registry == nil {
		registry = chain.Default()
	}
	in := Intent{
		ID:            uuid.NewString(),
		UserInput:     userInput,
		Type:          intentType,
		FromChain:     resolveChain(registry, parsed.FromChain),
		ToChain:       resolveChain(registry, parsed.ToChain),
		Amount:        strings.TrimSpace(string(parsed.Amount)),
		TargetAddress: strings.TrimSpace(deref(parsed.TargetAddress)),
		Status:        StatusReady,
	}
	in.Token = resolveToken(registry, deref(parsed.Token), in.ToChain, in.FromChain)

	return &ParsedIntentResult{
		Intent:        in,
		Confidence:    parsed.Confidence,
		ExecutionPlan: plan,
		Reasoning:     parsed.Reasoning,
	}, nil
}

func resolveChain(registry *chain.Registry, name *string) *chain.ID {
	if name == nil {
		return nil
	}
	id, ok := registry.ResolveChainID(*name)
	if !ok {
		return nil
	}
	return &id
}

func resolveToken(registry *chain.Registry, symbol string, candidates ...*chain.ID) *chain.Token {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || symbol == "NULL" {
		return nil
	}
	for _, id := range candidates {
		if id == nil {
			continue
		}
		if token, ok := registry.TokenBySymbol(*id, symbol); ok {
			return &token
		}
	}
	return &chain.Token{Symbol: symbol}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// extractJSON 去掉模型偶尔附带的 markdown 代码块包裹。
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// flexString 同时接受 JSON 字符串、数字与 null。
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// flexInt 接受整数、浮点数或数字字符串，小数部分被截断。
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	raw := strings.TrimSpace(string(s))
	if raw == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", raw)
	}
	*f = flexInt(int64(v))
	return nil
}
