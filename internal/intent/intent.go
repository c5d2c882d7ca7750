// Package intent 定义意图、执行计划等核心记录类型，以及由模型输出构建执行计划的规则。
package intent

import (
	"fmt"
	"strings"

	"SeiFlow/internal/chain"
)

// Type 表示用户意图的操作类别。
type Type string

const (
	TypeTransfer Type = "transfer"
	TypeBridge   Type = "bridge"
	TypeSwap     Type = "swap"
	TypeStake    Type = "stake"
)

// Status 描述意图所处的生命周期阶段。
type Status string

const (
	StatusParsing   Status = "parsing"
	StatusReady     Status = "ready"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepType 表示执行计划中单个步骤的类别。
type StepType string

const (
	StepBridge   StepType = "bridge"
	StepTransfer StepType = "transfer"
	StepApprove  StepType = "approve"
	StepSwap     StepType = "swap"
)

// StepStatus 描述步骤状态。
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ParseType 校验意图类型。
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case TypeTransfer, TypeBridge, TypeSwap, TypeStake:
		return t, nil
	}
	return "", fmt.Errorf("unsupported intent type %q", raw)
}

// ParseStepType 校验步骤类型。
func ParseStepType(raw string) (StepType, error) {
	t := StepType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case StepBridge, StepTransfer, StepApprove, StepSwap:
		return t, nil
	}
	return "", fmt.Errorf("unsupported step type %q", raw)
}

// Intent 是从自然语言中解析出的结构化意图。
type Intent struct {
	ID            string       `json:"id"`
	UserInput     string       `json:"user_input"`
	Type          Type         `json:"type"`
	FromChain     *chain.ID    `json:"from_chain,omitempty"`
	ToChain       *chain.ID    `json:"to_chain,omitempty"`
	Amount        string       `json:"amount,omitempty"`
	Token         *chain.Token `json:"token,omitempty"`
	TargetAddress string       `json:"target_address,omitempty"`
	Status        Status       `json:"status"`
}

// ExecutionStep 是执行计划中的单个步骤。
type ExecutionStep struct {
	ID           string     `json:"id"`
	Type         StepType   `json:"type"`
	Description  string     `json:"description"`
	Cost         string     `json:"cost"`
	TimeEstimate int64      `json:"time_estimate"`
	Status       StepStatus `json:"status"`
}

// ExecutionPlan 汇总步骤以及预估的成本、耗时与风险。
type ExecutionPlan struct {
	ID            string          `json:"id"`
	Steps         []ExecutionStep `json:"steps"`
	EstimatedCost string          `json:"estimated_cost"`
	EstimatedTime int64           `json:"estimated_time"`
	RiskScore     int             `json:"risk_score"`
}

// ParsedIntentResult 是一次解析的完整产出。
type ParsedIntentResult struct {
	Intent        Intent        `json:"intent"`
	Confidence    float64       `json:"confidence"`
	ExecutionPlan ExecutionPlan `json:"execution_plan"`
	Reasoning     string        `json:"reasoning"`
}

// WalletState 记录钱包连接状态。
type WalletState struct {
	Address     string    `json:"address,omitempty"`
	IsConnected bool      `json:"is_connected"`
	ChainID     *chain.ID `json:"chain_id,omitempty"`
	Balance     string    `json:"balance,omitempty"`
}
