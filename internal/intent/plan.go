package intent

import (
	"fmt"

	"github.com/google/uuid"

	"SeiFlow/internal/units"
)

const maxRiskScore = 100

// StepSpec 是构建计划前的步骤描述。
type StepSpec struct {
	Type         StepType
	Description  string
	Cost         string
	TimeEstimate int64
}

// BuildPlan 按顺序生成步骤编号，累加成本与耗时并计算风险分。
func BuildPlan(intentType Type, specs []StepSpec) (ExecutionPlan, error) {
	steps := make([]ExecutionStep, 0, len(specs))
	costs := make([]string, 0, len(specs))
	var totalTime int64
	for idx, spec := range specs {
		steps = append(steps, ExecutionStep{
			ID:           fmt.Sprintf("step-%d", idx),
			Type:         spec.Type,
			Description:  spec.Description,
			Cost:         spec.Cost,
			TimeEstimate: spec.TimeEstimate,
			Status:       StepPending,
		})
		costs = append(costs, spec.Cost)
		totalTime += spec.TimeEstimate
	}

	totalCost, err := units.SumDecimals(costs...)
	if err != nil {
		return ExecutionPlan{}, fmt.Errorf("sum step costs: %w", err)
	}

	return ExecutionPlan{
		ID:            uuid.NewString(),
		Steps:         steps,
		EstimatedCost: totalCost,
		EstimatedTime: totalTime,
		RiskScore:     RiskScore(intentType, len(steps)),
	}, nil
}

// RiskScore 是一个粗略的启发式评分：基础 20 分，叠加类型风险与步骤复杂度，封顶 100。
func RiskScore(intentType Type, stepCount int) int {
	score := 20
	switch intentType {
	case TypeTransfer:
		score += 10
	case TypeBridge:
		score += 30
	case TypeSwap:
		score += 25
	case TypeStake:
		score += 15
	default:
		score += 20
	}
	score += (stepCount - 1) * 10
	if score > maxRiskScore {
		return maxRiskScore
	}
	return score
}
