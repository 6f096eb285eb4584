package state

import "fmt"

// Status 回合状态
// 回合生命周期: pending -> betting -> resolving -> completed
// resolving 阶段开奖源失败时可进入 void（退还本金）
const (
	StatusPending   = "pending"   // 已创建/未开盘
	StatusBetting   = "betting"   // 下注中(bet_open_at~bet_close_at)
	StatusResolving = "resolving" // 已封盘，生成/等待开奖结果
	StatusCompleted = "completed" // 已结算（终态）
	StatusVoid      = "void"      // 已作废，本金退还（终态）
)

// 状态码映射: 1=pending 2=betting 3=resolving 4=completed 5=void
const (
	CodePending   int8 = 1
	CodeBetting   int8 = 2
	CodeResolving int8 = 3
	CodeCompleted int8 = 4
	CodeVoid      int8 = 5
)

// Event 回合事件
const (
	EvtOpenBetting = "open_betting" // 开盘（创建后立即触发）
	EvtCloseRound  = "close_round"  // 封盘（now >= bet_close_at）
	EvtSettled     = "settled"      // 结算完成
	EvtVoid        = "void"         // 开奖源失败作废
)

// NextStatus 根据当前状态与事件计算下一个状态，非法转换报错
func NextStatus(cur, evt string) (string, error) {
	switch cur {
	case StatusPending:
		if evt == EvtOpenBetting {
			return StatusBetting, nil
		}
	case StatusBetting:
		if evt == EvtCloseRound {
			return StatusResolving, nil
		}
	case StatusResolving:
		if evt == EvtSettled {
			return StatusCompleted, nil
		}
		if evt == EvtVoid {
			return StatusVoid, nil
		}
	}
	return cur, fmt.Errorf("invalid transition: %s --%s--> ?", cur, evt)
}

// IsTerminal 是否终态
func IsTerminal(s string) bool {
	return s == StatusCompleted || s == StatusVoid
}

// ToCode 状态名转状态码，未知状态返回 0
func ToCode(s string) int8 {
	switch s {
	case StatusPending:
		return CodePending
	case StatusBetting:
		return CodeBetting
	case StatusResolving:
		return CodeResolving
	case StatusCompleted:
		return CodeCompleted
	case StatusVoid:
		return CodeVoid
	default:
		return 0
	}
}

// FromCode 状态码转状态名
func FromCode(c int8) string {
	switch c {
	case CodePending:
		return StatusPending
	case CodeBetting:
		return StatusBetting
	case CodeResolving:
		return StatusResolving
	case CodeCompleted:
		return StatusCompleted
	case CodeVoid:
		return StatusVoid
	default:
		return StatusPending
	}
}
