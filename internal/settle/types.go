package settle

import (
	"github.com/shopspring/decimal"

	"casino-server/internal/engine"
)

// 支持的游戏玩法
const (
	GameAndarBahar = "andar_bahar" // 交替发牌比点（首张目标点数定胜侧）
	GameRoulette   = "roulette"    // 欧式单零轮盘 37 槽
	GameSicbo      = "sicbo"       // 三骰
	GamePoker      = "poker"       // 德州式 7 选 5 比牌，平分彩池
)

// 注单状态
const (
	BetPending = "pending"
	BetWon     = "won"
	BetLost    = "lost"
	BetVoid    = "void"
)

// Outcome 单局开奖结果，按玩法填充对应字段
// 结算开始前必须先持久化（可审计、可重放）
type Outcome struct {
	GameType string `json:"game_type"`
	Source   string `json:"source,omitempty"` // fair|override|external
	// andar_bahar
	TargetRank  string   `json:"target_rank,omitempty"`
	WinningSide string   `json:"winning_side,omitempty"`
	WinningCard string   `json:"winning_card,omitempty"`
	DealOrder   []string `json:"deal_order,omitempty"`
	// roulette
	Number *int `json:"number,omitempty"`
	// sicbo
	Dice []int `json:"dice,omitempty"`
	// poker: board 公共牌 + 每个玩家的底牌（customer_id 十进制字符串为键）
	Board []string            `json:"board,omitempty"`
	Hands map[string][]string `json:"hands,omitempty"`
}

// Round 结算视角的回合快照
type Round struct {
	RoundID    string
	GameType   string
	Seq        int64
	Status     string // state.Status*
	BetCloseAt int64  // 毫秒时间戳
	Outcome    *Outcome
}

// Bet 结算视角的注单快照（odds 为下注时刻的赔率快照）
type Bet struct {
	BillNo     string
	CustomerID int64
	Selection  string
	Stake      decimal.Decimal
	Odds       decimal.Decimal
	Status     string
}

// BetResult 单笔注单的结算结论
// payout 为最终入账金额：赢=本金×(1+赔率)，退=本金，输=0
type BetResult struct {
	BillNo     string          `json:"bill_no"`
	CustomerID int64           `json:"customer_id"`
	Selection  string          `json:"selection"`
	Status     string          `json:"status"`
	Payout     decimal.Decimal `json:"payout"`
}

// Result 整局结算结果，完成后不可变；重复结算原样返回
type Result struct {
	RoundID     string          `json:"round_id"`
	GameType    string          `json:"game_type"`
	Outcome     *Outcome        `json:"outcome"`
	Bets        []BetResult     `json:"per_bet_results"`
	TotalPayout decimal.Decimal `json:"total_payout"`
}

// DealOutcome 将发牌结果封装为 Outcome
func DealOutcome(target engine.Rank, deal *engine.DealResult) *Outcome {
	return &Outcome{
		GameType:    GameAndarBahar,
		TargetRank:  string(target),
		WinningSide: deal.WinningSide,
		WinningCard: deal.WinningCard.String(),
		DealOrder:   engine.EncodeCards(deal.DealOrder),
	}
}

// WheelOutcome 轮盘结果
func WheelOutcome(n int) *Outcome {
	return &Outcome{GameType: GameRoulette, Number: &n}
}

// DiceOutcome 骰子结果
func DiceOutcome(dice []int) *Outcome {
	return &Outcome{GameType: GameSicbo, Dice: dice}
}
