package settle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// 赔率表（净赔率，派彩=本金×(1+赔率)）。
// 下注受理时按此表做选择合法性校验并快照赔率入库；
// 结算只认注单上的快照，表调整不影响已受理注单。

// andar_bahar: 起始侧先见牌，胜率略高，赔率做不对称补偿
var andarBaharOdds = map[string]decimal.Decimal{
	"andar": decimal.RequireFromString("0.9"), // 总回报 1.9x
	"bahar": decimal.RequireFromString("1.0"), // 总回报 2.0x
}

// roulette 定额玩法
var rouletteFlatOdds = map[string]decimal.Decimal{
	"red":   decimal.NewFromInt(1),
	"black": decimal.NewFromInt(1),
	"odd":   decimal.NewFromInt(1),
	"even":  decimal.NewFromInt(1),
	"low":   decimal.NewFromInt(1), // 1-18
	"high":  decimal.NewFromInt(1), // 19-36
}

var rouletteStraightOdds = decimal.NewFromInt(35)
var rouletteGroupOdds = decimal.NewFromInt(2) // dozen/column

// sicbo 定额玩法
var sicboFlatOdds = map[string]decimal.Decimal{
	"small":      decimal.NewFromInt(1),
	"big":        decimal.NewFromInt(1),
	"odd":        decimal.NewFromInt(1),
	"even":       decimal.NewFromInt(1),
	"any_triple": decimal.NewFromInt(30),
}

var (
	sicboTripleOdds = decimal.NewFromInt(180)
	sicboDoubleOdds = decimal.NewFromInt(10)
	sicboComboOdds  = decimal.NewFromInt(5)
	sicboSingleOdds = decimal.NewFromInt(1) // 实际派彩按命中颗数倍乘
)

// sicbo 总点数赔率（4..17）
var sicboTotalOdds = map[int]int64{
	4: 60, 5: 30, 6: 17, 7: 12, 8: 8, 9: 6,
	10: 6, 11: 6, 12: 6, 13: 8, 14: 12, 15: 17, 16: 30, 17: 60,
}

// OddsFor 校验玩法选择并返回下注时刻应快照的净赔率
// 未知/非法选择返回错误，受理层据此拒单
func OddsFor(gameType, selection string) (decimal.Decimal, error) {
	switch gameType {
	case GameAndarBahar:
		if o, ok := andarBaharOdds[selection]; ok {
			return o, nil
		}
	case GameRoulette:
		if o, ok := rouletteFlatOdds[selection]; ok {
			return o, nil
		}
		if n, ok := parseArg(selection, "straight"); ok {
			if n >= 0 && n <= 36 {
				return rouletteStraightOdds, nil
			}
			return decimal.Zero, fmt.Errorf("settle: straight number out of range: %s", selection)
		}
		if n, ok := parseArg(selection, "dozen"); ok {
			if n >= 1 && n <= 3 {
				return rouletteGroupOdds, nil
			}
			return decimal.Zero, fmt.Errorf("settle: dozen out of range: %s", selection)
		}
		if n, ok := parseArg(selection, "column"); ok {
			if n >= 1 && n <= 3 {
				return rouletteGroupOdds, nil
			}
			return decimal.Zero, fmt.Errorf("settle: column out of range: %s", selection)
		}
	case GameSicbo:
		if o, ok := sicboFlatOdds[selection]; ok {
			return o, nil
		}
		if f, ok := parseArg(selection, "triple"); ok && f >= 1 && f <= 6 {
			return sicboTripleOdds, nil
		}
		if f, ok := parseArg(selection, "double"); ok && f >= 1 && f <= 6 {
			return sicboDoubleOdds, nil
		}
		if n, ok := parseArg(selection, "total"); ok {
			if _, valid := sicboTotalOdds[n]; valid {
				return decimal.NewFromInt(sicboTotalOdds[n]), nil
			}
			return decimal.Zero, fmt.Errorf("settle: total out of range: %s", selection)
		}
		if a, b, ok := parseCombo(selection); ok && a >= 1 && b <= 6 && a < b {
			return sicboComboOdds, nil
		}
		if f, ok := parseArg(selection, "single"); ok && f >= 1 && f <= 6 {
			return sicboSingleOdds, nil
		}
	case GamePoker:
		// 底注进彩池，无固定赔率
		if selection == "ante" {
			return decimal.Zero, nil
		}
	default:
		return decimal.Zero, fmt.Errorf("settle: unknown game type %q", gameType)
	}
	return decimal.Zero, fmt.Errorf("settle: invalid selection %q for %s", selection, gameType)
}

// parseArg 解析 "prefix:<int>" 形式的选择
func parseArg(selection, prefix string) (int, bool) {
	rest, found := strings.CutPrefix(selection, prefix+":")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseCombo 解析 "combo:<a>-<b>"
func parseCombo(selection string) (int, int, bool) {
	rest, found := strings.CutPrefix(selection, "combo:")
	if !found {
		return 0, 0, false
	}
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.Atoi(parts[0])
	b, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, b, true
}
