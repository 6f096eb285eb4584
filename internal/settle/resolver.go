package settle

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"casino-server/internal/engine"
	"casino-server/internal/poker"
)

// ResolveBets 按玩法规则对一局的全部注单判定 胜/负/退 与派彩金额。
// 纯函数：同一 outcome 与注单集合永远给出相同结论，重放安全。
// 只处理 pending 注单，其余状态原样回传（幂等重试时已结注单不再变化）。
func ResolveBets(outcome *Outcome, bets []Bet) ([]BetResult, error) {
	if outcome == nil {
		return nil, fmt.Errorf("settle: nil outcome")
	}
	switch outcome.GameType {
	case GameAndarBahar:
		return resolveAndarBahar(outcome, bets)
	case GameRoulette:
		return resolveRoulette(outcome, bets)
	case GameSicbo:
		return resolveSicbo(outcome, bets)
	case GamePoker:
		return resolvePoker(outcome, bets)
	default:
		return nil, fmt.Errorf("settle: unknown game type %q", outcome.GameType)
	}
}

// wonResult 派彩 = 本金 × (1 + 赔率)，两位小数
func wonResult(b Bet) BetResult {
	payout := b.Stake.Mul(decimal.NewFromInt(1).Add(b.Odds)).Round(2)
	return BetResult{BillNo: b.BillNo, CustomerID: b.CustomerID, Selection: b.Selection, Status: BetWon, Payout: payout}
}

func lostResult(b Bet) BetResult {
	return BetResult{BillNo: b.BillNo, CustomerID: b.CustomerID, Selection: b.Selection, Status: BetLost, Payout: decimal.Zero}
}

func voidResult(b Bet) BetResult {
	return BetResult{BillNo: b.BillNo, CustomerID: b.CustomerID, Selection: b.Selection, Status: BetVoid, Payout: b.Stake.Round(2)}
}

func carryResult(b Bet) BetResult {
	return BetResult{BillNo: b.BillNo, CustomerID: b.CustomerID, Selection: b.Selection, Status: b.Status, Payout: decimal.Zero}
}

func resolveAndarBahar(oc *Outcome, bets []Bet) ([]BetResult, error) {
	if oc.WinningSide != engine.SideAndar && oc.WinningSide != engine.SideBahar {
		return nil, fmt.Errorf("settle: invalid winning side %q", oc.WinningSide)
	}
	out := make([]BetResult, 0, len(bets))
	for _, b := range bets {
		if b.Status != BetPending {
			out = append(out, carryResult(b))
			continue
		}
		if b.Selection == oc.WinningSide {
			out = append(out, wonResult(b))
		} else {
			out = append(out, lostResult(b))
		}
	}
	return out, nil
}

// 欧式轮盘红色号码
var rouletteRed = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true, 18: true,
	19: true, 21: true, 23: true, 25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

func resolveRoulette(oc *Outcome, bets []Bet) ([]BetResult, error) {
	if oc.Number == nil || *oc.Number < 0 || *oc.Number > 36 {
		return nil, fmt.Errorf("settle: invalid roulette number")
	}
	n := *oc.Number
	out := make([]BetResult, 0, len(bets))
	for _, b := range bets {
		if b.Status != BetPending {
			out = append(out, carryResult(b))
			continue
		}
		win, err := rouletteWins(n, b.Selection)
		if err != nil {
			return nil, err
		}
		if win {
			out = append(out, wonResult(b))
		} else {
			out = append(out, lostResult(b))
		}
	}
	return out, nil
}

// rouletteWins 判定开出号码是否命中所选类别；零号只命中 straight:0
func rouletteWins(n int, selection string) (bool, error) {
	switch selection {
	case "red":
		return rouletteRed[n], nil
	case "black":
		return n > 0 && !rouletteRed[n], nil
	case "odd":
		return n > 0 && n%2 == 1, nil
	case "even":
		return n > 0 && n%2 == 0, nil
	case "low":
		return n >= 1 && n <= 18, nil
	case "high":
		return n >= 19 && n <= 36, nil
	}
	if v, ok := parseArg(selection, "straight"); ok {
		return v == n, nil
	}
	if d, ok := parseArg(selection, "dozen"); ok {
		return n >= (d-1)*12+1 && n <= d*12, nil
	}
	if c, ok := parseArg(selection, "column"); ok {
		return n > 0 && n%3 == c%3, nil
	}
	return false, fmt.Errorf("settle: invalid roulette selection %q", selection)
}

func resolveSicbo(oc *Outcome, bets []Bet) ([]BetResult, error) {
	if len(oc.Dice) != 3 {
		return nil, fmt.Errorf("settle: sicbo expects 3 dice, got %d", len(oc.Dice))
	}
	for _, d := range oc.Dice {
		if d < 1 || d > 6 {
			return nil, fmt.Errorf("settle: invalid die value %d", d)
		}
	}
	total := oc.Dice[0] + oc.Dice[1] + oc.Dice[2]
	triple := oc.Dice[0] == oc.Dice[1] && oc.Dice[1] == oc.Dice[2]
	faceCount := map[int]int{}
	for _, d := range oc.Dice {
		faceCount[d]++
	}

	out := make([]BetResult, 0, len(bets))
	for _, b := range bets {
		if b.Status != BetPending {
			out = append(out, carryResult(b))
			continue
		}
		r, err := resolveSicboBet(b, total, triple, faceCount)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func resolveSicboBet(b Bet, total int, triple bool, faceCount map[int]int) (BetResult, error) {
	switch b.Selection {
	case "small":
		// 围骰通吃：4-10 但排除豹子
		if !triple && total >= 4 && total <= 10 {
			return wonResult(b), nil
		}
		return lostResult(b), nil
	case "big":
		if !triple && total >= 11 && total <= 17 {
			return wonResult(b), nil
		}
		return lostResult(b), nil
	case "odd":
		if total%2 == 1 {
			return wonResult(b), nil
		}
		return lostResult(b), nil
	case "even":
		if total%2 == 0 {
			return wonResult(b), nil
		}
		return lostResult(b), nil
	case "any_triple":
		if triple {
			return wonResult(b), nil
		}
		return lostResult(b), nil
	}
	if f, ok := parseArg(b.Selection, "triple"); ok {
		if triple && faceCount[f] == 3 {
			return wonResult(b), nil
		}
		return lostResult(b), nil
	}
	if f, ok := parseArg(b.Selection, "double"); ok {
		// 指定对子：该面恰好出现两次
		if faceCount[f] == 2 {
			return wonResult(b), nil
		}
		return lostResult(b), nil
	}
	if n, ok := parseArg(b.Selection, "total"); ok {
		if total == n {
			return wonResult(b), nil
		}
		return lostResult(b), nil
	}
	if a, c, ok := parseCombo(b.Selection); ok {
		if faceCount[a] >= 1 && faceCount[c] >= 1 {
			return wonResult(b), nil
		}
		return lostResult(b), nil
	}
	if f, ok := parseArg(b.Selection, "single"); ok {
		// 命中几颗赔几倍
		if cnt := faceCount[f]; cnt > 0 {
			payout := b.Stake.Mul(decimal.NewFromInt(1).Add(b.Odds.Mul(decimal.NewFromInt(int64(cnt))))).Round(2)
			return BetResult{BillNo: b.BillNo, CustomerID: b.CustomerID, Selection: b.Selection, Status: BetWon, Payout: payout}, nil
		}
		return lostResult(b), nil
	}
	return BetResult{}, fmt.Errorf("settle: invalid sicbo selection %q", b.Selection)
}

// resolvePoker 底注汇入彩池，按最优 5 张比牌，并列者平分彩池
// 除不尽的分位按座次（bill_no 升序）逐个分配
func resolvePoker(oc *Outcome, bets []Bet) ([]BetResult, error) {
	board, err := engine.DecodeCards(oc.Board)
	if err != nil {
		return nil, fmt.Errorf("settle: bad board: %w", err)
	}
	if len(board) != 5 {
		return nil, fmt.Errorf("settle: poker board expects 5 cards, got %d", len(board))
	}

	// 彩池只含本局待结注单；无手牌的注单退本金
	type entry struct {
		bet  Bet
		hand poker.HandResult
	}
	var (
		out     = make([]BetResult, 0, len(bets))
		entries []entry
		pot     = decimal.Zero
	)
	for _, b := range bets {
		if b.Status != BetPending {
			out = append(out, carryResult(b))
			continue
		}
		hole, ok := oc.Hands[strconv.FormatInt(b.CustomerID, 10)]
		if !ok {
			out = append(out, voidResult(b))
			continue
		}
		holeCards, err := engine.DecodeCards(hole)
		if err != nil {
			return nil, fmt.Errorf("settle: bad hole cards for customer %d: %w", b.CustomerID, err)
		}
		best, err := poker.EvaluateBest(append(append([]engine.Card{}, holeCards...), board...))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{bet: b, hand: best})
		pot = pot.Add(b.Stake)
	}
	if len(entries) == 0 {
		return out, nil
	}

	hands := make([]poker.PlayerHand, 0, len(entries))
	for _, e := range entries {
		hands = append(hands, poker.PlayerHand{PlayerID: e.bet.BillNo, Result: e.hand})
	}
	winners := poker.FindWinners(hands)
	winnerSet := map[string]bool{}
	for _, w := range winners {
		winnerSet[w] = true
	}

	// 平分：份额向下取到分位，余数按注单号升序逐分位派发
	nWinners := decimal.NewFromInt(int64(len(winners)))
	share := pot.Div(nWinners).RoundDown(2)
	remainder := pot.Sub(share.Mul(nWinners)).Round(2)
	sort.Strings(winners)

	shareOf := map[string]decimal.Decimal{}
	for _, w := range winners {
		s := share
		if remainder.IsPositive() {
			cent := decimal.New(1, -2)
			if remainder.LessThan(cent) {
				cent = remainder
			}
			s = s.Add(cent)
			remainder = remainder.Sub(cent)
		}
		shareOf[w] = s
	}

	for _, e := range entries {
		if winnerSet[e.bet.BillNo] {
			out = append(out, BetResult{
				BillNo:     e.bet.BillNo,
				CustomerID: e.bet.CustomerID,
				Selection:  e.bet.Selection,
				Status:     BetWon,
				Payout:     shareOf[e.bet.BillNo],
			})
		} else {
			out = append(out, lostResult(e.bet))
		}
	}
	return out, nil
}
