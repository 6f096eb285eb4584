package settle

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkBet(billNo, selection string, stake int64, gameType string) Bet {
	odds, err := OddsFor(gameType, selection)
	if err != nil {
		panic(err)
	}
	return Bet{
		BillNo:     billNo,
		CustomerID: 100,
		Selection:  selection,
		Stake:      decimal.NewFromInt(stake),
		Odds:       odds,
		Status:     BetPending,
	}
}

func resultByBill(t *testing.T, rs []BetResult, billNo string) BetResult {
	t.Helper()
	for _, r := range rs {
		if r.BillNo == billNo {
			return r
		}
	}
	t.Fatalf("no result for %s", billNo)
	return BetResult{}
}

func TestResolveAndarBahar(t *testing.T) {
	oc := &Outcome{GameType: GameAndarBahar, WinningSide: "andar", WinningCard: "7S", TargetRank: "7"}
	bets := []Bet{
		mkBet("b1", "andar", 100, GameAndarBahar),
		mkBet("b2", "bahar", 100, GameAndarBahar),
	}
	rs, err := ResolveBets(oc, bets)
	require.NoError(t, err)

	// andar 净赔率 0.9：总回报 1.9x
	r1 := resultByBill(t, rs, "b1")
	assert.Equal(t, BetWon, r1.Status)
	assert.Equal(t, "190.00", r1.Payout.StringFixed(2))

	r2 := resultByBill(t, rs, "b2")
	assert.Equal(t, BetLost, r2.Status)
	assert.True(t, r2.Payout.IsZero())

	// bahar 胜时总回报 2.0x
	oc.WinningSide = "bahar"
	rs, err = ResolveBets(oc, bets)
	require.NoError(t, err)
	assert.Equal(t, "200.00", resultByBill(t, rs, "b2").Payout.StringFixed(2))
}

func TestResolveRouletteStraight(t *testing.T) {
	for n := 0; n <= 36; n++ {
		oc := WheelOutcome(n)
		hit := mkBet("hit", fmt.Sprintf("straight:%d", n), 10, GameRoulette)
		miss := mkBet("miss", fmt.Sprintf("straight:%d", (n+1)%37), 10, GameRoulette)
		rs, err := ResolveBets(oc, []Bet{hit, miss})
		require.NoError(t, err)

		// 直注净赢恒为 35 倍本金
		r := resultByBill(t, rs, "hit")
		assert.Equal(t, BetWon, r.Status)
		assert.Equal(t, "350.00", r.Payout.Sub(hit.Stake).StringFixed(2), "number=%d", n)
		assert.Equal(t, BetLost, resultByBill(t, rs, "miss").Status)
	}
}

func TestResolveRouletteColor(t *testing.T) {
	for n := 1; n <= 36; n++ {
		oc := WheelOutcome(n)
		rs, err := ResolveBets(oc, []Bet{
			mkBet("red", "red", 10, GameRoulette),
			mkBet("black", "black", 10, GameRoulette),
		})
		require.NoError(t, err)
		redWon := resultByBill(t, rs, "red").Status == BetWon
		blackWon := resultByBill(t, rs, "black").Status == BetWon
		assert.True(t, redWon != blackWon, "非零号恰有一种颜色命中: n=%d", n)
	}

	// 零号红黑通杀
	rs, err := ResolveBets(WheelOutcome(0), []Bet{
		mkBet("red", "red", 10, GameRoulette),
		mkBet("black", "black", 10, GameRoulette),
		mkBet("even", "even", 10, GameRoulette),
		mkBet("low", "low", 10, GameRoulette),
	})
	require.NoError(t, err)
	for _, r := range rs {
		assert.Equal(t, BetLost, r.Status, r.BillNo)
	}
}

func TestResolveRouletteGroups(t *testing.T) {
	rs, err := ResolveBets(WheelOutcome(14), []Bet{
		mkBet("d2", "dozen:2", 30, GameRoulette),  // 13-24 命中
		mkBet("d1", "dozen:1", 30, GameRoulette),  // 未中
		mkBet("c2", "column:2", 30, GameRoulette), // 14%3==2 命中
		mkBet("c3", "column:3", 30, GameRoulette), // 未中
		mkBet("odd", "odd", 30, GameRoulette),     // 14 偶数，未中
		mkBet("high", "high", 30, GameRoulette),   // 未中
		mkBet("low", "low", 30, GameRoulette),     // 命中
	})
	require.NoError(t, err)
	assert.Equal(t, BetWon, resultByBill(t, rs, "d2").Status)
	assert.Equal(t, "90.00", resultByBill(t, rs, "d2").Payout.StringFixed(2), "2:1 总回报 3x")
	assert.Equal(t, BetLost, resultByBill(t, rs, "d1").Status)
	assert.Equal(t, BetWon, resultByBill(t, rs, "c2").Status)
	assert.Equal(t, BetLost, resultByBill(t, rs, "c3").Status)
	assert.Equal(t, BetLost, resultByBill(t, rs, "odd").Status)
	assert.Equal(t, BetLost, resultByBill(t, rs, "high").Status)
	assert.Equal(t, BetWon, resultByBill(t, rs, "low").Status)
}

func TestResolveSicboTriple(t *testing.T) {
	// (1,1,1)：any_triple 与 triple:1 中，small/big 双杀（围骰通吃）
	oc := DiceOutcome([]int{1, 1, 1})
	rs, err := ResolveBets(oc, []Bet{
		mkBet("any", "any_triple", 10, GameSicbo),
		mkBet("t1", "triple:1", 10, GameSicbo),
		mkBet("t2", "triple:2", 10, GameSicbo),
		mkBet("small", "small", 10, GameSicbo),
		mkBet("big", "big", 10, GameSicbo),
	})
	require.NoError(t, err)
	assert.Equal(t, BetWon, resultByBill(t, rs, "any").Status)
	assert.Equal(t, "310.00", resultByBill(t, rs, "any").Payout.StringFixed(2), "30:1")
	assert.Equal(t, BetWon, resultByBill(t, rs, "t1").Status)
	assert.Equal(t, "1810.00", resultByBill(t, rs, "t1").Payout.StringFixed(2), "180:1")
	assert.Equal(t, BetLost, resultByBill(t, rs, "t2").Status)
	assert.Equal(t, BetLost, resultByBill(t, rs, "small").Status)
	assert.Equal(t, BetLost, resultByBill(t, rs, "big").Status)
}

func TestResolveSicboSmallBigParity(t *testing.T) {
	// (2,3,5) 总点 10：small 中、big 不中、odd 不中（10 为偶）
	oc := DiceOutcome([]int{2, 3, 5})
	rs, err := ResolveBets(oc, []Bet{
		mkBet("small", "small", 10, GameSicbo),
		mkBet("big", "big", 10, GameSicbo),
		mkBet("odd", "odd", 10, GameSicbo),
		mkBet("even", "even", 10, GameSicbo),
		mkBet("total", "total:10", 10, GameSicbo),
		mkBet("combo", "combo:2-5", 10, GameSicbo),
		mkBet("combo2", "combo:1-2", 10, GameSicbo),
	})
	require.NoError(t, err)
	assert.Equal(t, BetWon, resultByBill(t, rs, "small").Status)
	assert.Equal(t, BetLost, resultByBill(t, rs, "big").Status)
	assert.Equal(t, BetLost, resultByBill(t, rs, "odd").Status)
	assert.Equal(t, BetWon, resultByBill(t, rs, "even").Status)
	assert.Equal(t, BetWon, resultByBill(t, rs, "total").Status)
	assert.Equal(t, "70.00", resultByBill(t, rs, "total").Payout.StringFixed(2), "总点 10 赔率 6:1")
	assert.Equal(t, BetWon, resultByBill(t, rs, "combo").Status)
	assert.Equal(t, "60.00", resultByBill(t, rs, "combo").Payout.StringFixed(2), "5:1")
	assert.Equal(t, BetLost, resultByBill(t, rs, "combo2").Status)
}

func TestResolveSicboDoubleAndSingle(t *testing.T) {
	oc := DiceOutcome([]int{4, 4, 2})
	rs, err := ResolveBets(oc, []Bet{
		mkBet("d4", "double:4", 10, GameSicbo),
		mkBet("d2", "double:2", 10, GameSicbo),
		mkBet("s4", "single:4", 10, GameSicbo), // 两颗 4 -> 1+2 倍
		mkBet("s2", "single:2", 10, GameSicbo), // 一颗 2 -> 1+1 倍
		mkBet("s6", "single:6", 10, GameSicbo),
	})
	require.NoError(t, err)
	assert.Equal(t, BetWon, resultByBill(t, rs, "d4").Status)
	assert.Equal(t, "110.00", resultByBill(t, rs, "d4").Payout.StringFixed(2), "10:1")
	assert.Equal(t, BetLost, resultByBill(t, rs, "d2").Status, "恰好两颗才算指定对子")
	assert.Equal(t, "30.00", resultByBill(t, rs, "s4").Payout.StringFixed(2))
	assert.Equal(t, "20.00", resultByBill(t, rs, "s2").Payout.StringFixed(2))
	assert.Equal(t, BetLost, resultByBill(t, rs, "s6").Status)

	// 豹子不算指定对子
	rs, err = ResolveBets(DiceOutcome([]int{4, 4, 4}), []Bet{mkBet("d4", "double:4", 10, GameSicbo)})
	require.NoError(t, err)
	assert.Equal(t, BetLost, resultByBill(t, rs, "d4").Status)
}

func TestResolvePokerSplitPot(t *testing.T) {
	// 公共牌皇家同花顺在外，两家平分；第三家失败
	oc := &Outcome{
		GameType: GamePoker,
		Board:    []string{"9C", "8D", "2S", "3H", "7C"},
		Hands: map[string][]string{
			"1": {"AS", "AD"}, // 一对 A
			"2": {"AH", "AC"}, // 一对 A（同构，平分）
			"3": {"KS", "QD"}, // 高牌
		},
	}
	bets := []Bet{
		{BillNo: "p1", CustomerID: 1, Selection: "ante", Stake: decimal.NewFromInt(50), Status: BetPending},
		{BillNo: "p2", CustomerID: 2, Selection: "ante", Stake: decimal.NewFromInt(50), Status: BetPending},
		{BillNo: "p3", CustomerID: 3, Selection: "ante", Stake: decimal.NewFromInt(50), Status: BetPending},
	}
	rs, err := ResolveBets(oc, bets)
	require.NoError(t, err)

	assert.Equal(t, BetWon, resultByBill(t, rs, "p1").Status)
	assert.Equal(t, "75.00", resultByBill(t, rs, "p1").Payout.StringFixed(2))
	assert.Equal(t, BetWon, resultByBill(t, rs, "p2").Status)
	assert.Equal(t, "75.00", resultByBill(t, rs, "p2").Payout.StringFixed(2))
	assert.Equal(t, BetLost, resultByBill(t, rs, "p3").Status)
}

func TestResolvePokerSplitRemainder(t *testing.T) {
	// 公共牌即最大牌型，三家打平：彩池 100 -> 33.33×3 余 0.01 给注单号最小者
	oc := &Outcome{
		GameType: GamePoker,
		Board:    []string{"TS", "JS", "QS", "KS", "AS"},
		Hands: map[string][]string{
			"1": {"2C", "3D"},
			"2": {"4H", "5C"},
			"3": {"6D", "7H"},
		},
	}
	bets := []Bet{
		{BillNo: "a", CustomerID: 1, Selection: "ante", Stake: decimal.RequireFromString("33.34"), Status: BetPending},
		{BillNo: "b", CustomerID: 2, Selection: "ante", Stake: decimal.RequireFromString("33.33"), Status: BetPending},
		{BillNo: "c", CustomerID: 3, Selection: "ante", Stake: decimal.RequireFromString("33.33"), Status: BetPending},
	}
	rs, err := ResolveBets(oc, bets)
	require.NoError(t, err)

	pa := resultByBill(t, rs, "a").Payout
	pb := resultByBill(t, rs, "b").Payout
	pc := resultByBill(t, rs, "c").Payout
	assert.Equal(t, "100.00", pa.Add(pb).Add(pc).StringFixed(2), "彩池分毫不差")
	assert.Equal(t, "33.34", pa.StringFixed(2))
	assert.Equal(t, "33.33", pb.StringFixed(2))
	assert.Equal(t, "33.33", pc.StringFixed(2))
}

func TestResolvePokerMissingHandVoids(t *testing.T) {
	oc := &Outcome{
		GameType: GamePoker,
		Board:    []string{"9C", "8D", "2S", "3H", "7C"},
		Hands:    map[string][]string{"1": {"AS", "AD"}},
	}
	bets := []Bet{
		{BillNo: "p1", CustomerID: 1, Selection: "ante", Stake: decimal.NewFromInt(50), Status: BetPending},
		{BillNo: "p9", CustomerID: 9, Selection: "ante", Stake: decimal.NewFromInt(50), Status: BetPending},
	}
	rs, err := ResolveBets(oc, bets)
	require.NoError(t, err)

	// 未被发牌的玩家退还本金，不进彩池
	r9 := resultByBill(t, rs, "p9")
	assert.Equal(t, BetVoid, r9.Status)
	assert.Equal(t, "50.00", r9.Payout.StringFixed(2))
	assert.Equal(t, "50.00", resultByBill(t, rs, "p1").Payout.StringFixed(2), "彩池只含其自身本金")
}

func TestResolveSkipsSettledBets(t *testing.T) {
	oc := &Outcome{GameType: GameAndarBahar, WinningSide: "andar"}
	b := mkBet("b1", "andar", 100, GameAndarBahar)
	b.Status = BetWon
	rs, err := ResolveBets(oc, []Bet{b})
	require.NoError(t, err)
	assert.Equal(t, BetWon, rs[0].Status)
	assert.True(t, rs[0].Payout.IsZero(), "已结注单不再产生派彩")
}

func TestOddsForValidation(t *testing.T) {
	valid := []struct{ game, sel string }{
		{GameAndarBahar, "andar"},
		{GameAndarBahar, "bahar"},
		{GameRoulette, "straight:0"},
		{GameRoulette, "straight:36"},
		{GameRoulette, "dozen:3"},
		{GameRoulette, "column:1"},
		{GameSicbo, "total:4"},
		{GameSicbo, "total:17"},
		{GameSicbo, "combo:1-6"},
		{GameSicbo, "triple:6"},
		{GameSicbo, "double:1"},
		{GameSicbo, "single:3"},
		{GamePoker, "ante"},
	}
	for _, v := range valid {
		_, err := OddsFor(v.game, v.sel)
		assert.NoError(t, err, "%s/%s", v.game, v.sel)
	}

	invalid := []struct{ game, sel string }{
		{GameAndarBahar, "tie"},
		{GameRoulette, "straight:37"},
		{GameRoulette, "dozen:0"},
		{GameRoulette, "green"},
		{GameSicbo, "total:3"},
		{GameSicbo, "total:18"},
		{GameSicbo, "combo:3-3"},
		{GameSicbo, "combo:6-1"},
		{GameSicbo, "triple:7"},
		{GamePoker, "straight:1"},
		{"baccarat", "player"},
	}
	for _, v := range invalid {
		_, err := OddsFor(v.game, v.sel)
		assert.Error(t, err, "%s/%s", v.game, v.sel)
	}
}

func TestResolveUnknownGame(t *testing.T) {
	_, err := ResolveBets(&Outcome{GameType: "baccarat"}, nil)
	assert.Error(t, err)
	_, err = ResolveBets(nil, nil)
	assert.Error(t, err)
}
