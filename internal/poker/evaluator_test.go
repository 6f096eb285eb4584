package poker

import (
	"testing"

	"casino-server/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cards(t *testing.T, ss ...string) []engine.Card {
	t.Helper()
	out, err := engine.DecodeCards(ss)
	require.NoError(t, err)
	return out
}

func TestEvaluateBestRoyalFlush(t *testing.T) {
	r, err := EvaluateBest(cards(t, "AS", "KS", "QS", "JS", "TS"))
	require.NoError(t, err)
	assert.Equal(t, RoyalFlush, r.Category)
	assert.Equal(t, Category(10), r.Category, "皇家同花顺是最高牌型")
}

func TestEvaluateBestFullHouseFromSeven(t *testing.T) {
	// 2♣ 2♦ 2♥ 3♠ 3♣ 7♦ 9♥ -> 222 + 33 葫芦
	r, err := EvaluateBest(cards(t, "2C", "2D", "2H", "3S", "3C", "7D", "9H"))
	require.NoError(t, err)
	assert.Equal(t, FullHouse, r.Category)
	assert.Equal(t, []int{2, 3}, r.Kickers, "kicker 顺序: 三条点数在前，对子点数在后")
}

func TestCompareFullHouses(t *testing.T) {
	// 333+22 > 222+AA：先比三条，再比对子
	low, err := EvaluateBest(cards(t, "2C", "2D", "2H", "AS", "AC"))
	require.NoError(t, err)
	high, err := EvaluateBest(cards(t, "3C", "3D", "3H", "2S", "2C"))
	require.NoError(t, err)
	assert.Equal(t, 1, Compare(high, low))
	assert.Equal(t, -1, Compare(low, high))

	// 同三条比对子
	a, err := EvaluateBest(cards(t, "3C", "3D", "3H", "KS", "KC"))
	require.NoError(t, err)
	assert.Equal(t, 1, Compare(a, high))
}

func TestEvaluateBestWheelStraight(t *testing.T) {
	r, err := EvaluateBest(cards(t, "AS", "2C", "3D", "4H", "5S"))
	require.NoError(t, err)
	assert.Equal(t, Straight, r.Category)
	assert.Equal(t, []int{5}, r.Kickers, "A-2-3-4-5 的顺子高牌是 5")

	// wheel 同花顺不是皇家
	sf, err := EvaluateBest(cards(t, "AS", "2S", "3S", "4S", "5S"))
	require.NoError(t, err)
	assert.Equal(t, StraightFlush, sf.Category)

	// 6 高顺子 > wheel
	six, err := EvaluateBest(cards(t, "2C", "3D", "4H", "5S", "6C"))
	require.NoError(t, err)
	assert.Equal(t, 1, Compare(six, r))
}

func TestEvaluateBestCategories(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want Category
	}{
		{"high card", []string{"AS", "KD", "9C", "5H", "2S"}, HighCard},
		{"one pair", []string{"AS", "AD", "9C", "5H", "2S"}, OnePair},
		{"two pair", []string{"AS", "AD", "9C", "9H", "2S"}, TwoPair},
		{"trips", []string{"AS", "AD", "AC", "9H", "2S"}, ThreeOfAKind},
		{"straight", []string{"9S", "8D", "7C", "6H", "5S"}, Straight},
		{"flush", []string{"AH", "JH", "9H", "5H", "2H"}, Flush},
		{"quads", []string{"AS", "AD", "AC", "AH", "2S"}, FourOfAKind},
		{"straight flush", []string{"9H", "8H", "7H", "6H", "5H"}, StraightFlush},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, err := EvaluateBest(cards(t, c.in...))
			require.NoError(t, err)
			assert.Equal(t, c.want, r.Category)
		})
	}
}

func TestEvaluateBestPicksBestCombination(t *testing.T) {
	// 7 张里同时有同花与顺子，必须挑出同花顺
	r, err := EvaluateBest(cards(t, "9H", "8H", "7H", "6H", "5H", "AS", "AD"))
	require.NoError(t, err)
	assert.Equal(t, StraightFlush, r.Category)
	assert.Equal(t, []int{9}, r.Kickers)
}

func TestEvaluateBestKickerOrdering(t *testing.T) {
	// 同为一对时逐个比 kicker
	a, err := EvaluateBest(cards(t, "KS", "KD", "AC", "9H", "2S"))
	require.NoError(t, err)
	b, err := EvaluateBest(cards(t, "KH", "KC", "AD", "8H", "2C"))
	require.NoError(t, err)
	assert.Equal(t, 1, Compare(a, b))

	// 完全同构 -> 平
	c1, err := EvaluateBest(cards(t, "KS", "KD", "AC", "9H", "2S"))
	require.NoError(t, err)
	c2, err := EvaluateBest(cards(t, "KH", "KC", "AD", "9S", "2C"))
	require.NoError(t, err)
	assert.Equal(t, 0, Compare(c1, c2))
}

func TestEvaluateBestInputValidation(t *testing.T) {
	_, err := EvaluateBest(cards(t, "AS", "KD", "9C", "5H"))
	assert.Error(t, err, "少于 5 张")
	_, err = EvaluateBest(cards(t, "AS", "KD", "9C", "5H", "2S", "3S", "4S", "6S"))
	assert.Error(t, err, "多于 7 张")
	_, err = EvaluateBest(cards(t, "AS", "AS", "9C", "5H", "2S"))
	assert.Error(t, err, "重复牌")
}

func TestFindWinnersSplitPot(t *testing.T) {
	mk := func(ss ...string) HandResult {
		r, err := EvaluateBest(cards(t, ss...))
		require.NoError(t, err)
		return r
	}
	hands := []PlayerHand{
		{PlayerID: "p1", Result: mk("AS", "KS", "QS", "JS", "TS")},
		{PlayerID: "p2", Result: mk("AH", "KH", "QH", "JH", "TH")},
		{PlayerID: "p3", Result: mk("9H", "8H", "7H", "6H", "5H")},
	}
	assert.Equal(t, []string{"p1", "p2"}, FindWinners(hands), "并列最大的全部胜出")

	assert.Nil(t, FindWinners(nil))
	assert.Equal(t, []string{"p3"}, FindWinners(hands[2:]))
}
