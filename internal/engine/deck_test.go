package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cardMultiset(cards []Card) map[Card]int {
	m := make(map[Card]int, len(cards))
	for _, c := range cards {
		m[c]++
	}
	return m
}

func TestNewDeck(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, 52)

	seen := cardMultiset(deck)
	assert.Len(t, seen, 52, "52 张互不相同")
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	reference := cardMultiset(NewDeck())
	for i := 0; i < 20; i++ {
		deck := NewDeck()
		require.NoError(t, Shuffle(deck))
		require.Len(t, deck, 52)
		assert.Equal(t, reference, cardMultiset(deck), "洗牌必须是同一多重集合的置换")
	}
}

func TestDealAlternatingWinningCard(t *testing.T) {
	for i := 0; i < 50; i++ {
		deck := NewDeck()
		require.NoError(t, Shuffle(deck))
		target := deck[0].Rank // 参照牌取第一张
		res, err := DealAlternating(deck[1:], target, SideAndar, "")
		require.NoError(t, err)

		// 赢牌点数恒等于目标点数
		assert.Equal(t, target, res.WinningCard.Rank)
		// 发出的总张数 == 赢牌在发牌序中的位置
		assert.Equal(t, res.WinningCard, res.DealOrder[len(res.DealOrder)-1])
		assert.Equal(t, len(res.Piles[SideAndar])+len(res.Piles[SideBahar]), len(res.DealOrder))
		// 两堆大小最多差一张，起始侧不少于另一侧
		na, nb := len(res.Piles[SideAndar]), len(res.Piles[SideBahar])
		assert.True(t, na == nb || na == nb+1, "andar=%d bahar=%d", na, nb)
	}
}

func TestDealAlternatingAlternates(t *testing.T) {
	deck := NewDeck()
	require.NoError(t, Shuffle(deck))
	target := deck[0].Rank
	res, err := DealAlternating(deck[1:], target, SideBahar, "")
	require.NoError(t, err)

	// 交替性：发牌序中奇数位属于起始侧
	var rebuilt []Card
	a, b := res.Piles[SideBahar], res.Piles[SideAndar]
	for i := 0; i < len(res.DealOrder); i++ {
		if i%2 == 0 {
			rebuilt = append(rebuilt, a[i/2])
		} else {
			rebuilt = append(rebuilt, b[i/2])
		}
	}
	assert.Equal(t, res.DealOrder, rebuilt)
}

func TestDealAlternatingForcedSide(t *testing.T) {
	for _, forced := range []string{SideAndar, SideBahar} {
		for i := 0; i < 30; i++ {
			deck := NewDeck()
			require.NoError(t, Shuffle(deck))
			target := deck[0].Rank
			res, err := DealAlternating(deck[1:], target, SideAndar, forced)
			require.NoError(t, err)

			assert.Equal(t, forced, res.WinningSide, "强制侧必须胜出")
			assert.Equal(t, target, res.WinningCard.Rank)

			// 已发的牌仍是原牌堆的子集且不重复
			seen := map[Card]bool{}
			for _, c := range res.DealOrder {
				assert.False(t, seen[c], "重复发牌: %s", c)
				seen[c] = true
			}
			// 非目标牌保持原相对顺序（首张就是赢牌时可能一张非目标牌都没发）
			var dealtOther, deckOther []Card
			for _, c := range res.DealOrder {
				if c.Rank != target {
					dealtOther = append(dealtOther, c)
				}
			}
			for _, c := range deck[1:] {
				if c.Rank != target {
					deckOther = append(deckOther, c)
				}
			}
			if len(dealtOther) > 0 {
				assert.Equal(t, deckOther[:len(dealtOther)], dealtOther)
			}
		}
	}
}

func TestDealAlternatingNoTargetRank(t *testing.T) {
	// 牌堆中没有目标点数时报错，不得凭空判定胜负
	var deck []Card
	for _, c := range NewDeck() {
		if c.Rank != RankAce {
			deck = append(deck, c)
		}
	}
	_, err := DealAlternating(deck, RankAce, SideAndar, "")
	assert.Error(t, err)
}

func TestDealAlternatingInvalidSides(t *testing.T) {
	deck := NewDeck()
	_, err := DealAlternating(deck, RankAce, "left", "")
	assert.Error(t, err)
	_, err = DealAlternating(deck, RankAce, SideAndar, "middle")
	assert.Error(t, err)
}

func TestParseCardRoundTrip(t *testing.T) {
	for _, c := range NewDeck() {
		got, err := ParseCard(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCard("1S")
	assert.Error(t, err)
	_, err = ParseCard("AX")
	assert.Error(t, err)
	_, err = ParseCard("10S")
	assert.Error(t, err)
}

func TestCardValues(t *testing.T) {
	assert.Equal(t, 1, Card{Spades, RankAce}.Value())
	assert.Equal(t, 14, Card{Spades, RankAce}.HighValue())
	assert.Equal(t, 11, Card{Hearts, RankJack}.Value())
	assert.Equal(t, 12, Card{Hearts, RankQueen}.Value())
	assert.Equal(t, 13, Card{Hearts, RankKing}.Value())
	assert.Equal(t, 10, Card{Clubs, RankTen}.Value())
	assert.Equal(t, 7, Card{Diamonds, RankSeven}.Value())
}
