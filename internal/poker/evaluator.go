package poker

import (
	"fmt"
	"sort"

	"casino-server/internal/engine"
)

// Category 牌型等级，1 最小 10 最大
type Category int

const (
	HighCard      Category = 1
	OnePair       Category = 2
	TwoPair       Category = 3
	ThreeOfAKind  Category = 4
	Straight      Category = 5
	Flush         Category = 6
	FullHouse     Category = 7
	FourOfAKind   Category = 8
	StraightFlush Category = 9
	RoyalFlush    Category = 10
)

func (c Category) String() string {
	switch c {
	case HighCard:
		return "high_card"
	case OnePair:
		return "one_pair"
	case TwoPair:
		return "two_pair"
	case ThreeOfAKind:
		return "three_of_a_kind"
	case Straight:
		return "straight"
	case Flush:
		return "flush"
	case FullHouse:
		return "full_house"
	case FourOfAKind:
		return "four_of_a_kind"
	case StraightFlush:
		return "straight_flush"
	case RoyalFlush:
		return "royal_flush"
	default:
		return "unknown"
	}
}

// HandResult 5 张成牌的评分（值对象，不可变）
// 比较键为 (Category, Kickers...) 的字典序
type HandResult struct {
	Category Category      `json:"category"`
	Kickers  []int         `json:"kickers"` // 按比较优先级降序
	Cards    []engine.Card `json:"cards"`   // 构成该牌型的 5 张牌
}

// Compare 返回 -1/0/1
func Compare(a, b HandResult) int {
	if a.Category != b.Category {
		if a.Category < b.Category {
			return -1
		}
		return 1
	}
	// 同牌型按 kicker 字典序；长度恒等（同牌型 kicker 结构一致）
	for i := 0; i < len(a.Kickers) && i < len(b.Kickers); i++ {
		if a.Kickers[i] != b.Kickers[i] {
			if a.Kickers[i] < b.Kickers[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// EvaluateBest 从 ≤7 张牌中枚举全部 5 张组合，返回最大牌型
// 7 选 5 最多 21 个组合，暴力枚举即可；不要换成查表方案（正确性需另行验证）
func EvaluateBest(cards []engine.Card) (HandResult, error) {
	if len(cards) < 5 || len(cards) > 7 {
		return HandResult{}, fmt.Errorf("poker: need 5..7 cards, got %d", len(cards))
	}
	seen := map[engine.Card]bool{}
	for _, c := range cards {
		if seen[c] {
			return HandResult{}, fmt.Errorf("poker: duplicate card %s", c)
		}
		seen[c] = true
	}

	var best HandResult
	first := true
	for _, idx := range combinations(len(cards), 5) {
		hand := make([]engine.Card, 5)
		for i, j := range idx {
			hand[i] = cards[j]
		}
		r := scoreFive(hand)
		if first || Compare(r, best) > 0 {
			best = r
			first = false
		}
	}
	return best, nil
}

// PlayerHand 参与比牌的一手牌
type PlayerHand struct {
	PlayerID string
	Result   HandResult
}

// FindWinners 返回与最大牌型打平的全部玩家（支持平分彩池）
func FindWinners(hands []PlayerHand) []string {
	if len(hands) == 0 {
		return nil
	}
	best := hands[0].Result
	for _, h := range hands[1:] {
		if Compare(h.Result, best) > 0 {
			best = h.Result
		}
	}
	var winners []string
	for _, h := range hands {
		if Compare(h.Result, best) == 0 {
			winners = append(winners, h.PlayerID)
		}
	}
	return winners
}

// combinations 生成 C(n,k) 的全部下标组合（升序）
func combinations(n, k int) [][]int {
	var out [][]int
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		cur := make([]int, k)
		copy(cur, idx)
		out = append(out, cur)

		// 从右向左找可进位的位置
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// scoreFive 为恰好 5 张牌评分
func scoreFive(hand []engine.Card) HandResult {
	values := make([]int, 5) // A=14
	for i, c := range hand {
		values[i] = c.HighValue()
	}
	sort.Sort(sort.Reverse(sort.IntSlice(values)))

	flush := true
	for _, c := range hand[1:] {
		if c.Suit != hand[0].Suit {
			flush = false
			break
		}
	}

	straightHigh := straightHighValue(values)

	// 点数频次
	counts := map[int]int{}
	for _, v := range values {
		counts[v]++
	}
	// 按 (频次, 点数) 降序排列的互异点数
	type rankCount struct{ value, count int }
	var rcs []rankCount
	for v, n := range counts {
		rcs = append(rcs, rankCount{v, n})
	}
	sort.Slice(rcs, func(i, j int) bool {
		if rcs[i].count != rcs[j].count {
			return rcs[i].count > rcs[j].count
		}
		return rcs[i].value > rcs[j].value
	})

	res := HandResult{Cards: append([]engine.Card(nil), hand...)}
	switch {
	case flush && straightHigh == 14:
		res.Category = RoyalFlush
		res.Kickers = []int{14}
	case flush && straightHigh > 0:
		res.Category = StraightFlush
		res.Kickers = []int{straightHigh}
	case rcs[0].count == 4:
		res.Category = FourOfAKind
		res.Kickers = []int{rcs[0].value, rcs[1].value}
	case rcs[0].count == 3 && rcs[1].count == 2:
		res.Category = FullHouse
		res.Kickers = []int{rcs[0].value, rcs[1].value}
	case flush:
		res.Category = Flush
		res.Kickers = values
	case straightHigh > 0:
		res.Category = Straight
		res.Kickers = []int{straightHigh}
	case rcs[0].count == 3:
		res.Category = ThreeOfAKind
		res.Kickers = []int{rcs[0].value, rcs[1].value, rcs[2].value}
	case rcs[0].count == 2 && rcs[1].count == 2:
		res.Category = TwoPair
		res.Kickers = []int{rcs[0].value, rcs[1].value, rcs[2].value}
	case rcs[0].count == 2:
		res.Category = OnePair
		res.Kickers = []int{rcs[0].value, rcs[1].value, rcs[2].value, rcs[3].value}
	default:
		res.Category = HighCard
		res.Kickers = values
	}
	return res
}

// straightHighValue 5 张互异且连续返回最大点数，否则 0
// A-2-3-4-5（wheel）视为高牌 5 的顺子
func straightHighValue(sortedDesc []int) int {
	for i := 1; i < len(sortedDesc); i++ {
		if sortedDesc[i] == sortedDesc[i-1] {
			return 0
		}
	}
	if sortedDesc[0]-sortedDesc[4] == 4 {
		return sortedDesc[0]
	}
	// wheel: 14,5,4,3,2
	if sortedDesc[0] == 14 && sortedDesc[1] == 5 && sortedDesc[1]-sortedDesc[4] == 3 {
		return 5
	}
	return 0
}
