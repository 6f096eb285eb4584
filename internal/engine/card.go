package engine

import "fmt"

// Suit 花色
type Suit string

const (
	Spades   Suit = "S"
	Hearts   Suit = "H"
	Diamonds Suit = "D"
	Clubs    Suit = "C"
)

// Rank 点数，A 在不同玩法下取 1 或 14（见 Value/HighValue）
type Rank string

const (
	RankAce   Rank = "A"
	RankTwo   Rank = "2"
	RankThree Rank = "3"
	RankFour  Rank = "4"
	RankFive  Rank = "5"
	RankSix   Rank = "6"
	RankSeven Rank = "7"
	RankEight Rank = "8"
	RankNine  Rank = "9"
	RankTen   Rank = "T"
	RankJack  Rank = "J"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
)

// Suits 按固定顺序枚举（生成标准牌堆用）
var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// Ranks 按固定顺序枚举
var Ranks = []Rank{
	RankAce, RankTwo, RankThree, RankFour, RankFive, RankSix, RankSeven,
	RankEight, RankNine, RankTen, RankJack, RankQueen, RankKing,
}

// Card 牌面值对象（不可变）
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// Value 牌点: A=1, 2..10 按面值, J=11, Q=12, K=13
func (c Card) Value() int {
	switch c.Rank {
	case RankAce:
		return 1
	case RankTen:
		return 10
	case RankJack:
		return 11
	case RankQueen:
		return 12
	case RankKing:
		return 13
	default:
		return int(c.Rank[0] - '0')
	}
}

// HighValue 牌点(A为大): A=14，其余同 Value
func (c Card) HighValue() int {
	if c.Rank == RankAce {
		return 14
	}
	return c.Value()
}

// String 紧凑编码，如 "AS"、"TD"、"KH"
func (c Card) String() string { return string(c.Rank) + string(c.Suit) }

// ParseCard 解析紧凑编码
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card: %q", s)
	}
	c := Card{Suit: Suit(s[1:]), Rank: Rank(s[:1])}
	okSuit := false
	for _, su := range Suits {
		if c.Suit == su {
			okSuit = true
			break
		}
	}
	okRank := false
	for _, r := range Ranks {
		if c.Rank == r {
			okRank = true
			break
		}
	}
	if !okSuit || !okRank {
		return Card{}, fmt.Errorf("invalid card: %q", s)
	}
	return c, nil
}

// EncodeCards 批量编码（JSON 落库用）
func EncodeCards(cards []Card) []string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.String())
	}
	return out
}

// DecodeCards 批量解码
func DecodeCards(ss []string) ([]Card, error) {
	out := make([]Card, 0, len(ss))
	for _, s := range ss {
		c, err := ParseCard(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
