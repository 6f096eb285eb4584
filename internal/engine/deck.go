package engine

import "fmt"

// 发牌侧：andar 为起始侧
const (
	SideAndar = "andar"
	SideBahar = "bahar"
)

// NewDeck 返回标准 52 张牌（固定顺序，未洗牌）
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, s := range Suits {
		for _, r := range Ranks {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// Shuffle 原地 Fisher–Yates 洗牌
// 每次交换的下标都来自无偏的安全随机源（见 rng.go）
func Shuffle(deck []Card) error {
	for i := len(deck) - 1; i > 0; i-- {
		j, err := Intn(i + 1)
		if err != nil {
			return err
		}
		deck[i], deck[j] = deck[j], deck[i]
	}
	return nil
}

// DealResult 交替发牌结果
// DealOrder 保留逐张发牌顺序，落库后供回放/审计
type DealResult struct {
	Piles       map[string][]Card `json:"piles"`
	WinningSide string            `json:"winning_side"`
	WinningCard Card              `json:"winning_card"`
	DealOrder   []Card            `json:"deal_order"`
}

// DealAlternating 从 startSide 开始两侧交替逐张发牌，
// 首张点数等于 targetRank 的牌落在哪一侧，哪一侧即胜。
//
// forcedSide 为操控钩子（默认空=公平发牌）：强制指定胜侧时，
// 当目标点数牌即将落到错误一侧，该牌被暂存、改发其后第一张非目标牌，
// 暂存牌重新排队，仅当强制侧自然轮到可用的目标牌时才判胜。
// 非决定性牌仍按洗牌后的相对顺序消耗，观察者看到的逐张节奏不变。
// 该路径必须单独审计（见 service 层），不得静默启用。
func DealAlternating(deck []Card, targetRank Rank, startSide, forcedSide string) (*DealResult, error) {
	if startSide != SideAndar && startSide != SideBahar {
		return nil, fmt.Errorf("deck: invalid start side %q", startSide)
	}
	if forcedSide != "" && forcedSide != SideAndar && forcedSide != SideBahar {
		return nil, fmt.Errorf("deck: invalid forced side %q", forcedSide)
	}

	pending := make([]Card, len(deck))
	copy(pending, deck)
	var deferred []Card // 被回避的目标点数牌，保持原相对顺序

	res := &DealResult{Piles: map[string][]Card{SideAndar: {}, SideBahar: {}}}
	side := startSide

	for len(pending) > 0 || len(deferred) > 0 {
		var card Card
		switch {
		case forcedSide == "":
			card, pending = pending[0], pending[1:]
		case side == forcedSide:
			// 强制侧优先拿到此前被回避的目标牌
			if len(deferred) > 0 {
				card, deferred = deferred[0], deferred[1:]
			} else {
				card, pending = pending[0], pending[1:]
			}
		default:
			// 非强制侧：暂存即将到来的目标牌，改发后续第一张非目标牌
			for len(pending) > 0 && pending[0].Rank == targetRank {
				deferred = append(deferred, pending[0])
				pending = pending[1:]
			}
			if len(pending) > 0 {
				card, pending = pending[0], pending[1:]
			} else {
				// 只剩目标牌，无法继续回避
				card, deferred = deferred[0], deferred[1:]
			}
		}

		res.DealOrder = append(res.DealOrder, card)
		res.Piles[side] = append(res.Piles[side], card)
		if card.Rank == targetRank {
			res.WinningSide = side
			res.WinningCard = card
			return res, nil
		}
		if side == SideAndar {
			side = SideBahar
		} else {
			side = SideAndar
		}
	}
	return nil, fmt.Errorf("deck: no card of rank %s in deck", targetRank)
}
