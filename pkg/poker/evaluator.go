package poker

import (
	evaluator "github.com/chehsunliu/poker"
)

// HandValue is the evaluation of a player's best five-card hand.
// Lower RankValue beats higher, matching the chehsunliu evaluator's
// convention; ties in RankValue are exact ties.
type HandValue struct {
	RankValue   int32  `json:"rank_value"`
	RankClass   int32  `json:"rank_class"`
	Description string `json:"description"`
}

// Beats reports whether v ranks strictly better than other.
func (v HandValue) Beats(other HandValue) bool {
	return v.RankValue < other.RankValue
}

// EvaluateHand ranks the best five-card hand available from the given
// hole and community cards (5 to 7 cards total).
func EvaluateHand(hole, community []Card) HandValue {
	all := make([]evaluator.Card, 0, len(hole)+len(community))
	for _, c := range hole {
		all = append(all, evaluator.NewCard(string(c)))
	}
	for _, c := range community {
		all = append(all, evaluator.NewCard(string(c)))
	}

	rank := evaluator.Evaluate(all)
	return HandValue{
		RankValue:   rank,
		RankClass:   evaluator.RankClass(rank),
		Description: evaluator.RankString(rank),
	}
}

// FindWinners evaluates every contender's hole cards against the
// community cards and returns the wallets holding the best hand.
// Multiple wallets are returned on an exact tie.
func FindWinners(holeCards map[string][]Card, community []Card) []string {
	var winners []string
	var best HandValue

	for wallet, hole := range holeCards {
		if len(hole) == 0 {
			continue
		}
		hv := EvaluateHand(hole, community)
		switch {
		case len(winners) == 0 || hv.Beats(best):
			winners = winners[:0]
			winners = append(winners, wallet)
			best = hv
		case hv.RankValue == best.RankValue:
			winners = append(winners, wallet)
		}
	}
	return winners
}
