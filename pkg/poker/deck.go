package poker

import (
	"fmt"
	"math/rand"
)

// Card is the canonical two-character card code: a rank from
// {2-9,T,J,Q,K,A} followed by a suit from {h,d,c,s}, e.g. "Ah" or "Ts".
// The same encoding is used on the wire and in storage.
type Card string

var (
	ranks = []byte{'2', '3', '4', '5', '6', '7', '8', '9', 'T', 'J', 'Q', 'K', 'A'}
	suits = []byte{'h', 'd', 'c', 's'}
)

// ParseCard validates a card code and returns it as a Card.
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return "", fmt.Errorf("invalid card %q: want rank+suit", s)
	}
	if !validRank(s[0]) {
		return "", fmt.Errorf("invalid card %q: unknown rank %q", s, s[0])
	}
	if !validSuit(s[1]) {
		return "", fmt.Errorf("invalid card %q: unknown suit %q", s, s[1])
	}
	return Card(s), nil
}

func validRank(b byte) bool {
	for _, r := range ranks {
		if r == b {
			return true
		}
	}
	return false
}

func validSuit(b byte) bool {
	for _, s := range suits {
		if s == b {
			return true
		}
	}
	return false
}

// Rank returns the rank character of the card.
func (c Card) Rank() byte { return c[0] }

// Suit returns the suit character of the card.
func (c Card) Suit() byte { return c[1] }

// String returns the card code itself.
func (c Card) String() string { return string(c) }

// NewDeck returns all 52 cards in canonical order: ranks low to high,
// each rank cycling through hearts, diamonds, clubs, spades.
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, r := range ranks {
		for _, s := range suits {
			deck = append(deck, Card([]byte{r, s}))
		}
	}
	return deck
}

// Shuffle returns a uniformly random permutation of deck using the
// supplied rng. The input slice is not modified; callers own all
// randomness so hands can be replayed deterministically in tests.
func Shuffle(rng *rand.Rand, deck []Card) []Card {
	shuffled := make([]Card, len(deck))
	copy(shuffled, deck)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// Deal returns the first n cards of deck and the undealt remainder.
// It has no side effects; the remainder aliases the input slice.
func Deal(deck []Card, n int) (cards, remaining []Card) {
	if n > len(deck) {
		n = len(deck)
	}
	return deck[:n], deck[n:]
}
