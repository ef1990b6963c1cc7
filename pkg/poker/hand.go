package poker

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
)

// ErrDeckContinuity is returned when a hand needs community cards but
// the process no longer holds the deck remainder for it, e.g. after a
// restart mid-hand. Deck remainders are never persisted.
var ErrDeckContinuity = errors.New("deck remainder lost for hand in progress")

// Engine drives one hand per room through its lifecycle: dealing,
// blinds, betting rounds, stage advancement and showdown. Chip counts
// are applied through the room directory.
//
// The engine does not serialize operations per room; callers must
// ensure that all state-changing calls for the same room are applied
// one at a time. The internal mutex only guards the rng and the
// process-local deck remainders.
type Engine struct {
	dir Directory
	log slog.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	decks map[string][]Card // room id -> undealt remainder, in memory only
}

// NewEngine creates a hand engine over the given directory. A nil rng
// falls back to a time-seeded source; tests inject a fixed seed.
func NewEngine(dir Directory, log slog.Logger, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		dir:   dir,
		log:   log,
		rng:   rng,
		decks: make(map[string][]Card),
	}
}

// StartHand moves a waiting room into preflop: advances the button,
// deals hole cards, posts blinds and sets the first player to act.
// It fails with ErrNotEnoughPlayers unless at least two active players
// with chips are seated, and with ErrHandInProgress if a hand is live.
func (e *Engine) StartHand(roomID string) (*HandState, error) {
	room, err := e.dir.GetRoom(roomID)
	if err != nil {
		return nil, err
	}

	players, err := e.fundedPlayers(roomID)
	if err != nil {
		return nil, err
	}
	if len(players) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	state, err := e.dir.GetHandState(roomID)
	if err != nil {
		return nil, err
	}
	if state.Stage != StageWaiting {
		return nil, ErrHandInProgress
	}

	// Advance the button to the next occupied active seat. The search
	// is bounded by the table capacity.
	occupied := make(map[int]bool, len(players))
	for _, p := range players {
		occupied[p.SeatPosition] = true
	}
	dealer := (state.DealerPosition + 1) % room.MaxPlayers
	found := false
	for i := 0; i < room.MaxPlayers; i++ {
		if occupied[dealer] {
			found = true
			break
		}
		dealer = (dealer + 1) % room.MaxPlayers
	}
	if !found {
		return nil, ErrNotEnoughPlayers
	}

	e.mu.Lock()
	deck := Shuffle(e.rng, NewDeck())
	e.mu.Unlock()

	// Two hole cards per active player, dealt in seat order starting
	// left of the button.
	hole := make(map[string][]Card, len(players))
	for _, p := range rotateFromSeat(players, dealer) {
		var cards []Card
		cards, deck = Deal(deck, 2)
		hole[p.WalletAddress] = cards
	}

	seats := make([]int, 0, len(players))
	bySeat := make(map[int]*Player, len(players))
	for _, p := range players {
		seats = append(seats, p.SeatPosition)
		bySeat[p.SeatPosition] = p
	}
	sort.Ints(seats)
	dealerIdx := 0
	for i, s := range seats {
		if s == dealer {
			dealerIdx = i
			break
		}
	}

	smallSeat := seats[(dealerIdx+1)%len(seats)]
	bigSeat := seats[(dealerIdx+2)%len(seats)]
	firstToAct := seats[(dealerIdx+3)%len(seats)]

	// A short stack posts what it can; the blind is truncated, never
	// an error.
	bets := make(map[int]int64, 2)
	var pot int64
	for _, blind := range []struct {
		seat   int
		amount int64
	}{{smallSeat, room.SmallBlind}, {bigSeat, room.BigBlind}} {
		p := bySeat[blind.seat]
		posted := blind.amount
		if posted > p.ChipCount {
			posted = p.ChipCount
		}
		bets[blind.seat] += posted
		pot += posted
		p.ChipCount -= posted
		if err := e.dir.SetChipCount(p.WalletAddress, roomID, p.ChipCount); err != nil {
			return nil, fmt.Errorf("post blind for seat %d: %w", blind.seat, err)
		}
	}

	state.DealerPosition = dealer
	state.CommunityCards = []Card{}
	state.Pot = pot
	state.CurrentBet = room.BigBlind
	state.CurrentPlayerSeat = firstToAct
	state.Stage = StagePreflop
	state.HoleCards = hole
	state.Bets = bets
	state.LastActionTime = time.Now().UnixMilli()

	e.mu.Lock()
	e.decks[roomID] = deck
	e.mu.Unlock()

	if err := e.dir.SaveHandState(state); err != nil {
		return nil, fmt.Errorf("save hand state: %w", err)
	}

	e.log.Debugf("room %s: hand started, dealer=%d sb=%d bb=%d first=%d pot=%d",
		roomID, dealer, smallSeat, bigSeat, firstToAct, pot)
	return state, nil
}

// ApplyAction validates and applies one player action to the live
// hand. Invalid actions are rejected with a sentinel error and leave
// all state untouched.
func (e *Engine) ApplyAction(roomID, wallet string, action Action) (*HandState, error) {
	state, err := e.dir.GetHandState(roomID)
	if err != nil {
		return nil, err
	}
	if state.Stage == StageWaiting {
		return nil, ErrNoActiveHand
	}

	players, err := e.dir.ListSeatedPlayers(roomID)
	if err != nil {
		return nil, err
	}
	var actor *Player
	active := make([]*Player, 0, len(players))
	for _, p := range players {
		if !p.IsActive {
			continue
		}
		active = append(active, p)
		if p.WalletAddress == wallet {
			actor = p
		}
	}
	if actor == nil {
		return nil, ErrNotSeated
	}
	if state.CurrentPlayerSeat != actor.SeatPosition {
		return nil, ErrNotYourTurn
	}
	if _, contesting := state.HoleCards[wallet]; !contesting {
		return nil, ErrNotYourTurn
	}

	seatBet := state.Bets[actor.SeatPosition]

	switch action.Type {
	case ActionFold:
		delete(state.HoleCards, wallet)
		remaining := contenders(active, state)
		if len(remaining) == 1 {
			// Uncontested: the last player standing takes the pot and
			// the hand ends here, no stage logic runs.
			winner := remaining[0]
			winner.ChipCount += state.Pot
			if err := e.dir.SetChipCount(winner.WalletAddress, roomID, winner.ChipCount); err != nil {
				return nil, fmt.Errorf("award pot: %w", err)
			}
			e.log.Infof("room %s: %s wins %d uncontested", roomID, winner.WalletAddress, state.Pot)
			e.finishHand(state)
			state.LastActionTime = time.Now().UnixMilli()
			if err := e.dir.SaveHandState(state); err != nil {
				return nil, fmt.Errorf("save hand state: %w", err)
			}
			return state, nil
		}

	case ActionCall:
		due := state.CurrentBet - seatBet
		if due < 0 {
			due = 0
		}
		if due > actor.ChipCount {
			// Partial call puts the player all-in.
			due = actor.ChipCount
		}
		state.Bets[actor.SeatPosition] = seatBet + due
		state.Pot += due
		actor.ChipCount -= due
		if err := e.dir.SetChipCount(wallet, roomID, actor.ChipCount); err != nil {
			return nil, fmt.Errorf("apply call: %w", err)
		}

	case ActionRaise:
		if action.Amount <= 0 {
			return nil, ErrInvalidRaise
		}
		add := action.Amount
		if add > actor.ChipCount {
			add = actor.ChipCount
		}
		total := seatBet + add
		state.Bets[actor.SeatPosition] = total
		state.Pot += add
		state.CurrentBet = total
		actor.ChipCount -= add
		if err := e.dir.SetChipCount(wallet, roomID, actor.ChipCount); err != nil {
			return nil, fmt.Errorf("apply raise: %w", err)
		}

	case ActionCheck:
		if seatBet < state.CurrentBet {
			return nil, ErrCheckNotAllowed
		}

	default:
		return nil, fmt.Errorf("unknown action %q", action.Type)
	}

	inHand := contenders(active, state)
	state.CurrentPlayerSeat = nextSeat(inHand, actor.SeatPosition)

	if roundComplete(inHand, state) {
		if err := e.advanceStage(state, inHand); err != nil {
			return nil, err
		}
		// Nobody left with chips means no more betting decisions: run
		// the remaining streets out to showdown instead of parking the
		// turn on an all-in player.
		for state.Stage != StageWaiting && allAllIn(inHand) {
			if err := e.advanceStage(state, inHand); err != nil {
				return nil, err
			}
		}
	}

	state.LastActionTime = time.Now().UnixMilli()
	if err := e.dir.SaveHandState(state); err != nil {
		return nil, fmt.Errorf("save hand state: %w", err)
	}
	return state, nil
}

// fundedPlayers returns the room's active players holding chips,
// sorted by seat.
func (e *Engine) fundedPlayers(roomID string) ([]*Player, error) {
	players, err := e.dir.ListSeatedPlayers(roomID)
	if err != nil {
		return nil, err
	}
	funded := make([]*Player, 0, len(players))
	for _, p := range players {
		if p.IsActive && p.ChipCount > 0 {
			funded = append(funded, p)
		}
	}
	sort.Slice(funded, func(i, j int) bool {
		return funded[i].SeatPosition < funded[j].SeatPosition
	})
	return funded, nil
}

// contenders returns the active players still holding hole cards in
// this hand, sorted by seat.
func contenders(active []*Player, state *HandState) []*Player {
	in := make([]*Player, 0, len(active))
	for _, p := range active {
		if _, ok := state.HoleCards[p.WalletAddress]; ok {
			in = append(in, p)
		}
	}
	sort.Slice(in, func(i, j int) bool {
		return in[i].SeatPosition < in[j].SeatPosition
	})
	return in
}

// nextSeat picks the next seat to act after from, ascending with
// wraparound among the given contenders. All-in players are skipped
// unless every contender is all-in.
func nextSeat(inHand []*Player, from int) int {
	if len(inHand) == 0 {
		return NoSeat
	}
	ordered := rotateFromSeat(inHand, from)
	for _, p := range ordered {
		if p.ChipCount > 0 {
			return p.SeatPosition
		}
	}
	return ordered[0].SeatPosition
}

// allAllIn reports whether every contender has committed their whole
// stack.
func allAllIn(inHand []*Player) bool {
	for _, p := range inHand {
		if p.ChipCount > 0 {
			return false
		}
	}
	return len(inHand) > 0
}

// rotateFromSeat reorders seat-sorted players so the first element is
// the first seat strictly after the given seat, wrapping around.
func rotateFromSeat(players []*Player, seat int) []*Player {
	sorted := make([]*Player, len(players))
	copy(sorted, players)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SeatPosition < sorted[j].SeatPosition
	})
	start := 0
	for i, p := range sorted {
		if p.SeatPosition > seat {
			start = i
			break
		}
	}
	return append(sorted[start:], sorted[:start]...)
}

// roundComplete reports whether every contender has either matched
// the table bet exactly or is all-in.
func roundComplete(inHand []*Player, state *HandState) bool {
	for _, p := range inHand {
		if state.Bets[p.SeatPosition] != state.CurrentBet && p.ChipCount > 0 {
			return false
		}
	}
	return true
}

// advanceStage moves the hand to its next stage on round completion,
// dealing community cards from the retained deck remainder.
func (e *Engine) advanceStage(state *HandState, inHand []*Player) error {
	state.CurrentBet = 0
	state.Bets = map[int]int64{}

	switch state.Stage {
	case StagePreflop:
		if err := e.dealCommunity(state, 3); err != nil {
			return err
		}
		state.Stage = StageFlop
	case StageFlop:
		if err := e.dealCommunity(state, 1); err != nil {
			return err
		}
		state.Stage = StageTurn
	case StageTurn:
		if err := e.dealCommunity(state, 1); err != nil {
			return err
		}
		state.Stage = StageRiver
	case StageRiver:
		state.Stage = StageShowdown
		return e.resolveShowdown(state, inHand)
	}
	return nil
}

// dealCommunity appends n cards from the room's deck remainder.
func (e *Engine) dealCommunity(state *HandState, n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	deck, ok := e.decks[state.RoomID]
	if !ok || len(deck) < n {
		return ErrDeckContinuity
	}
	cards, remaining := Deal(deck, n)
	state.CommunityCards = append(state.CommunityCards, cards...)
	e.decks[state.RoomID] = remaining
	return nil
}

// resolveShowdown ranks every contender's hand, splits the pot among
// the winners and resets the hand. An odd pot leaves a remainder under
// integer division; it goes to the earliest winning seat after the
// button so no chips are destroyed.
func (e *Engine) resolveShowdown(state *HandState, inHand []*Player) error {
	e.log.Tracef("showdown state: %s", spew.Sdump(state))

	hole := make(map[string][]Card, len(inHand))
	byWallet := make(map[string]*Player, len(inHand))
	for _, p := range inHand {
		hole[p.WalletAddress] = state.HoleCards[p.WalletAddress]
		byWallet[p.WalletAddress] = p
	}

	winners := FindWinners(hole, state.CommunityCards)
	if len(winners) > 0 {
		winning := make([]*Player, 0, len(winners))
		for _, w := range winners {
			winning = append(winning, byWallet[w])
		}
		winning = rotateFromSeat(winning, state.DealerPosition)

		share := state.Pot / int64(len(winning))
		remainder := state.Pot % int64(len(winning))
		for i, p := range winning {
			amount := share
			if i == 0 {
				amount += remainder
			}
			p.ChipCount += amount
			if err := e.dir.SetChipCount(p.WalletAddress, state.RoomID, p.ChipCount); err != nil {
				return fmt.Errorf("pay out seat %d: %w", p.SeatPosition, err)
			}
			e.log.Infof("room %s: %s wins %d at showdown", state.RoomID, p.WalletAddress, amount)
		}
	}

	e.finishHand(state)
	return nil
}

// finishHand resets the state to waiting and discards the deck
// remainder. Used both at showdown and on an uncontested fold-out.
func (e *Engine) finishHand(state *HandState) {
	state.Stage = StageWaiting
	state.Pot = 0
	state.CurrentBet = 0
	state.CurrentPlayerSeat = NoSeat
	state.CommunityCards = []Card{}
	state.HoleCards = map[string][]Card{}
	state.Bets = map[int]int64{}

	e.mu.Lock()
	delete(e.decks, state.RoomID)
	e.mu.Unlock()
}
