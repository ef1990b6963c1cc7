package poker

import "errors"

// Stage is the phase of a hand. StageWaiting doubles as the idle state
// between hands and the terminal state after resolution.
type Stage string

const (
	StageWaiting  Stage = "waiting"
	StagePreflop  Stage = "preflop"
	StageFlop     Stage = "flop"
	StageTurn     Stage = "turn"
	StageRiver    Stage = "river"
	StageShowdown Stage = "showdown"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomActive RoomStatus = "active"
	RoomClosed RoomStatus = "closed"
)

// NoSeat marks that no seat is currently required to act.
const NoSeat = -1

// Room is the durable registry record for a table. Blinds and capacity
// are immutable after creation; the password hash never leaves the
// directory.
type Room struct {
	ID            string     `json:"id"`
	CreatorWallet string     `json:"creator_wallet"`
	SmallBlind    int64      `json:"small_blind"`
	BigBlind      int64      `json:"big_blind"`
	MaxPlayers    int        `json:"max_players"`
	CreatedAt     int64      `json:"created_at"`
	Status        RoomStatus `json:"status"`
}

// Player is a seat membership record. ChipCount is mutated only by the
// hand state machine; Connected tracks the live socket, not the seat.
type Player struct {
	WalletAddress       string `json:"wallet_address"`
	RoomID              string `json:"room_id"`
	SeatPosition        int    `json:"seat_position"`
	ChipCount           int64  `json:"chip_count"`
	SessionStartBalance int64  `json:"session_start_balance"`
	IsActive            bool   `json:"is_active"`
	Connected           bool   `json:"connected"`
}

// HandState is the persisted snapshot of the one hand a room may have
// live. The undealt deck remainder is deliberately not part of it; the
// engine keeps that in process memory only, so a restart mid-hand
// loses deck continuity.
//
// A wallet present in HoleCards is still contesting the hand; folding
// removes the entry. Bets maps seat to chips committed in the current
// betting round and is reset at each new round.
type HandState struct {
	RoomID            string            `json:"room_id"`
	DealerPosition    int               `json:"dealer_position"`
	CommunityCards    []Card            `json:"community_cards"`
	Pot               int64             `json:"pot"`
	CurrentBet        int64             `json:"current_bet"`
	CurrentPlayerSeat int               `json:"current_player_seat"`
	Stage             Stage             `json:"hand_stage"`
	HoleCards         map[string][]Card `json:"player_hole_cards"`
	Bets              map[int]int64     `json:"player_bets"`
	LastActionTime    int64             `json:"last_action_time"`
}

// RedactFor returns a copy of the snapshot whose hole cards are
// limited to the given wallet's own, so one player's broadcast never
// reveals another's cards.
func (h *HandState) RedactFor(wallet string) *HandState {
	redacted := *h
	redacted.HoleCards = map[string][]Card{}
	if cards, ok := h.HoleCards[wallet]; ok {
		redacted.HoleCards[wallet] = cards
	}
	return &redacted
}

// NewHandState returns the idle state a room starts with. The dealer
// position starts at NoSeat so the first hand seats the button at the
// lowest occupied seat.
func NewHandState(roomID string) *HandState {
	return &HandState{
		RoomID:            roomID,
		DealerPosition:    NoSeat,
		CurrentPlayerSeat: NoSeat,
		Stage:             StageWaiting,
		CommunityCards:    []Card{},
		HoleCards:         map[string][]Card{},
		Bets:              map[int]int64{},
	}
}

// ActionType identifies a player action within a betting round.
type ActionType string

const (
	ActionFold  ActionType = "fold"
	ActionCall  ActionType = "call"
	ActionRaise ActionType = "raise"
	ActionCheck ActionType = "check"
)

// Action is a player's move. Amount is the chips added on top of the
// player's existing commitment and is only meaningful for raises; the
// table's current bet becomes the raiser's resulting total.
type Action struct {
	Type   ActionType `json:"type"`
	Amount int64      `json:"amount,omitempty"`
}

// Errors surfaced by the state machine and the room directory. All are
// rejections: no state is mutated when one is returned.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrNoHandState      = errors.New("no hand state for room")
	ErrNoActiveHand     = errors.New("no hand in progress")
	ErrHandInProgress   = errors.New("hand already in progress")
	ErrNotEnoughPlayers = errors.New("not enough active players")
	ErrNotSeated        = errors.New("player not seated in room")
	ErrNotYourTurn      = errors.New("not player's turn")
	ErrInvalidRaise     = errors.New("raise requires a positive amount")
	ErrCheckNotAllowed  = errors.New("cannot check facing a bet")
)

// Directory is the slice of the room directory the state machine
// consumes. The orchestrator's full directory interface embeds it.
type Directory interface {
	GetRoom(roomID string) (*Room, error)
	ListSeatedPlayers(roomID string) ([]*Player, error)
	SetChipCount(wallet, roomID string, chips int64) error
	GetHandState(roomID string) (*HandState, error)
	SaveHandState(state *HandState) error
}
