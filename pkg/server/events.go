package server

import (
	"encoding/json"

	"github.com/RishabSBanthiya/highace/pkg/poker"
)

// Inbound message types.
const (
	MsgCreateRoom   = "create_room"
	MsgJoinRoom     = "join_room"
	MsgBuyIn        = "buy_in"
	MsgPlayerAction = "player_action"
	MsgCashOut      = "cash_out"
	MsgReconnect    = "reconnect"
	MsgCloseRoom    = "close_room"
)

// Outbound message types.
const (
	MsgError                 = "error"
	MsgRoomCreated           = "room_created"
	MsgJoinSuccess           = "join_success"
	MsgBuyInSuccess          = "buy_in_success"
	MsgCashOutSuccess        = "cash_out_success"
	MsgReconnectSuccess      = "reconnect_success"
	MsgReconnectFailed       = "reconnect_failed"
	MsgRoomState             = "room_state"
	MsgPlayerJoined          = "player_joined"
	MsgPlayerLeft            = "player_left"
	MsgPlayerActionBroadcast = "player_action_broadcast"
	MsgPlayerTimeout         = "player_timeout"
	MsgRoomClosed            = "room_closed"
	MsgPlayerDisconnected    = "player_disconnected"
)

// Message is the typed envelope every client frame parses into.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope is the outbound counterpart; Payload is marshaled in place.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound payloads.

type CreateRoomPayload struct {
	WalletAddress string `json:"wallet_address"`
	SmallBlind    int64  `json:"small_blind"`
	BigBlind      int64  `json:"big_blind"`
	Password      string `json:"password"`
	MaxPlayers    int    `json:"max_players,omitempty"`
}

type JoinRoomPayload struct {
	WalletAddress string `json:"wallet_address"`
	RoomID        string `json:"room_id"`
	Password      string `json:"password"`
}

type BuyInPayload struct {
	WalletAddress        string `json:"wallet_address"`
	RoomID               string `json:"room_id"`
	TransactionSignature string `json:"transaction_signature"`
}

type PlayerActionPayload struct {
	WalletAddress string       `json:"wallet_address"`
	RoomID        string       `json:"room_id"`
	Action        poker.Action `json:"action"`
}

type CashOutPayload struct {
	WalletAddress        string `json:"wallet_address"`
	RoomID               string `json:"room_id"`
	TransactionSignature string `json:"transaction_signature,omitempty"`
}

type ReconnectPayload struct {
	WalletAddress string `json:"wallet_address"`
}

type CloseRoomPayload struct {
	WalletAddress string `json:"wallet_address"`
	RoomID        string `json:"room_id"`
}

// Outbound payloads.

type ErrorPayload struct {
	Message string `json:"message"`
}

type RoomCreatedPayload struct {
	RoomID string `json:"room_id"`
}

type JoinSuccessPayload struct {
	RoomID       string      `json:"room_id"`
	SeatPosition int         `json:"seat_position"`
	RoomInfo     *poker.Room `json:"room_info"`
}

type BuyInSuccessPayload struct {
	SeatPosition int   `json:"seat_position"`
	ChipCount    int64 `json:"chip_count"`
}

type CashOutSuccessPayload struct {
	Amount int64 `json:"amount"`
}

type ReconnectSuccessPayload struct {
	RoomID       string `json:"room_id"`
	SeatPosition int    `json:"seat_position"`
	ChipCount    int64  `json:"chip_count"`
}

type ReconnectFailedPayload struct {
	Message string `json:"message"`
}

type PlayerJoinedPayload struct {
	WalletAddress string `json:"wallet_address"`
	SeatPosition  int    `json:"seat_position"`
	ChipCount     int64  `json:"chip_count"`
}

type PlayerLeftPayload struct {
	WalletAddress string `json:"wallet_address"`
}

type PlayerActionBroadcastPayload struct {
	WalletAddress string       `json:"wallet_address"`
	Action        poker.Action `json:"action"`
}

type PlayerTimeoutPayload struct {
	WalletAddress string `json:"wallet_address"`
	Action        string `json:"action"`
}

type RoomClosedPayload struct {
	Message string `json:"message"`
}

type PlayerDisconnectedPayload struct {
	WalletAddress string `json:"wallet_address"`
}

// RoomStatePayload is the per-recipient room snapshot; GameState is
// redacted so it carries only the recipient's own hole cards.
type RoomStatePayload struct {
	Room      *poker.Room      `json:"room"`
	Players   []*poker.Player  `json:"players"`
	GameState *poker.HandState `json:"game_state"`
}
