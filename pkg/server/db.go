package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RishabSBanthiya/highace/pkg/poker"
	"github.com/RishabSBanthiya/highace/pkg/server/internal/db"
)

// ErrSignatureUsed is returned when a payment signature has already
// funded a buy-in or cash-out.
var ErrSignatureUsed = db.ErrSignatureUsed

// RoomDirectory is the durable registry of rooms, seated players and
// hand snapshots the orchestrator and state machine rely on. It embeds
// the smaller slice the hand engine consumes.
type RoomDirectory interface {
	poker.Directory

	// Rooms
	CreateRoom(creatorWallet string, smallBlind, bigBlind int64, password string, maxPlayers int) (*poker.Room, error)
	ValidatePassword(roomID, password string) (bool, error)
	CloseRoom(roomID string) error

	// Seats. SeatPlayer and UnseatPlayer consume a non-empty payment
	// signature atomically with the seat change, returning
	// ErrSignatureUsed on a replay. A failed seat change must leave
	// the signature unconsumed.
	GetPlayer(wallet, roomID string) (*poker.Player, error)
	FindAvailableSeat(roomID string) (int, error)
	SeatPlayer(wallet, roomID string, seat int, chips int64, signature string) error
	UnseatPlayer(wallet, roomID, signature string) error
	SetConnected(wallet, roomID string, connected bool) error
	FindActiveRoomForWallet(wallet string) (string, error)

	Close() error
}

// NewRoomDirectory opens the sqlite-backed directory at dbPath,
// creating the parent directory if needed.
func NewRoomDirectory(dbPath string) (RoomDirectory, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	return db.NewDB(dbPath)
}
