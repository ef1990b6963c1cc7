package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/RishabSBanthiya/highace/pkg/poker"
)

// ErrSignatureUsed is returned when a payment signature has already
// been consumed by an earlier buy-in or cash-out.
var ErrSignatureUsed = errors.New("payment signature already used")

// DB is the sqlite-backed room directory.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at dbPath.
func NewDB(dbPath string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &DB{sqlDB}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			creator_wallet TEXT NOT NULL,
			small_blind INTEGER NOT NULL,
			big_blind INTEGER NOT NULL,
			max_players INTEGER NOT NULL DEFAULT 6,
			password_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS players (
			wallet_address TEXT NOT NULL,
			room_id TEXT NOT NULL,
			seat_position INTEGER NOT NULL,
			chip_count INTEGER NOT NULL,
			session_start_balance INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			connected INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (wallet_address, room_id),
			FOREIGN KEY (room_id) REFERENCES rooms(id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS hand_states (
			room_id TEXT PRIMARY KEY,
			dealer_position INTEGER NOT NULL DEFAULT -1,
			community_cards TEXT,
			pot INTEGER NOT NULL DEFAULT 0,
			current_bet INTEGER NOT NULL DEFAULT 0,
			current_player_seat INTEGER NOT NULL DEFAULT -1,
			hand_stage TEXT NOT NULL DEFAULT 'waiting',
			player_hole_cards TEXT,
			player_bets TEXT,
			last_action_time INTEGER,
			FOREIGN KEY (room_id) REFERENCES rooms(id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS used_signatures (
			signature TEXT PRIMARY KEY,
			wallet_address TEXT NOT NULL,
			purpose TEXT NOT NULL,
			used_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_players_room ON players(room_id);
		CREATE INDEX IF NOT EXISTS idx_players_wallet ON players(wallet_address);
		CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms(status)
	`)
	return err
}

// CreateRoom inserts a room with a fresh id and its initial waiting
// hand state. The password is stored as a bcrypt hash.
func (db *DB) CreateRoom(creatorWallet string, smallBlind, bigBlind int64, password string, maxPlayers int) (*poker.Room, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash room password: %w", err)
	}

	room := &poker.Room{
		ID:            uuid.NewString(),
		CreatorWallet: creatorWallet,
		SmallBlind:    smallBlind,
		BigBlind:      bigBlind,
		MaxPlayers:    maxPlayers,
		CreatedAt:     time.Now().UnixMilli(),
		Status:        poker.RoomActive,
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO rooms (id, creator_wallet, small_blind, big_blind, max_players, password_hash, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, room.ID, room.CreatorWallet, room.SmallBlind, room.BigBlind, room.MaxPlayers, string(hash), room.CreatedAt, string(room.Status))
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO hand_states (room_id, community_cards, player_hole_cards, player_bets)
		VALUES (?, '[]', '{}', '{}')
	`, room.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom returns the room record, or poker.ErrRoomNotFound.
func (db *DB) GetRoom(roomID string) (*poker.Room, error) {
	room := &poker.Room{}
	var status string
	err := db.QueryRow(`
		SELECT id, creator_wallet, small_blind, big_blind, max_players, created_at, status
		FROM rooms WHERE id = ?
	`, roomID).Scan(&room.ID, &room.CreatorWallet, &room.SmallBlind, &room.BigBlind,
		&room.MaxPlayers, &room.CreatedAt, &status)
	if err == sql.ErrNoRows {
		return nil, poker.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	room.Status = poker.RoomStatus(status)
	return room, nil
}

// ValidatePassword compares the candidate password against the room's
// stored bcrypt hash.
func (db *DB) ValidatePassword(roomID, password string) (bool, error) {
	var hash string
	err := db.QueryRow(`SELECT password_hash FROM rooms WHERE id = ?`, roomID).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, poker.ErrRoomNotFound
	}
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// CloseRoom marks the room closed. Seats and chips are untouched.
func (db *DB) CloseRoom(roomID string) error {
	_, err := db.Exec(`UPDATE rooms SET status = ? WHERE id = ?`, string(poker.RoomClosed), roomID)
	return err
}

// ListSeatedPlayers returns every seat membership in the room ordered
// by seat index.
func (db *DB) ListSeatedPlayers(roomID string) ([]*poker.Player, error) {
	rows, err := db.Query(`
		SELECT wallet_address, room_id, seat_position, chip_count, session_start_balance, is_active, connected
		FROM players WHERE room_id = ? ORDER BY seat_position
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*poker.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// GetPlayer returns one seat membership, or poker.ErrNotSeated.
func (db *DB) GetPlayer(wallet, roomID string) (*poker.Player, error) {
	row := db.QueryRow(`
		SELECT wallet_address, room_id, seat_position, chip_count, session_start_balance, is_active, connected
		FROM players WHERE wallet_address = ? AND room_id = ?
	`, wallet, roomID)
	p, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return nil, poker.ErrNotSeated
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (*poker.Player, error) {
	p := &poker.Player{}
	var isActive, connected int
	err := row.Scan(&p.WalletAddress, &p.RoomID, &p.SeatPosition, &p.ChipCount,
		&p.SessionStartBalance, &isActive, &connected)
	if err != nil {
		return nil, err
	}
	p.IsActive = isActive != 0
	p.Connected = connected != 0
	return p, nil
}

// FindAvailableSeat returns the lowest empty seat index, or
// poker.NoSeat when the room is full.
func (db *DB) FindAvailableSeat(roomID string) (int, error) {
	room, err := db.GetRoom(roomID)
	if err != nil {
		return poker.NoSeat, err
	}
	players, err := db.ListSeatedPlayers(roomID)
	if err != nil {
		return poker.NoSeat, err
	}

	occupied := make(map[int]bool, len(players))
	for _, p := range players {
		occupied[p.SeatPosition] = true
	}
	for seat := 0; seat < room.MaxPlayers; seat++ {
		if !occupied[seat] {
			return seat, nil
		}
	}
	return poker.NoSeat, nil
}

// SeatPlayer records a buy-in: the wallet takes the seat with the
// given chips, which also become its session start balance. A
// non-empty signature is consumed in the same transaction, so a
// replayed transaction can neither fund a second seat nor burn the
// signature without seating anyone. Returns ErrSignatureUsed if the
// signature was already consumed.
func (db *DB) SeatPlayer(wallet, roomID string, seat int, chips int64, signature string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if signature != "" {
		if err := consumeSignature(tx, signature, wallet, "buy_in"); err != nil {
			return err
		}
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO players (wallet_address, room_id, seat_position, chip_count, session_start_balance, is_active, connected)
		VALUES (?, ?, ?, ?, ?, 1, 1)
	`, wallet, roomID, seat, chips, chips)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// UnseatPlayer removes the seat membership entirely (cash-out). As
// with SeatPlayer, a non-empty payout signature is consumed in the
// same transaction.
func (db *DB) UnseatPlayer(wallet, roomID, signature string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if signature != "" {
		if err := consumeSignature(tx, signature, wallet, "cash_out"); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM players WHERE wallet_address = ? AND room_id = ?`, wallet, roomID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetChipCount updates a player's chip count.
func (db *DB) SetChipCount(wallet, roomID string, chips int64) error {
	_, err := db.Exec(`UPDATE players SET chip_count = ? WHERE wallet_address = ? AND room_id = ?`,
		chips, wallet, roomID)
	return err
}

// SetConnected flips the live-socket flag without touching the seat.
func (db *DB) SetConnected(wallet, roomID string, connected bool) error {
	v := 0
	if connected {
		v = 1
	}
	_, err := db.Exec(`UPDATE players SET connected = ? WHERE wallet_address = ? AND room_id = ?`,
		v, wallet, roomID)
	return err
}

// FindActiveRoomForWallet returns the room id of the wallet's active
// seat, or "" when it has none. Used by reconnect.
func (db *DB) FindActiveRoomForWallet(wallet string) (string, error) {
	var roomID string
	err := db.QueryRow(`
		SELECT p.room_id FROM players p
		JOIN rooms r ON r.id = p.room_id
		WHERE p.wallet_address = ? AND p.is_active = 1 AND r.status = 'active'
		LIMIT 1
	`, wallet).Scan(&roomID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return roomID, nil
}

// GetHandState loads the room's hand snapshot. The structured columns
// are stored as JSON.
func (db *DB) GetHandState(roomID string) (*poker.HandState, error) {
	state := poker.NewHandState(roomID)
	var community, holeCards, bets sql.NullString
	var lastAction sql.NullInt64
	var stage string
	err := db.QueryRow(`
		SELECT dealer_position, community_cards, pot, current_bet, current_player_seat,
		       hand_stage, player_hole_cards, player_bets, last_action_time
		FROM hand_states WHERE room_id = ?
	`, roomID).Scan(&state.DealerPosition, &community, &state.Pot, &state.CurrentBet,
		&state.CurrentPlayerSeat, &stage, &holeCards, &bets, &lastAction)
	if err == sql.ErrNoRows {
		return nil, poker.ErrNoHandState
	}
	if err != nil {
		return nil, fmt.Errorf("get hand state: %w", err)
	}

	state.Stage = poker.Stage(stage)
	state.LastActionTime = lastAction.Int64
	if community.Valid && community.String != "" {
		if err := json.Unmarshal([]byte(community.String), &state.CommunityCards); err != nil {
			return nil, fmt.Errorf("decode community cards: %w", err)
		}
	}
	if holeCards.Valid && holeCards.String != "" {
		if err := json.Unmarshal([]byte(holeCards.String), &state.HoleCards); err != nil {
			return nil, fmt.Errorf("decode hole cards: %w", err)
		}
	}
	if bets.Valid && bets.String != "" {
		if err := json.Unmarshal([]byte(bets.String), &state.Bets); err != nil {
			return nil, fmt.Errorf("decode player bets: %w", err)
		}
	}
	return state, nil
}

// SaveHandState overwrites the room's hand snapshot.
func (db *DB) SaveHandState(state *poker.HandState) error {
	community, err := json.Marshal(state.CommunityCards)
	if err != nil {
		return err
	}
	holeCards, err := json.Marshal(state.HoleCards)
	if err != nil {
		return err
	}
	bets, err := json.Marshal(state.Bets)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		UPDATE hand_states
		SET dealer_position = ?, community_cards = ?, pot = ?, current_bet = ?,
		    current_player_seat = ?, hand_stage = ?, player_hole_cards = ?,
		    player_bets = ?, last_action_time = ?
		WHERE room_id = ?
	`, state.DealerPosition, string(community), state.Pot, state.CurrentBet,
		state.CurrentPlayerSeat, string(state.Stage), string(holeCards),
		string(bets), state.LastActionTime, state.RoomID)
	return err
}

// consumeSignature records a payment signature inside tx so a
// replayed transaction cannot fund a second buy-in or cash-out.
// Returns ErrSignatureUsed if it was already consumed.
func consumeSignature(tx *sql.Tx, signature, wallet, purpose string) error {
	_, err := tx.Exec(`
		INSERT INTO used_signatures (signature, wallet_address, purpose, used_at)
		VALUES (?, ?, ?, ?)
	`, signature, wallet, purpose, time.Now().UnixMilli())
	if err != nil {
		var seen int
		if tx.QueryRow(`SELECT 1 FROM used_signatures WHERE signature = ?`, signature).Scan(&seen) == nil {
			return ErrSignatureUsed
		}
		return err
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
