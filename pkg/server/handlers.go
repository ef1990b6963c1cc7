package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/RishabSBanthiya/highace/pkg/poker"
)

// verifyTimeout bounds a single payment oracle round trip.
const verifyTimeout = 30 * time.Second

// handleMessage parses one client frame and dispatches it. Malformed
// frames and unknown types get an error event rather than a
// disconnect; the session stays usable.
func (s *Server) handleMessage(sess *Session, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(sess, "invalid message format")
		return
	}

	s.log.Tracef("received %s", msg.Type)

	switch msg.Type {
	case MsgCreateRoom:
		s.handleCreateRoom(sess, msg.Payload)
	case MsgJoinRoom:
		s.handleJoinRoom(sess, msg.Payload)
	case MsgBuyIn:
		s.handleBuyIn(sess, msg.Payload)
	case MsgPlayerAction:
		s.handlePlayerAction(sess, msg.Payload)
	case MsgCashOut:
		s.handleCashOut(sess, msg.Payload)
	case MsgReconnect:
		s.handleReconnect(sess, msg.Payload)
	case MsgCloseRoom:
		s.handleCloseRoom(sess, msg.Payload)
	default:
		s.sendError(sess, "unknown message type: "+msg.Type)
	}
}

func (s *Server) handleCreateRoom(sess *Session, raw json.RawMessage) {
	var p CreateRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(sess, "invalid create_room payload")
		return
	}
	if p.WalletAddress == "" {
		s.sendError(sess, "wallet_address is required")
		return
	}
	if p.SmallBlind <= 0 || p.BigBlind <= p.SmallBlind {
		s.sendError(sess, "blinds must be positive with big blind above small blind")
		return
	}
	maxPlayers := p.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = s.cfg.Game.MaxPlayers
	}

	room, err := s.dir.CreateRoom(p.WalletAddress, p.SmallBlind, p.BigBlind, p.Password, maxPlayers)
	if err != nil {
		s.log.Errorf("create room for %s: %v", p.WalletAddress, err)
		s.sendError(sess, "failed to create room")
		return
	}

	// The creator follows the room from creation, before taking a seat.
	sess.bind(p.WalletAddress, room.ID)
	s.subscribe(sess, room.ID)

	s.log.Infof("room %s created by %s (blinds %d/%d)", room.ID, p.WalletAddress, room.SmallBlind, room.BigBlind)
	s.send(sess, MsgRoomCreated, RoomCreatedPayload{RoomID: room.ID})
}

// handleJoinRoom checks the room exists, is open and the password
// matches, and tells the client which seat a buy-in would take. The
// seat is not reserved; buy-in races resolve at seating time.
func (s *Server) handleJoinRoom(sess *Session, raw json.RawMessage) {
	var p JoinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(sess, "invalid join_room payload")
		return
	}
	if p.WalletAddress == "" || p.RoomID == "" {
		s.sendError(sess, "wallet_address and room_id are required")
		return
	}

	room, err := s.dir.GetRoom(p.RoomID)
	if err != nil {
		s.sendError(sess, "room not found")
		return
	}
	if room.Status != poker.RoomActive {
		s.sendError(sess, "room is closed")
		return
	}

	ok, err := s.dir.ValidatePassword(p.RoomID, p.Password)
	if err != nil {
		s.log.Errorf("validate password for room %s: %v", p.RoomID, err)
		s.sendError(sess, "failed to validate password")
		return
	}
	if !ok {
		s.sendError(sess, "incorrect password")
		return
	}

	seat, err := s.dir.FindAvailableSeat(p.RoomID)
	if err != nil {
		s.log.Errorf("find seat in room %s: %v", p.RoomID, err)
		s.sendError(sess, "failed to find a seat")
		return
	}
	if seat == poker.NoSeat {
		s.sendError(sess, "room is full")
		return
	}

	s.send(sess, MsgJoinSuccess, JoinSuccessPayload{
		RoomID:       room.ID,
		SeatPosition: seat,
		RoomInfo:     room,
	})
}

// handleBuyIn seats a player after their escrow payment verifies. The
// oracle round trip runs outside the room lock; seat availability and
// the signature replay guard are re-checked under it before seating.
func (s *Server) handleBuyIn(sess *Session, raw json.RawMessage) {
	var p BuyInPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(sess, "invalid buy_in payload")
		return
	}
	if p.WalletAddress == "" || p.RoomID == "" || p.TransactionSignature == "" {
		s.sendError(sess, "wallet_address, room_id and transaction_signature are required")
		return
	}

	room, err := s.dir.GetRoom(p.RoomID)
	if err != nil {
		s.sendError(sess, "room not found")
		return
	}
	if room.Status != poker.RoomActive {
		s.sendError(sess, "room is closed")
		return
	}
	if _, err := s.dir.GetPlayer(p.WalletAddress, p.RoomID); err == nil {
		s.sendError(sess, "already seated in this room")
		return
	}

	buyIn := s.cfg.Game.BuyIn
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	verified, err := s.verifier.VerifyBuyIn(ctx, p.TransactionSignature, p.WalletAddress, buyIn, p.RoomID)
	cancel()
	if err != nil {
		s.log.Errorf("verify buy-in for %s: %v", p.WalletAddress, err)
		s.sendError(sess, "payment verification failed")
		return
	}
	if !verified {
		s.sendError(sess, "payment verification failed")
		return
	}

	lock := s.roomLock(p.RoomID)
	lock.Lock()

	// The room may have filled while the oracle was consulted.
	if _, err := s.dir.GetPlayer(p.WalletAddress, p.RoomID); err == nil {
		lock.Unlock()
		s.sendError(sess, "already seated in this room")
		return
	}
	seat, err := s.dir.FindAvailableSeat(p.RoomID)
	if err != nil || seat == poker.NoSeat {
		lock.Unlock()
		s.sendError(sess, "room is full")
		return
	}

	if err := s.dir.SeatPlayer(p.WalletAddress, p.RoomID, seat, buyIn, p.TransactionSignature); err != nil {
		lock.Unlock()
		if errors.Is(err, ErrSignatureUsed) {
			s.sendError(sess, "transaction signature already used")
		} else {
			s.log.Errorf("seat %s in room %s: %v", p.WalletAddress, p.RoomID, err)
			s.sendError(sess, "failed to seat player")
		}
		return
	}
	lock.Unlock()

	sess.bind(p.WalletAddress, p.RoomID)
	s.subscribe(sess, p.RoomID)

	s.log.Infof("player %s bought in to room %s at seat %d for %d", p.WalletAddress, p.RoomID, seat, buyIn)
	s.send(sess, MsgBuyInSuccess, BuyInSuccessPayload{SeatPosition: seat, ChipCount: buyIn})
	s.broadcastToRoom(p.RoomID, MsgPlayerJoined, PlayerJoinedPayload{
		WalletAddress: p.WalletAddress,
		SeatPosition:  seat,
		ChipCount:     buyIn,
	})
	s.broadcastRoomState(p.RoomID)
	s.maybeScheduleHandStart(p.RoomID)
}

// handlePlayerAction feeds one action into the hand state machine. The
// turn timer is cleared only after the engine accepts the action, so a
// rejected submission leaves the player's clock running.
func (s *Server) handlePlayerAction(sess *Session, raw json.RawMessage) {
	var p PlayerActionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(sess, "invalid player_action payload")
		return
	}
	if p.WalletAddress == "" || p.RoomID == "" {
		s.sendError(sess, "wallet_address and room_id are required")
		return
	}

	lock := s.roomLock(p.RoomID)
	lock.Lock()
	state, err := s.engine.ApplyAction(p.RoomID, p.WalletAddress, p.Action)
	lock.Unlock()
	if err != nil {
		s.log.Debugf("action %s from %s rejected: %v", p.Action.Type, p.WalletAddress, err)
		s.sendError(sess, err.Error())
		return
	}

	s.clearActionTimer(p.RoomID)
	s.broadcastToRoom(p.RoomID, MsgPlayerActionBroadcast, PlayerActionBroadcastPayload{
		WalletAddress: p.WalletAddress,
		Action:        p.Action,
	})
	s.broadcastRoomState(p.RoomID)

	if state.Stage == poker.StageWaiting {
		s.maybeScheduleHandStart(p.RoomID)
	} else {
		s.armActionTimer(p.RoomID)
	}
}

// handleCashOut settles a seated player out of a room at their current
// chip count. Players still holding cards in a live hand must fold
// first; folded and between-hands players may leave at any time.
func (s *Server) handleCashOut(sess *Session, raw json.RawMessage) {
	var p CashOutPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(sess, "invalid cash_out payload")
		return
	}
	if p.WalletAddress == "" || p.RoomID == "" {
		s.sendError(sess, "wallet_address and room_id are required")
		return
	}

	player, err := s.dir.GetPlayer(p.WalletAddress, p.RoomID)
	if err != nil {
		s.sendError(sess, "not seated in this room")
		return
	}
	state, err := s.dir.GetHandState(p.RoomID)
	if err != nil {
		s.log.Errorf("hand state for room %s: %v", p.RoomID, err)
		s.sendError(sess, "failed to load room state")
		return
	}
	if state.Stage != poker.StageWaiting {
		if _, inHand := state.HoleCards[p.WalletAddress]; inHand {
			s.sendError(sess, "cannot cash out during a hand, fold first")
			return
		}
	}

	amount := player.ChipCount
	if p.TransactionSignature != "" {
		ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
		verified, verr := s.verifier.VerifyCashOut(ctx, p.TransactionSignature, p.WalletAddress, amount)
		cancel()
		if verr != nil || !verified {
			s.log.Warnf("cash-out verification for %s failed: %v", p.WalletAddress, verr)
			s.sendError(sess, "payout verification failed")
			return
		}
	}

	lock := s.roomLock(p.RoomID)
	lock.Lock()

	// A hand may have started and moved chips during verification.
	current, err := s.dir.GetPlayer(p.WalletAddress, p.RoomID)
	if err != nil {
		lock.Unlock()
		s.sendError(sess, "not seated in this room")
		return
	}
	if current.ChipCount != amount {
		lock.Unlock()
		s.sendError(sess, "chip count changed, retry cash out")
		return
	}

	if err := s.dir.UnseatPlayer(p.WalletAddress, p.RoomID, p.TransactionSignature); err != nil {
		lock.Unlock()
		if errors.Is(err, ErrSignatureUsed) {
			s.sendError(sess, "transaction signature already used")
		} else {
			s.log.Errorf("unseat %s from room %s: %v", p.WalletAddress, p.RoomID, err)
			s.sendError(sess, "failed to cash out")
		}
		return
	}
	lock.Unlock()

	s.unsubscribe(sess, p.RoomID)
	sess.clearRoom()

	s.log.Infof("player %s cashed out %d from room %s", p.WalletAddress, amount, p.RoomID)
	s.send(sess, MsgCashOutSuccess, CashOutSuccessPayload{Amount: amount})
	s.broadcastToRoom(p.RoomID, MsgPlayerLeft, PlayerLeftPayload{WalletAddress: p.WalletAddress})
	s.broadcastRoomState(p.RoomID)
}

// handleReconnect rebinds a fresh socket to the wallet's active seat,
// if one exists, and replays the full room snapshot.
func (s *Server) handleReconnect(sess *Session, raw json.RawMessage) {
	var p ReconnectPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(sess, "invalid reconnect payload")
		return
	}
	if p.WalletAddress == "" {
		s.sendError(sess, "wallet_address is required")
		return
	}

	roomID, err := s.dir.FindActiveRoomForWallet(p.WalletAddress)
	if err != nil {
		s.log.Errorf("reconnect lookup for %s: %v", p.WalletAddress, err)
		s.sendError(sess, "reconnect lookup failed")
		return
	}
	if roomID == "" {
		s.send(sess, MsgReconnectFailed, ReconnectFailedPayload{Message: "no active session found"})
		return
	}

	player, err := s.dir.GetPlayer(p.WalletAddress, roomID)
	if err != nil {
		s.send(sess, MsgReconnectFailed, ReconnectFailedPayload{Message: "no active session found"})
		return
	}
	if err := s.dir.SetConnected(p.WalletAddress, roomID, true); err != nil {
		s.log.Errorf("mark %s connected: %v", p.WalletAddress, err)
	}

	sess.bind(p.WalletAddress, roomID)
	s.subscribe(sess, roomID)

	s.log.Infof("player %s reconnected to room %s", p.WalletAddress, roomID)
	s.send(sess, MsgReconnectSuccess, ReconnectSuccessPayload{
		RoomID:       roomID,
		SeatPosition: player.SeatPosition,
		ChipCount:    player.ChipCount,
	})
	if snapshot, serr := s.roomStateFor(roomID, p.WalletAddress); serr == nil {
		s.send(sess, MsgRoomState, *snapshot)
	}
	s.broadcastRoomState(roomID)
}

// handleCloseRoom lets the creator retire a room between hands. Seated
// players keep their balances in the directory for cash-out.
func (s *Server) handleCloseRoom(sess *Session, raw json.RawMessage) {
	var p CloseRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(sess, "invalid close_room payload")
		return
	}
	if p.WalletAddress == "" || p.RoomID == "" {
		s.sendError(sess, "wallet_address and room_id are required")
		return
	}

	room, err := s.dir.GetRoom(p.RoomID)
	if err != nil {
		s.sendError(sess, "room not found")
		return
	}
	if room.CreatorWallet != p.WalletAddress {
		s.sendError(sess, "only the room creator can close it")
		return
	}

	lock := s.roomLock(p.RoomID)
	lock.Lock()
	state, err := s.dir.GetHandState(p.RoomID)
	if err == nil && state.Stage != poker.StageWaiting {
		lock.Unlock()
		s.sendError(sess, "cannot close the room during a hand")
		return
	}
	if err := s.dir.CloseRoom(p.RoomID); err != nil {
		lock.Unlock()
		s.log.Errorf("close room %s: %v", p.RoomID, err)
		s.sendError(sess, "failed to close room")
		return
	}
	lock.Unlock()

	s.clearActionTimer(p.RoomID)
	s.timersMu.Lock()
	if t, ok := s.startTimers[p.RoomID]; ok {
		t.Stop()
		delete(s.startTimers, p.RoomID)
	}
	s.timersMu.Unlock()

	s.log.Infof("room %s closed by creator %s", p.RoomID, p.WalletAddress)
	s.broadcastToRoom(p.RoomID, MsgRoomClosed, RoomClosedPayload{Message: "room closed by creator"})

	s.mu.RLock()
	subs := make([]*Session, 0, len(s.rooms[p.RoomID]))
	for sub := range s.rooms[p.RoomID] {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.clearRoom()
	}
	s.dropRoom(p.RoomID)
}
