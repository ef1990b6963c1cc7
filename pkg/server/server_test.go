package server

import (
	"encoding/json"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishabSBanthiya/highace/pkg/chain"
	"github.com/RishabSBanthiya/highace/pkg/config"
	"github.com/RishabSBanthiya/highace/pkg/logging"
	"github.com/RishabSBanthiya/highace/pkg/poker"
)

var errSeatWrite = errors.New("seat write failed")

// memDirectory implements RoomDirectory in memory for handler tests.
type memDirectory struct {
	mu        sync.Mutex
	rooms     map[string]*poker.Room
	passwords map[string]string
	players   map[string]map[string]*poker.Player // room id -> wallet
	states    map[string]*poker.HandState
	sigs      map[string]bool
	seatErr   error // forced SeatPlayer failure
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		rooms:     make(map[string]*poker.Room),
		passwords: make(map[string]string),
		players:   make(map[string]map[string]*poker.Player),
		states:    make(map[string]*poker.HandState),
		sigs:      make(map[string]bool),
	}
}

func (m *memDirectory) CreateRoom(creatorWallet string, smallBlind, bigBlind int64, password string, maxPlayers int) (*poker.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := &poker.Room{
		ID:            uuid.NewString(),
		CreatorWallet: creatorWallet,
		SmallBlind:    smallBlind,
		BigBlind:      bigBlind,
		MaxPlayers:    maxPlayers,
		Status:        poker.RoomActive,
	}
	m.rooms[room.ID] = room
	m.passwords[room.ID] = password
	m.players[room.ID] = make(map[string]*poker.Player)
	m.states[room.ID] = poker.NewHandState(room.ID)
	return room, nil
}

func (m *memDirectory) GetRoom(roomID string) (*poker.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, poker.ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (m *memDirectory) ValidatePassword(roomID, password string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.passwords[roomID] == password, nil
}

func (m *memDirectory) CloseRoom(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return poker.ErrRoomNotFound
	}
	room.Status = poker.RoomClosed
	return nil
}

func (m *memDirectory) ListSeatedPlayers(roomID string) ([]*poker.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*poker.Player, 0, len(m.players[roomID]))
	for _, p := range m.players[roomID] {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatPosition < out[j].SeatPosition })
	return out, nil
}

func (m *memDirectory) GetPlayer(wallet, roomID string) (*poker.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[roomID][wallet]
	if !ok {
		return nil, poker.ErrNotSeated
	}
	cp := *p
	return &cp, nil
}

func (m *memDirectory) FindAvailableSeat(roomID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return poker.NoSeat, poker.ErrRoomNotFound
	}
	taken := make(map[int]bool)
	for _, p := range m.players[roomID] {
		taken[p.SeatPosition] = true
	}
	for seat := 0; seat < room.MaxPlayers; seat++ {
		if !taken[seat] {
			return seat, nil
		}
	}
	return poker.NoSeat, nil
}

func (m *memDirectory) SeatPlayer(wallet, roomID string, seat int, chips int64, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seatErr != nil {
		return m.seatErr
	}
	if signature != "" {
		if m.sigs[signature] {
			return ErrSignatureUsed
		}
		m.sigs[signature] = true
	}
	m.players[roomID][wallet] = &poker.Player{
		WalletAddress:       wallet,
		RoomID:              roomID,
		SeatPosition:        seat,
		ChipCount:           chips,
		SessionStartBalance: chips,
		IsActive:            true,
		Connected:           true,
	}
	return nil
}

func (m *memDirectory) UnseatPlayer(wallet, roomID, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if signature != "" {
		if m.sigs[signature] {
			return ErrSignatureUsed
		}
		m.sigs[signature] = true
	}
	delete(m.players[roomID], wallet)
	return nil
}

func (m *memDirectory) SetChipCount(wallet, roomID string, chips int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[roomID][wallet]
	if !ok {
		return poker.ErrNotSeated
	}
	p.ChipCount = chips
	return nil
}

func (m *memDirectory) SetConnected(wallet, roomID string, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[roomID][wallet]; ok {
		p.Connected = connected
	}
	return nil
}

func (m *memDirectory) FindActiveRoomForWallet(wallet string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for roomID, seats := range m.players {
		if _, ok := seats[wallet]; ok && m.rooms[roomID].Status == poker.RoomActive {
			return roomID, nil
		}
	}
	return "", nil
}

func (m *memDirectory) GetHandState(roomID string) (*poker.HandState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[roomID]
	if !ok {
		return nil, poker.ErrNoHandState
	}
	cp := *state
	cp.CommunityCards = append([]poker.Card{}, state.CommunityCards...)
	cp.HoleCards = make(map[string][]poker.Card, len(state.HoleCards))
	for w, cs := range state.HoleCards {
		cp.HoleCards[w] = append([]poker.Card{}, cs...)
	}
	cp.Bets = make(map[int]int64, len(state.Bets))
	for s, b := range state.Bets {
		cp.Bets[s] = b
	}
	return &cp, nil
}

func (m *memDirectory) SaveHandState(state *poker.HandState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.RoomID] = &cp
	return nil
}

func (m *memDirectory) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *memDirectory) {
	t.Helper()
	cfg := config.Default()
	cfg.Game.ActionTimeout = 1
	cfg.Game.AutoStartDelay = 1
	logBackend, err := logging.NewLogBackend("", "warn")
	require.NoError(t, err)
	dir := newMemDirectory()
	srv := NewServer(cfg, dir, chain.TestVerifier{}, logBackend, rand.New(rand.NewSource(1)))
	t.Cleanup(srv.Stop)
	return srv, dir
}

func frame(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	require.NoError(t, err)
	return data
}

// recv pops the next queued event off a session, failing if none is
// pending.
func recv(t *testing.T, sess *Session) Message {
	t.Helper()
	select {
	case raw := <-sess.send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	default:
		t.Fatal("no event queued")
		return Message{}
	}
}

func decode[T any](t *testing.T, msg Message) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(msg.Payload, &out))
	return out
}

// seatTwo creates a room and seats alice and bob with bound,
// subscribed sessions, returning the room id and both sessions.
func seatTwo(t *testing.T, srv *Server, dir *memDirectory) (string, *Session, *Session) {
	t.Helper()
	room, err := dir.CreateRoom("alice", 10, 20, "", 6)
	require.NoError(t, err)

	alice := newSession(nil)
	bob := newSession(nil)
	for i, s := range []*Session{alice, bob} {
		wallet := []string{"alice", "bob"}[i]
		require.NoError(t, dir.SeatPlayer(wallet, room.ID, i, 1000, ""))
		s.bind(wallet, room.ID)
		srv.subscribe(s, room.ID)
	}
	return room.ID, alice, bob
}

func drain(sess *Session) {
	for {
		select {
		case <-sess.send:
		default:
			return
		}
	}
}

func TestHandleCreateRoom(t *testing.T) {
	srv, dir := newTestServer(t)
	sess := newSession(nil)

	srv.handleMessage(sess, frame(t, MsgCreateRoom, CreateRoomPayload{
		WalletAddress: "alice",
		SmallBlind:    10,
		BigBlind:      20,
		Password:      "secret",
	}))

	msg := recv(t, sess)
	require.Equal(t, MsgRoomCreated, msg.Type)
	created := decode[RoomCreatedPayload](t, msg)

	room, err := dir.GetRoom(created.RoomID)
	require.NoError(t, err)
	assert.Equal(t, "alice", room.CreatorWallet)
	assert.Equal(t, int64(10), room.SmallBlind)
	assert.Equal(t, srv.cfg.Game.MaxPlayers, room.MaxPlayers)
}

func TestHandleCreateRoomRejectsBadBlinds(t *testing.T) {
	srv, _ := newTestServer(t)
	sess := newSession(nil)

	srv.handleMessage(sess, frame(t, MsgCreateRoom, CreateRoomPayload{
		WalletAddress: "alice",
		SmallBlind:    20,
		BigBlind:      10,
	}))
	assert.Equal(t, MsgError, recv(t, sess).Type)
}

func TestHandleJoinRoom(t *testing.T) {
	srv, dir := newTestServer(t)
	room, err := dir.CreateRoom("alice", 10, 20, "secret", 6)
	require.NoError(t, err)

	sess := newSession(nil)
	srv.handleMessage(sess, frame(t, MsgJoinRoom, JoinRoomPayload{
		WalletAddress: "bob",
		RoomID:        room.ID,
		Password:      "wrong",
	}))
	msg := recv(t, sess)
	require.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "incorrect password", decode[ErrorPayload](t, msg).Message)

	srv.handleMessage(sess, frame(t, MsgJoinRoom, JoinRoomPayload{
		WalletAddress: "bob",
		RoomID:        room.ID,
		Password:      "secret",
	}))
	msg = recv(t, sess)
	require.Equal(t, MsgJoinSuccess, msg.Type)
	joined := decode[JoinSuccessPayload](t, msg)
	assert.Equal(t, room.ID, joined.RoomID)
	assert.Equal(t, 0, joined.SeatPosition)
}

func TestHandleBuyIn(t *testing.T) {
	srv, dir := newTestServer(t)
	room, err := dir.CreateRoom("alice", 10, 20, "", 6)
	require.NoError(t, err)

	sess := newSession(nil)
	srv.handleMessage(sess, frame(t, MsgBuyIn, BuyInPayload{
		WalletAddress:        "alice",
		RoomID:               room.ID,
		TransactionSignature: chain.TestModePrefix + "sig1",
	}))

	msg := recv(t, sess)
	require.Equal(t, MsgBuyInSuccess, msg.Type)
	ok := decode[BuyInSuccessPayload](t, msg)
	assert.Equal(t, 0, ok.SeatPosition)
	assert.Equal(t, srv.cfg.Game.BuyIn, ok.ChipCount)

	// The buyer is now a subscriber, so it receives its own joined
	// broadcast and the room snapshot.
	assert.Equal(t, MsgPlayerJoined, recv(t, sess).Type)
	assert.Equal(t, MsgRoomState, recv(t, sess).Type)

	player, err := dir.GetPlayer("alice", room.ID)
	require.NoError(t, err)
	assert.Equal(t, srv.cfg.Game.BuyIn, player.ChipCount)

	wallet, roomID := sess.identity()
	assert.Equal(t, "alice", wallet)
	assert.Equal(t, room.ID, roomID)
}

func TestHandleBuyInRejectsReusedSignature(t *testing.T) {
	srv, dir := newTestServer(t)
	room, err := dir.CreateRoom("alice", 10, 20, "", 6)
	require.NoError(t, err)

	sig := chain.TestModePrefix + "sig1"
	alice := newSession(nil)
	srv.handleMessage(alice, frame(t, MsgBuyIn, BuyInPayload{
		WalletAddress: "alice", RoomID: room.ID, TransactionSignature: sig,
	}))
	drain(alice)

	bob := newSession(nil)
	srv.handleMessage(bob, frame(t, MsgBuyIn, BuyInPayload{
		WalletAddress: "bob", RoomID: room.ID, TransactionSignature: sig,
	}))
	msg := recv(t, bob)
	require.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "transaction signature already used", decode[ErrorPayload](t, msg).Message)

	_, err = dir.GetPlayer("bob", room.ID)
	assert.ErrorIs(t, err, poker.ErrNotSeated)
}

// A buy-in whose seat write fails must leave the payment signature
// unconsumed so the player can retry with the same transaction.
func TestHandleBuyInSeatFailureKeepsSignature(t *testing.T) {
	srv, dir := newTestServer(t)
	room, err := dir.CreateRoom("alice", 10, 20, "", 6)
	require.NoError(t, err)

	sig := chain.TestModePrefix + "sig1"
	sess := newSession(nil)

	dir.seatErr = errSeatWrite
	srv.handleMessage(sess, frame(t, MsgBuyIn, BuyInPayload{
		WalletAddress: "alice", RoomID: room.ID, TransactionSignature: sig,
	}))
	msg := recv(t, sess)
	require.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "failed to seat player", decode[ErrorPayload](t, msg).Message)

	dir.seatErr = nil
	srv.handleMessage(sess, frame(t, MsgBuyIn, BuyInPayload{
		WalletAddress: "alice", RoomID: room.ID, TransactionSignature: sig,
	}))
	msg = recv(t, sess)
	require.Equal(t, MsgBuyInSuccess, msg.Type)

	player, err := dir.GetPlayer("alice", room.ID)
	require.NoError(t, err)
	assert.Equal(t, srv.cfg.Game.BuyIn, player.ChipCount)
}

func TestHandleBuyInRejectsUnverifiedPayment(t *testing.T) {
	srv, dir := newTestServer(t)
	room, err := dir.CreateRoom("alice", 10, 20, "", 6)
	require.NoError(t, err)

	sess := newSession(nil)
	srv.handleMessage(sess, frame(t, MsgBuyIn, BuyInPayload{
		WalletAddress:        "alice",
		RoomID:               room.ID,
		TransactionSignature: "not-a-real-signature",
	}))
	msg := recv(t, sess)
	require.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "payment verification failed", decode[ErrorPayload](t, msg).Message)
}

func TestHandleBuyInRoomFull(t *testing.T) {
	srv, dir := newTestServer(t)
	room, err := dir.CreateRoom("alice", 10, 20, "", 2)
	require.NoError(t, err)
	require.NoError(t, dir.SeatPlayer("alice", room.ID, 0, 1000, ""))
	require.NoError(t, dir.SeatPlayer("bob", room.ID, 1, 1000, ""))

	sess := newSession(nil)
	srv.handleMessage(sess, frame(t, MsgBuyIn, BuyInPayload{
		WalletAddress:        "carol",
		RoomID:               room.ID,
		TransactionSignature: chain.TestModePrefix + "sig9",
	}))
	msg := recv(t, sess)
	require.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "room is full", decode[ErrorPayload](t, msg).Message)
}

func TestAutoStartDealsAndRedacts(t *testing.T) {
	srv, dir := newTestServer(t)
	roomID, alice, bob := seatTwo(t, srv, dir)

	srv.autoStartHand(roomID)

	state, err := dir.GetHandState(roomID)
	require.NoError(t, err)
	require.Equal(t, poker.StagePreflop, state.Stage)

	// Every subscriber gets the snapshot, each seeing only its own
	// hole cards.
	for _, tc := range []struct {
		sess   *Session
		wallet string
		other  string
	}{{alice, "alice", "bob"}, {bob, "bob", "alice"}} {
		msg := recv(t, tc.sess)
		require.Equal(t, MsgRoomState, msg.Type)
		snap := decode[RoomStatePayload](t, msg)
		require.NotNil(t, snap.GameState)
		assert.Len(t, snap.GameState.HoleCards[tc.wallet], 2)
		assert.NotContains(t, snap.GameState.HoleCards, tc.other)
	}

	// A turn deadline is armed for the player on the clock.
	srv.timersMu.Lock()
	_, armed := srv.actionTimers[roomID]
	srv.timersMu.Unlock()
	assert.True(t, armed)
}

// An inactive seat does not count toward the two funded players a
// scheduled hand start requires, even while it still holds chips.
func TestHandStartSkipsInactiveSeats(t *testing.T) {
	srv, dir := newTestServer(t)
	roomID, _, _ := seatTwo(t, srv, dir)

	dir.mu.Lock()
	dir.players[roomID]["bob"].IsActive = false
	dir.mu.Unlock()

	srv.maybeScheduleHandStart(roomID)
	srv.timersMu.Lock()
	_, pending := srv.startTimers[roomID]
	srv.timersMu.Unlock()
	assert.False(t, pending)

	dir.mu.Lock()
	dir.players[roomID]["bob"].IsActive = true
	dir.mu.Unlock()

	srv.maybeScheduleHandStart(roomID)
	srv.timersMu.Lock()
	_, pending = srv.startTimers[roomID]
	srv.timersMu.Unlock()
	assert.True(t, pending)
}

func TestHandlePlayerAction(t *testing.T) {
	srv, dir := newTestServer(t)
	roomID, alice, bob := seatTwo(t, srv, dir)
	srv.autoStartHand(roomID)
	drain(alice)
	drain(bob)

	// The small blind at seat 1 acts first heads-up; alice acting now
	// is rejected.
	srv.handleMessage(alice, frame(t, MsgPlayerAction, PlayerActionPayload{
		WalletAddress: "alice",
		RoomID:        roomID,
		Action:        poker.Action{Type: poker.ActionCall},
	}))
	assert.Equal(t, MsgError, recv(t, alice).Type)

	srv.handleMessage(bob, frame(t, MsgPlayerAction, PlayerActionPayload{
		WalletAddress: "bob",
		RoomID:        roomID,
		Action:        poker.Action{Type: poker.ActionFold},
	}))

	for _, sess := range []*Session{alice, bob} {
		msg := recv(t, sess)
		require.Equal(t, MsgPlayerActionBroadcast, msg.Type)
		action := decode[PlayerActionBroadcastPayload](t, msg)
		assert.Equal(t, "bob", action.WalletAddress)
		assert.Equal(t, poker.ActionFold, action.Action.Type)
		assert.Equal(t, MsgRoomState, recv(t, sess).Type)
	}

	// Heads-up fold ends the hand and pays the blinds to alice.
	player, err := dir.GetPlayer("alice", roomID)
	require.NoError(t, err)
	assert.Equal(t, int64(1010), player.ChipCount)
}

func TestActionTimeoutAutoFolds(t *testing.T) {
	srv, dir := newTestServer(t)
	roomID, alice, bob := seatTwo(t, srv, dir)
	srv.autoStartHand(roomID)
	drain(alice)
	drain(bob)

	srv.actionTimeout(roomID, currentGen(srv, roomID))

	msg := recv(t, alice)
	require.Equal(t, MsgPlayerTimeout, msg.Type)
	timeout := decode[PlayerTimeoutPayload](t, msg)
	assert.Equal(t, "bob", timeout.WalletAddress)
	assert.Equal(t, "fold", timeout.Action)

	state, err := dir.GetHandState(roomID)
	require.NoError(t, err)
	assert.Equal(t, poker.StageWaiting, state.Stage)

	player, err := dir.GetPlayer("alice", roomID)
	require.NoError(t, err)
	assert.Equal(t, int64(1010), player.ChipCount)
}

// A timeout callback that already started firing when the player's
// action landed must not fold whoever holds the next turn.
func TestActionTimeoutSupersededByAction(t *testing.T) {
	srv, dir := newTestServer(t)
	roomID, alice, bob := seatTwo(t, srv, dir)
	srv.autoStartHand(roomID)
	drain(alice)
	drain(bob)

	// Capture the deadline armed for bob's preflop turn, then let bob
	// act in time. The call advances the hand to the flop with alice
	// on a fresh clock.
	staleGen := currentGen(srv, roomID)
	srv.handleMessage(bob, frame(t, MsgPlayerAction, PlayerActionPayload{
		WalletAddress: "bob",
		RoomID:        roomID,
		Action:        poker.Action{Type: poker.ActionCall},
	}))
	drain(alice)
	drain(bob)

	// The superseded callback fires late and must bail out.
	srv.actionTimeout(roomID, staleGen)

	state, err := dir.GetHandState(roomID)
	require.NoError(t, err)
	assert.Equal(t, poker.StageFlop, state.Stage)
	assert.Contains(t, state.HoleCards, "alice")
	assert.Equal(t, 0, state.CurrentPlayerSeat)

	player, err := dir.GetPlayer("alice", roomID)
	require.NoError(t, err)
	assert.Equal(t, int64(980), player.ChipCount)

	// No timeout was announced to the room.
	select {
	case raw := <-alice.send:
		t.Fatalf("unexpected event after stale deadline: %s", raw)
	default:
	}
}

func currentGen(srv *Server, roomID string) uint64 {
	srv.timersMu.Lock()
	defer srv.timersMu.Unlock()
	return srv.actionGens[roomID]
}

func TestHandleCashOut(t *testing.T) {
	srv, dir := newTestServer(t)
	roomID, alice, bob := seatTwo(t, srv, dir)

	srv.handleMessage(alice, frame(t, MsgCashOut, CashOutPayload{
		WalletAddress:        "alice",
		RoomID:               roomID,
		TransactionSignature: chain.TestModePrefix + "payout1",
	}))

	msg := recv(t, alice)
	require.Equal(t, MsgCashOutSuccess, msg.Type)
	assert.Equal(t, int64(1000), decode[CashOutSuccessPayload](t, msg).Amount)

	msg = recv(t, bob)
	require.Equal(t, MsgPlayerLeft, msg.Type)
	assert.Equal(t, "alice", decode[PlayerLeftPayload](t, msg).WalletAddress)

	_, err := dir.GetPlayer("alice", roomID)
	assert.ErrorIs(t, err, poker.ErrNotSeated)

	_, bound := alice.identity()
	assert.Empty(t, bound)
}

func TestHandleCashOutRejectedMidHand(t *testing.T) {
	srv, dir := newTestServer(t)
	roomID, alice, bob := seatTwo(t, srv, dir)
	srv.autoStartHand(roomID)
	drain(alice)
	drain(bob)

	srv.handleMessage(alice, frame(t, MsgCashOut, CashOutPayload{
		WalletAddress:        "alice",
		RoomID:               roomID,
		TransactionSignature: chain.TestModePrefix + "payout2",
	}))
	msg := recv(t, alice)
	require.Equal(t, MsgError, msg.Type)
	assert.Contains(t, decode[ErrorPayload](t, msg).Message, "fold first")

	_, err := dir.GetPlayer("alice", roomID)
	assert.NoError(t, err, "player must remain seated")
}

func TestHandleReconnect(t *testing.T) {
	srv, dir := newTestServer(t)
	room, err := dir.CreateRoom("alice", 10, 20, "", 6)
	require.NoError(t, err)
	require.NoError(t, dir.SeatPlayer("alice", room.ID, 0, 750, ""))
	require.NoError(t, dir.SetConnected("alice", room.ID, false))

	sess := newSession(nil)
	srv.handleMessage(sess, frame(t, MsgReconnect, ReconnectPayload{WalletAddress: "alice"}))

	msg := recv(t, sess)
	require.Equal(t, MsgReconnectSuccess, msg.Type)
	rc := decode[ReconnectSuccessPayload](t, msg)
	assert.Equal(t, room.ID, rc.RoomID)
	assert.Equal(t, 0, rc.SeatPosition)
	assert.Equal(t, int64(750), rc.ChipCount)

	assert.Equal(t, MsgRoomState, recv(t, sess).Type)

	player, err := dir.GetPlayer("alice", room.ID)
	require.NoError(t, err)
	assert.True(t, player.Connected)
}

func TestHandleReconnectWithoutSeat(t *testing.T) {
	srv, _ := newTestServer(t)
	sess := newSession(nil)
	srv.handleMessage(sess, frame(t, MsgReconnect, ReconnectPayload{WalletAddress: "nobody"}))
	assert.Equal(t, MsgReconnectFailed, recv(t, sess).Type)
}

func TestHandleCloseRoom(t *testing.T) {
	srv, dir := newTestServer(t)
	roomID, alice, bob := seatTwo(t, srv, dir)

	srv.handleMessage(bob, frame(t, MsgCloseRoom, CloseRoomPayload{
		WalletAddress: "bob",
		RoomID:        roomID,
	}))
	msg := recv(t, bob)
	require.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "only the room creator can close it", decode[ErrorPayload](t, msg).Message)

	srv.handleMessage(alice, frame(t, MsgCloseRoom, CloseRoomPayload{
		WalletAddress: "alice",
		RoomID:        roomID,
	}))
	assert.Equal(t, MsgRoomClosed, recv(t, alice).Type)
	assert.Equal(t, MsgRoomClosed, recv(t, bob).Type)

	room, err := dir.GetRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, poker.RoomClosed, room.Status)

	_, bound := alice.identity()
	assert.Empty(t, bound)
}

func TestHandleDisconnect(t *testing.T) {
	srv, dir := newTestServer(t)
	roomID, alice, bob := seatTwo(t, srv, dir)

	srv.handleDisconnect(alice)

	player, err := dir.GetPlayer("alice", roomID)
	require.NoError(t, err)
	assert.False(t, player.Connected)
	assert.Equal(t, 0, player.SeatPosition, "seat survives a disconnect")

	msg := recv(t, bob)
	require.Equal(t, MsgPlayerDisconnected, msg.Type)
	assert.Equal(t, "alice", decode[PlayerDisconnectedPayload](t, msg).WalletAddress)
}

func TestHandleUnknownMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	sess := newSession(nil)

	srv.handleMessage(sess, []byte(`{"type":"warp_drive"}`))
	assert.Equal(t, MsgError, recv(t, sess).Type)

	srv.handleMessage(sess, []byte(`not json`))
	assert.Equal(t, MsgError, recv(t, sess).Type)
}
