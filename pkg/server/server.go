package server

import (
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"

	"github.com/RishabSBanthiya/highace/pkg/chain"
	"github.com/RishabSBanthiya/highace/pkg/config"
	"github.com/RishabSBanthiya/highace/pkg/logging"
	"github.com/RishabSBanthiya/highace/pkg/poker"
)

// Server is the session orchestrator: it owns the socket↔(wallet,
// room) registry, per-room broadcast sets, per-room turn timers, and
// bridges client messages to hand state machine transitions.
//
// Every state-changing operation for a room is serialized through that
// room's mutex; verification oracle calls never run under it, and
// broadcasts happen only after the mutation commits.
type Server struct {
	cfg      *config.Config
	log      slog.Logger
	dir      RoomDirectory
	engine   *poker.Engine
	verifier chain.Verifier

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	rooms    map[string]map[*Session]struct{} // room id -> subscribers

	locksMu   sync.Mutex
	roomLocks map[string]*sync.Mutex

	timersMu     sync.Mutex
	actionTimers map[string]*time.Timer // room id -> pending turn timeout
	actionGens   map[string]uint64      // room id -> current deadline generation
	startTimers  map[string]*time.Timer // room id -> pending hand auto-start

	upgrader websocket.Upgrader
}

// NewServer wires the orchestrator over the given directory and
// payment verifier. rng seeds the deal; pass nil outside tests.
func NewServer(cfg *config.Config, dir RoomDirectory, verifier chain.Verifier, logBackend *logging.LogBackend, rng *rand.Rand) *Server {
	return &Server{
		cfg:          cfg,
		log:          logBackend.Logger("SERV"),
		dir:          dir,
		engine:       poker.NewEngine(dir, logBackend.Logger("HAND"), rng),
		verifier:     verifier,
		sessions:     make(map[*Session]struct{}),
		rooms:        make(map[string]map[*Session]struct{}),
		roomLocks:    make(map[string]*sync.Mutex),
		actionTimers: make(map[string]*time.Timer),
		actionGens:   make(map[string]uint64),
		startTimers:  make(map[string]*time.Timer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start serves the websocket endpoint and health check until the
// listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.log.Infof("listening on ws://%s/ws", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// Stop cancels every pending timer and closes all live sessions.
func (s *Server) Stop() {
	s.timersMu.Lock()
	for id, t := range s.actionTimers {
		t.Stop()
		delete(s.actionTimers, id)
		s.actionGens[id]++
	}
	for id, t := range s.startTimers {
		t.Stop()
		delete(s.startTimers, id)
	}
	s.timersMu.Unlock()

	s.mu.Lock()
	for sess := range s.sessions {
		if sess.conn != nil {
			sess.conn.Close()
		}
	}
	s.sessions = make(map[*Session]struct{})
	s.rooms = make(map[string]map[*Session]struct{})
	s.mu.Unlock()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	sess := newSession(conn)
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.log.Debugf("new connection from %s", r.RemoteAddr)
	go sess.writePump()
	go sess.readPump(s)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// roomLock returns the mutex serializing state changes for a room.
func (s *Server) roomLock(roomID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		s.roomLocks[roomID] = lock
	}
	return lock
}

// handleDisconnect flips the connected flag, removes the session from
// its room's broadcast set and notifies the remaining players. The
// seat and chips stay; only cash-out removes those.
func (s *Server) handleDisconnect(sess *Session) {
	wallet, roomID := sess.identity()
	if wallet != "" && roomID != "" {
		if err := s.dir.SetConnected(wallet, roomID, false); err != nil {
			s.log.Errorf("mark %s disconnected: %v", wallet, err)
		}
		s.unsubscribe(sess, roomID)
		s.broadcastToRoom(roomID, MsgPlayerDisconnected, PlayerDisconnectedPayload{WalletAddress: wallet})
		s.log.Debugf("player %s disconnected from room %s", wallet, roomID)
	}

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}
