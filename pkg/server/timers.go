package server

import (
	"errors"
	"time"

	"github.com/RishabSBanthiya/highace/pkg/poker"
)

// armActionTimer schedules an auto-fold for the player currently on
// the clock in a room. Any previously armed timer for the room is
// cancelled first so exactly one deadline is pending per room. The
// room's deadline generation is bumped so that a callback from an
// earlier arm that already started firing cannot fold anyone.
func (s *Server) armActionTimer(roomID string) {
	s.timersMu.Lock()
	if t, ok := s.actionTimers[roomID]; ok {
		t.Stop()
	}
	s.actionGens[roomID]++
	gen := s.actionGens[roomID]
	s.actionTimers[roomID] = time.AfterFunc(s.cfg.Game.ActionTimeoutDuration(), func() {
		s.actionTimeout(roomID, gen)
	})
	s.timersMu.Unlock()
}

// clearActionTimer cancels the pending turn deadline for a room.
// Callers must only clear after a valid action was accepted so that
// an invalid submission leaves the deadline running. Bumping the
// generation invalidates a callback that fired before Stop and is
// waiting on the room lock.
func (s *Server) clearActionTimer(roomID string) {
	s.timersMu.Lock()
	if t, ok := s.actionTimers[roomID]; ok {
		t.Stop()
		delete(s.actionTimers, roomID)
	}
	s.actionGens[roomID]++
	s.timersMu.Unlock()
}

// actionTimeout fires when a player let their turn clock expire. The
// timed-out player is folded on their behalf and the room is notified.
// gen is the deadline generation captured at arm time; a mismatch
// means the deadline was superseded while this callback waited for
// the room lock, in which case the current player keeps their turn.
func (s *Server) actionTimeout(roomID string, gen uint64) {
	lock := s.roomLock(roomID)
	lock.Lock()

	s.timersMu.Lock()
	if s.actionGens[roomID] != gen {
		s.timersMu.Unlock()
		lock.Unlock()
		return
	}
	delete(s.actionTimers, roomID)
	s.timersMu.Unlock()

	state, err := s.dir.GetHandState(roomID)
	if err != nil || state.Stage == poker.StageWaiting || state.CurrentPlayerSeat == poker.NoSeat {
		lock.Unlock()
		return
	}

	wallet := ""
	if players, perr := s.dir.ListSeatedPlayers(roomID); perr == nil {
		for _, p := range players {
			if p.SeatPosition == state.CurrentPlayerSeat {
				wallet = p.WalletAddress
				break
			}
		}
	}
	if wallet == "" {
		lock.Unlock()
		s.log.Errorf("timeout in room %s: no player at seat %d", roomID, state.CurrentPlayerSeat)
		return
	}

	next, err := s.engine.ApplyAction(roomID, wallet, poker.Action{Type: poker.ActionFold})
	lock.Unlock()
	if err != nil {
		s.log.Errorf("timeout fold for %s in room %s: %v", wallet, roomID, err)
		return
	}

	s.log.Infof("player %s timed out in room %s, auto-folding", wallet, roomID)
	s.broadcastToRoom(roomID, MsgPlayerTimeout, PlayerTimeoutPayload{
		WalletAddress: wallet,
		Action:        string(poker.ActionFold),
	})
	s.broadcastRoomState(roomID)

	if next.Stage == poker.StageWaiting {
		s.maybeScheduleHandStart(roomID)
	} else {
		s.armActionTimer(roomID)
	}
}

// maybeScheduleHandStart arms the auto-start delay for a room when a
// new hand could begin: no hand running and at least two funded seats.
// A no-op when a start is already pending.
func (s *Server) maybeScheduleHandStart(roomID string) {
	s.timersMu.Lock()
	if _, pending := s.startTimers[roomID]; pending {
		s.timersMu.Unlock()
		return
	}
	s.timersMu.Unlock()

	state, err := s.dir.GetHandState(roomID)
	if err != nil || state.Stage != poker.StageWaiting {
		return
	}
	players, err := s.dir.ListSeatedPlayers(roomID)
	if err != nil {
		return
	}
	funded := 0
	for _, p := range players {
		if p.IsActive && p.ChipCount > 0 {
			funded++
		}
	}
	if funded < 2 {
		return
	}

	s.timersMu.Lock()
	if _, pending := s.startTimers[roomID]; !pending {
		s.startTimers[roomID] = time.AfterFunc(s.cfg.Game.AutoStartDelayDuration(), func() {
			s.autoStartHand(roomID)
		})
		s.log.Debugf("hand start scheduled for room %s", roomID)
	}
	s.timersMu.Unlock()
}

// autoStartHand fires after the start delay and deals the next hand if
// the room is still eligible.
func (s *Server) autoStartHand(roomID string) {
	s.timersMu.Lock()
	delete(s.startTimers, roomID)
	s.timersMu.Unlock()

	lock := s.roomLock(roomID)
	lock.Lock()
	state, err := s.engine.StartHand(roomID)
	lock.Unlock()

	if err != nil {
		// Players may have cashed out during the delay.
		if errors.Is(err, poker.ErrNotEnoughPlayers) || errors.Is(err, poker.ErrHandInProgress) {
			s.log.Debugf("hand start skipped for room %s: %v", roomID, err)
		} else {
			s.log.Errorf("hand start failed for room %s: %v", roomID, err)
		}
		return
	}

	s.log.Infof("hand started in room %s, dealer seat %d", roomID, state.DealerPosition)
	s.broadcastRoomState(roomID)
	s.armActionTimer(roomID)
}
