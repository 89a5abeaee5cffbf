// Package negotiation is the offer/answer state machine of a two-party call.
// A Controller owns at most one Session at a time; descriptions it produces
// are released for relay only after candidate gathering completes, since the
// remote peer has no way to receive candidates later.
package negotiation

import (
	"time"

	"github.com/google/uuid"
)

// Session is one connection attempt. All fields are guarded by the owning
// Controller's mutex.
type Session struct {
	id        string
	role      Role
	state     State
	gathering GatheringState

	engine Engine
	stream Stream // borrowed from capture, may be nil

	local    Description // committed local description
	relayed  bool
	busy     bool // a description-producing engine call is in flight
	gatherTO *time.Timer
}

func newSession(role Role, stream Stream) *Session {
	return &Session{
		id:     uuid.NewString(),
		role:   role,
		state:  StateRoleAssigned,
		stream: stream,
	}
}

// shortID is the first block of the session UUID, used in log lines.
func (s *Session) shortID() string {
	if len(s.id) >= 8 {
		return s.id[:8]
	}
	return s.id
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:             s.id,
		Role:           s.role,
		State:          s.state,
		Gathering:      s.gathering,
		HasLocalStream: s.stream != nil,
		Relayed:        s.relayed,
	}
}

func (s *Session) stopGatherTimer() {
	if s.gatherTO != nil {
		s.gatherTO.Stop()
		s.gatherTO = nil
	}
}

// SessionInfo is a point-in-time copy of a Session for observers.
type SessionInfo struct {
	ID             string
	Role           Role
	State          State
	Gathering      GatheringState
	HasLocalStream bool
	Relayed        bool
}

// idleInfo is reported when no Session exists.
var idleInfo = SessionInfo{State: StateIdle}
