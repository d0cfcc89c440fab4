package session

import (
	"sync/atomic"

	"github.com/parley-voice/parley-core/core/realtime"
)

// turnTaking tracks which of the two mutually exclusive turn-boundary
// modes is active and whether a manual press is currently open. Fields
// are atomics so snapshots are readable off-loop; mutation happens only
// on loop tasks.
type turnTaking struct {
	pushToTalk atomic.Bool
	talking    atomic.Bool
}

func (t *turnTaking) detection() *realtime.TurnDetection {
	if t.pushToTalk.Load() {
		// Manual mode disables the remote detector entirely; the press
		// and release edges drive turn boundaries instead.
		return nil
	}
	return realtime.ServerVAD()
}

// SetPushToTalk switches turn-boundary modes. Switching while connected
// re-pushes the session configuration immediately so both sides agree
// on who signals turn completion.
func (s *Session) SetPushToTalk(active bool) {
	s.runtime.post("set push to talk", func() {
		if s.turnTaking.pushToTalk.Load() == active {
			return
		}
		s.turnTaking.pushToTalk.Store(active)
		if !active {
			s.turnTaking.talking.Store(false)
		}

		if s.Status() == StatusConnected {
			s.pushTurnTakingConfig()
		}
		s.notifyUpdate()
	})
}

// pushTurnTakingConfig sends the session-configuration event for the
// current mode. Runs on the session loop.
func (s *Session) pushTurnTakingConfig() {
	s.sendClientEvent(realtime.NewSessionUpdateEvent(s.turnTaking.detection()))
}

// PressTalk opens a manual user turn. Only honored while connected;
// a press racing a disconnect is a silent no-op, never an error.
func (s *Session) PressTalk() {
	s.runtime.post("press talk", func() {
		if s.Status() != StatusConnected || !s.turnTaking.pushToTalk.Load() {
			return
		}

		// Cut off any in-flight agent utterance and drop stale buffered
		// audio so it cannot leak into the new turn.
		s.transport.Interrupt()
		s.turnTaking.talking.Store(true)
		s.sendClientEvent(realtime.NewInputAudioBufferClearEvent())
		s.notifyUpdate()
	})
}

// ReleaseTalk commits the open manual turn and requests a response.
// A release with no open press is a silent no-op.
func (s *Session) ReleaseTalk() {
	s.runtime.post("release talk", func() {
		if s.Status() != StatusConnected || !s.turnTaking.talking.Load() {
			return
		}

		s.turnTaking.talking.Store(false)
		s.sendClientEvent(realtime.NewInputAudioBufferCommitEvent())
		s.sendClientEvent(realtime.NewResponseCreateEvent())
		s.notifyUpdate()
	})
}

// IsTalking reports whether a manual press is currently open.
func (s *Session) IsTalking() bool { return s.turnTaking.talking.Load() }
