package session

import "github.com/parley-voice/parley-core/core/realtime"

// handleAgentHandoff reacts to the transport's "active agent is now X"
// notification: latch the handoff, swap the active identity, and if
// connected run the activation path. The latch makes the activation
// path skip the synthetic greeting exactly once; a handoff that never
// sees another activation is discarded by the next connect attempt.
func (s *Session) handleAgentHandoff(event realtime.AgentHandoffEvent) {
	s.stateMu.Lock()
	s.handoffPending = true
	s.activeAgentName = event.AgentName
	s.stateMu.Unlock()

	if s.Status() == StatusConnected {
		s.activateAgent()
	}
}

// consumeHandoffLatch reports and clears the pending-handoff flag in
// one step, so it can suppress at most one greeting.
func (s *Session) consumeHandoffLatch() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	pending := s.handoffPending
	s.handoffPending = false
	return pending
}
