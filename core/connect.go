package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/parley-voice/parley-core/core/agents"
	"github.com/parley-voice/parley-core/core/guardrails"
	"github.com/parley-voice/parley-core/core/realtime"
	"github.com/parley-voice/parley-core/core/transcript"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNoTransport = errors.New("no transport configured")
	ErrNoIssuer    = errors.New("no credential issuer configured")
)

// greetingTrigger is the fixed hidden user turn synthesized after a
// fresh connect so the agent speaks first without a real utterance.
const greetingTrigger = "hi"

// ToggleConnection disconnects an active or connecting session,
// otherwise begins connecting with the most recently selected set and
// agent.
func (s *Session) ToggleConnection() {
	s.runtime.post("toggle connection", func() {
		if s.Status().IsActive() {
			s.disconnectLocked()
			return
		}

		set := s.ActiveSet()
		s.connectLocked(set.Key, s.ActiveAgentName())
	})
}

// Connect brings the session up against the named configuration set
// with the named agent active. A no-op unless the session is exactly
// disconnected.
func (s *Session) Connect(setKey, activeAgentName string) {
	s.runtime.post("connect", func() { s.connectLocked(setKey, activeAgentName) })
}

// Disconnect tears the transport down and returns to disconnected.
func (s *Session) Disconnect() {
	s.runtime.post("disconnect", func() { s.disconnectLocked() })
}

// SelectSet switches the requested configuration set and resets the
// agent selection with it. Selecting while connected disconnects first;
// the caller reconnects deliberately.
func (s *Session) SelectSet(setKey string) {
	s.runtime.post("select set", func() {
		if s.Status().IsActive() {
			s.disconnectLocked()
		}

		set, err := s.registry.Set(setKey)
		if err != nil {
			// An unregistered key is still selectable; the next connect
			// reports it.
			set = agents.ConfigSet{Key: setKey}
		}
		s.stateMu.Lock()
		s.activeSet = set
		s.activeAgentName = ""
		s.stateMu.Unlock()
		s.notifyUpdate()
	})
}

// SelectAgent switches the requested active agent. Selecting while
// connected disconnects first; the caller reconnects deliberately.
func (s *Session) SelectAgent(agentName string) {
	s.runtime.post("select agent", func() {
		if s.Status().IsActive() {
			s.disconnectLocked()
		}
		s.stateMu.Lock()
		s.activeAgentName = agentName
		s.stateMu.Unlock()
		s.notifyUpdate()
	})
}

// SendUserText injects a typed user turn. Any in-flight agent utterance
// is interrupted first so the reply addresses the new input.
func (s *Session) SendUserText(text string) {
	s.runtime.post("send user text", func() {
		text := strings.TrimSpace(text)
		if text == "" || s.Status() != StatusConnected {
			return
		}

		s.transport.Interrupt()
		if err := s.transport.SendUserText(text); err != nil {
			s.reportError(fmt.Errorf("failed to send user text: %w", err))
			return
		}
		s.recorder.LogClientEvent("user_text.send", map[string]any{"text": text})
		s.notifyUpdate()
	})
}

// connectLocked runs on the session loop.
func (s *Session) connectLocked(setKey, activeAgentName string) {
	if s.Status() != StatusDisconnected {
		return
	}
	if s.transport == nil {
		s.reportError(ErrNoTransport)
		return
	}
	if s.issuer == nil {
		s.reportError(ErrNoIssuer)
		return
	}

	// A toggle on a session that never selected anything connects with
	// the first registered set.
	if setKey == "" {
		if keys := s.registry.Keys(); len(keys) > 0 {
			setKey = keys[0]
		}
	}

	set, err := s.registry.Set(setKey)
	if err != nil {
		s.reportError(fmt.Errorf("connect aborted: %w", err))
		return
	}
	if activeAgentName == "" && len(set.Agents) > 0 {
		activeAgentName = set.Agents[0].Name
	}

	s.stateMu.Lock()
	s.desired = true
	s.connectEpoch++
	epoch := s.connectEpoch
	s.activeSet = set
	s.activeAgentName = activeAgentName
	// A handoff latched during a previous connection never leaks into a
	// new attempt.
	s.handoffPending = false
	s.stateMu.Unlock()

	s.setStatus(StatusConnecting)
	s.notifyUpdate()

	ctx, span := tracer.Start(s.baseContext, "connect session",
		trace.WithAttributes(
			attribute.String("session.agent_set", set.Key),
			attribute.String("session.active_agent", activeAgentName),
		),
	)

	// Credential fetch and transport open are suspension points: they
	// run off-loop and post their outcome back as a task that re-checks
	// state at processing time.
	go func() {
		defer span.End()

		ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
		defer cancel()

		s.recorder.LogClientEvent("fetch_session_token_request", map[string]any{"set": set.Key})
		credential, err := s.issuer.Fetch(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.runtime.post("connect failed", func() { s.failConnect(epoch, fmt.Errorf("credential acquisition failed: %w", err)) })
			return
		}
		s.recorder.LogServerEvent("fetch_session_token_response", nil)

		// The transport's initial-agent selection is positional, so the
		// requested active agent must be reordered to the front.
		reordered, err := set.Reordered(activeAgentName)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.runtime.post("connect failed", func() { s.failConnect(epoch, err) })
			return
		}

		gate := guardrails.NewGate(set.PolicyName(), s.newEvaluator(set.PolicyName()))

		// The open runs in its own goroutine so a transport that ignores
		// ctx still cannot hold the session in connecting past the
		// timeout.
		opened := make(chan error, 1)
		go func() {
			opened <- s.transport.Connect(ctx, TransportParams{
				Credential:    credential,
				InitialAgents: reordered.Agents,
				OutputGate:    gate,
				SharedContext: s.sharedContext,
			})
		}()

		select {
		case err := <-opened:
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				s.runtime.post("connect failed", func() { s.failConnect(epoch, fmt.Errorf("transport open failed: %w", err)) })
			}
		case <-ctx.Done():
			err := fmt.Errorf("transport open timed out: %w", ctx.Err())
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.runtime.post("connect failed", func() { s.failConnect(epoch, err) })
		}
	}()
}

// failConnect reverts a failed attempt. Stale epochs are discarded: the
// user may already have toggled away and back.
func (s *Session) failConnect(epoch uint64, err error) {
	s.stateMu.RLock()
	stale := epoch != s.connectEpoch
	s.stateMu.RUnlock()
	if stale {
		return
	}

	s.setStatus(StatusDisconnected)
	s.reportError(err)
	s.notifyUpdate()
}

func (s *Session) disconnectLocked() {
	s.stateMu.Lock()
	s.desired = false
	s.stateMu.Unlock()

	s.transport.Disconnect()
	s.setStatus(StatusDisconnected)
	s.turnTaking.talking.Store(false)
	s.notifyUpdate()
}

// dispatchServerEvent runs on the session loop for every transport
// notification, in arrival order.
func (s *Session) dispatchServerEvent(event realtime.ServerEvent) {
	s.recorder.LogServerEvent(string(event.Kind()), event)

	switch typedEvent := event.(type) {
	case realtime.ConnectionStateChangedEvent:
		s.mirrorConnectionState(typedEvent.State)
	case realtime.AgentHandoffEvent:
		s.handleAgentHandoff(typedEvent)
	case realtime.ItemCreatedEvent:
		role := transcript.RoleAgent
		if typedEvent.Role == "user" {
			role = transcript.RoleUser
		}
		s.recorder.AddMessage(typedEvent.ItemID, role, typedEvent.Text, false)
	case realtime.ItemTextDeltaEvent:
		if err := s.recorder.AppendMessageText(typedEvent.ItemID, typedEvent.Delta); err != nil {
			// Deltas may legitimately beat the created notification.
			s.recorder.AddMessage(typedEvent.ItemID, transcript.RoleAgent, typedEvent.Delta, false)
		}
	case realtime.ItemDoneEvent:
		if err := s.recorder.CompleteMessage(typedEvent.ItemID, typedEvent.Text); err == nil {
			if item, ok := s.recorder.Item(typedEvent.ItemID); ok && item.Role == transcript.RoleAgent {
				// The verdict arrives asynchronously; pending is not failure.
				_ = s.recorder.AttachGuardrail(typedEvent.ItemID, guardrails.Pending())
			}
		}
	case realtime.GuardrailVerdictEvent:
		s.applyGuardrailVerdict(typedEvent)
	case realtime.ToolCallStartedEvent:
		s.recorder.AddBreadcrumb("Tool call: "+typedEvent.Name, typedEvent.Arguments)
	case realtime.ToolCallCompletedEvent:
		s.recorder.AddBreadcrumb("Tool result: "+typedEvent.Name, typedEvent.Result)
	case realtime.ErrorEvent:
		s.reportError(typedEvent.Err)
	}

	s.notifyUpdate()
}

// mirrorConnectionState trusts transport status as-is, except that a
// late connected/connecting notification is not re-applied once the
// user has disconnected. The guard checks desired at processing time,
// not when the notification was issued.
func (s *Session) mirrorConnectionState(state realtime.ConnectionState) {
	s.stateMu.RLock()
	desired := s.desired
	s.stateMu.RUnlock()

	switch state {
	case realtime.ConnectionStateConnecting:
		if desired {
			s.setStatus(StatusConnecting)
		}
	case realtime.ConnectionStateConnected:
		if !desired {
			return
		}
		// Transports sometimes duplicate notifications; the activation
		// path runs only on an actual transition into connected.
		if s.setStatus(StatusConnected) {
			s.onConnected()
		}
	case realtime.ConnectionStateDisconnected:
		s.setStatus(StatusDisconnected)
		s.turnTaking.talking.Store(false)
	}
}

// onConnected runs the agent-activation path for the freshly connected
// session: announce, configure turn-taking, possibly greet.
func (s *Session) onConnected() {
	s.pipeline.onConnected()
	s.activateAgent()
}

// activateAgent announces the active agent, pushes the turn-taking
// configuration, and synthesizes the greeting turn unless this
// activation was caused by a handoff.
func (s *Session) activateAgent() {
	s.stateMu.RLock()
	set := s.activeSet
	agentName := s.activeAgentName
	s.stateMu.RUnlock()

	var payload any
	if agent, ok := set.AgentByName(agentName); ok {
		payload = agent
	}
	s.recorder.AddBreadcrumb("Agent: "+agentName, payload)

	s.pushTurnTakingConfig()

	if !s.consumeHandoffLatch() {
		s.sendSimulatedUserMessage(greetingTrigger)
	}

	if s.callbacks.onAgentChange != nil {
		s.callbacks.onAgentChange(agentName)
	}
}

// sendSimulatedUserMessage injects a hidden user turn and immediately
// requests a response, so the agent speaks without real input.
func (s *Session) sendSimulatedUserMessage(text string) {
	id := uuid.NewString()
	s.recorder.AddMessage(id, transcript.RoleUser, text, true)

	s.sendClientEvent(realtime.NewUserTextItemEvent(id, text))
	s.sendClientEvent(realtime.NewResponseCreateEvent())
}

func (s *Session) applyGuardrailVerdict(event realtime.GuardrailVerdictEvent) {
	result := guardrails.Pass("")
	if !event.Passed {
		result = guardrails.Fail(guardrails.Category(event.Category), event.Rationale, "")
	}

	if err := s.recorder.AttachGuardrail(event.ItemID, result); err != nil {
		logger.Warn("guardrail verdict for unknown item", "item_id", event.ItemID)
		return
	}

	if !event.Passed {
		// Refusal disposition: the message stays in the transcript with
		// its failed verdict, and the utterance is cut off rather than
		// silently suppressed.
		s.transport.Interrupt()
		s.recorder.AddBreadcrumb("Guardrail tripped: "+event.Category, map[string]any{
			"rationale": event.Rationale,
		})
	}
}

// sendClientEvent forwards an event to the transport and records it in
// the protocol log.
func (s *Session) sendClientEvent(event realtime.ClientEvent) {
	if err := s.transport.SendEvent(event); err != nil {
		s.reportError(fmt.Errorf("failed to send %s: %w", event.ClientEventType(), err))
		return
	}
	s.recorder.LogClientEvent(event.ClientEventType(), event)
}
