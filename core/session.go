// Package session is the orchestration core of a live, turn-based
// conversation with a set of configurable agents. It owns the
// connection state machine and coordinates the turn-taking protocol,
// the playback pipeline, transcript/event recording, moderation gating,
// and agent handoff on a single cooperative event loop.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/parley-voice/parley-core/core/agents"
	"github.com/parley-voice/parley-core/core/credentials"
	"github.com/parley-voice/parley-core/core/guardrails"
	guardrailllm "github.com/parley-voice/parley-core/core/guardrails/llm"
	"github.com/parley-voice/parley-core/core/realtime"
	"github.com/parley-voice/parley-core/core/transcript"
)

const defaultConnectTimeout = 30 * time.Second

type Session struct {
	runtime   *sessionRuntime
	closeOnce sync.Once

	transport    Transport
	issuer       credentials.Issuer
	registry     *agents.Registry
	recorder     *transcript.Recorder
	newEvaluator func(policyName string) guardrails.Evaluator

	pipeline   *audioPipeline
	turnTaking turnTaking

	callbacks      sessionCallbacks
	connectTimeout time.Duration
	sharedContext  map[string]any
	baseContext    context.Context

	// stateMu guards reads from outside the loop; writes happen only on
	// loop tasks.
	stateMu sync.RWMutex
	status  Status
	// desired is whether the user currently wants the session up. A
	// late transport "connected" notification arriving after the user
	// disconnected is discarded because desired flipped first.
	desired         bool
	connectEpoch    uint64
	activeSet       agents.ConfigSet
	activeAgentName string
	// handoffPending latches a transport handoff until the next
	// agent-activation consumes it to suppress the synthetic greeting.
	handoffPending bool
}

func New(opts ...SessionOption) *Session {
	s := &Session{
		runtime:        newSessionRuntime(),
		registry:       agents.NewRegistry(),
		recorder:       transcript.NewRecorder(),
		connectTimeout: defaultConnectTimeout,
		baseContext:    context.Background(),
		status:         StatusDisconnected,
		newEvaluator: func(policyName string) guardrails.Evaluator {
			return guardrailllm.NewEvaluator(policyName)
		},
	}
	s.pipeline = newAudioPipeline(func(muted bool) error {
		if s.transport == nil {
			return nil
		}
		return s.transport.Mute(muted)
	})

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start launches the session loop and begins draining transport
// notifications. ctx cancellation tears the session down.
//
// Contract: call Start at most once per session instance.
func (s *Session) Start(ctx context.Context) {
	s.baseContext = ctx
	s.runtime.configure(ctx)

	if started := s.runtime.start(); started {
		go func() {
			<-ctx.Done()
			s.Close()
		}()
	}

	if s.transport != nil {
		go s.drainNotifications(s.transport.Notifications())
	}
}

// drainNotifications pumps transport events onto the session loop so
// they are serialized with locally-originated intents.
func (s *Session) drainNotifications(notifications <-chan realtime.ServerEvent) {
	for {
		select {
		case <-s.runtime.closeCh:
			return
		case event, ok := <-notifications:
			if !ok {
				return
			}
			s.runtime.post("server event", func() { s.dispatchServerEvent(event) })
		}
	}
}

// Close tears the session down: transport disconnect, recording stop,
// loop shutdown. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.transport != nil {
			s.transport.Disconnect()
		}
		s.pipeline.stopRecording()
		s.runtime.end()
		s.runtime.waitUntilEnded()
	})
}

func (s *Session) Status() Status {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.status
}

func (s *Session) ActiveAgentName() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.activeAgentName
}

func (s *Session) ActiveSet() agents.ConfigSet {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.activeSet
}

func (s *Session) Recorder() *transcript.Recorder { return s.recorder }

func (s *Session) Registry() *agents.Registry { return s.registry }

func (s *Session) PushToTalk() bool { return s.turnTaking.pushToTalk.Load() }

func (s *Session) PlaybackEnabled() bool { return s.pipeline.isEnabled() }

// setStatus reports whether the status actually changed. Duplicated
// transport notifications re-apply the same status and must not re-run
// transition effects.
func (s *Session) setStatus(status Status) bool {
	s.stateMu.Lock()
	changed := s.status != status
	s.status = status
	s.stateMu.Unlock()

	if !changed {
		return false
	}
	if status != StatusConnected {
		s.pipeline.stopRecording()
	}
	if s.callbacks.onStatusChange != nil {
		s.callbacks.onStatusChange(status)
	}
	return true
}

func (s *Session) notifyUpdate() {
	if s.callbacks.onUpdate != nil {
		s.callbacks.onUpdate()
	}
}

func (s *Session) reportError(err error) {
	if err == nil {
		return
	}
	logger.Error("session error", "error", err)
	if s.callbacks.onError != nil {
		s.callbacks.onError(err)
	}
}
