package session

import (
	"context"
	"time"

	"github.com/parley-voice/parley-core/core/agents"
	"github.com/parley-voice/parley-core/core/credentials"
	"github.com/parley-voice/parley-core/core/guardrails"
	"github.com/parley-voice/parley-core/core/realtime"
)

type SessionOption func(*Session)

// Transport carries structured events to and from the remote reasoning
// service. Connect is expected to be called only from the disconnected
// state; the session controller enforces that discipline, the transport
// does not.
type Transport interface {
	// Connect opens the channel. ctx bounds the open; implementations
	// must abandon the attempt when it expires.
	Connect(ctx context.Context, params TransportParams) error
	Disconnect()
	SendEvent(event realtime.ClientEvent) error
	SendUserText(text string) error
	// Interrupt cuts off an in-flight agent utterance.
	Interrupt()
	Mute(muted bool) error
	// Notifications delivers transport-originated events. The channel
	// stays open for the lifetime of the transport, across connects.
	Notifications() <-chan realtime.ServerEvent
}

type TransportParams struct {
	Credential string
	// InitialAgents is positional: the transport activates the first
	// agent in the list.
	InitialAgents []agents.Agent
	// OutputGate is installed as a filter over finalized agent output.
	OutputGate    *guardrails.Gate
	SharedContext map[string]any
}

func WithTransport(transport Transport) SessionOption {
	return func(s *Session) { s.transport = transport }
}

func WithCredentialIssuer(issuer credentials.Issuer) SessionOption {
	return func(s *Session) { s.issuer = issuer }
}

func WithRegistry(registry *agents.Registry) SessionOption {
	return func(s *Session) { s.registry = registry }
}

// PlaybackSink is the one playback device a session drives. The session
// owns it exclusively; no other component touches it.
type PlaybackSink interface {
	Play() error
	Pause()
	SetMuted(muted bool)
	// HasStream reports whether live media is currently attached to the
	// sink.
	HasStream() bool
}

// RecordingSink is an optional sink capability: capturing the session's
// playback to persistent storage for the lifetime of a connection.
type RecordingSink interface {
	StartRecording() error
	StopRecording() error
}

func WithPlaybackSink(sink PlaybackSink) SessionOption {
	return func(s *Session) { s.pipeline.Set(sink) }
}

// WithEvaluatorFactory overrides how the per-connection moderation
// evaluator is built from the active set's policy name.
func WithEvaluatorFactory(factory func(policyName string) guardrails.Evaluator) SessionOption {
	return func(s *Session) { s.newEvaluator = factory }
}

// WithConnectTimeout bounds credential acquisition plus transport open.
// Expiry reverts the session to disconnected; it is never retried
// automatically.
func WithConnectTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) { s.connectTimeout = timeout }
}

func WithSharedContext(sharedContext map[string]any) SessionOption {
	return func(s *Session) { s.sharedContext = sharedContext }
}

// WithInitialSelection seeds the set and agent ToggleConnection uses
// before any explicit Connect or selection call.
func WithInitialSelection(setKey, agentName string) SessionOption {
	return func(s *Session) {
		s.activeSet = agents.ConfigSet{Key: setKey}
		s.activeAgentName = agentName
	}
}

type sessionCallbacks struct {
	onStatusChange func(Status)
	onAgentChange  func(string)
	onError        func(error)
	onUpdate       func()
}

func WithStatusCallback(callback func(Status)) SessionOption {
	return func(s *Session) { s.callbacks.onStatusChange = callback }
}

func WithAgentChangeCallback(callback func(agentName string)) SessionOption {
	return func(s *Session) { s.callbacks.onAgentChange = callback }
}

func WithErrorCallback(callback func(error)) SessionOption {
	return func(s *Session) { s.callbacks.onError = callback }
}

// WithUpdateCallback is invoked after any task that may have changed a
// read model, so a UI can repaint.
func WithUpdateCallback(callback func()) SessionOption {
	return func(s *Session) { s.callbacks.onUpdate = callback }
}
