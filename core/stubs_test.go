package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/parley-voice/parley-core/core/agents"
	"github.com/parley-voice/parley-core/core/guardrails"
	"github.com/parley-voice/parley-core/core/realtime"
)

// transportStub records every interaction and, unless manualStates is
// set, mirrors a real transport by emitting connecting and connected
// notifications from Connect.
type transportStub struct {
	manualStates bool
	// hangOpen makes Connect block forever, ignoring ctx, to model a
	// transport that wedges during the open.
	hangOpen bool

	notifications chan realtime.ServerEvent

	mu          sync.Mutex
	connects    []TransportParams
	sent        []realtime.ClientEvent
	texts       []string
	interrupts  int
	muteCalls   []bool
	disconnects int
	connectErr  error
}

func newTransportStub() *transportStub {
	return &transportStub{notifications: make(chan realtime.ServerEvent, 64)}
}

func (s *transportStub) Connect(_ context.Context, params TransportParams) error {
	s.mu.Lock()
	s.connects = append(s.connects, params)
	err := s.connectErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.hangOpen {
		<-make(chan struct{})
	}

	if !s.manualStates {
		s.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateConnecting))
		s.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateConnected))
	}
	return nil
}

func (s *transportStub) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
}

func (s *transportStub) SendEvent(event realtime.ClientEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, event)
	return nil
}

func (s *transportStub) SendUserText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *transportStub) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupts++
}

func (s *transportStub) Mute(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muteCalls = append(s.muteCalls, muted)
	return nil
}

func (s *transportStub) Notifications() <-chan realtime.ServerEvent {
	return s.notifications
}

func (s *transportStub) emit(event realtime.ServerEvent) {
	s.notifications <- event
}

func (s *transportStub) connectCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connects)
}

func (s *transportStub) lastConnectParams() TransportParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.connects) == 0 {
		return TransportParams{}
	}
	return s.connects[len(s.connects)-1]
}

func (s *transportStub) interruptCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupts
}

func (s *transportStub) muteHistory() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool{}, s.muteCalls...)
}

func (s *transportStub) userTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.texts...)
}

func (s *transportStub) sentEventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]string, 0, len(s.sent))
	for _, event := range s.sent {
		types = append(types, event.ClientEventType())
	}
	return types
}

func (s *transportStub) sessionUpdates() []realtime.SessionUpdateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := []realtime.SessionUpdateEvent{}
	for _, event := range s.sent {
		if update, ok := event.(realtime.SessionUpdateEvent); ok {
			updates = append(updates, update)
		}
	}
	return updates
}

func (s *transportStub) greetingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, event := range s.sent {
		created, ok := event.(realtime.ConversationItemCreateEvent)
		if !ok {
			continue
		}
		if len(created.Item.Content) > 0 && created.Item.Content[0].Text == greetingTrigger {
			count++
		}
	}
	return count
}

type playbackSinkStub struct {
	hasStream bool

	muted  atomic.Bool
	plays  atomic.Int32
	pauses atomic.Int32
	starts atomic.Int32
	stops  atomic.Int32
}

func (s *playbackSinkStub) Play() error {
	s.plays.Add(1)
	return nil
}

func (s *playbackSinkStub) Pause() {
	s.pauses.Add(1)
}

func (s *playbackSinkStub) SetMuted(muted bool) {
	s.muted.Store(muted)
}

func (s *playbackSinkStub) HasStream() bool { return s.hasStream }

func (s *playbackSinkStub) StartRecording() error {
	s.starts.Add(1)
	return nil
}

func (s *playbackSinkStub) StopRecording() error {
	s.stops.Add(1)
	return nil
}

func (s *playbackSinkStub) isMuted() bool        { return s.muted.Load() }
func (s *playbackSinkStub) playCount() int       { return int(s.plays.Load()) }
func (s *playbackSinkStub) pauseCount() int      { return int(s.pauses.Load()) }
func (s *playbackSinkStub) recordingStarts() int { return int(s.starts.Load()) }
func (s *playbackSinkStub) recordingStops() int  { return int(s.stops.Load()) }

type passEvaluator struct{}

func (passEvaluator) Evaluate(_ context.Context, text string) (guardrails.Result, error) {
	return guardrails.Pass(text), nil
}

// blockingIssuer never produces a credential; it waits out the caller's
// deadline.
type blockingIssuer struct{}

func (blockingIssuer) Fetch(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func agentsFixture(names ...string) []agents.Agent {
	fixture := make([]agents.Agent, 0, len(names))
	for _, name := range names {
		fixture = append(fixture, agents.Agent{
			Name:         name,
			Voice:        "sage",
			Instructions: "You are " + name + ".",
		})
	}
	return fixture
}
