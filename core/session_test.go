package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/parley-voice/parley-core/core/credentials"
	"github.com/parley-voice/parley-core/core/guardrails"
	"github.com/parley-voice/parley-core/core/realtime"
	"github.com/parley-voice/parley-core/core/transcript"
)

func TestConnectTransitionsThroughConnecting(t *testing.T) {
	stub := newTransportStub()

	statuses := statusRecorder{}
	s := newTestSession(t, stub, WithStatusCallback(statuses.record))

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})

	got := statuses.snapshot()
	if len(got) != 2 || got[0] != StatusConnecting || got[1] != StatusConnected {
		t.Fatalf("expected [CONNECTING CONNECTED], got %v", got)
	}
}

func TestConnectWhileActiveIsNoop(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})

	s.Connect("support", "")
	time.Sleep(50 * time.Millisecond)

	if calls := stub.connectCalls(); calls != 1 {
		t.Fatalf("expected a single transport connect, got %d", calls)
	}
}

func TestConnectedPushesVoiceDetectionConfig(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session configuration push", func() bool {
		return len(stub.sessionUpdates()) > 0
	})

	detection := stub.sessionUpdates()[0].Session.TurnDetection
	if detection == nil {
		t.Fatalf("expected a server detector in automatic mode, got nil")
	}
	if detection.Type != "server_vad" ||
		detection.Threshold != 0.9 ||
		detection.PrefixPaddingMs != 300 ||
		detection.SilenceDurationMs != 500 ||
		!detection.CreateResponse {
		t.Fatalf("unexpected detector configuration: %+v", detection)
	}
}

func TestPushToTalkDisablesRemoteDetector(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "initial configuration push", func() bool {
		return len(stub.sessionUpdates()) > 0
	})

	s.SetPushToTalk(true)
	waitForCondition(t, 2*time.Second, "manual-mode configuration push", func() bool {
		return len(stub.sessionUpdates()) > 1
	})

	updates := stub.sessionUpdates()
	if detection := updates[len(updates)-1].Session.TurnDetection; detection != nil {
		t.Fatalf("expected a nil detector in manual mode, got %+v", detection)
	}
}

func TestPressReleaseEventOrder(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})
	s.SetPushToTalk(true)
	waitForCondition(t, 2*time.Second, "manual mode", func() bool {
		return s.PushToTalk()
	})

	s.PressTalk()
	waitForCondition(t, 2*time.Second, "press to open a turn", s.IsTalking)

	s.ReleaseTalk()
	waitForCondition(t, 2*time.Second, "release to close the turn", func() bool {
		return !s.IsTalking()
	})

	if stub.interruptCalls() == 0 {
		t.Fatalf("expected press to interrupt the in-flight utterance")
	}
	assertOrderedEventTypes(t, stub.sentEventTypes(),
		"input_audio_buffer.clear",
		"input_audio_buffer.commit",
		"response.create",
	)
}

func TestReleaseWithoutPressSendsNothing(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})
	s.SetPushToTalk(true)
	waitForCondition(t, 2*time.Second, "manual mode", func() bool {
		return s.PushToTalk()
	})

	before := len(stub.sentEventTypes())
	s.ReleaseTalk()
	time.Sleep(50 * time.Millisecond)

	for _, eventType := range stub.sentEventTypes()[before:] {
		if eventType == "input_audio_buffer.commit" || eventType == "response.create" {
			t.Fatalf("expected release without press to send nothing, sent %s", eventType)
		}
	}
}

func TestFreshConnectSendsHiddenGreeting(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "greeting turn", func() bool {
		return stub.greetingCount() == 1
	})

	greeting := findGreetingItem(t, s)
	if !greeting.Hidden {
		t.Fatalf("expected the greeting turn to be hidden from the visible log")
	}
	if greeting.Role != transcript.RoleUser {
		t.Fatalf("expected the greeting to be a user turn, got %s", greeting.Role)
	}
}

func TestHandoffSuppressesGreetingExactlyOnce(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "initial greeting", func() bool {
		return stub.greetingCount() == 1
	})

	stub.emit(realtime.NewAgentHandoffEvent("specialist"))
	waitForCondition(t, 2*time.Second, "handoff activation", func() bool {
		return s.ActiveAgentName() == "specialist"
	})
	waitForCondition(t, 2*time.Second, "handoff configuration push", func() bool {
		return len(stub.sessionUpdates()) > 1
	})

	time.Sleep(50 * time.Millisecond)
	if got := stub.greetingCount(); got != 1 {
		t.Fatalf("expected the handoff activation to skip the greeting, got %d greetings", got)
	}

	s.Disconnect()
	waitForCondition(t, 2*time.Second, "disconnect", func() bool {
		return s.Status() == StatusDisconnected
	})

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "fresh connect to greet again", func() bool {
		return stub.greetingCount() == 2
	})
}

func TestDuplicateConnectedNotificationIsIdempotent(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "initial greeting", func() bool {
		return stub.greetingCount() == 1
	})
	configPushes := len(stub.sessionUpdates())

	stub.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateConnected))
	time.Sleep(50 * time.Millisecond)

	if got := stub.greetingCount(); got != 1 {
		t.Fatalf("expected a repeated connected notification to greet once, got %d greetings", got)
	}
	if got := len(stub.sessionUpdates()); got != configPushes {
		t.Fatalf("expected no extra configuration push, got %d after %d", got, configPushes)
	}

	breadcrumbs := 0
	for _, item := range s.Recorder().Items() {
		if item.Kind == transcript.KindBreadcrumb && item.Title == "Agent: frontdesk" {
			breadcrumbs++
		}
	}
	if breadcrumbs != 1 {
		t.Fatalf("expected a single agent breadcrumb, got %d", breadcrumbs)
	}
}

func TestTransportOpenHonorsConnectTimeout(t *testing.T) {
	stub := newTransportStub()
	stub.hangOpen = true

	errs := make(chan error, 1)
	s := newTestSession(t, stub,
		WithConnectTimeout(50*time.Millisecond),
		WithErrorCallback(func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to begin connecting", func() bool {
		return s.Status() == StatusConnecting
	})
	waitForCondition(t, 2*time.Second, "hanging transport open to time out", func() bool {
		return s.Status() == StatusDisconnected
	})

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a surfaced connect error")
	}
	if calls := stub.connectCalls(); calls != 1 {
		t.Fatalf("expected a single transport open attempt, got %d", calls)
	}
}

func TestToggleConnectionDrivesLifecycle(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.ToggleConnection()
	waitForCondition(t, 2*time.Second, "first toggle to connect", func() bool {
		return s.Status() == StatusConnected
	})
	if key := s.ActiveSet().Key; key != "support" {
		t.Fatalf("expected the first registered set by default, got %q", key)
	}
	if initial := stub.lastConnectParams().InitialAgents; len(initial) == 0 || initial[0].Name != "frontdesk" {
		t.Fatalf("expected the set's first agent active, got %+v", initial)
	}

	s.ToggleConnection()
	waitForCondition(t, 2*time.Second, "second toggle to disconnect", func() bool {
		return s.Status() == StatusDisconnected
	})

	s.ToggleConnection()
	waitForCondition(t, 2*time.Second, "third toggle to reconnect", func() bool {
		return s.Status() == StatusConnected && stub.connectCalls() == 2
	})
}

func TestToggleConnectionUsesSeededSelection(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub, WithInitialSelection("support", "specialist"))

	s.ToggleConnection()
	waitForCondition(t, 2*time.Second, "toggle to connect", func() bool {
		return s.Status() == StatusConnected
	})

	initial := stub.lastConnectParams().InitialAgents
	if len(initial) != 2 || initial[0].Name != "specialist" {
		t.Fatalf("expected the seeded agent promoted to the front, got %+v", initial)
	}
}

func TestSelectSetWhileConnectedDisconnectsFirst(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)
	s.Registry().RegisterBuiltin("sales", "Acme Outfitters", agentsFixture("closer")...)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})

	s.SelectSet("sales")
	waitForCondition(t, 2*time.Second, "selection to disconnect", func() bool {
		return s.Status() == StatusDisconnected && s.ActiveSet().Key == "sales"
	})

	s.ToggleConnection()
	waitForCondition(t, 2*time.Second, "toggle to bring the new set up", func() bool {
		return s.Status() == StatusConnected
	})
	if initial := stub.lastConnectParams().InitialAgents; len(initial) != 1 || initial[0].Name != "closer" {
		t.Fatalf("expected the newly selected set's agents, got %+v", initial)
	}
}

func TestPlaybackDisableMutesPausesAndMutesTransport(t *testing.T) {
	stub := newTransportStub()
	sink := &playbackSinkStub{hasStream: true}
	s := newTestSession(t, stub, WithPlaybackSink(sink))

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})

	s.SetPlaybackEnabled(false)
	waitForCondition(t, 2*time.Second, "sink to mute and pause", func() bool {
		return sink.isMuted() && sink.pauseCount() == 1
	})
	waitForCondition(t, 2*time.Second, "transport mute mirror", func() bool {
		calls := stub.muteHistory()
		return len(calls) > 0 && calls[len(calls)-1]
	})
	if s.PlaybackEnabled() {
		t.Fatalf("expected playback to report disabled")
	}

	s.SetPlaybackEnabled(true)
	waitForCondition(t, 2*time.Second, "sink to unmute and resume", func() bool {
		return !sink.isMuted() && sink.playCount() > 0
	})
	waitForCondition(t, 2*time.Second, "transport unmute mirror", func() bool {
		calls := stub.muteHistory()
		return len(calls) > 0 && !calls[len(calls)-1]
	})
}

func TestRecordingRequiresAttachedStream(t *testing.T) {
	stub := newTransportStub()
	sink := &playbackSinkStub{hasStream: false}
	s := newTestSession(t, stub, WithPlaybackSink(sink))

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})

	time.Sleep(50 * time.Millisecond)
	if sink.recordingStarts() != 0 {
		t.Fatalf("expected no recording without an attached stream")
	}
}

func TestRecordingFollowsConnectionLifetime(t *testing.T) {
	stub := newTransportStub()
	sink := &playbackSinkStub{hasStream: true}
	s := newTestSession(t, stub, WithPlaybackSink(sink))

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "recording to start", func() bool {
		return sink.recordingStarts() == 1
	})

	s.Disconnect()
	waitForCondition(t, 2*time.Second, "recording to stop", func() bool {
		return sink.recordingStops() == 1
	})
}

func TestFailedModerationKeepsMessageWithVerdict(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})
	interruptsBefore := stub.interruptCalls()

	stub.emit(realtime.NewItemCreatedEvent("item-1", "assistant", ""))
	stub.emit(realtime.NewItemDoneEvent("item-1", "something objectionable"))
	stub.emit(realtime.NewGuardrailVerdictEvent("item-1", false, "OFFENSIVE", "insults the caller"))

	waitForCondition(t, 2*time.Second, "failed verdict to attach", func() bool {
		item, ok := s.Recorder().Item("item-1")
		return ok && item.Guardrail != nil && item.Guardrail.Status == guardrails.StatusFail
	})

	item, _ := s.Recorder().Item("item-1")
	if item.Title != "something objectionable" {
		t.Fatalf("expected the moderated message to stay in the transcript, got %q", item.Title)
	}
	if item.Guardrail.Category != guardrails.CategoryOffensive {
		t.Fatalf("expected OFFENSIVE category, got %s", item.Guardrail.Category)
	}
	if stub.interruptCalls() != interruptsBefore+1 {
		t.Fatalf("expected the failed verdict to interrupt the utterance")
	}

	foundBreadcrumb := false
	for _, recorded := range s.Recorder().Items() {
		if recorded.Kind == transcript.KindBreadcrumb && recorded.Title == "Guardrail tripped: OFFENSIVE" {
			foundBreadcrumb = true
		}
	}
	if !foundBreadcrumb {
		t.Fatalf("expected a guardrail breadcrumb in the transcript")
	}
}

func TestPassedModerationAttachesPassVerdict(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})

	stub.emit(realtime.NewItemCreatedEvent("item-2", "assistant", ""))
	stub.emit(realtime.NewItemDoneEvent("item-2", "happy to help"))
	stub.emit(realtime.NewGuardrailVerdictEvent("item-2", true, "NONE", ""))

	waitForCondition(t, 2*time.Second, "pass verdict to attach", func() bool {
		item, ok := s.Recorder().Item("item-2")
		return ok && item.Guardrail != nil && item.Guardrail.Status == guardrails.StatusPass
	})
}

func TestConnectTimeoutRevertsToDisconnected(t *testing.T) {
	stub := newTransportStub()

	errs := make(chan error, 1)
	s := newTestSession(t, stub,
		WithCredentialIssuer(blockingIssuer{}),
		WithConnectTimeout(50*time.Millisecond),
		WithErrorCallback(func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "timeout to revert the session", func() bool {
		return s.Status() == StatusDisconnected
	})

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a surfaced connect error")
	}
	if calls := stub.connectCalls(); calls != 0 {
		t.Fatalf("expected no transport connect after a credential timeout, got %d", calls)
	}
}

func TestLateConnectedAfterDisconnectIsIgnored(t *testing.T) {
	stub := newTransportStub()
	stub.manualStates = true
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to begin connecting", func() bool {
		return s.Status() == StatusConnecting
	})

	s.Disconnect()
	waitForCondition(t, 2*time.Second, "disconnect", func() bool {
		return s.Status() == StatusDisconnected
	})

	stub.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateConnected))
	time.Sleep(50 * time.Millisecond)

	if status := s.Status(); status != StatusDisconnected {
		t.Fatalf("expected a late connected notification to be discarded, status is %s", status)
	}
	if count := stub.greetingCount(); count != 0 {
		t.Fatalf("expected no greeting after the user disconnected, got %d", count)
	}
}

func TestSendUserTextInterruptsFirst(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})
	interruptsBefore := stub.interruptCalls()

	s.SendUserText("  what are your hours?  ")
	waitForCondition(t, 2*time.Second, "user text to send", func() bool {
		texts := stub.userTexts()
		return len(texts) == 1 && texts[0] == "what are your hours?"
	})
	if stub.interruptCalls() != interruptsBefore+1 {
		t.Fatalf("expected sending text to interrupt the in-flight utterance")
	}

	s.SendUserText("   ")
	time.Sleep(50 * time.Millisecond)
	if texts := stub.userTexts(); len(texts) != 1 {
		t.Fatalf("expected blank input to be dropped, got %v", texts)
	}
}

func TestActiveAgentReorderedToFront(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "specialist")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})

	params := stub.lastConnectParams()
	if len(params.InitialAgents) != 2 ||
		params.InitialAgents[0].Name != "specialist" ||
		params.InitialAgents[1].Name != "frontdesk" {
		t.Fatalf("expected the requested agent promoted to the front, got %+v", params.InitialAgents)
	}
}

func TestConnectInstallsPolicyGate(t *testing.T) {
	stub := newTransportStub()
	s := newTestSession(t, stub)

	s.Connect("support", "")
	waitForCondition(t, 2*time.Second, "session to connect", func() bool {
		return s.Status() == StatusConnected
	})

	gate := stub.lastConnectParams().OutputGate
	if gate == nil {
		t.Fatalf("expected an output gate installed on the transport")
	}
	if gate.PolicyName() != "Acme Outfitters" {
		t.Fatalf("expected the builtin set to moderate against its company, got %q", gate.PolicyName())
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

func newTestSession(t *testing.T, transport *transportStub, opts ...SessionOption) *Session {
	t.Helper()

	baseOpts := []SessionOption{
		WithTransport(transport),
		WithCredentialIssuer(credentials.StaticIssuer("test-credential")),
		WithEvaluatorFactory(func(string) guardrails.Evaluator { return passEvaluator{} }),
	}
	s := New(append(baseOpts, opts...)...)
	s.Registry().RegisterBuiltin("support", "Acme Outfitters",
		agentsFixture("frontdesk", "specialist")...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx)
	t.Cleanup(s.Close)

	return s
}

func assertOrderedEventTypes(t *testing.T, eventTypes []string, expected ...string) {
	t.Helper()

	next := 0
	for _, eventType := range eventTypes {
		if next < len(expected) && eventType == expected[next] {
			next++
		}
	}
	if next != len(expected) {
		t.Fatalf("expected %v in order within %v", expected, eventTypes)
	}
}

func findGreetingItem(t *testing.T, s *Session) transcript.Item {
	t.Helper()

	for _, item := range s.Recorder().Items() {
		if item.Kind == transcript.KindMessage && item.Title == greetingTrigger {
			return item
		}
	}
	t.Fatalf("expected a greeting item in the transcript")
	return transcript.Item{}
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *statusRecorder) snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status{}, r.statuses...)
}
