package session

import (
	"reflect"
	"sync/atomic"
)

// audioPipeline owns the single playback sink and, independently, the
// optional capture-to-storage recorder scoped to a connected session.
//
// The facade caches the typed recording capability at Set time so the
// per-transition code can route without repeated type assertions.
//
// NOTE: sink operations are best-effort side effects; their failures
// are logged at this boundary and never affect session status.
type audioPipeline struct {
	// base stores the configured sink regardless of capabilities.
	base PlaybackSink
	// recording is set when the sink also supports capture.
	recording RecordingSink

	enabled         atomic.Bool
	recordingActive atomic.Bool

	// muteTransport mirrors playback enablement into the transport's
	// own mute control, independently of the local sink.
	muteTransport func(muted bool) error
}

func newAudioPipeline(muteTransport func(muted bool) error) *audioPipeline {
	pipeline := &audioPipeline{muteTransport: muteTransport}
	pipeline.enabled.Store(true)
	return pipeline
}

// Set replaces the configured sink and recomputes capabilities. Nil and
// typed-nil sinks are treated as unconfigured.
func (p *audioPipeline) Set(sink PlaybackSink) {
	if p == nil {
		return
	}

	p.base = nil
	p.recording = nil

	if isNilPlaybackSink(sink) {
		return
	}
	p.base = sink

	if recording, ok := sink.(RecordingSink); ok {
		p.recording = recording
	}
}

func (p *audioPipeline) isConfigured() bool { return p != nil && p.base != nil }

func (p *audioPipeline) isEnabled() bool { return p != nil && p.enabled.Load() }

// setEnabled applies playback enablement to the local sink and mirrors
// it into the transport mute control. Autoplay failures are logged,
// never returned.
func (p *audioPipeline) setEnabled(enabled bool) {
	p.enabled.Store(enabled)

	if p.isConfigured() {
		if enabled {
			p.base.SetMuted(false)
			if err := p.base.Play(); err != nil {
				logger.Warn("playback autoplay blocked", "error", err)
			}
		} else {
			p.base.SetMuted(true)
			p.base.Pause()
		}
	}

	p.syncTransportMute()
}

// syncTransportMute re-applies the enablement state to the transport.
// Called on every connected transition to cover mute state that drifted
// while disconnected.
func (p *audioPipeline) syncTransportMute() {
	if p.muteTransport == nil {
		return
	}
	if err := p.muteTransport(!p.enabled.Load()); err != nil {
		logger.Warn("failed to sync transport mute", "error", err)
	}
}

// onConnected re-syncs mute and starts the recording capture, but only
// if live media is already attached to the sink. A stream attaching
// after the status flip does not retroactively start recording; that
// ordering dependency is accepted, not papered over.
func (p *audioPipeline) onConnected() {
	p.syncTransportMute()

	if p.recording == nil || !p.isConfigured() || !p.base.HasStream() {
		return
	}
	if !p.recordingActive.CompareAndSwap(false, true) {
		return
	}
	if err := p.recording.StartRecording(); err != nil {
		p.recordingActive.Store(false)
		logger.Warn("failed to start session recording", "error", err)
	}
}

// stopRecording stops the capture unconditionally; it runs whenever the
// session leaves the connected state, regardless of cause.
func (p *audioPipeline) stopRecording() {
	if p == nil || p.recording == nil {
		return
	}
	if !p.recordingActive.CompareAndSwap(true, false) {
		return
	}
	if err := p.recording.StopRecording(); err != nil {
		logger.Warn("failed to stop session recording", "error", err)
	}
}

// SetPlaybackEnabled toggles the playback sink and the transport mute
// mirror together.
func (s *Session) SetPlaybackEnabled(enabled bool) {
	s.runtime.post("set playback enabled", func() {
		s.pipeline.setEnabled(enabled)
		s.notifyUpdate()
	})
}

// isNilPlaybackSink detects nil and typed-nil interface values so Set
// does not store unusable wrappers as configured sinks.
func isNilPlaybackSink(sink PlaybackSink) bool {
	if sink == nil {
		return true
	}

	v := reflect.ValueOf(sink)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
