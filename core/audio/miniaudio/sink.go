// Package miniaudio is a playback sink backed by the system's default
// output device through malgo. Agent audio is enqueued as it arrives
// and drained by the device callback; an optional recording writer
// captures everything played during a connection as a WAV file.
package miniaudio

import (
	"fmt"
	"io"

	"github.com/gen2brain/malgo"
	"github.com/parley-voice/parley-core/core/audio"
)

type Sink struct {
	// audioContext is only saved to be able to uninitialize it, it is
	// an ownership thing
	audioContext *malgo.AllocatedContext

	encoding audio.EncodingInfo

	playback playbackDevice
	recorder wavRecorder
}

type SinkOption func(*Sink)

// WithRecordingWriter enables the recording capability. Each recording
// is written to the writer as a complete WAV file when it stops.
func WithRecordingWriter(w io.Writer) SinkOption {
	return func(s *Sink) { s.recorder.out = w }
}

// WithEncoding overrides the stream encoding the device and the
// recording are configured for. Zero-valued encodings are ignored.
func WithEncoding(encoding audio.EncodingInfo) SinkOption {
	return func(s *Sink) {
		if encoding.IsZero() {
			return
		}
		s.encoding = encoding
	}
}

func NewSink(opts ...SinkOption) (*Sink, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	sink := Sink{
		audioContext: audioCtx,
		encoding:     audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&sink)
	}
	sink.recorder.encoding = sink.encoding

	if err := sink.playback.init(audioCtx, sink.encoding); err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return &sink, nil
}

// EnqueueAudio buffers decoded agent audio for the device callback.
// Wire it as the transport's audio callback.
func (s *Sink) EnqueueAudio(audio []byte) error {
	if err := s.playback.enqueue(audio); err != nil {
		return err
	}
	s.recorder.write(audio)
	return nil
}

// ClearPending drops buffered audio that has not reached the device
// yet, cutting off an interrupted utterance.
func (s *Sink) ClearPending() {
	s.playback.clearBuffer()
}

func (s *Sink) Play() error {
	return s.playback.start()
}

func (s *Sink) Pause() {
	if err := s.playback.stop(); err != nil {
		logger.Warn("failed to pause playback device", "error", err)
	}
}

func (s *Sink) SetMuted(muted bool) {
	s.playback.setMuted(muted)
}

func (s *Sink) HasStream() bool {
	return s.playback.initialized()
}

func (s *Sink) StartRecording() error {
	return s.recorder.startRecording()
}

func (s *Sink) StopRecording() error {
	return s.recorder.stopRecording()
}

// EncodingInfo reports the encoding the device and the recording were
// configured with.
func (s *Sink) EncodingInfo() audio.EncodingInfo {
	return s.encoding
}

func (s *Sink) Close() {
	_ = s.recorder.stopRecording()
	_ = s.playback.uninit()
	_ = s.audioContext.Uninit()
	s.audioContext.Free()
}
