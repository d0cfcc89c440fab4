// Package portaudio is a playback sink backed by PortAudio's default
// output stream. Writes are synchronous; audio enqueued while paused is
// buffered and drained when playback resumes.
package portaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/parley-voice/parley-core/core/audio"
)

type Sink struct {
	bufferSize int
	encoding   audio.EncodingInfo
	stream     *portaudio.Stream
	out        []int16

	mu      sync.Mutex
	playing bool
	muted   bool
	pending []byte
}

// NewSink opens the default output stream. The stream is fixed to the
// 16-bit default encoding; the int16 frame buffer cannot carry the
// one-byte telephony formats.
func NewSink(bufferSize int) (*Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	encoding := audio.GetDefaultEncodingInfo()
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(encoding.SampleRate), bufferSize, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open playback stream: %w", err)
	}

	return &Sink{
		bufferSize: bufferSize,
		encoding:   encoding,
		stream:     stream,
		out:        out,
	}, nil
}

func (s *Sink) EnqueueAudio(audioBytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return fmt.Errorf("stream closed")
	}

	s.pending = append(s.pending, audioBytes...)
	if s.playing {
		s.drainLocked()
	}
	return nil
}

func (s *Sink) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

func (s *Sink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return fmt.Errorf("stream closed")
	}
	if s.playing {
		return nil
	}

	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start playback stream: %w", err)
	}
	s.playing = true
	s.drainLocked()
	return nil
}

func (s *Sink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil || !s.playing {
		return
	}

	s.playing = false
	_ = s.stream.Stop()
}

func (s *Sink) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *Sink) HasStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return
	}

	_ = s.stream.Close()
	s.stream = nil
	_ = portaudio.Terminate()
}

// drainLocked writes whole device buffers; partial trailing audio stays
// pending until more arrives.
func (s *Sink) drainLocked() {
	chunk := s.bufferSize * s.encoding.Format.ByteSize()
	for len(s.pending) >= chunk {
		if !s.muted {
			_ = binary.Read(bytes.NewBuffer(s.pending[:chunk]), binary.LittleEndian, s.out)
			_ = s.stream.Write()
		}
		s.pending = s.pending[chunk:]
	}
}
