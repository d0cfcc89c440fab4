package miniaudio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/parley-voice/parley-core/core/audio"
)

var ErrNoRecordingWriter = errors.New("no recording writer configured")

// wavRecorder captures the playback feed while active and flushes it as
// a single-channel WAV file when recording stops. The header is derived
// from the sink's encoding.
type wavRecorder struct {
	out      io.Writer
	encoding audio.EncodingInfo

	mu     sync.Mutex
	active bool
	pcm    []byte
}

func (r *wavRecorder) startRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return ErrNoRecordingWriter
	}
	if r.active {
		return nil
	}

	r.active = true
	r.pcm = nil
	return nil
}

func (r *wavRecorder) stopRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil
	}
	r.active = false

	encoding := r.encoding
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	if err := writeWav(r.out, r.pcm, encoding); err != nil {
		return fmt.Errorf("failed to flush recording: %w", err)
	}
	r.pcm = nil
	return nil
}

func (r *wavRecorder) write(audio []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.pcm = append(r.pcm, audio...)
}

func writeWav(w io.Writer, pcm []byte, encoding audio.EncodingInfo) error {
	const channels = 1
	sampleRate := encoding.SampleRate
	bitsPerSample := encoding.Format.ByteSize() * 8
	blockAlign := channels * bitsPerSample / 8

	formatCode := uint16(1) // PCM
	switch encoding.Format {
	case audio.EncodingALaw:
		formatCode = 6
	case audio.EncodingMulaw:
		formatCode = 7
	}

	header := bytes.Buffer{}
	header.WriteString("RIFF")
	binary.Write(&header, binary.LittleEndian, uint32(36+len(pcm)))
	header.WriteString("WAVE")
	header.WriteString("fmt ")
	binary.Write(&header, binary.LittleEndian, uint32(16))
	binary.Write(&header, binary.LittleEndian, formatCode)
	binary.Write(&header, binary.LittleEndian, uint16(channels))
	binary.Write(&header, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&header, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&header, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&header, binary.LittleEndian, uint16(bitsPerSample))
	header.WriteString("data")
	binary.Write(&header, binary.LittleEndian, uint32(len(pcm)))

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
