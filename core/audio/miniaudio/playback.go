package miniaudio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/parley-voice/parley-core/core/audio"
)

type playbackDevice struct {
	device   *malgo.Device
	config   malgo.DeviceConfig
	encoding audio.EncodingInfo

	pending []byte
	muted   atomic.Bool

	mu      sync.Mutex
	audioMu sync.Mutex
}

func (d *playbackDevice) init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.encoding = encoding
	sampleRate := uint32(encoding.SampleRate)
	channels := 1
	format := malgo.FormatS16
	if encoding.Format.ByteSize() == 1 {
		format = malgo.FormatU8
	}
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	d.config = malgo.DefaultDeviceConfig(malgo.Playback)
	d.config.SampleRate = sampleRate
	d.config.Playback.Format = format
	d.config.Playback.Channels = uint32(channels)
	d.config.Alsa.NoMMap = 1
	d.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	d.config.Periods = 4

	var err error
	if d.device, err = malgo.InitDevice(
		audioContext.Context,
		d.config,
		malgo.DeviceCallbacks{Data: d.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (d *playbackDevice) initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device != nil
}

func (d *playbackDevice) start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("device not initialized")
	} else if d.device.IsStarted() {
		return nil
	}

	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (d *playbackDevice) stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !d.device.IsStarted() {
		return nil
	}

	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	return nil
}

func (d *playbackDevice) setMuted(muted bool) {
	d.muted.Store(muted)
}

func (d *playbackDevice) enqueue(audio []byte) error {
	d.mu.Lock()
	device := d.device
	d.mu.Unlock()
	if device == nil {
		return fmt.Errorf("device not initialized")
	}

	d.audioMu.Lock()
	defer d.audioMu.Unlock()
	d.pending = append(d.pending, audio...)
	return nil
}

func (d *playbackDevice) clearBuffer() {
	d.audioMu.Lock()
	defer d.audioMu.Unlock()
	d.pending = nil
}

func (d *playbackDevice) uninit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return fmt.Errorf("device not initialized")
	}

	d.device.Uninit()
	d.device = nil

	return nil
}

func (d *playbackDevice) processAudio(bytesPerFrame int) malgo.DataProc {
	silence := d.encoding.SilenceValue()
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		// Underruns and muted frames render as encoded silence, which is
		// not the zero byte for every format.
		for i := range pOutput[:min(need, len(pOutput))] {
			pOutput[i] = silence
		}

		d.audioMu.Lock()
		defer d.audioMu.Unlock()
		if len(d.pending) == 0 {
			return
		}

		n := min(need, len(d.pending))
		if !d.muted.Load() {
			// Muted playback still drains the buffer so unmuting does
			// not replay stale audio.
			copy(pOutput, d.pending[:n])
		}
		d.pending = d.pending[n:]
	}
}
