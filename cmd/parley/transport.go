package main

import (
	"context"

	session "github.com/parley-voice/parley-core/core"
	"github.com/parley-voice/parley-core/core/audio/miniaudio"
	"github.com/parley-voice/parley-core/core/realtime"
	"github.com/parley-voice/parley-core/core/realtime/openairt"
)

// sessionTransport adapts the realtime client to the session's
// transport contract and ties interruption to the local playback
// buffer so a cut-off utterance stops immediately instead of draining.
type sessionTransport struct {
	client *openairt.Client
	sink   *miniaudio.Sink
}

func newSessionTransport(client *openairt.Client, sink *miniaudio.Sink) *sessionTransport {
	return &sessionTransport{client: client, sink: sink}
}

func (t *sessionTransport) Connect(ctx context.Context, params session.TransportParams) error {
	return t.client.Connect(ctx, openairt.ConnectParams{
		Credential:    params.Credential,
		InitialAgents: params.InitialAgents,
		OutputGate:    params.OutputGate,
		SharedContext: params.SharedContext,
	})
}

func (t *sessionTransport) Disconnect() {
	t.client.Disconnect()
}

func (t *sessionTransport) SendEvent(event realtime.ClientEvent) error {
	return t.client.SendEvent(event)
}

func (t *sessionTransport) SendUserText(text string) error {
	return t.client.SendUserText(text)
}

func (t *sessionTransport) Interrupt() {
	t.client.Interrupt()
	if t.sink != nil {
		t.sink.ClearPending()
	}
}

func (t *sessionTransport) Mute(muted bool) error {
	return t.client.Mute(muted)
}

func (t *sessionTransport) Notifications() <-chan realtime.ServerEvent {
	return t.client.Notifications()
}
