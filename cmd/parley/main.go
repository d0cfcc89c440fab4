// Command parley is a terminal console for driving a voice-agent
// session: connect and disconnect, switch scenarios and agents, talk
// over push-to-talk or server voice detection, and watch the transcript
// and raw event log side by side.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	session "github.com/parley-voice/parley-core/core"
	"github.com/parley-voice/parley-core/core/agents"
	"github.com/parley-voice/parley-core/core/audio/miniaudio"
	"github.com/parley-voice/parley-core/core/credentials"
	"github.com/parley-voice/parley-core/core/realtime/openairt"
)

type appConfig struct {
	setKey     string
	agentName  string
	endpoint   string
	model      string
	host       string
	noAudio    bool
	recordPath string
	customSet  string
	altScreen  bool
}

func main() {
	cfg := appConfig{}
	flag.StringVar(&cfg.setKey, "set", "customer-service", "agent configuration set to connect with")
	flag.StringVar(&cfg.agentName, "agent", "", "initial active agent (defaults to the set's first)")
	flag.StringVar(&cfg.endpoint, "endpoint", "", "ephemeral credential endpoint; falls back to OPENAI_API_KEY")
	flag.StringVar(&cfg.model, "model", "", "override the realtime model")
	flag.StringVar(&cfg.host, "host", "", "override the realtime host")
	flag.BoolVar(&cfg.noAudio, "no-audio", false, "skip the local playback device")
	flag.StringVar(&cfg.recordPath, "record", "", "write session audio to this WAV file")
	flag.StringVar(&cfg.customSet, "custom-set", "", "name of an ad-hoc single-agent set read from stdin instructions")
	flag.BoolVar(&cfg.altScreen, "alt-screen", true, "render in the terminal's alternate screen")
	flag.Parse()

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "parley:", err)
		os.Exit(1)
	}
}

func run(cfg appConfig) error {
	registry := agents.NewRegistry()
	builtinScenarios(registry)
	if cfg.customSet != "" {
		registry.RegisterCustom(cfg.customSet, agents.Agent{
			Name:         cfg.customSet,
			Voice:        "sage",
			Instructions: "You are " + cfg.customSet + ". Stay in character.",
		})
		cfg.setKey = cfg.customSet
	}
	if _, err := registry.Set(cfg.setKey); err != nil {
		return err
	}

	issuer, err := buildIssuer(cfg)
	if err != nil {
		return err
	}

	var recordFile *os.File
	clientOpts := []openairt.ClientOption{}
	if cfg.model != "" {
		clientOpts = append(clientOpts, openairt.WithModel(cfg.model))
	}
	if cfg.host != "" {
		clientOpts = append(clientOpts, openairt.WithHost(cfg.host))
	}

	var sink *miniaudio.Sink
	if !cfg.noAudio {
		sinkOpts := []miniaudio.SinkOption{}
		if cfg.recordPath != "" {
			recordFile, err = os.Create(cfg.recordPath)
			if err != nil {
				return fmt.Errorf("failed to create recording file: %w", err)
			}
			defer recordFile.Close()
			sinkOpts = append(sinkOpts, miniaudio.WithRecordingWriter(recordFile))
		}

		sink, err = miniaudio.NewSink(sinkOpts...)
		if err != nil {
			return fmt.Errorf("failed to open playback device: %w", err)
		}
		defer sink.Close()
		clientOpts = append(clientOpts, openairt.WithAudioCallback(func(audio []byte) {
			_ = sink.EnqueueAudio(audio)
		}))
	}

	transport := newSessionTransport(openairt.NewClient(clientOpts...), sink)

	// The program handle is set after construction; callbacks fire only
	// once the UI loop is running.
	var program *tea.Program

	sessionOpts := []session.SessionOption{
		session.WithTransport(transport),
		session.WithCredentialIssuer(issuer),
		session.WithRegistry(registry),
		session.WithInitialSelection(cfg.setKey, cfg.agentName),
		session.WithUpdateCallback(func() {
			if program != nil {
				program.Send(sessionUpdatedMsg{})
			}
		}),
		session.WithErrorCallback(func(err error) {
			if program != nil {
				program.Send(sessionErrMsg{err: err})
			}
		}),
	}
	if sink != nil {
		sessionOpts = append(sessionOpts, session.WithPlaybackSink(sink))
	}

	sess := session.New(sessionOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.Start(ctx)
	defer sess.Close()

	opts := []tea.ProgramOption{}
	if cfg.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program = tea.NewProgram(newModel(sess, cfg), opts...)
	_, err = program.Run()
	return err
}

func buildIssuer(cfg appConfig) (credentials.Issuer, error) {
	if cfg.endpoint != "" {
		return credentials.NewEndpointIssuer(cfg.endpoint), nil
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return credentials.StaticIssuer(key), nil
	}
	return nil, fmt.Errorf("no credential source: pass -endpoint or set OPENAI_API_KEY")
}
