// Package openairt is a realtime transport over an OpenAI-style
// bidirectional websocket event channel. It decodes wire frames into
// the typed notifications the session core consumes and runs the
// installed guardrail gate over finalized agent output.
package openairt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/parley-voice/parley-core/core/agents"
	"github.com/parley-voice/parley-core/core/guardrails"
	"github.com/parley-voice/parley-core/core/realtime"
)

const notificationBufferSize = 64

var ErrNotConnected = errors.New("transport not connected")

// ConnectParams mirrors the session core's transport contract without
// importing it; the core's TransportParams convert field for field.
type ConnectParams struct {
	Credential    string
	InitialAgents []agents.Agent
	OutputGate    *guardrails.Gate
	SharedContext map[string]any
}

type Client struct {
	mu sync.Mutex
	ws *websocket.Conn

	notifications chan realtime.ServerEvent

	closed bool

	muted atomic.Bool

	gate        *guardrails.Gate
	agentByName map[string]agents.Agent

	options clientOptions
}

type clientOptions struct {
	host  string
	path  string
	model string
	// onAudio receives decoded agent audio frames; muted frames are
	// dropped before delivery.
	onAudio func(audio []byte)
}

type ClientOption func(*clientOptions)

func WithHost(host string) ClientOption {
	return func(o *clientOptions) { o.host = host }
}

func WithModel(model string) ClientOption {
	return func(o *clientOptions) { o.model = model }
}

func WithAudioCallback(onAudio func(audio []byte)) ClientOption {
	return func(o *clientOptions) { o.onAudio = onAudio }
}

func NewClient(opts ...ClientOption) *Client {
	options := clientOptions{
		host:  "api.openai.com",
		path:  "/v1/realtime",
		model: "gpt-4o-realtime-preview",
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		notifications: make(chan realtime.ServerEvent, notificationBufferSize),
		options:       options,
	}
}

func (c *Client) Notifications() <-chan realtime.ServerEvent {
	return c.notifications
}

// Connect opens the websocket channel and configures the first agent in
// the list as active. ctx bounds the dial only; the channel outlives
// it. Caller discipline guarantees Connect is only invoked from the
// disconnected state.
func (c *Client) Connect(ctx context.Context, params ConnectParams) error {
	c.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateConnecting))

	conn, err := c.dial(ctx, params.Credential)
	if err != nil {
		c.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateDisconnected))
		return fmt.Errorf("failed to open realtime channel: %w", err)
	}

	c.mu.Lock()
	c.ws = conn
	c.closed = false
	c.gate = params.OutputGate
	c.agentByName = map[string]agents.Agent{}
	for _, agent := range params.InitialAgents {
		c.agentByName[agent.Name] = agent
	}
	c.mu.Unlock()

	if len(params.InitialAgents) > 0 {
		if err := c.configureAgent(params.InitialAgents[0]); err != nil {
			_ = c.closeWebsocket()
			c.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateDisconnected))
			return fmt.Errorf("failed to configure initial agent: %w", err)
		}
	}

	go c.processIncomingMessages(context.Background())

	c.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateConnected))
	return nil
}

func (c *Client) dial(ctx context.Context, credential string) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("model", c.options.model)

	conn, _, err := websocket.DefaultDialer.DialContext(
		ctx,
		(&url.URL{
			Scheme:   "wss",
			Host:     c.options.host,
			Path:     c.options.path,
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{
			"Authorization": {"Bearer " + credential},
			"OpenAI-Beta":   {"realtime=v1"},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection: %w", err)
	}

	return conn, nil
}

// configureAgent pushes the active agent's identity to the remote side.
// Selection is positional: whichever agent this runs for first is the
// one that answers.
func (c *Client) configureAgent(agent agents.Agent) error {
	c.mu.Lock()
	siblings := c.agentByName
	c.mu.Unlock()
	return c.sendWebsocketMessage(newAgentSessionMsg(agent, siblings))
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.mu.Unlock()
	if alreadyClosed {
		return
	}

	if err := c.closeWebsocket(); err != nil {
		logger.Warn("failed to close realtime channel", "error", err)
	}
	c.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateDisconnected))
}

func (c *Client) closeWebsocket() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.ws == nil {
		return nil
	}

	err := c.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	if closeErr := c.ws.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	c.ws = nil
	return err
}

func (c *Client) SendEvent(event realtime.ClientEvent) error {
	return c.sendWebsocketMessage(event)
}

func (c *Client) SendUserText(text string) error {
	if err := c.sendWebsocketMessage(newUserTextMsg(text)); err != nil {
		return err
	}
	return c.sendWebsocketMessage(responseCreateMsg)
}

// Interrupt cancels the in-flight response. Failures are logged only;
// an interrupt can always race a disconnect.
func (c *Client) Interrupt() {
	if err := c.sendWebsocketMessage(responseCancelMsg); err != nil {
		logger.Debug("interrupt dropped", "error", err)
	}
}

// Mute drops agent audio frames before they reach the audio callback.
// The remote side keeps streaming; mute is a local delivery gate.
func (c *Client) Mute(muted bool) error {
	c.muted.Store(muted)
	return nil
}

func (c *Client) sendWebsocketMessage(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ws == nil {
		return ErrNotConnected
	}

	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

// emit posts a notification without ever blocking a teardown: if the
// consumer is gone and the buffer is full, the event is dropped.
func (c *Client) emit(event realtime.ServerEvent) {
	select {
	case c.notifications <- event:
	default:
		logger.Warn("notification buffer full, dropping event", "kind", string(event.Kind()))
	}
}
