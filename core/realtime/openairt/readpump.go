package openairt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/parley-voice/parley-core/core/guardrails"
	"github.com/parley-voice/parley-core/core/realtime"
	"go.opentelemetry.io/otel/codes"
)

// handoffToolPrefix marks the synthetic tools the remote service calls
// to transfer control between agents.
const handoffToolPrefix = "transfer_to_"

func (c *Client) processIncomingMessages(ctx context.Context) {
	c.mu.Lock()
	conn := c.ws
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.mu.Unlock()

			if !wasClosed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.emit(realtime.NewErrorEvent(fmt.Errorf("websocket read failed: %w", err)))
			}
			if !wasClosed {
				_ = c.closeWebsocket()
				c.emit(realtime.NewConnectionStateChangedEvent(realtime.ConnectionStateDisconnected))
			}
			return
		}

		frame := serverFrame{}
		if err := json.Unmarshal(msg, &frame); err != nil {
			logger.Warn("failed to unmarshal server frame", "error", err)
			continue
		}

		c.handleFrame(ctx, frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, frame serverFrame) {
	switch frame.Type {
	case "conversation.item.created":
		if frame.Item.Type != "message" {
			return
		}
		c.emit(realtime.NewItemCreatedEvent(frame.Item.ID, frame.Item.Role, frame.itemText()))

	case "conversation.item.input_audio_transcription.completed":
		c.emit(realtime.NewItemDoneEvent(frame.ItemID, frame.Transcript))

	case "response.audio_transcript.delta", "response.text.delta":
		c.emit(realtime.NewItemTextDeltaEvent(frame.ItemID, frame.Delta))

	case "response.audio.delta":
		c.deliverAudio(frame.Delta)

	case "response.output_item.done":
		switch frame.Item.Type {
		case "message":
			text := frame.itemText()
			c.emit(realtime.NewItemDoneEvent(frame.Item.ID, text))
			c.runGuardrail(ctx, frame.Item.ID, text)
		case "function_call":
			if agentName, ok := strings.CutPrefix(frame.Item.Name, handoffToolPrefix); ok {
				c.mu.Lock()
				target, known := c.agentByName[agentName]
				c.mu.Unlock()
				if known {
					if err := c.configureAgent(target); err != nil {
						logger.Warn("failed to reconfigure handoff target", "agent", agentName, "error", err)
					}
				}
				c.emit(realtime.NewAgentHandoffEvent(agentName))
				return
			}
			c.emit(realtime.NewToolCallCompletedEvent(frame.Item.Name, frame.Item.Arguments))
		}

	case "response.function_call_arguments.done":
		if !strings.HasPrefix(frame.Name, handoffToolPrefix) {
			c.emit(realtime.NewToolCallStartedEvent(frame.Name, frame.Arguments))
		}

	case "error":
		c.emit(realtime.NewErrorEvent(errors.New(frame.Error.Message)))
	}
}

func (c *Client) deliverAudio(encoded string) {
	if c.options.onAudio == nil || c.muted.Load() || encoded == "" {
		return
	}

	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		logger.Warn("failed to decode audio delta", "error", err)
		return
	}
	c.options.onAudio(audio)
}

// runGuardrail evaluates finalized agent output against the installed
// gate off the read pump, posting the verdict back as a notification so
// it is serialized with everything else.
func (c *Client) runGuardrail(ctx context.Context, itemID, text string) {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate == nil || text == "" {
		return
	}

	go func() {
		ctx, span := tracer.Start(ctx, "gate agent output")
		defer span.End()

		result, err := gate.Check(ctx, text)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("guardrail evaluation failed, passing through", "error", err)
		}

		c.emit(realtime.NewGuardrailVerdictEvent(
			itemID,
			result.Status != guardrails.StatusFail,
			string(result.Category),
			result.Rationale,
		))
	}()
}
