// Package realtime defines the structured event contract between the
// session core and a realtime transport.
//
// Client events travel toward the remote service and carry their wire
// type in a `type` field:
//
//   - session.update: replaces the remote turn-detection configuration.
//   - conversation.item.create: injects a user (or synthetic) turn.
//   - response.create: requests an agent turn.
//   - input_audio_buffer.clear: drops buffered user audio.
//   - input_audio_buffer.commit: seals buffered user audio as a turn.
//
// Server events travel toward the session core. They are typed
// notifications, not raw wire frames; a transport is responsible for
// decoding its wire format into these values:
//
//   - connection_state.changed: transport connection status moved.
//   - agent.handoff: control transferred to a named agent.
//   - item.created / item.text_delta / item.done: conversation item
//     lifecycle, with streamed text arriving as append-only deltas.
//   - guardrail.verdict: moderation result for a finalized item.
//   - tool_call.started / tool_call.completed: remote tool activity.
//   - error: transport-level failure surfaced for logging.
package realtime
