package openairt

import (
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/parley-voice/parley-core/core/agents"
)

// Client-bound wire frames not covered by the shared event catalog.

type websocketMessage struct {
	Type string `json:"type"`
}

var (
	responseCreateMsg = websocketMessage{Type: "response.create"}
	responseCancelMsg = websocketMessage{Type: "response.cancel"}
)

type wireTool struct {
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type agentSessionMsg struct {
	Type    string `json:"type"`
	Session struct {
		Instructions string     `json:"instructions"`
		Voice        string     `json:"voice"`
		Tools        []wireTool `json:"tools"`
	} `json:"session"`
}

func newAgentSessionMsg(agent agents.Agent, siblings map[string]agents.Agent) agentSessionMsg {
	msg := agentSessionMsg{Type: "session.update"}
	msg.Session.Instructions = agent.Instructions
	msg.Session.Voice = agent.Voice
	for _, tool := range agent.Tools {
		msg.Session.Tools = append(msg.Session.Tools, wireTool{
			Type:        "function",
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}

	// Each reachable sibling becomes a synthetic transfer tool; calling
	// it is how the remote side requests a handoff.
	for _, name := range agent.Handoffs {
		description := "Transfer the conversation to the " + name + " agent."
		if sibling, ok := siblings[name]; ok && sibling.HandoffDescription != "" {
			description = sibling.HandoffDescription
		}
		msg.Session.Tools = append(msg.Session.Tools, wireTool{
			Type:        "function",
			Name:        handoffToolPrefix + name,
			Description: description,
			Parameters:  agents.BuildParameters(nil),
		})
	}
	return msg
}

type wireContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type userTextMsg struct {
	Type string `json:"type"`
	Item struct {
		ID      string            `json:"id"`
		Type    string            `json:"type"`
		Role    string            `json:"role"`
		Content []wireContentPart `json:"content"`
	} `json:"item"`
}

func newUserTextMsg(text string) userTextMsg {
	msg := userTextMsg{Type: "conversation.item.create"}
	msg.Item.ID = uuid.NewString()
	msg.Item.Type = "message"
	msg.Item.Role = "user"
	msg.Item.Content = []wireContentPart{{Type: "input_text", Text: text}}
	return msg
}

// Server-bound wire frames, decoded by the read pump.

type serverFrame struct {
	Type string `json:"type"`

	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`

	Transcript string `json:"transcript"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`

	Item struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		Role      string `json:"role"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
		Content   []struct {
			Type       string `json:"type"`
			Text       string `json:"text"`
			Transcript string `json:"transcript"`
		} `json:"content"`
	} `json:"item"`

	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f serverFrame) itemText() string {
	text := ""
	for _, part := range f.Item.Content {
		if part.Text != "" {
			text += part.Text
		} else {
			text += part.Transcript
		}
	}
	return text
}
