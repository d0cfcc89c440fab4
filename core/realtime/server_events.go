package realtime

type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

type ConnectionStateChangedEvent struct {
	Base
	State ConnectionState
}

func (e ConnectionStateChangedEvent) String() string { return string(e.State) }

func NewConnectionStateChangedEvent(state ConnectionState) ConnectionStateChangedEvent {
	return ConnectionStateChangedEvent{Base: NewBase("connection_state.changed"), State: state}
}

type AgentHandoffEvent struct {
	Base
	AgentName string
}

func (e AgentHandoffEvent) String() string { return "handoff to " + e.AgentName }

func NewAgentHandoffEvent(agentName string) AgentHandoffEvent {
	return AgentHandoffEvent{Base: NewBase("agent.handoff"), AgentName: agentName}
}

type ItemCreatedEvent struct {
	Base
	ItemID string
	Role   string
	Text   string
}

func NewItemCreatedEvent(itemID, role, text string) ItemCreatedEvent {
	return ItemCreatedEvent{Base: NewBase("item.created"), ItemID: itemID, Role: role, Text: text}
}

type ItemTextDeltaEvent struct {
	Base
	ItemID string
	Delta  string
}

func NewItemTextDeltaEvent(itemID, delta string) ItemTextDeltaEvent {
	return ItemTextDeltaEvent{Base: NewBase("item.text_delta"), ItemID: itemID, Delta: delta}
}

type ItemDoneEvent struct {
	Base
	ItemID string
	Text   string
}

func NewItemDoneEvent(itemID, text string) ItemDoneEvent {
	return ItemDoneEvent{Base: NewBase("item.done"), ItemID: itemID, Text: text}
}

// GuardrailVerdictEvent reports a moderation result for a finalized
// item. The transport runs its installed output gate and posts the
// verdict back through the notification channel so verdict merging is
// serialized with every other state change.
type GuardrailVerdictEvent struct {
	Base
	ItemID    string
	Passed    bool
	Category  string
	Rationale string
}

func NewGuardrailVerdictEvent(itemID string, passed bool, category, rationale string) GuardrailVerdictEvent {
	return GuardrailVerdictEvent{
		Base:      NewBase("guardrail.verdict"),
		ItemID:    itemID,
		Passed:    passed,
		Category:  category,
		Rationale: rationale,
	}
}

type ToolCallStartedEvent struct {
	Base
	Name      string
	Arguments string
}

func NewToolCallStartedEvent(name, arguments string) ToolCallStartedEvent {
	return ToolCallStartedEvent{Base: NewBase("tool_call.started"), Name: name, Arguments: arguments}
}

type ToolCallCompletedEvent struct {
	Base
	Name   string
	Result any
}

func NewToolCallCompletedEvent(name string, result any) ToolCallCompletedEvent {
	return ToolCallCompletedEvent{Base: NewBase("tool_call.completed"), Name: name, Result: result}
}

type ErrorEvent struct {
	Base
	Err error
}

func (e ErrorEvent) String() string {
	if e.Err == nil {
		return "error"
	}
	return e.Err.Error()
}

func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Base: NewBase("error"), Err: err}
}
