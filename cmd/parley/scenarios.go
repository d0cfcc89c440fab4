package main

import "github.com/parley-voice/parley-core/core/agents"

// builtinScenarios registers the shipped demo sets. The first key
// registered is the default the console connects with.
func builtinScenarios(registry *agents.Registry) {
	returns := agents.Agent{
		Name:               "returns",
		Voice:              "sage",
		HandoffDescription: "Handles returns, exchanges and refund status for existing orders.",
		Instructions: "You are a returns specialist for Snowy Peak Boards. " +
			"Confirm the order before promising anything, and hand off to " +
			"sales when the caller wants to buy instead.",
		Tools: []agents.Tool{
			{
				Name:        "lookup_order",
				Description: "Fetch the status and line items of an order.",
				Parameters: agents.BuildParameters([]agents.ParameterSpec{
					{Name: "order_id", Type: "string", Description: "The order identifier, e.g. SPB-10023.", Required: true},
				}),
			},
			{
				Name:        "start_return",
				Description: "Open a return for one item of a delivered order.",
				Parameters: agents.BuildParameters([]agents.ParameterSpec{
					{Name: "order_id", Type: "string", Required: true},
					{Name: "reason", Type: "string", Required: true, Enum: []string{"damaged", "wrong_size", "changed_mind"}},
				}),
			},
		},
		Handoffs: []string{"sales"},
	}

	sales := agents.Agent{
		Name:               "sales",
		Voice:              "sage",
		HandoffDescription: "Recommends boards and gear and answers catalog questions.",
		Instructions: "You are a sales agent for Snowy Peak Boards. Keep " +
			"recommendations short and concrete. Hand off to returns for " +
			"anything about an existing order.",
		Handoffs: []string{"returns"},
	}

	registry.RegisterBuiltin("customer-service", "Snowy Peak Boards", returns, sales)

	greeter := agents.Agent{
		Name:               "greeter",
		Voice:              "sage",
		HandoffDescription: "Greets the caller and routes them onward.",
		Instructions: "Greet the caller warmly. If they ask for a poem or a " +
			"haiku, hand off to the haiku writer.",
		Handoffs: []string{"haiku-writer"},
	}

	haikuWriter := agents.Agent{
		Name:               "haiku-writer",
		Voice:              "sage",
		HandoffDescription: "Writes haiku on request.",
		Instructions:       "Respond to every request with a single haiku.",
	}

	registry.RegisterBuiltin("simple-handoff", "Parley Labs", greeter, haikuWriter)
}
