// Package agents holds the static description of conversational agents
// and the configuration sets they are grouped into. Everything here is
// data: how an agent behaves once connected is the remote service's
// concern.
package agents

import (
	"fmt"

	"github.com/jinzhu/copier"
)

// Agent is an immutable description of one conversational agent.
type Agent struct {
	// Name is the unique key of the agent within its configuration set.
	Name string
	// Voice names the synthesis voice used for this agent's turns.
	Voice string
	// HandoffDescription tells sibling agents when handing off to this
	// agent is appropriate.
	HandoffDescription string
	Instructions       string
	Tools              []Tool
	// Handoffs lists the names of agents reachable from this one.
	Handoffs []string
}

// ConfigSet is an ordered list of agents sharing one moderation policy.
// The first agent in the list is the one the transport activates on
// connect; use Reordered to promote a different agent.
type ConfigSet struct {
	Key         string
	CompanyName string
	Provenance  Provenance
	Agents      []Agent
}

// PolicyName resolves the moderation-policy identifier for the set.
// Builtin sets moderate against their company name; custom sets stand
// in for their own brand and moderate against the set name itself.
func (s ConfigSet) PolicyName() string {
	if s.Provenance.IsCustom() {
		return s.Provenance.Name()
	}
	return s.CompanyName
}

// AgentByName returns the named agent, or false if the set has none.
func (s ConfigSet) AgentByName(name string) (Agent, bool) {
	for _, agent := range s.Agents {
		if agent.Name == name {
			return agent, true
		}
	}
	return Agent{}, false
}

// Reordered returns a deep copy of the set with the named agent moved to
// the front. The transport's initial-agent selection is positional, so
// connecting with a non-default active agent depends on this step. An
// unknown name leaves the order untouched.
func (s ConfigSet) Reordered(activeAgentName string) (ConfigSet, error) {
	clone := ConfigSet{}
	if err := copier.CopyWithOption(&clone, &s, copier.Option{DeepCopy: true}); err != nil {
		return ConfigSet{}, fmt.Errorf("failed to clone agent set %q: %w", s.Key, err)
	}

	for i, agent := range clone.Agents {
		if agent.Name != activeAgentName {
			continue
		}
		if i > 0 {
			promoted := clone.Agents[i]
			clone.Agents = append(clone.Agents[:i], clone.Agents[i+1:]...)
			clone.Agents = append([]Agent{promoted}, clone.Agents...)
		}
		break
	}

	return clone, nil
}
