// ABOUTME: Read-only registry of the agents and workflows served by the runtime
// ABOUTME: Built once from configuration at startup and shared by reference

package registry

import (
	"fmt"
	"sort"

	"github.com/2389/copilot-gateway/internal/config"
)

// Agent is a named agent known to the runtime.
type Agent struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Workflow is a named multi-step pipeline that runs registered agents.
type Workflow struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Agents      []string `json:"agents"`
}

// Registry holds agents and workflows. It is never modified after New.
type Registry struct {
	agents    map[string]Agent
	workflows map[string]Workflow
}

// New builds a registry from configuration.
func New(agents []config.AgentConfig, workflows []config.WorkflowConfig) (*Registry, error) {
	r := &Registry{
		agents:    make(map[string]Agent, len(agents)),
		workflows: make(map[string]Workflow, len(workflows)),
	}

	for _, a := range agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent name is required")
		}
		if _, dup := r.agents[a.Name]; dup {
			return nil, fmt.Errorf("agent %q is registered twice", a.Name)
		}
		r.agents[a.Name] = Agent{Name: a.Name, Description: a.Description}
	}

	for _, wf := range workflows {
		if wf.Name == "" {
			return nil, fmt.Errorf("workflow name is required")
		}
		if _, dup := r.workflows[wf.Name]; dup {
			return nil, fmt.Errorf("workflow %q is registered twice", wf.Name)
		}
		for _, name := range wf.Agents {
			if _, ok := r.agents[name]; !ok {
				return nil, fmt.Errorf("workflow %q references unknown agent %q", wf.Name, name)
			}
		}
		steps := append([]string(nil), wf.Agents...)
		r.workflows[wf.Name] = Workflow{Name: wf.Name, Description: wf.Description, Agents: steps}
	}

	return r, nil
}

// Agent looks up an agent by name.
func (r *Registry) Agent(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Agents returns all agents sorted by name.
func (r *Registry) Agents() []Agent {
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AgentNames returns the sorted agent names.
func (r *Registry) AgentNames() []string {
	agents := r.Agents()
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	return names
}

// Workflows returns all workflows sorted by name.
func (r *Registry) Workflows() []Workflow {
	out := make([]Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
