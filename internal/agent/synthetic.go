package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lennartpollvogt/mochi-server/internal/tool"
)

// SyntheticToolName is the name the upstream model calls to delegate to an
// agent (spec.md §4.4). The name itself never changes across regenerations —
// only the schema's content does — so the model can always call it by the
// same identifier; callers wanting to invalidate a schema cache key on
// (name, Registry.Version()) instead (spec.md §9 REDESIGN FLAGS).
const SyntheticToolName = "agent"

// SyntheticTool builds the schema for the synthetic agent tool, scoped to
// the agents named in enabled. The description enumerates each enabled
// agent and its description so the model knows what it can delegate to.
func (r *Registry) SyntheticTool(enabled []string) tool.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := enabled
	if len(names) == 0 {
		names = make([]string, 0, len(r.agents))
		for n := range r.agents {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Delegates instruction to a named sub-agent. Available agents:\n")
	any := false
	for _, n := range names {
		d, ok := r.agents[n]
		if !ok {
			continue
		}
		any = true
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	if !any {
		b.WriteString("- (no agents currently enabled)\n")
	}

	return tool.Schema{
		Name:        SyntheticToolName,
		Description: b.String(),
		Parameters:  syntheticParameters,
	}
}

var syntheticParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"agent": {
			"type": "string",
			"description": "Name of the agent to delegate to"
		},
		"instruction": {
			"type": "string",
			"description": "Instruction for the agent to carry out"
		},
		"session_id": {
			"type": "string",
			"description": "Optional id of a prior agent conversation to continue"
		}
	},
	"required": ["agent", "instruction"]
}`)
