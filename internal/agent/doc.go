// Package agent discovers agent definitions and drives the two-phase agent
// sub-orchestrator (spec.md §4.4).
//
// # Discovery
//
// Each agent is a subdirectory under an agents root: a SKILL.md document
// (YAML frontmatter with a description and optional model override,
// followed by the agent's system-prompt body) plus a tools/ directory of
// tool.json manifests discovered the same way the top-level tool registry
// discovers its own tools. [Registry.Load] scans the root and builds one
// [Definition] per valid subdirectory; a subdirectory whose SKILL.md fails
// to parse, or whose private tool set is empty, is recorded in
// [Registry.Invalid] instead and is never executed.
//
// # Synthetic tool
//
// The turn orchestrator exposes agents to the upstream model as a single
// tool named "agent" ([SyntheticToolName]); [Registry.SyntheticTool] builds
// its schema from the currently enabled agent list. The schema itself
// carries no version; [Registry.Version] is a counter bumped on every
// [Registry.Load], so a caller's schema cache can key on (name, version)
// rather than tool identity.
//
// # Sub-orchestrator
//
// [Orchestrator.Run] implements the planning-then-execution cycle: a
// tool-free planning call whose content is persisted as one assistant
// message, followed by a bounded tool-calling execution loop against the
// agent's private tool set. Both phases append an ephemeral directive to
// the prompt sent upstream without persisting it to the agent's session.
package agent
