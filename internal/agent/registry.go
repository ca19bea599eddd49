// Package agent discovers agent definitions and drives the agent
// sub-orchestrator (spec.md §4.4). An agent is a directory containing a
// SKILL.md document (frontmatter + system-prompt body) plus a private tool
// set discovered the same way the top-level tool registry discovers its own
// tools (internal/tool's manifest/builder scheme, grounded in the teacher's
// internal/agent/agent.go wildcard tool-enablement and
// internal/executor/subagent.go's child-session run).
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lennartpollvogt/mochi-server/internal/tool"
)

// Definition is one loaded, valid agent.
type Definition struct {
	Name        string
	Description string
	Model       string // empty means "use the session's model"
	Prompt      string // system-prompt body, re-read from disk on every planning phase
	Dir         string
	Tools       *tool.Registry // private tool set; always non-empty for a valid Definition
}

// Invalid records an agent directory that failed to load, and why. Invalid
// agents are reported (e.g. via the agent listing endpoint) but never
// executed (spec.md §4.4).
type Invalid struct {
	Name   string
	Reason string
}

// Registry holds every valid agent definition discovered under a root
// directory, plus the set of directories that failed validation.
type Registry struct {
	mu      sync.RWMutex
	root    string
	log     zerolog.Logger
	agents  map[string]*Definition
	invalid []Invalid
	version uint64
}

// NewRegistry constructs an empty registry rooted at dir (one subdirectory
// per agent).
func NewRegistry(dir string, log zerolog.Logger) *Registry {
	return &Registry{
		root:   dir,
		log:    log.With().Str("component", "agent.registry").Logger(),
		agents: make(map[string]*Definition),
	}
}

// Load (re)scans the root directory and replaces the agent table atomically.
// A directory lacking SKILL.md is silently skipped (not every subdirectory
// of an agents root need be an agent); a directory with a SKILL.md that
// fails to parse, or whose private tool set is empty, is recorded as
// Invalid (spec.md §4.4: "Invalid agents are reported but never executed").
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.agents = make(map[string]*Definition)
			r.invalid = nil
			atomic.AddUint64(&r.version, 1)
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("agent: read root: %w", err)
	}

	agents := make(map[string]*Definition)
	var invalid []Invalid

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, "SKILL.md")); os.IsNotExist(err) {
			continue
		}

		def, err := loadOne(e.Name(), dir, r.log)
		if err != nil {
			invalid = append(invalid, Invalid{Name: e.Name(), Reason: err.Error()})
			r.log.Warn().Err(err).Str("agent", e.Name()).Msg("invalid agent")
			continue
		}
		agents[def.Name] = def
	}

	r.mu.Lock()
	r.agents = agents
	r.invalid = invalid
	atomic.AddUint64(&r.version, 1)
	r.mu.Unlock()
	return nil
}

func loadOne(name, dir string, log zerolog.Logger) (*Definition, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "SKILL.md"))
	if err != nil {
		return nil, fmt.Errorf("read SKILL.md: %w", err)
	}
	fm, body, err := parseSkillDocument(raw)
	if err != nil {
		return nil, err
	}

	tools := tool.NewRegistry(dir, log)
	tool.RegisterBuiltinBuilders(tools)
	if err := tools.LoadManifests(filepath.Join(dir, "tools")); err != nil {
		return nil, fmt.Errorf("load private tools: %w", err)
	}
	if len(tools.Names()) == 0 {
		return nil, fmt.Errorf("private tool set is empty")
	}

	return &Definition{
		Name:        name,
		Description: fm.Description,
		Model:       fm.Model,
		Prompt:      body,
		Dir:         dir,
		Tools:       tools,
	}, nil
}

// Get looks up a valid agent by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.agents[name]
	return d, ok
}

// Names returns every valid agent's name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for n := range r.agents {
		out = append(out, n)
	}
	return out
}

// List returns every valid agent definition.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.agents))
	for _, d := range r.agents {
		out = append(out, d)
	}
	return out
}

// Invalid returns the agent directories that failed validation on the last Load.
func (r *Registry) Invalid() []Invalid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Invalid, len(r.invalid))
	copy(out, r.invalid)
	return out
}

// Version returns a counter bumped on every successful Load. The synthetic
// agent tool's schema does not carry it; a caller caching that schema can
// key on (name, Version()) (spec.md §4.4, §9 REDESIGN FLAGS).
func (r *Registry) Version() uint64 {
	return atomic.LoadUint64(&r.version)
}
