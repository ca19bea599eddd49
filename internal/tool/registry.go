// Registry is the compiled tool table the orchestrator dispatches through.
// Grounded in the teacher's internal/tool/registry.go, but re-architected per
// SPEC_FULL.md §4.3: the teacher discovers tools by registering Go values at
// startup and inspecting their eino schema at call time; here each tool also
// carries a manifest file (tool.json) naming its id, description, parameter
// schema and destructive flag, loaded once at startup and reloaded on change
// via fsnotify. The manifest is the source of truth for what the upstream
// model sees; the Go side only supplies the builder function that knows how
// to execute a call for a given id.
package tool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Manifest is the on-disk description of a tool (spec.md §4.3).
type Manifest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Destructive bool            `json:"destructive"`
	Group       string          `json:"group,omitempty"`
	Builder     string          `json:"builder"`
}

// Builder constructs a Tool from a manifest and a working directory. The
// builder table is compiled into the binary; manifests only select among
// builders and supply the schema the model sees.
type Builder func(m Manifest, workDir string) Tool

// Registry holds the tools available for a given session's tool_settings.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	builders    map[string]Builder
	workDir     string
	manifestDir string
	log         zerolog.Logger
	watcher     *fsnotify.Watcher
}

// NewRegistry constructs an empty registry bound to workDir, the root every
// filesystem tool resolves relative paths against.
func NewRegistry(workDir string, log zerolog.Logger) *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		builders: make(map[string]Builder),
		workDir:  workDir,
		log:      log.With().Str("component", "tool.registry").Logger(),
	}
}

// RegisterBuilder makes a builder available to manifests naming it.
func (r *Registry) RegisterBuilder(name string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = b
}

// Register installs an already-constructed tool directly, bypassing the
// manifest layer. Used for built-ins that ship with the binary and have no
// reason to vary per deployment.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID()] = t
}

// LoadManifests reads every tool.json in dir (one per immediate
// subdirectory, e.g. tools/web_fetch/tool.json) and compiles each into a
// Tool via its named builder. A manifest naming an unknown builder, or
// missing a name or description, is skipped with a warning rather than failing startup — one broken manifest
// should not take down the whole registry.
func (r *Registry) LoadManifests(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("tool: read manifest dir: %w", err)
	}

	r.manifestDir = dir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), "tool.json")
		if err := r.loadOne(path); err != nil {
			r.log.Warn().Err(err).Str("path", path).Msg("skipping tool manifest")
		}
	}
	return nil
}

func (r *Registry) loadOne(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if m.Name == "" {
		return fmt.Errorf("manifest missing name")
	}
	if m.Description == "" {
		return fmt.Errorf("manifest missing description")
	}

	r.mu.RLock()
	build, ok := r.builders[m.Builder]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown builder %q", m.Builder)
	}

	r.Register(build(m, r.workDir))
	return nil
}

// Watch starts an fsnotify watch on the manifest directory and reloads a
// manifest whenever its tool.json changes, so editing a description or
// parameter schema does not require a restart.
func (r *Registry) Watch() error {
	if r.manifestDir == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tool: new watcher: %w", err)
	}
	entries, err := os.ReadDir(r.manifestDir)
	if err != nil {
		w.Close()
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.Add(filepath.Join(r.manifestDir, e.Name())); err != nil {
				r.log.Warn().Err(err).Msg("watch tool dir")
			}
		}
	}
	r.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != "tool.json" {
					continue
				}
				if err := r.loadOne(ev.Name); err != nil {
					r.log.Warn().Err(err).Str("path", ev.Name).Msg("reload tool manifest")
				} else {
					r.log.Info().Str("path", ev.Name).Msg("reloaded tool manifest")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.log.Warn().Err(err).Msg("tool manifest watcher")
			}
		}
	}()
	return nil
}

// Close stops the manifest watcher, if any.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// Get looks up a tool by id.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// Schemas returns the get_schema payload (spec.md §4.3) for the given ids,
// or every registered tool when ids is empty ("*" / unset tool_settings).
func (r *Registry) Schemas(ids []string) []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	if len(ids) == 0 {
		for n := range r.tools {
			names = append(names, n)
		}
	} else {
		names = ids
	}

	out := make([]Schema, 0, len(names))
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			continue
		}
		out = append(out, Schema{Name: t.ID(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return out
}

// Destructive reports whether id names a destructive tool. Unknown ids are
// treated as non-destructive; the orchestrator only calls this for ids it
// already resolved via Get.
func (r *Registry) Destructive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[id]; ok {
		return t.Destructive()
	}
	return false
}

// Names returns every registered tool id.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	return out
}

// RegisterBuiltinBuilders populates r's builder table with every built-in
// tool without instantiating any of them directly. Used both by
// DefaultRegistry (which additionally registers the tools outright) and by
// the agent registry, whose per-agent private registries select a subset of
// the same built-ins through their own tool.json manifests rather than
// getting every built-in for free.
func RegisterBuiltinBuilders(r *Registry) {
	r.RegisterBuilder("read", func(m Manifest, wd string) Tool { return NewReadTool(wd) })
	r.RegisterBuilder("write", func(m Manifest, wd string) Tool { return NewWriteTool(wd) })
	r.RegisterBuilder("edit", func(m Manifest, wd string) Tool { return NewEditTool(wd) })
	r.RegisterBuilder("bash", func(m Manifest, wd string) Tool { return NewBashTool(wd) })
	r.RegisterBuilder("glob", func(m Manifest, wd string) Tool { return NewGlobTool(wd) })
	r.RegisterBuilder("grep", func(m Manifest, wd string) Tool { return NewGrepTool(wd) })
	r.RegisterBuilder("list", func(m Manifest, wd string) Tool { return NewListTool(wd) })
	r.RegisterBuilder("webfetch", func(m Manifest, wd string) Tool { return NewWebFetchTool(wd) })
}

// DefaultRegistry constructs a registry with every built-in tool registered
// directly (no manifest needed for the tools that ship with the binary) and
// the builder table populated so a deployment's tools/ directory can still
// add or override entries via LoadManifests.
func DefaultRegistry(workDir string, log zerolog.Logger) *Registry {
	r := NewRegistry(workDir, log)

	r.Register(NewReadTool(workDir))
	r.Register(NewWriteTool(workDir))
	r.Register(NewEditTool(workDir))
	r.Register(NewBashTool(workDir))
	r.Register(NewGlobTool(workDir))
	r.Register(NewGrepTool(workDir))
	r.Register(NewListTool(workDir))
	r.Register(NewWebFetchTool(workDir))

	RegisterBuiltinBuilders(r)

	return r
}
