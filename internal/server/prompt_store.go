package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrPromptNotFound is returned by promptStore.Get/Delete for an unknown
// name.
var ErrPromptNotFound = errors.New("system prompt not found")

// Prompt is one reusable system-prompt file (spec.md §6.1 "/system-prompts"
// collaborator).
type Prompt struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// promptStore is plain file CRUD over a directory of *.md files, one per
// named prompt. Grounded in the same direct os.ReadDir/os.ReadFile style
// internal/agent.Registry and internal/tool.Registry use to discover their
// own on-disk definitions — a prompt library has no structure beyond a
// name and a body, so it gets no manifest layer of its own.
type promptStore struct {
	dir string
}

func newPromptStore(dir string) *promptStore {
	return &promptStore{dir: dir}
}

func validatePromptName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid prompt name %q", name)
	}
	return nil
}

func (p *promptStore) path(name string) string {
	return filepath.Join(p.dir, name+".md")
}

// List returns every stored prompt, sorted by name.
func (p *promptStore) List() ([]Prompt, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(names)

	prompts := make([]Prompt, 0, len(names))
	for _, name := range names {
		prompt, err := p.Get(name)
		if err != nil {
			continue
		}
		prompts = append(prompts, prompt)
	}
	return prompts, nil
}

// Get loads one prompt by name.
func (p *promptStore) Get(name string) (Prompt, error) {
	if err := validatePromptName(name); err != nil {
		return Prompt{}, ErrPromptNotFound
	}
	data, err := os.ReadFile(p.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Prompt{}, ErrPromptNotFound
		}
		return Prompt{}, err
	}
	return Prompt{Name: name, Content: string(data)}, nil
}

// Create writes a new prompt, failing if name is already taken.
func (p *promptStore) Create(name, content string) error {
	if err := validatePromptName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return err
	}
	if _, err := os.Stat(p.path(name)); err == nil {
		return fmt.Errorf("prompt %q already exists", name)
	}
	return os.WriteFile(p.path(name), []byte(content), 0644)
}

// Put replaces an existing prompt's content, failing if it does not exist.
func (p *promptStore) Put(name, content string) error {
	if err := validatePromptName(name); err != nil {
		return err
	}
	if _, err := os.Stat(p.path(name)); err != nil {
		if os.IsNotExist(err) {
			return ErrPromptNotFound
		}
		return err
	}
	return os.WriteFile(p.path(name), []byte(content), 0644)
}

// Delete removes a prompt by name.
func (p *promptStore) Delete(name string) error {
	if err := validatePromptName(name); err != nil {
		return err
	}
	if err := os.Remove(p.path(name)); err != nil {
		if os.IsNotExist(err) {
			return ErrPromptNotFound
		}
		return err
	}
	return nil
}
