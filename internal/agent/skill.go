package agent

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is the YAML block at the top of a SKILL.md document (spec.md
// §4.4): "description" and an optional "model" override.
type frontmatter struct {
	Description string `yaml:"description"`
	Model       string `yaml:"model"`
}

const frontmatterDelim = "---"

// parseSkillDocument splits a SKILL.md file into its frontmatter and the
// system-prompt body that follows it. The document must open with a
// "---"-delimited YAML block; anything before the first delimiter is
// rejected rather than silently ignored, since a malformed skill document
// should make the agent invalid, not quietly different.
func parseSkillDocument(raw []byte) (frontmatter, string, error) {
	text := string(raw)
	if !strings.HasPrefix(strings.TrimLeft(text, "\r\n"), frontmatterDelim) {
		return frontmatter{}, "", fmt.Errorf("skill document missing frontmatter delimiter")
	}
	text = strings.TrimLeft(text, "\r\n")
	text = strings.TrimPrefix(text, frontmatterDelim)

	end := strings.Index(text, "\n"+frontmatterDelim)
	if end < 0 {
		return frontmatter{}, "", fmt.Errorf("skill document missing closing frontmatter delimiter")
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(text[:end]), &fm); err != nil {
		return frontmatter{}, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	if strings.TrimSpace(fm.Description) == "" {
		return frontmatter{}, "", fmt.Errorf("skill document missing description")
	}

	body := text[end+len("\n"+frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")
	return fm, strings.TrimRight(body, "\n") + "\n", nil
}
