// Command classification for the bash tool, adapted from the teacher's
// internal/permission/bash_parser.go. The teacher used this to decide
// whether to prompt its permission.Checker before running a dangerous
// command; here it instead enriches the bash tool's result metadata with
// the list of dangerous subcommands a call touched, for the orchestrator's
// confirmation UI (spec.md §4.6) to surface to the operator.
package tool

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// bashCommand is a single parsed command within a (possibly compound)
// shell invocation.
type bashCommand struct {
	Name string
	Args []string
}

// parseBashCommand splits a shell command line into its constituent simple
// commands via mvdan.cc/sh's bash-dialect parser.
func parseBashCommand(command string) ([]bashCommand, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(false))

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, err
	}

	var commands []bashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands, nil
}

func extractCommand(call *syntax.CallExpr) *bashCommand {
	if len(call.Args) == 0 {
		return nil
	}
	cmd := &bashCommand{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}
	for _, arg := range call.Args[1:] {
		cmd.Args = append(cmd.Args, wordToString(arg))
	}
	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// dangerousCommands modify the filesystem and are worth calling out in the
// destructive-call metadata even though the bash tool as a whole is already
// flagged destructive.
var dangerousCommands = map[string]bool{
	"rm": true, "cp": true, "mv": true, "mkdir": true,
	"touch": true, "chmod": true, "chown": true, "rmdir": true, "dd": true,
}

// dangerousSubcommands returns the dangerous command names found in line,
// or nil if line fails to parse or contains none.
func dangerousSubcommands(line string) []string {
	commands, err := parseBashCommand(line)
	if err != nil {
		return nil
	}
	var found []string
	for _, c := range commands {
		if dangerousCommands[c.Name] {
			found = append(found, c.Name)
		}
	}
	return found
}
