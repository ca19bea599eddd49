// Package config provides configuration loading and path management for
// mochi-server.
//
// This package replaces the teacher's opencode.json/TypeScript-compatible
// loader with a single flat Settings object, populated from three sources
// in priority order (spec.md §6.5):
//
//  1. Defaults (Default)
//  2. An optional .env file in the working directory, loaded with
//     github.com/joho/godotenv, plus the real process environment
//     (MOCHI_-prefixed variables)
//  3. An optional JSONC override file (mochi.jsonc in the working
//     directory, or the path named by MOCHI_CONFIG_FILE), parsed with
//     github.com/tidwall/jsonc instead of the teacher's hand-rolled
//     comment-stripping regexps
//
// CLI flags (bound with github.com/spf13/cobra in cmd/mochi-server) are
// applied last, on top of whatever Load returns, and take precedence over
// every other source.
//
// # Path layout
//
// Paths.EnsurePaths creates the data root and its five subdirectories
// (sessions, tools, agents, agent-chats, system-prompts) the rest of the
// server reads and writes through.
package config
