// Command mochi-server runs the headless chat backend (spec.md §1, §6.5).
// Grounded in the teacher's cmd/opencode/commands/serve.go: the cobra
// command shape, flag set, startup ordering, and graceful-shutdown signal
// handling are kept; every collaborator it wires is this project's own
// (internal/store, internal/upstream, internal/orchestrator, ...) rather
// than the teacher's config/storage/provider/MCP stack.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lennartpollvogt/mochi-server/internal/agent"
	"github.com/lennartpollvogt/mochi-server/internal/config"
	"github.com/lennartpollvogt/mochi-server/internal/confirm"
	"github.com/lennartpollvogt/mochi-server/internal/event"
	"github.com/lennartpollvogt/mochi-server/internal/logging"
	"github.com/lennartpollvogt/mochi-server/internal/orchestrator"
	"github.com/lennartpollvogt/mochi-server/internal/server"
	"github.com/lennartpollvogt/mochi-server/internal/store"
	"github.com/lennartpollvogt/mochi-server/internal/summary"
	"github.com/lennartpollvogt/mochi-server/internal/tool"
	"github.com/lennartpollvogt/mochi-server/internal/upstream"
	"github.com/lennartpollvogt/mochi-server/internal/workerpool"
)

var (
	flagPort     int
	flagHost     string
	flagDataRoot string
	flagUpstream string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mochi-server",
	Short: "Run the mochi headless chat backend",
	Long: `mochi-server mediates between chat clients and a local Ollama-compatible
inference daemon: it owns persistent conversation sessions, streams model
output over Server-Sent Events, and orchestrates tool calls and agent
delegations inside a single user turn.`,
	RunE: runServe,
}

func init() {
	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "bind port (overrides MOCHI_PORT)")
	rootCmd.Flags().StringVar(&flagHost, "host", "", "bind host (overrides MOCHI_HOST)")
	rootCmd.Flags().StringVar(&flagDataRoot, "data-root", "", "data root directory (overrides MOCHI_DATA_ROOT)")
	rootCmd.Flags().StringVar(&flagUpstream, "upstream", "", "upstream base URL (overrides MOCHI_UPSTREAM_BASE_URL)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides MOCHI_LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	settings, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(settings)

	log, err := logging.New(logging.Config{
		Level:  logging.ParseLevel(settings.LogLevel),
		Output: os.Stderr,
		Pretty: true,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Close()

	paths := settings.Paths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("prepare data root: %w", err)
	}

	log.Logger.Info().Str("data_root", settings.DataRoot).Msg("starting mochi-server")

	upstreamClient := upstream.New(settings.UpstreamBaseURL, settings.UpstreamTimeout)
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if err := upstream.WaitUntilHealthy(startCtx, upstreamClient); err != nil {
		log.Logger.Warn().Err(err).Msg("upstream daemon not yet reachable, continuing anyway")
	}
	cancelStart()

	sessions, err := store.New(paths.Sessions)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	agentSessions, err := store.New(paths.AgentChats)
	if err != nil {
		return fmt.Errorf("open agent-chat store: %w", err)
	}

	tools := tool.DefaultRegistry(workDir, log.Logger)
	if err := tools.LoadManifests(paths.Tools); err != nil {
		log.Logger.Warn().Err(err).Msg("failed loading tool manifests")
	}
	if err := tools.Watch(); err != nil {
		log.Logger.Warn().Err(err).Msg("failed starting tool manifest watcher")
	}

	agents := agent.NewRegistry(paths.Agents, log.Logger)
	if err := agents.Load(); err != nil {
		log.Logger.Warn().Err(err).Msg("failed loading agent definitions")
	}

	bus := event.New()
	confirmBroker := confirm.New()
	pool := workerpool.New(4)

	agentOrch := agent.NewOrchestrator(agents, agentSessions, upstreamClient, bus)
	summarizer := summary.New(sessions, upstreamClient, pool, log.Logger)

	orch := orchestrator.New(
		sessions, upstreamClient, tools, agents, agentOrch, confirmBroker, bus, pool, summarizer,
		orchestrator.WithSummarizationEnabled(settings.SummarizationEnabled),
		orchestrator.WithLogger(log.Logger),
	)

	srv := server.New(server.Deps{
		Settings:      settings,
		Sessions:      sessions,
		Orchestrator:  orch,
		Confirm:       confirmBroker,
		Tools:         tools,
		Agents:        agents,
		AgentOrch:     agentOrch,
		AgentSessions: agentSessions,
		Upstream:      upstreamClient,
		Bus:           bus,
		Summarizer:    summarizer,
		Log:           log.Logger,
	})

	go func() {
		log.Logger.Info().Str("addr", settings.Addr()).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Logger.Error().Err(err).Msg("server shutdown error")
	}

	tools.Close()
	pool.Close()
	bus.Close()

	log.Logger.Info().Msg("server stopped")
	return nil
}

// applyFlags layers explicitly-set CLI flags over settings loaded from
// environment and override file, the last and highest-priority source
// (spec.md §6.5).
func applyFlags(s *config.Settings) {
	if flagPort != 0 {
		s.Port = flagPort
	}
	if flagHost != "" {
		s.Host = flagHost
	}
	if flagDataRoot != "" {
		s.DataRoot = flagDataRoot
	}
	if flagUpstream != "" {
		s.UpstreamBaseURL = flagUpstream
	}
	if flagLogLevel != "" {
		s.LogLevel = flagLogLevel
	}
}
