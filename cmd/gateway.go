package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bashclaw/bashclaw/internal/agent"
	"github.com/bashclaw/bashclaw/internal/autoreply"
	"github.com/bashclaw/bashclaw/internal/bus"
	"github.com/bashclaw/bashclaw/internal/config"
	"github.com/bashclaw/bashclaw/internal/cron"
	"github.com/bashclaw/bashclaw/internal/gateway"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/memory"
	"github.com/bashclaw/bashclaw/internal/sessions"
	"github.com/bashclaw/bashclaw/internal/state"
	"github.com/bashclaw/bashclaw/internal/telemetry"
	"github.com/bashclaw/bashclaw/internal/tools"
)

// runtime is the wired-up core shared by the gateway and tool subcommands.
type runtime struct {
	cfg       *config.Store
	sessions  *sessions.Store
	memory    *memory.Store
	registry  *tools.Registry
	hooks     *hooks.Dispatcher
	bus       *bus.Bus
	cronStore *cron.Store
	engine    *agent.Engine
	spawn     *tools.SpawnTool
	replies   *autoreply.Store
}

func buildRuntime() (*runtime, error) {
	cfg, err := config.Open(resolveConfigPath())
	if err != nil {
		return nil, err
	}

	agentsDir := filepath.Join(state.Dir(), "agents")
	sess := sessions.NewStore(state.Sessions(), cfg.GetString("session.scope", ""))
	mem := memory.NewStore(state.Memory(), agentsDir)
	disp := hooks.NewDispatcher(state.Hooks())
	if dir := cfg.GetString("hooks.scriptsDir", ""); dir != "" {
		if n, err := disp.LoadDir(dir); err != nil {
			slog.Warn("hooks: script dir load failed", "dir", dir, "error", err)
		} else if n > 0 {
			slog.Info("hooks: scripts loaded", "dir", dir, "count", n)
		}
	}

	cronStore := cron.NewStore(filepath.Join(state.Cron(), "jobs.json"))
	b := bus.New()
	reg := tools.NewRegistry()

	eng := agent.New(agent.Options{
		Config:    cfg,
		Sessions:  sess,
		Memory:    mem,
		Registry:  reg,
		Hooks:     disp,
		Bus:       b,
		AgentsDir: agentsDir,
		UsagePath: filepath.Join(state.Usage(), "usage.jsonl"),
	})

	spawnTool := tools.NewSpawnTool(state.Spawn(), eng.SpawnRunFunc())
	reg.Register(tools.NewMemoryTool(mem))
	reg.Register(tools.NewShellTool())
	reg.Register(tools.NewWebFetchTool())
	reg.Register(tools.NewWebSearchTool())
	reg.Register(tools.NewCronTool(cronStore))
	reg.Register(spawnTool)
	reg.Register(tools.NewSpawnStatusTool(state.Spawn()))
	reg.Register(tools.NewReadFileTool())
	reg.Register(tools.NewWriteFileTool())
	reg.Register(tools.NewSessionStatusTool(sess))

	return &runtime{
		cfg:       cfg,
		sessions:  sess,
		memory:    mem,
		registry:  reg,
		hooks:     disp,
		bus:       b,
		cronStore: cronStore,
		engine:    eng,
		spawn:     spawnTool,
		replies:   autoreply.NewStore(state.Autoreply()),
	}, nil
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the HTTP gateway and cron runner",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	rt, err := buildRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, rt.cfg.GetString("telemetry.endpoint", ""))
	if err != nil {
		slog.Warn("telemetry: init failed", "error", err)
	}
	defer shutdown(context.Background())

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		if err := rt.cfg.Watch(watchDone); err != nil {
			slog.Warn("config: watch failed", "error", err)
		}
	}()

	runner := cron.NewRunner(rt.cronStore, state.CronRuns(), rt.engine.CronHandler())
	if ms := rt.cfg.GetInt("cron.stuckRunMs", 0); ms > 0 {
		runner.SetStuckAfter(time.Duration(ms) * time.Millisecond)
	}
	go runner.Start(ctx)

	uiDir := rt.cfg.GetString("gateway.uiDir", filepath.Join(state.Dir(), "ui"))
	srv := gateway.NewServer(rt.cfg, rt.engine, rt.bus, rt.replies, uiDir)
	if err := srv.Start(ctx); err != nil {
		slog.Error("gateway: server exited", "error", err)
		os.Exit(1)
	}

	// Let detached spawn tasks finish writing their records.
	rt.spawn.Wait()
}
