package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/docforge/internal/api"
	"github.com/aristath/docforge/internal/backend"
	"github.com/aristath/docforge/internal/config"
	"github.com/aristath/docforge/internal/events"
	"github.com/aristath/docforge/internal/llm"
	"github.com/aristath/docforge/internal/orchestrator"
	"github.com/aristath/docforge/internal/persistence"
	"github.com/aristath/docforge/internal/scheduler"
	"github.com/aristath/docforge/internal/steps"
	"github.com/aristath/docforge/internal/task"
	"github.com/aristath/docforge/internal/telemetry"
	"github.com/aristath/docforge/internal/tui"
	"github.com/aristath/docforge/internal/workspace"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Hour
)

// errMonitorClosed stops the process group when the user quits the TUI.
var errMonitorClosed = errors.New("monitor closed")

type options struct {
	tui        bool
	envFile    string
	configPath string
	saveConfig string
	resume     bool
}

func main() {
	var opts options
	flag.BoolVar(&opts.tui, "tui", false, "show the terminal task monitor")
	flag.StringVar(&opts.envFile, "env", ".env", "dotenv file applied before environment overrides")
	flag.StringVar(&opts.configPath, "config", "", "config file (default: ~/.docforge/config.json then .docforge/config.json)")
	flag.StringVar(&opts.saveConfig, "save-config", "", "write the effective config to this path and exit")
	flag.BoolVar(&opts.resume, "resume", false, "reschedule tasks interrupted by the previous run")
	flag.Parse()

	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Println("Shutdown complete")
}

// loadConfig merges the config files over the defaults and applies the environment.
func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load("", opts.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ApplyEnv(cfg, opts.envFile); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, stop context.CancelFunc, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.saveConfig != "" {
		if err := config.Save(cfg, opts.saveConfig); err != nil {
			return err
		}
		log.Printf("Config written to %s", opts.saveConfig)
		return nil
	}

	if err := os.MkdirAll(cfg.Storage.TaskDataDir, 0755); err != nil {
		return fmt.Errorf("failed to create task data dir: %w", err)
	}
	if opts.tui {
		// Log lines would tear the alternate screen.
		logFile, err := os.OpenFile(filepath.Join(cfg.Storage.TaskDataDir, "docforge.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		log.SetOutput(logFile)
	}

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Printf("WARNING: failed to flush traces: %v", err)
		}
	}()

	store, err := persistence.NewSQLiteStore(ctx, filepath.Join(cfg.Storage.TaskDataDir, "docforge.db"))
	if err != nil {
		return fmt.Errorf("failed to open task store: %w", err)
	}
	defer store.Close()

	taskStore, err := task.NewStore(ctx, store)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	defer bus.Close()

	pool := scheduler.NewPool(cfg.Workers.MaxConcurrentTasks)
	manager := task.NewManager(taskStore, pool, bus)

	// Create ProcessManager for subprocess tracking
	pm := backend.NewProcessManager()

	client, err := llm.NewFromConfig(cfg.AI.Primary, cfg.AI.Standby, pm, llm.WithTimeout(cfg.CallTimeout()))
	if err != nil {
		return err
	}
	if !client.HasStandby() {
		log.Printf("WARNING: no standby AI provider configured, failures of %s are final", cfg.AI.Primary.Provider)
	}

	ws, err := workspace.NewManager(cfg.Storage.OutputDir)
	if err != nil {
		return err
	}

	deps := steps.Deps{
		Generator:    client,
		Completer:    manager,
		Workspace:    ws,
		TemplatesDir: cfg.CodeTemplatesDir,
		MaxRetries:   cfg.AI.MaxRetries,
	}
	if browser := steps.FindBrowser(); browser != nil {
		deps.Capturer = browser
	} else {
		log.Printf("WARNING: no headless browser found, screenshots will be placeholders")
	}

	checkpoints := orchestrator.NewCheckpointStore(store)
	pipeline, err := orchestrator.New(manager, checkpoints, steps.Default(deps))
	if err != nil {
		return err
	}

	if opts.resume {
		resumeInterrupted(manager, pipeline.Run)
	}

	server := newServer(cfg.Server.Addr, api.NewRouter(api.NewHandler(manager, pipeline.Run, ws, cfg.TechStacksDir, bus)))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			sweep(gctx, manager, checkpoints, ws, time.Now().Add(-cfg.Retention()))
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if opts.tui {
		g.Go(func() error {
			p := tea.NewProgram(tui.New(bus, manager), tea.WithAltScreen())
			go func() {
				<-gctx.Done()
				p.Quit()
			}()
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("monitor: %w", err)
			}
			if gctx.Err() == nil {
				return errMonitorClosed
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		// Restore default signal handling (double Ctrl+C = force exit)
		stop()
		log.Println("Shutdown signal received, cleaning up...")
		shutdown(server, pool, pm)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errMonitorClosed) {
		return err
	}
	return nil
}

// newServer returns an HTTP server whose request contexts are cancelled as soon
// as Shutdown starts, so open task streams end instead of holding the drain.
func newServer(addr string, handler http.Handler) *http.Server {
	base, cancelRequests := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	server.RegisterOnShutdown(cancelRequests)
	return server
}

// shutdown stops accepting requests, then stops the workers. Running tasks see
// their context cancelled and stay resumable from their last checkpoint.
// HTTP and the pool each get their own timeout.
func shutdown(server *http.Server, pool *scheduler.Pool, pm *backend.ProcessManager) {
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelHTTP()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("WARNING: http shutdown: %v", err)
	}

	// Kill all tracked subprocesses
	if err := pm.KillAll(); err != nil {
		log.Printf("Error killing subprocesses: %v", err)
	}

	poolCtx, cancelPool := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelPool()
	if err := pool.Shutdown(poolCtx); err != nil {
		log.Printf("WARNING: %v, some tasks did not stop in time", err)
	}
}

// resumeInterrupted reschedules every task a previous process left unfinished.
func resumeInterrupted(manager *task.Manager, run task.Runner) int {
	resumed := 0
	for _, st := range manager.List() {
		if st.Status != task.StatusInterrupted && st.Status != task.StatusPending {
			continue
		}
		if err := manager.Resume(run, st.ID); err != nil {
			log.Printf("WARNING: failed to resume task %s: %v", st.ID, err)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		log.Printf("Resumed %d task(s)", resumed)
	}
	return resumed
}

// sweep removes finished tasks created before cutoff together with their
// checkpoints and files, then expired workspaces no live task owns.
func sweep(ctx context.Context, manager *task.Manager, checkpoints *orchestrator.CheckpointStore, ws *workspace.Manager, cutoff time.Time) []string {
	purged := manager.Purge(cutoff)
	for _, id := range purged {
		if err := checkpoints.Delete(ctx, id); err != nil {
			log.Printf("WARNING: failed to delete checkpoint of task %s: %v", id, err)
		}
		if err := ws.Remove(id); err != nil {
			log.Printf("WARNING: failed to remove workspace of task %s: %v", id, err)
		}
	}

	removed, err := ws.Cleanup(cutoff, func(id string) bool {
		st, ok := manager.Get(id)
		return ok && !st.Status.Terminal()
	})
	if err != nil {
		log.Printf("WARNING: workspace cleanup failed: %v", err)
	}
	if n := len(purged) + len(removed); n > 0 {
		log.Printf("Retention sweep removed %d task(s) and %d stale workspace(s)", len(purged), len(removed))
	}
	return purged
}
