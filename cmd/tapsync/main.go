package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/johndauphine/tapsync/internal/config"
	"github.com/johndauphine/tapsync/internal/logging"
	"github.com/johndauphine/tapsync/internal/notify"
	"github.com/johndauphine/tapsync/internal/orchestrator"
	"github.com/johndauphine/tapsync/internal/state"
	"github.com/johndauphine/tapsync/internal/util"
	"github.com/johndauphine/tapsync/internal/version"
)

func main() {
	app := &cli.App{
		Name:    version.Name,
		Usage:   "Rule-driven Singer tap/target sync planner and orchestrator",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "tapsync.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text or json",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Usage: "Log level: debug, info, warn, error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "plan",
				Usage:     "Resolve the rules file against the tap's catalog and write the plan",
				ArgsUsage: "<tap>",
				Action:    runPlan,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rescan",
						Usage: "Discard the cached catalog and rediscover",
					},
				},
			},
			{
				Name:      "sync",
				Usage:     "Plan and sync a tap's selected streams, one stream at a time",
				ArgsUsage: "<tap> [target]",
				Action:    runSync,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tables",
						Usage: "Comma-separated subset of streams to sync",
					},
					&cli.BoolFlag{
						Name:  "rescan",
						Usage: "Discard the cached catalog and rediscover",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable progress bars",
					},
				},
			},
			{
				Name:      "discover",
				Usage:     "Force a catalog refresh for a tap",
				ArgsUsage: "<tap>",
				Action:    runDiscover,
			},
			{
				Name:  "state",
				Usage: "Inspect or reset a tap's replication state",
				Subcommands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "Print a tap's stream bookmarks",
						ArgsUsage: "<tap>",
						Action:    showState,
					},
					{
						Name:      "clear",
						Usage:     "Delete a tap's replication state (forces a full re-sync)",
						ArgsUsage: "<tap>",
						Action:    clearState,
					},
				},
			},
			{
				Name:   "history",
				Usage:  "List recorded sync runs",
				Action: showHistory,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Maximum runs to list",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the config file and applies logging overrides from
// global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f := c.String("log-format"); f != "" {
		cfg.Log.Format = f
	}
	if v := c.String("verbosity"); v != "" {
		cfg.Log.Level = v
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	logging.SetFormat(cfg.Log.Format)
	return cfg, nil
}

// newBackend opens the configured state backend.
func newBackend(ctx context.Context, cfg *config.Config) (state.Backend, error) {
	switch cfg.State.Backend {
	case "file":
		return state.NewFileBackend(cfg.State.Path)
	case "sqlite":
		return state.NewSQLiteBackend(cfg.State.Path + ".db")
	case "postgres":
		return state.NewPostgresBackend(ctx, cfg.State.DSN)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

// tapArg returns the required tap name argument.
func tapArg(c *cli.Context) (string, error) {
	tap := c.Args().First()
	if tap == "" {
		return "", fmt.Errorf("usage: %s %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return tap, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nInterrupted. Finishing current stream state...")
		cancel()
	}()

	return ctx, cancel
}

func runPlan(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tap, err := tapArg(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	planner := orchestrator.NewPlanner(cfg)
	result, err := planner.BuildPlan(ctx, tap, c.Bool("rescan"))
	if err != nil {
		return err
	}

	fmt.Printf("Plan written to %s\n", result.PlanFile)
	fmt.Printf("Selected catalog written to %s\n", result.SelectedCatalogFile)
	for _, s := range result.Plan.Streams {
		mark := "-"
		if s.Selected {
			mark = "+"
		}
		fmt.Printf("  %s %s\n", mark, s.Name)
	}
	if len(result.Warnings) > 0 {
		fmt.Printf("%d unmatched rules (see log)\n", len(result.Warnings))
	}
	return nil
}

func runSync(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tap, err := tapArg(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	notifier := notify.New(&notify.SlackConfig{
		Enabled:    cfg.Notify.SlackWebhookURL != "",
		WebhookURL: cfg.Notify.SlackWebhookURL,
		Username:   version.Name,
	})

	runner := orchestrator.NewSyncRunner(cfg, backend, notifier)
	result, err := runner.Run(ctx, orchestrator.SyncOptions{
		Tap:          tap,
		Target:       c.Args().Get(1),
		Tables:       util.SplitCSV(c.String("tables")),
		Rescan:       c.Bool("rescan"),
		ShowProgress: !c.Bool("no-progress"),
	})
	if err != nil {
		return err
	}

	result.WriteReport(os.Stdout)
	if !result.Success() {
		return fmt.Errorf("%d of %d streams failed",
			len(result.Failed), len(result.Failed)+len(result.Succeeded))
	}
	return nil
}

func runDiscover(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tap, err := tapArg(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	planner := orchestrator.NewPlanner(cfg)
	cat, err := planner.Discover(ctx, tap)
	if err != nil {
		return err
	}

	fmt.Printf("Discovered %d streams:\n", len(cat.Streams))
	for _, name := range cat.StreamNames() {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func showState(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tap, err := tapArg(c)
	if err != nil {
		return err
	}

	ctx := context.Background()
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	st, err := backend.Load(ctx, tap)
	if err != nil {
		return err
	}
	if len(st) == 0 {
		fmt.Printf("No state for %s\n", tap)
		return nil
	}
	for stream, bookmark := range st {
		fmt.Printf("%s: %s\n", stream, bookmark)
	}
	return nil
}

func clearState(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tap, err := tapArg(c)
	if err != nil {
		return err
	}

	ctx := context.Background()
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.Clear(ctx, tap); err != nil {
		return err
	}
	fmt.Printf("State cleared for %s; next sync will be a full extract\n", tap)
	return nil
}

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx := context.Background()
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	runs, err := backend.GetRuns(ctx, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs (the file backend does not track history)")
		return nil
	}

	fmt.Printf("%-36s  %-15s  %-10s  %-15s  %-20s\n", "RUN", "TAP", "TARGET", "STATUS", "STARTED")
	for _, r := range runs {
		fmt.Printf("%-36s  %-15s  %-10s  %-15s  %-20s\n",
			r.ID, r.TapID, r.Target, r.Status, r.StartedAt.Format(time.RFC3339))
		if r.Error != "" {
			fmt.Printf("    %s\n", r.Error)
		}
	}
	return nil
}
