package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newsreaper/newsreaper/internal/catalog"
	"github.com/newsreaper/newsreaper/internal/config"
	"github.com/newsreaper/newsreaper/internal/feed"
	"github.com/newsreaper/newsreaper/internal/pipeline"
	"github.com/newsreaper/newsreaper/internal/report"
	"github.com/newsreaper/newsreaper/internal/store"
)

const usage = `usage: newsreaper <command> [flags]

commands:
  init     create the database schema
  run      execute one ingestion + scoring run
  resolve  list or resolve pending override decisions
  brief    dump all records for one report week as JSON
`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "resolve":
		err = cmdResolve(os.Args[2:])
	case "brief":
		err = cmdBrief(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	st, err := store.OpenAndInit(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	slog.Info("schema ready", "path", cfg.Storage.Path)
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	dryRun := fs.Bool("dry-run", false, "score everything, write nothing")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	slog.Info("newsreaper starting",
		"config", *configPath,
		"base_url", cfg.Feed.BaseURL,
		"ranking_count", cfg.Feed.RankingCount,
		"dry_run", *dryRun,
	)

	cat, err := catalog.Load(cfg.Stages.CatalogPath)
	if err != nil {
		return err
	}
	slog.Info("pattern catalog loaded",
		"path", cfg.Stages.CatalogPath, "templates", len(cat.Templates))

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Watch the config file for hot-reload (logs only; a new run picks the
	// updated thresholds up).
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			slog.Info("config hot-reloaded",
				"ambiguity_threshold", updated.Stages.AmbiguityThreshold,
				"override_threshold", updated.Stages.OverrideThreshold)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	orch := pipeline.New(feed.NewClient(cfg.Feed), st, cat, cfg)
	summary, err := orch.Execute(ctx, *dryRun)
	if err != nil {
		return err
	}

	if cfg.Report.MetricsPath != "" && !*dryRun {
		if err := report.WriteMetrics(cfg.Report.MetricsPath, summary); err != nil {
			slog.Error("metrics export failed", "err", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func cmdResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	id := fs.Int64("id", 0, "decision id to resolve; 0 lists pending decisions")
	decision := fs.String("decision", "", "accept | reject | escalate")
	operator := fs.String("operator", "", "operator id recorded with the decision")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	if *id == 0 {
		pending, err := st.PendingOverrides(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pending)
	}

	if *operator == "" {
		return fmt.Errorf("resolve: -operator is required")
	}
	if err := st.ResolveOverride(ctx, *id, *decision, *operator); err != nil {
		return err
	}
	slog.Info("override resolved", "id", *id, "decision", *decision, "operator", *operator)
	return nil
}

func cmdBrief(args []string) error {
	fs := flag.NewFlagSet("brief", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	week := fs.String("week", "", "week start date, YYYY-MM-DD (UTC)")
	fs.Parse(args)

	if *week == "" {
		return fmt.Errorf("brief: -week is required")
	}
	weekStart, err := time.Parse("2006-01-02", *week)
	if err != nil {
		return fmt.Errorf("brief: parse week: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.WeekRecords(context.Background(), weekStart)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}
