package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/threadscope/internal/config"
	"github.com/threadscope/internal/drift"
)

// AnalyzeCommand returns the CLI command for running drift analysis.
func AnalyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Analyze pending reply threads for topic drift",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep running cycles on the configured interval",
			},
			&cli.IntFlag{
				Name:  "batch",
				Usage: "Pending threads per cycle (overrides config)",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	router, err := buildRouter(c.Context, cfg)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}

	schedCfg := drift.SchedulerConfig{
		BatchSize: cfg.Drift.BatchSize,
		CallDelay: cfg.Drift.CallDelay,
		Interval:  cfg.Drift.Interval,
	}
	if c.Int("batch") > 0 {
		schedCfg.BatchSize = c.Int("batch")
	}

	analyzer := drift.NewAnalyzer(router, cfg.AI.CallTimeout)
	scheduler := drift.NewScheduler(st, analyzer, schedCfg)

	if c.Bool("watch") {
		fmt.Printf("Watching for pending threads every %s...\n", schedCfg.Interval)
		scheduler.Start()
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)
		<-quit
		scheduler.Stop()
		return nil
	}

	summary := scheduler.RunCycle(c.Context)
	fmt.Printf("Cycle complete: %d fetched, %d analyzed, %d left pending\n",
		summary.Fetched, summary.Analyzed, summary.Failed)
	return nil
}
