// Command marketgps is the operator CLI for the scoring core:
// rotation, gating and universe runs, the queue worker, and a status
// summary. Exit code 0 on success, 1 when any error counter is
// non-zero.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/marketgps/internal/adhoc"
	"github.com/aristath/marketgps/internal/config"
	"github.com/aristath/marketgps/internal/core"
	"github.com/aristath/marketgps/internal/domain"
	"github.com/aristath/marketgps/internal/scheduler"
	"github.com/aristath/marketgps/internal/universe"
	"github.com/aristath/marketgps/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCore() (*core.Core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	return core.New(cfg, log)
}

func parseScope(raw string) (domain.MarketScope, error) {
	return domain.ParseScope(raw)
}

func reportResult(res domain.JobResult) error {
	fmt.Printf("run_id=%s status=%s processed=%d success=%d failed=%d duration=%.1fs\n",
		res.RunID, res.Status, res.Processed, res.Success, res.Failed, res.DurationS)
	if res.Error != "" {
		fmt.Printf("error: %s\n", res.Error)
	}
	if res.Failed > 0 || res.Status != domain.RunSuccess {
		return fmt.Errorf("run finished with failures")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "marketgps",
		Short:         "Multi-market asset scoring pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd("rotation", "Run a rotation pass: refresh bars, gate, score, publish",
			func(ctx context.Context, c *core.Core, scope domain.MarketScope, mode domain.JobMode, batch int) (domain.JobResult, error) {
				return c.RunRotation(ctx, scope, mode, batch, nil)
			}),
		newRunCmd("gating", "Run a gating-only pass over cached bars",
			func(ctx context.Context, c *core.Core, scope domain.MarketScope, mode domain.JobMode, batch int) (domain.JobResult, error) {
				return c.RunGating(ctx, scope, mode, batch, nil)
			}),
		newUniverseCmd(),
		newWorkerCmd(),
		newStatusCmd(),
		newScoreCmd(),
	)
	return root
}

type runFn func(ctx context.Context, c *core.Core, scope domain.MarketScope, mode domain.JobMode, batch int) (domain.JobResult, error)

func newRunCmd(name, short string, fn runFn) *cobra.Command {
	var scopeFlag, modeFlag string
	var batchFlag int

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScope(scopeFlag)
			if err != nil {
				return err
			}
			mode := domain.JobMode(modeFlag)
			switch mode {
			case domain.ModeDailyFull, domain.ModeHourlyOverlay, domain.ModeOnDemand:
			default:
				return fmt.Errorf("unknown mode %q", modeFlag)
			}

			c, err := newCore()
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := fn(signalContext(), c, scope, mode, batchFlag)
			if err != nil {
				return err
			}
			return reportResult(res)
		},
	}
	cmd.Flags().StringVar(&scopeFlag, "scope", "US_EU", "market scope (US_EU, AFRICA)")
	cmd.Flags().StringVar(&modeFlag, "mode", string(domain.ModeDailyFull), "job mode (daily_full, hourly_overlay, on_demand)")
	cmd.Flags().IntVar(&batchFlag, "batch", 0, "batch size (default from config)")
	return cmd
}

func newUniverseCmd() *cobra.Command {
	var scopeFlag, fromCSV string

	cmd := &cobra.Command{
		Use:   "universe",
		Short: "Rebuild a scope's asset universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScope(scopeFlag)
			if err != nil {
				return err
			}
			c, err := newCore()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := signalContext()

			if fromCSV != "" {
				assets, err := universe.LoadFromCSV(fromCSV, scope, time.Now().UTC())
				if err != nil {
					return err
				}
				if err := c.Store.UpsertAssets(ctx, scope, assets); err != nil {
					return err
				}
				fmt.Printf("seeded %d assets from %s\n", len(assets), fromCSV)
				return nil
			}

			n, err := c.RebuildUniverse(ctx, scope)
			if err != nil {
				return err
			}
			fmt.Printf("universe rebuilt: %d assets\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&scopeFlag, "scope", "US_EU", "market scope (US_EU, AFRICA)")
	cmd.Flags().StringVar(&fromCSV, "from-csv", "", "seed the universe from a CSV file instead of the provider")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	var scopeFlag string
	var maxJobs int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduler and queue worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCore()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := signalContext()

			var scope *domain.MarketScope
			if scopeFlag != "" {
				s, err := parseScope(scopeFlag)
				if err != nil {
					return err
				}
				scope = &s
			}

			log := logger.New(logger.Config{Level: c.Cfg.LogLevel, Pretty: c.Cfg.DevMode})
			sched := scheduler.New(log)
			if err := c.RegisterSchedules(ctx, sched); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			worker := scheduler.NewWorker(c.Store, c, scope, maxJobs, log)
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := worker.Tick(ctx); err != nil && ctx.Err() == nil {
						log.Error().Err(err).Msg("worker tick failed")
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&scopeFlag, "scope", "", "restrict queue claims to one scope")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 5, "max queue items claimed per tick")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print store and bar-file statistics plus recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCore()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := signalContext()

			for _, scope := range []domain.MarketScope{domain.ScopeUSEU, domain.ScopeAfrica} {
				assets, err := c.Store.ListActiveAssets(ctx, scope)
				if err != nil {
					return err
				}
				stats, err := c.Bars.ScopeStats(scope)
				if err != nil {
					return err
				}
				top, err := c.Store.TopScores(ctx, scope, 1)
				if err != nil {
					return err
				}
				best := "n/a"
				if len(top) == 1 && top[0].ScoreTotal != nil {
					best = fmt.Sprintf("%s (%.1f)", top[0].AssetID, *top[0].ScoreTotal)
				}
				fmt.Printf("%-7s active=%d bar_files=%d bars=%d top=%s\n",
					scope, len(assets), stats.AssetCount, stats.TotalBars, best)
			}

			runs, err := c.RecentJobs(ctx, 5)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("  %s %s/%s %s processed=%d failed=%d\n",
					r.RunID[:8], r.MarketScope, r.JobType, r.Status, r.AssetsProcessed, r.AssetsFailed)
			}
			return nil
		},
	}
}

func newScoreCmd() *cobra.Command {
	var exchange string
	var force bool

	cmd := &cobra.Command{
		Use:   "score TICKER",
		Short: "Score a single ticker on demand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCore()
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.ScoreTicker(signalContext(), adhoc.Request{
				UserID:       "cli",
				Plan:         domain.PlanEnterprise,
				Ticker:       args[0],
				Exchange:     exchange,
				ForceRefresh: force,
			})
			if err != nil {
				return err
			}
			total := "null"
			if res.Score.ScoreTotal != nil {
				total = fmt.Sprintf("%.1f", *res.Score.ScoreTotal)
			}
			fmt.Printf("%s score=%s confidence=%d state=%s source=%s\n",
				res.Score.AssetID, total, res.Score.Confidence, res.Score.StateLabel, res.DataSource)
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange code override")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the 24h score cache")
	return cmd
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}
