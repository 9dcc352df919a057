package commands

import (
	"fmt"
	"log/slog"
	"time"
	"trbowatch/internal/components/chrono"
	"trbowatch/internal/config"
	"trbowatch/lib/telemetry"
	"trbowatch/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	watchSchedule *string
	watchMode     *string
	watchNow      *bool
)

func init() {
	watchSchedule = watchCmd.Flags().String("schedule", "", "A 5 field cron expression (overrides watch.schedule).")
	watchMode = watchCmd.Flags().String("mode", "", "callwatch or backend (overrides watch.mode).")
	watchNow = watchCmd.Flags().Bool("now", false, "Also run once immediately.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--schedule <cron>] [--mode callwatch|backend]",
	Short: "Run on a schedule until interrupted, overlapping runs are skipped.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		if *watchSchedule != "" {
			cfg.Watch.Schedule = *watchSchedule
		}
		if *watchMode != "" {
			cfg.Watch.Mode = *watchMode
		}
		err = cfg.Validate()
		if err != nil {
			serviceutil.Fatal("invalid arguments", err)
		}
		if cfg.Watch.Mode == config.ModeBackend && (cfg.Backend.Username == "" || cfg.Backend.Password == "") {
			serviceutil.Fatal("invalid arguments", errMissingCredentials)
		}

		err = watch(cmd, cfg)
		if err != nil {
			serviceutil.Fatal("failed to start watching", err)
		}
	},
}

func watch(cmd *cobra.Command, cfg config.Config) error {
	ctx := cmd.Context()

	r, err := newRunner(cfg, cfg.Watch.Mode, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	tick := func() {
		fmt.Fprintf(r.out, "Run started %s.\n", r.clock.Now().Format(time.DateTime))
		_, err := r.runOnce(ctx)
		if err != nil {
			slog.Error(exitReason(err), "err", err.Error())
		}
	}

	cron := chrono.NewStandardCron(r.clock.Location(), r.tel)
	err = cron.Cron(cfg.Watch.Schedule, tick)
	if err != nil {
		cron.Stop()
		return fmt.Errorf("schedule %q: %w", cfg.Watch.Schedule, err)
	}
	telemetry.InstrumentPerfStats(ctx, 30*time.Second)

	slog.Info(
		"watching call logs",
		"mode", cfg.Watch.Mode,
		"schedule", cfg.Watch.Schedule,
		"timezone", r.clock.Location().String(),
	)
	if *watchNow {
		tick()
	}

	<-ctx.Done()
	cron.Stop()
	return nil
}
