package commands

import (
	"errors"
	"strconv"
	"time"
	"trbowatch/internal/history"
	"trbowatch/lib/util/serviceutil"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyLimit *int
	historyRun   *string
)

func init() {
	historyLimit = historyCmd.Flags().Int("limit", 20, "The number of most recent runs to list.")
	historyRun = historyCmd.Flags().String("run", "", "List the users discovered by one run instead.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--limit <n>] [--run <id>]",
	Short: "List recorded runs, or the users a run discovered.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		r, err := newRunner(cfg, "", cmd.OutOrStdout())
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}

		h, closeDB, err := r.openHistory(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to open run history", err)
		}
		if h == nil {
			serviceutil.Fatal("no run history", errors.New("history.file and history.url are both empty"))
		}

		if *historyRun != "" {
			err = printDiscovered(cmd, h, *historyRun)
		} else {
			err = printRuns(cmd, r, h, *historyLimit)
		}
		closeDB()
		if err != nil {
			serviceutil.Fatal("failed to read run history", err)
		}
	},
}

func printRuns(cmd *cobra.Command, r runner, h *history.DB, limit int) error {
	runs, err := h.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	t := NewTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Run", "Mode", "Started", "", "Examined", "New users", "Talk-group users", "Misses", "Error"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.Mode,
			run.StartedAt.In(r.clock.Location()).Format(time.DateTime),
			humanize.Time(run.StartedAt),
			humanize.Comma(int64(run.Fetched)),
			humanize.Comma(int64(run.NewUsers)),
			humanize.Comma(int64(run.TalkGroupUsers)),
			humanize.Comma(int64(run.EnrichmentMisses)),
			run.Error,
		})
	}
	t.Render()
	return nil
}

func printDiscovered(cmd *cobra.Command, h *history.DB, runID string) error {
	users, err := h.Discovered(cmd.Context(), runID)
	if err != nil {
		return err
	}

	t := NewTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Store", "Radio ID", "Callsign", "First name", "State"})
	for _, u := range users {
		t.AppendRow(table.Row{u.Store, strconv.FormatInt(u.RadioID, 10), u.Callsign, u.FirstName, u.State})
	}
	t.Render()
	return nil
}
