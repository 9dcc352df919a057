package commands

import (
	"trbowatch/internal/config"
	"trbowatch/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(callwatchCmd)
}

var callwatchCmd = &cobra.Command{
	Use:   "callwatch",
	Short: "Scrape the public CallWatch monitor once.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		err = runMode(cmd, cfg, config.ModeCallWatch)
		if err != nil {
			serviceutil.Fatal(exitReason(err), err)
		}
	},
}

// runMode performs a single run and returns once every resource it opened
// has been released.
func runMode(cmd *cobra.Command, cfg config.Config, mode string) error {
	r, err := newRunner(cfg, mode, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	_, err = r.runOnce(cmd.Context())
	return err
}
