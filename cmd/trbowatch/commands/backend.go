package commands

import (
	"errors"
	"trbowatch/internal/config"
	"trbowatch/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	backendUser       *string
	backendPassword   *string
	backendNoHeadless *bool
)

func init() {
	backendUser = backendCmd.Flags().String("user", "", "The backend username (overrides backend.username).")
	backendPassword = backendCmd.Flags().String("password", "", "The backend password (overrides backend.password).")
	backendNoHeadless = backendCmd.Flags().Bool("no-headless", false, "Show the browser window while scraping.")
	rootCmd.AddCommand(backendCmd)
}

var errMissingCredentials = errors.New("backend credentials are required, pass --user and --password or set backend.username and backend.password")

// applyBackendFlags puts the credentials given on the command line into cfg.
func applyBackendFlags(cfg *config.Config) error {
	if *backendUser != "" {
		cfg.Backend.Username = *backendUser
	}
	if *backendPassword != "" {
		cfg.Backend.Password = *backendPassword
	}
	if *backendNoHeadless {
		cfg.Browser.ShowBrowser = true
	}
	if cfg.Backend.Username == "" || cfg.Backend.Password == "" {
		return errMissingCredentials
	}
	return nil
}

var backendCmd = &cobra.Command{
	Use:   "backend --user <username> --password <password> [--no-headless]",
	Short: "Log into the TRBOnet backend and scrape the paginated call history once.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		err = applyBackendFlags(&cfg)
		if err != nil {
			serviceutil.Fatal("invalid arguments", err)
		}
		err = runMode(cmd, cfg, config.ModeBackend)
		if err != nil {
			serviceutil.Fatal(exitReason(err), err)
		}
	},
}
