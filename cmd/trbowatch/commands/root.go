package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"trbowatch/internal/config"
	"trbowatch/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
	driver     *string
	dumpHttp   *bool
)

var providers telemetry.Telemetry

var rootCmd = &cobra.Command{
	Use:   "trbowatch",
	Short: "trbowatch discovers new radio users on the AZ-TRBONET call logs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(*verbose)

		var err error
		providers, err = telemetry.SetupFromEnv(cmd.Context(), telemetry.Service{
			Name:    "trbowatch",
			Command: cmd.Name(),
			Mode:    commandMode(cmd),
			Driver:  *driver,
		})
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	configPath = flags.String("config", config.DefaultPath, "The json5 config file, a .local variant is merged over it.")
	verbose = flags.BoolP("verbose", "v", false, "Log debug output.")
	driver = flags.String("driver", "", "The browser driver to use: chrome or http (overrides the config).")
	dumpHttp = flags.Bool("dump-http", false, "Write every HTTP exchange to the configured dump directory.")
}

// commandMode is the scrape mode implied by the command line, empty when it
// only becomes known from the config.
func commandMode(cmd *cobra.Command) string {
	switch cmd.Name() {
	case config.ModeCallWatch, config.ModeBackend:
		return cmd.Name()
	case "watch":
		return *watchMode
	}
	return ""
}

// loadConfig reads the config file and applies the persistent flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	if *driver != "" {
		cfg.Browser.Driver = *driver
		err = cfg.Validate()
		if err != nil {
			return config.Config{}, err
		}
	}
	slog.Debug("loaded config", "path", *configPath, "driver", cfg.Browser.Driver)
	return cfg, nil
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	shutdownErr := providers.Shutdown(context.Background())
	if shutdownErr != nil {
		slog.Warn("failed to flush telemetry", "err", shutdownErr.Error())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
