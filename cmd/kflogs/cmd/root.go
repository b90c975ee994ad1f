package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/msto63/kflogs/internal/config"
	"github.com/msto63/kflogs/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kflogs",
	Short: "kflogs - live job logs for Kubefill",
	Long: `kflogs shows the logs of one Kubefill job run: the collected
history first, followed by lines streamed live while the job runs.

Commands:
  view     - interactive log viewer (TUI)
  tail     - print logs to stdout
  serve    - bundled log server (REST + websocket)
  version  - build information`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError("command failed", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $KFLOGS_CONFIG, ./configs/kflogs.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the --config file or falls back to the default locations
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	return config.LoadFromEnv()
}

// newLogger builds the process logger. The TUI owns the terminal, so with
// quiet set output goes to log.file or is discarded.
func newLogger(cfg *config.Config, service string, quiet bool) (*logging.Logger, func(), error) {
	lc := logging.LoggerConfig{
		ServiceName: service,
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      os.Stderr,
	}
	if verbose {
		lc.Level = "debug"
	}

	closer := func() {}
	switch {
	case cfg.Log.File != "":
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		lc.Output = f
		closer = func() { f.Close() }
	case quiet:
		lc.Output = io.Discard
	}

	return logging.NewLogger(lc), closer, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
