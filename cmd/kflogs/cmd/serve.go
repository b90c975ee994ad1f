package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msto63/kflogs/internal/logserver"
	"github.com/spf13/cobra"
)

var (
	serveSeed      bool
	serveSeedJob   int
	serveSeedLines int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bundled log server",
	Long: `Run the bundled log server. It serves job metadata and collected
logs over REST and streams appended lines over the websocket.

Log files are read from <logs_path>/<job-id>/**/*.log, jobs from the
SQLite database at db_path.

Examples:
  kflogs serve                 # serve using the configuration
  kflogs serve --seed          # with demo jobs that produce lines`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "seed demo jobs and keep writing lines")
	serveCmd.Flags().IntVar(&serveSeedJob, "seed-job", 1, "id of the first demo job")
	serveCmd.Flags().IntVar(&serveSeedLines, "seed-lines", 60, "lines written by the running demo job")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, "kflogs-server", false)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := logserver.NewJobStore(cfg.Serve.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := logserver.New(logserver.Config{
		Addr:           cfg.ListenAddr(),
		LogsPath:       cfg.Serve.LogsPath,
		APIPath:        cfg.Server.APIPath,
		WSPath:         cfg.WS.Path,
		FollowInterval: cfg.Serve.FollowInterval.Duration,
	}, store, logger)

	if serveSeed {
		demo := &logserver.Demo{
			Store:    store,
			LogsPath: cfg.Serve.LogsPath,
			JobID:    serveSeedJob,
			Lines:    serveSeedLines,
			Interval: time.Second,
		}
		if err := demo.Seed(ctx); err != nil {
			return fmt.Errorf("failed to seed demo jobs: %w", err)
		}
		go func() {
			if err := demo.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("demo job failed", "error", err)
			}
		}()
		logger.Info("demo jobs seeded", "running", serveSeedJob, "finished", []int{serveSeedJob + 1, serveSeedJob + 2})
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Printf("kflogs server listening on %s\n", srv.Address())
	fmt.Printf("Health Check: http://%s/healthz\n", srv.Address())

	// Wait for signal or error
	select {
	case <-sigCh:
		fmt.Println("\nStopping server...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return srv.Stop(shutdownCtx)
}
