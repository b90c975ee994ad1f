package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/msto63/kflogs/internal/stream"
	"github.com/spf13/cobra"
)

var (
	tailFollow bool
	tailNumber bool
)

var tailCmd = &cobra.Command{
	Use:   "tail <job-id>",
	Short: "Print the logs of a job to stdout",
	Long: `Print the collected history of a job, then follow live lines while
the job is running. Exits when the job is not running, the subscribe
fails or the live stream ends.

Examples:
  kflogs tail 42              # history + live lines
  kflogs tail 42 --follow=false  # history only
  kflogs tail 42 -n           # with line numbers`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().BoolVarP(&tailFollow, "follow", "f", true, "follow live lines while the job runs")
	tailCmd.Flags().BoolVarP(&tailNumber, "number", "n", false, "prefix lines with their position")
}

func runTail(cmd *cobra.Command, args []string) error {
	jobID, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, "kflogs-tail", !verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := newSession(cfg, jobID, logger)
	if err := session.Mount(ctx); err != nil {
		return err
	}
	defer session.Unmount()

	return tailSession(ctx, session, cmd.OutOrStdout(), cmd.ErrOrStderr(), tailOptions{follow: tailFollow, number: tailNumber})
}

type tailOptions struct {
	follow bool
	number bool
}

// tailSource is the part of a session tail reads from
type tailSource interface {
	Snapshot() stream.Snapshot
	Updates() <-chan stream.Update
}

// tailSession writes lines in merged order as they appear. History is
// written once settled so that live lines never precede it.
func tailSession(ctx context.Context, src tailSource, out, errOut io.Writer, opts tailOptions) error {
	printed := 0
	jobFailed := false
	updates := src.Updates()

	for {
		snap := src.Snapshot()
		if snap.Settled {
			for ; printed < len(snap.Lines); printed++ {
				if opts.number {
					fmt.Fprintf(out, "%6d  %s\n", printed+1, snap.Lines[printed])
				} else {
					fmt.Fprintln(out, snap.Lines[printed])
				}
			}

			switch {
			case !opts.follow, snap.LiveEnded(), jobFailed:
				return nil
			case snap.Job != nil && !snap.Job.Phase.Running():
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			if u.Kind == stream.UpdateNotice && u.Err != nil {
				fmt.Fprintf(errOut, "kflogs: %v\n", u.Err)
				var se *stream.Error
				if errors.As(u.Err, &se) && se.Op == "load job" {
					jobFailed = true
				}
			}
		}
	}
}
