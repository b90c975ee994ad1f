package logserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/msto63/kflogs/internal/api"
)

// Demo seeds sample jobs: a running one that keeps producing lines, a
// finished one with logs and a finished one without any.
type Demo struct {
	Store    *JobStore
	LogsPath string
	JobID    int
	Lines    int
	Interval time.Duration
}

// Seed stores the sample jobs and writes their existing log files
func (d *Demo) Seed(ctx context.Context) error {
	jobs := []*api.Job{
		{ID: d.JobID, Name: fmt.Sprintf("fill-%d", d.JobID), Phase: api.PhaseRunning, Meta: api.JobMeta{Namespace: "default"}},
		{ID: d.JobID + 1, Name: fmt.Sprintf("fill-%d", d.JobID+1), Phase: api.PhaseSucceeded, Meta: api.JobMeta{Namespace: "default"}},
		{ID: d.JobID + 2, Name: fmt.Sprintf("fill-%d", d.JobID+2), Phase: api.PhaseSucceeded, Meta: api.JobMeta{Namespace: "default"}},
	}
	for _, job := range jobs {
		if err := d.Store.Put(ctx, job); err != nil {
			return err
		}
	}

	if err := d.append(d.JobID, "init.log", "pulling image", "image pulled", "starting fill"); err != nil {
		return err
	}
	return d.append(d.JobID+1, "main.log", "starting fill", "42 rows written", "fill complete")
}

// Run appends one line per interval to the running job and marks it
// succeeded after the last one
func (d *Demo) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for i := 1; i <= d.Lines; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		line := fmt.Sprintf("%s processed batch %d/%d", time.Now().Format(time.RFC3339), i, d.Lines)
		if err := d.append(d.JobID, "main.log", line); err != nil {
			return err
		}
	}
	return d.Store.SetPhase(ctx, d.JobID, api.PhaseSucceeded)
}

func (d *Demo) append(id int, file string, lines ...string) error {
	dir := filepath.Join(d.LogsPath, strconv.Itoa(id))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, file), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}
