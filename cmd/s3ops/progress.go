package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/openmined/s3ops/internal/operation"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const pollInterval = 100 * time.Millisecond

// tracker is the part of the engine the progress views poll.
type tracker interface {
	GetHandle(id string) (operation.Snapshot, bool)
	RequestCancel(id string) bool
}

// follow waits for the operation to finish while rendering its progress.
// An interrupt on the command context requests cancellation and keeps
// following until the operation settles.
func (o *rootOptions) follow(cmd *cobra.Command, t tracker, id string, quiet bool) (operation.Snapshot, error) {
	out := cmd.OutOrStdout()
	switch {
	case quiet:
		return pollProgress(cmd.Context(), t, id, io.Discard, pollInterval)
	case !o.noTUI && isTerminal(out):
		return runProgressTUI(cmd.Context(), t, id, out)
	default:
		return pollProgress(cmd.Context(), t, id, out, pollInterval)
	}
}

// runOperation follows the operation and prints its summary.
func (o *rootOptions) runOperation(cmd *cobra.Command, t tracker, id string) error {
	snap, err := o.follow(cmd, t, id, false)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), snap)
	return outcomeError(snap)
}

// pollProgress prints a line whenever the rendered progress changes.
func pollProgress(ctx context.Context, t tracker, id string, w io.Writer, interval time.Duration) (operation.Snapshot, error) {
	var (
		g     errgroup.Group
		final operation.Snapshot
		done  = make(chan struct{})
	)

	g.Go(func() error {
		select {
		case <-ctx.Done():
			t.RequestCancel(id)
		case <-done:
		}
		return nil
	})

	g.Go(func() error {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last, noted := "", false
		for {
			snap, ok := t.GetHandle(id)
			if !ok {
				return fmt.Errorf("operation %s not found", id)
			}
			if snap.CancelRequested && !noted && !snap.IsTerminal() {
				fmt.Fprintln(w, yellowText("cancelling, waiting for in-flight requests..."))
				noted = true
			}
			if line := progressLine(snap); line != last {
				fmt.Fprintln(w, line)
				last = line
			}
			if snap.IsTerminal() {
				final = snap
				return nil
			}
			<-ticker.C
		}
	})

	err := g.Wait()
	return final, err
}
