package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/s3ops/internal/operation"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
)

// maxListedErrors caps the per-item errors printed in a summary.
const maxListedErrors = 10

// exitError carries a process exit code for a finished operation.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// outcomeError turns a terminal snapshot into the command's error:
// failed exits 1, completed with item errors exits 2, cancelled exits 130.
func outcomeError(snap operation.Snapshot) error {
	switch snap.State {
	case operation.StateFailed:
		msg := "operation failed"
		if snap.Fatal != nil {
			msg = fmt.Sprintf("%s: %s", snap.Fatal.Kind, snap.Fatal.Message)
		}
		return &exitError{code: 1, msg: msg}
	case operation.StateCancelled:
		return &exitError{code: 130, msg: "operation cancelled"}
	}
	if n := len(snap.Errors); n > 0 {
		return &exitError{code: 2, msg: fmt.Sprintf("%d item(s) failed", n)}
	}
	return nil
}

func stateLabel(state operation.State) string {
	switch state {
	case operation.StateCompleted:
		return greenText(string(state))
	case operation.StateFailed:
		return redText(string(state))
	case operation.StateCancelled:
		return yellowText(string(state))
	}
	return cyanText(string(state))
}

// countLabel renders "completed/total", or just the count while the total is still growing.
func countLabel(snap operation.Snapshot) string {
	if !snap.TotalKnown {
		return humanize.Comma(snap.CompletedUnits) + "/?"
	}
	return humanize.Comma(snap.CompletedUnits) + "/" + humanize.Comma(snap.TotalUnits)
}

func bytesLabel(snap operation.Snapshot) string {
	if snap.TotalBytes == 0 && snap.TransferredBytes == 0 {
		return ""
	}
	if snap.TotalBytes == 0 {
		return humanize.Bytes(uint64(snap.TransferredBytes))
	}
	return humanize.Bytes(uint64(snap.TransferredBytes)) + " / " + humanize.Bytes(uint64(snap.TotalBytes))
}

// progressLine is the one-line plain rendering of a snapshot.
func progressLine(snap operation.Snapshot) string {
	parts := []string{fmt.Sprintf("[%s] %s", shortID(snap.ID), snap.State), countLabel(snap)}
	if snap.TotalKnown && snap.TotalUnits > 0 {
		parts = append(parts, fmt.Sprintf("(%.0f%%)", snap.Progress()*100))
	}
	if b := bytesLabel(snap); b != "" {
		parts = append(parts, b)
	}
	if snap.CurrentItem != "" && !snap.IsTerminal() {
		parts = append(parts, snap.CurrentItem)
	}
	return strings.Join(parts, "  ")
}

func printSummary(w io.Writer, snap operation.Snapshot) {
	fmt.Fprintf(w, "%s %s in %s\n", stateLabel(snap.State), snap.Description, snap.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  done %s", countLabel(snap))
	if snap.SkippedUnits > 0 {
		fmt.Fprintf(w, ", skipped %s", humanize.Comma(snap.SkippedUnits))
	}
	if b := bytesLabel(snap); b != "" {
		fmt.Fprintf(w, ", %s", b)
	}
	fmt.Fprintln(w)

	if snap.Fatal != nil {
		fmt.Fprintf(w, "  %s %s: %s\n", redText(string(snap.Fatal.Kind)), snap.Fatal.Item, snap.Fatal.Message)
	}
	for i, e := range snap.Errors {
		if i == maxListedErrors {
			fmt.Fprintf(w, "  ... and %d more\n", len(snap.Errors)-maxListedErrors)
			break
		}
		fmt.Fprintf(w, "  %s %s: %s\n", redText(string(e.Kind)), e.Item, e.Message)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
