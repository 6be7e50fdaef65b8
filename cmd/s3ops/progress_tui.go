package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/openmined/s3ops/internal/operation"
)

const (
	maxBarWidth    = 60
	maxShownErrors = 5
	txtProgressKey = "Press 'q' or 'Ctrl+C' to cancel."
	txtCancelling  = "Cancelling, waiting for in-flight requests..."
)

// Styles
var (
	titleStyle   = cyan.Bold(true)
	spinnerStyle = cyan
	helpStyle    = gray
	itemStyle    = lightGray
	errorStyle   = red
	warnStyle    = yellow
	doneStyle    = green.Bold(true)
)

type progressModel struct {
	tracker tracker
	id      string

	spinner spinner.Model
	bar     progress.Model

	snap       operation.Snapshot
	cancelling bool
	err        error
}

// --- Messages ---
type pollMsg time.Time
type interruptMsg struct{}

func newProgressModel(t tracker, id string) progressModel {
	return progressModel{
		tracker: t,
		id:      id,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll(0))
}

func (m progressModel) poll(after time.Duration) tea.Cmd {
	if after == 0 {
		return func() tea.Msg { return pollMsg(time.Now()) }
	}
	return tea.Tick(after, func(t time.Time) tea.Msg { return pollMsg(t) })
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m.cancel(), nil
		case tea.KeyRunes:
			if msg.String() == "q" {
				return m.cancel(), nil
			}
		}
		return m, nil

	case interruptMsg:
		return m.cancel(), nil

	case pollMsg:
		snap, ok := m.tracker.GetHandle(m.id)
		if !ok {
			m.err = fmt.Errorf("operation %s not found", m.id)
			return m, tea.Quit
		}
		m.snap = snap
		if snap.IsTerminal() {
			return m, tea.Quit
		}
		return m, m.poll(pollInterval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, maxBarWidth)
		return m, nil
	}
	return m, nil
}

// cancel asks the engine to stop; the view keeps polling until the operation settles.
func (m progressModel) cancel() progressModel {
	if !m.cancelling {
		m.tracker.RequestCancel(m.id)
		m.cancelling = true
	}
	return m
}

func (m progressModel) View() string {
	var b strings.Builder
	snap := m.snap

	title := snap.Description
	if title == "" {
		title = "Starting..."
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	if snap.IsTerminal() {
		b.WriteString(doneStyle.Render(string(snap.State)))
	} else {
		b.WriteString(m.spinner.View() + " " + string(snap.State))
	}
	b.WriteString("  " + countLabel(snap))
	if bytes := bytesLabel(snap); bytes != "" {
		b.WriteString("  " + bytes)
	}
	b.WriteString("\n")

	if snap.TotalKnown {
		b.WriteString(m.bar.ViewAs(snap.Progress()) + "\n")
	}
	if snap.CurrentItem != "" && !snap.IsTerminal() {
		b.WriteString(itemStyle.Render(snap.CurrentItem) + "\n")
	}

	if n := len(snap.Errors); n > 0 {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("%s error(s)", humanize.Comma(int64(n)))) + "\n")
		start := max(0, n-maxShownErrors)
		for _, e := range snap.Errors[start:] {
			b.WriteString(errorStyle.Render("  "+string(e.Kind)) + " " + e.Item + "\n")
		}
	}

	b.WriteString("\n")
	if m.cancelling {
		b.WriteString(warnStyle.Render(txtCancelling) + "\n")
	} else if !snap.IsTerminal() {
		b.WriteString(helpStyle.Render(txtProgressKey) + "\n")
	}
	return b.String()
}

// runProgressTUI renders the progress view until the operation is terminal.
func runProgressTUI(ctx context.Context, t tracker, id string, out io.Writer) (operation.Snapshot, error) {
	p := tea.NewProgram(newProgressModel(t, id), tea.WithOutput(out))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.Send(interruptMsg{})
		case <-stop:
		}
	}()

	final, err := p.Run()
	if err != nil {
		return operation.Snapshot{}, fmt.Errorf("progress view: %w", err)
	}
	m := final.(progressModel)
	return m.snap, m.err
}
