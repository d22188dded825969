package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"mcfetch/internal/downloader"
	"mcfetch/internal/progress"
	"mcfetch/internal/session"
	"mcfetch/internal/ui"
)

// failureListLimit caps the failures printed after a run; the log has all of them.
const failureListLimit = 20

func newInstallCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "install <version|latest|latest-snapshot>",
		Short: "Download a version and everything it needs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := g.openSession(cmd, !g.noTUI)
			if err != nil {
				return err
			}
			defer cleanup()

			var out downloader.Outcome
			if g.noTUI {
				out, err = installPlain(cmd.Context(), s, args[0], cmd.ErrOrStderr())
			} else {
				out, err = installInteractive(cmd.Context(), s, args[0])
			}
			return report(cmd.OutOrStdout(), s.Tracker().Snapshot(), out, err)
		},
	}
}

func installPlain(ctx context.Context, s *session.Session, id string, w io.Writer) (downloader.Outcome, error) {
	reporterCtx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ui.NewPlain(s.Tracker(), w).Run(reporterCtx)
	}()

	out, err := s.Install(ctx, id)
	if s.Tracker().State() != progress.StateFinished {
		stop()
	}
	<-done
	return out, err
}

func installInteractive(ctx context.Context, s *session.Session, id string) (downloader.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewModel(id, s.Tracker()))

	type result struct {
		out downloader.Outcome
		err error
	}
	results := make(chan result, 1)
	go func() {
		out, err := s.Install(ctx, id)
		if s.Tracker().State() != progress.StateFinished {
			if err == nil {
				err = context.Canceled
			}
			p.Send(ui.ErrMsg{Err: err})
		}
		results <- result{out, err}
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-results
		return downloader.Outcome{}, withCode(ExitGeneralError, fmt.Errorf("terminal UI: %w", err))
	}
	// the view may have been closed early; stop admitting new files
	cancel()
	r := <-results
	return r.out, r.err
}

// report prints the run summary and maps the result to an exit code.
func report(w io.Writer, snap progress.Snapshot, out downloader.Outcome, err error) error {
	switch {
	case errors.Is(err, session.ErrVersionNotFound):
		return withCode(ExitInvalidArgs, err)
	case errors.Is(err, session.ErrInitialFiles):
		return withCode(ExitInitialFiles, err)
	case err != nil && !errors.Is(err, downloader.ErrAllFailed):
		return withCode(ExitGeneralError, err)
	}

	fmt.Fprintln(w, ui.Summary(snap))
	for i, f := range out.Failures {
		if i == failureListLimit {
			fmt.Fprintf(w, "  ... %d more, see the log\n", len(out.Failures)-i)
			break
		}
		fmt.Fprintf(w, "  %s: %v\n", f.Job, f.Err)
	}
	if out.Failed > 0 {
		return withCode(ExitFileFailures, nil)
	}
	return nil
}
