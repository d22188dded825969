package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mcfetch/internal/session"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <version>",
		Short: "Check an installed version against its checksums without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := g.openSession(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()

			pending, err := s.Verify(cmd.Context(), args[0])
			if errors.Is(err, session.ErrNotInstalled) {
				return withCode(ExitInvalidArgs, err)
			}
			if err != nil {
				return withCode(ExitGeneralError, err)
			}

			w := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintf(w, "%s: all files verified\n", args[0])
				return nil
			}
			for _, j := range pending {
				fmt.Fprintln(w, j.Path)
			}
			fmt.Fprintf(w, "%s: %d files missing or corrupt, run install to repair\n", args[0], len(pending))
			return withCode(ExitFileFailures, nil)
		},
	}
}
