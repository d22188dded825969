package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newVersionsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List available versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := g.openSession(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()

			vs, err := s.Versions(cmd.Context())
			if err != nil {
				return withCode(ExitGeneralError, err)
			}
			if len(vs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no versions available")
				return nil
			}

			rows := make([][]string, 0, len(vs))
			for _, v := range vs {
				installed := ""
				if s.IsInstalled(v.ID) {
					installed = "installed"
				}
				rows = append(rows, []string{v.ID, v.Kind.String(), installed})
			}
			t := table.New().Border(lipgloss.HiddenBorder()).Rows(rows...)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
}
