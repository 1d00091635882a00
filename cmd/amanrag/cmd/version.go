package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var jsonOutput, shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch {
			case shortOutput:
				_, err := fmt.Fprintln(out, version.Short())
				return err
			case jsonOutput:
				return writeJSON(out, version.GetInfo())
			default:
				_, err := fmt.Fprintln(out, version.String())
				return err
			}
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")
	return cmd
}
