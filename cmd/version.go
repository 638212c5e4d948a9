package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vsariola/patchbay/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := version.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "patchbay %s", v)
			if v.Revision != "" && v.Revision != v.String() {
				fmt.Fprintf(out, " (%s)", v.Revision)
			}
			_, err := fmt.Fprintf(out, " %s\n", v.GoVersion)
			return err
		},
	}
}
