package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/preset"
)

func NewDotCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "dot <preset>",
		Short: "Export a preset as a Graphviz graph",
		Long: `Write the preset as a Graphviz digraph. Modulation cables, i.e. the ones
ending at a control input, are drawn dashed. Render with e.g.

  patchbay dot "Vibrato Pad" | dot -Tsvg > patch.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return runDot(rootOpts, args[0], cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("could not create output file: %w", err)
			}
			defer f.Close()
			bw := bufio.NewWriter(f)
			if err := runDot(rootOpts, args[0], bw); err != nil {
				return err
			}
			return bw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to `file` instead of stdout")
	return cmd
}

func runDot(opts *RootOptions, name string, w io.Writer) error {
	p, err := preset.Open(name, opts.Config.PresetDirs)
	if err != nil {
		return err
	}
	ws := opts.scratch()
	defer ws.Clear()
	if err := ws.ImportState(p); err != nil {
		return err
	}
	control := func(c patchbay.Connection) bool {
		m, ok := ws.Module(c.To)
		if !ok {
			return false
		}
		in, ok := m.Input(c.ToPort)
		return ok && in.Kind == patchbay.Control
	}
	return preset.WriteDOT(w, p, control)
}
