package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/preset"
)

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <preset>...",
		Short: "Check presets without playing them",
		Long: `Check presets against the preset schema, then build them on a scratch
engine to make sure every module type is known and every connection is
between existing, compatible ports.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd.OutOrStdout())
		},
	}
}

func runValidate(opts *RootOptions, names []string, w io.Writer) error {
	failed := 0
	for _, name := range names {
		if err := validateOne(opts, name); err != nil {
			failed++
			fmt.Fprintf(w, "%s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "%s: ok\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d presets are invalid", failed, len(names))
	}
	return nil
}

func validateOne(opts *RootOptions, name string) error {
	p, err := preset.Open(name, opts.Config.PresetDirs)
	if err != nil {
		return err
	}
	if err := preset.Validate(p); err != nil {
		return err
	}
	ws := opts.scratch()
	defer ws.Clear()
	if err := ws.ImportState(p); err != nil {
		return err
	}
	var errs []error
	for _, c := range p.Connections {
		if _, ok := ws.Connection(c.ID); !ok {
			errs = append(errs, fmt.Errorf("connection %v (%v.%v -> %v.%v) cannot be made: %w", c.ID, c.From, c.FromPort, c.To, c.ToPort, patchbay.ErrMalformedPreset))
		}
	}
	return errors.Join(errs...)
}
