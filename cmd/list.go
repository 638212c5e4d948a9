package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/preset"
	"github.com/vsariola/patchbay/timeline"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func NewPresetsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in presets and the ones in the preset directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresets(rootOpts, cmd.OutOrStdout())
		},
	}
}

func runPresets(opts *RootOptions, w io.Writer) error {
	for _, name := range preset.Builtins() {
		fmt.Fprintf(w, "%s (built-in)\n", name)
	}
	for _, dir := range opts.Config.PresetDirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("could not list presets: %w", err)
		}
		var names []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if e.IsDir() || (ext != ".yml" && ext != ".yaml" && ext != ".json") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s\n", filepath.Join(dir, name))
		}
	}
	return nil
}

func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the module types and their ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(rootOpts, cmd.OutOrStdout())
		},
	}
}

func runTypes(opts *RootOptions, w io.Writer) error {
	reg := opts.registry()
	eng := timeline.New(timeline.WithClock(&timeline.ManualClock{}))
	title := cases.Title(language.English)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tIMPLEMENTATION\tINPUTS\tOUTPUTS")
	for _, t := range reg.Types() {
		info, err := reg.Describe(t, eng)
		if err != nil {
			return err
		}
		impl := "-"
		if info.Impl != t {
			impl = string(info.Impl)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t, impl, ports(info.Inputs, title), ports(info.Outputs, title))
	}
	return tw.Flush()
}

func ports(ps []patchbay.PortInfo, title cases.Caser) string {
	if len(ps) == 0 {
		return "-"
	}
	s := make([]string, len(ps))
	for i, p := range ps {
		s[i] = fmt.Sprintf("%s (%s)", p.Name, title.String(p.Kind.String()))
	}
	return strings.Join(s, ", ")
}
