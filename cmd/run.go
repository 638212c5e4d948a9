package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/midiout"
	"github.com/vsariola/patchbay/module"
	"github.com/vsariola/patchbay/preset"
	"github.com/vsariola/patchbay/timeline"
	"github.com/vsariola/patchbay/workspace"
)

type runOptions struct {
	duration time.Duration
	bpm      float64
	midiPort string
	quiet    bool
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <preset>",
		Short: "Dry-run a preset and report the automation it schedules",
		Long: `Build the preset on the in-memory timeline engine, start every transport
and let the patch play for the given duration. Notes and clock can be
mirrored to a MIDI output port. Afterwards, the automation scheduled on every
node parameter is reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), rootOpts, opts, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 4*time.Second, "how long to play")
	cmd.Flags().Float64Var(&opts.bpm, "bpm", 0, "override the tempo of every transport")
	cmd.Flags().StringVar(&opts.midiPort, "midi-port", "", "mirror notes and clock to the MIDI output with this name prefix")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the report")
	return cmd
}

func runRun(ctx context.Context, rootOpts *RootOptions, opts *runOptions, name string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := rootOpts.Config
	log := rootOpts.Log
	p, err := preset.Open(name, cfg.PresetDirs)
	if err != nil {
		return err
	}
	eng := timeline.New(timeline.WithSampleRate(cfg.SampleRate))
	ws := workspace.New(eng, workspace.WithRegistry(rootOpts.registry()), workspace.WithLogger(log))
	if err := ws.ImportState(p); err != nil {
		return fmt.Errorf("could not build %q: %w", p.Name, err)
	}
	defer ws.Clear()
	if err := eng.Resume(ctx); err != nil {
		return err
	}

	var transports []*module.Transport
	var sequencers []*module.Sequencer
	for _, m := range ws.Modules() {
		switch m := m.(type) {
		case *module.Transport:
			transports = append(transports, m)
		case *module.Sequencer:
			sequencers = append(sequencers, m)
		}
	}
	bpm := opts.bpm
	if bpm == 0 {
		bpm = cfg.BPM
	}
	if bpm != 0 {
		for _, t := range transports {
			t.SetBPM(bpm)
		}
	}

	var mu sync.Mutex
	notes := 0
	for _, s := range sequencers {
		s.OnNote(func(ev module.NoteEvent) {
			mu.Lock()
			notes++
			mu.Unlock()
			log.Debug("note", "sequencer", ev.Sequencer, "time", ev.Time, "midi", ev.Midi, "velocity", ev.Velocity)
		})
	}

	portName := opts.midiPort
	if portName == "" {
		portName = cfg.MIDIPort
	}
	var out *midiout.Out
	if portName != "" {
		send, closePort, err := openMIDIOut(portName)
		if err != nil {
			return err
		}
		defer closePort()
		out = midiout.New(send, eng, midiout.WithChannel(cfg.MIDIChannel), midiout.WithLogger(log))
		for _, s := range sequencers {
			out.Follow(s)
		}
		for _, t := range transports {
			defer out.Sync(t).Cancel()
		}
		out.Start()
	}

	if len(transports) == 0 {
		log.Warn("preset has no transport, nothing will be sequenced", "preset", p.Name)
	}
	log.Info("playing", "preset", p.Name, "modules", ws.Len(), "connections", len(ws.Connections()), "duration", opts.duration)
	runCtx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()
	var wg sync.WaitGroup
	for _, t := range transports {
		t.Start()
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := t.Scheduler().Run(runCtx, cfg.PollInterval)
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				log.Error("transport stopped", "transport", t.ID(), "err", err)
			}
		}()
	}
	wg.Wait()
	<-runCtx.Done()
	for _, t := range transports {
		t.Stop()
	}
	if out != nil {
		out.Stop()
	}
	if err := eng.Suspend(ctx); err != nil {
		return err
	}
	if err := ws.Check(); err != nil {
		return fmt.Errorf("workspace is inconsistent: %w", err)
	}
	if opts.quiet {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	return writeReport(w, p, eng, notes)
}

func writeReport(w io.Writer, p patchbay.Preset, eng *timeline.Engine, notes int) error {
	now := eng.CurrentTime()
	fmt.Fprintf(w, "%s: %d modules, %d connections, %d notes in %.2fs\n", p.Name, len(p.Modules), len(p.Connections), notes, now)
	for _, e := range eng.Edges() {
		fmt.Fprintf(w, "  %s -> %s\n", e.From, e.To)
	}
	for _, n := range eng.Nodes() {
		for _, name := range n.ParamNames() {
			param := n.Param(name)
			if ev := param.Events(); len(ev) > 0 {
				fmt.Fprintf(w, "  %s.%s: %d events, now %.4g\n", n, name, len(ev), param.ValueAt(now))
			}
		}
		if b := n.Buffer(); b != nil {
			fmt.Fprintf(w, "  %s buffer: %d ch, %.2fs, peak %.3f, rms %.3f\n", n, b.NumChannels(), b.Duration(), b.Peak(), b.RMS())
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
