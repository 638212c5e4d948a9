package cmd

import (
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/spf13/cobra"
	"github.com/vsariola/patchbay/module"
)

type impulseOptions struct {
	output   string
	duration float64
	decay    float64
	seed     int64
	pcm16    bool
}

func NewImpulseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &impulseOptions{}
	cmd := &cobra.Command{
		Use:   "impulse",
		Short: "Render the impulse response of the reverb to a .wav file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImpulse(rootOpts, opts, cmd.OutOrStdout())
		},
	}
	def := module.DefaultReverbState
	cmd.Flags().StringVarP(&opts.output, "output", "o", "impulse.wav", "output `file`")
	cmd.Flags().Float64Var(&opts.duration, "duration", def.Duration, "length of the response in seconds")
	cmd.Flags().Float64Var(&opts.decay, "decay", def.Decay, "exponent of the decay envelope")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "seed of the noise")
	cmd.Flags().BoolVar(&opts.pcm16, "pcm16", false, "write 16-bit integers instead of 32-bit floats")
	return cmd
}

func runImpulse(rootOpts *RootOptions, opts *impulseOptions, w io.Writer) error {
	if opts.duration <= 0 || opts.decay < 0 {
		return fmt.Errorf("duration must be positive and decay non-negative")
	}
	buf := module.ImpulseResponse(rootOpts.Config.SampleRate, opts.duration, opts.decay, rand.New(rand.NewSource(opts.seed)))
	data, err := buf.Wav(opts.pcm16)
	if err != nil {
		return fmt.Errorf("could not encode impulse response: %w", err)
	}
	if err := os.WriteFile(opts.output, data, 0644); err != nil {
		return fmt.Errorf("could not write impulse response: %w", err)
	}
	rootOpts.Log.Info("impulse response written", "file", opts.output, "samples", buf.Length())
	_, err = fmt.Fprintf(w, "%s: %d ch, %.2fs, peak %.3f, rms %.3f\n", opts.output, buf.NumChannels(), buf.Duration(), buf.Peak(), buf.RMS())
	return err
}
