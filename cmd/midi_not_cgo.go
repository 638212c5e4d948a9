//go:build !cgo

package cmd

import (
	"errors"

	"github.com/vsariola/patchbay/midiout"
)

func openMIDIOut(prefix string) (midiout.Sender, func() error, error) {
	// with no cgo, there is no MIDI driver to open ports with
	return nil, nil, errors.New("MIDI output is not available in builds without cgo")
}

func midiPorts() []string {
	return nil
}
