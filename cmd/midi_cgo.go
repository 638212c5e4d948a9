//go:build cgo

package cmd

import (
	"github.com/vsariola/patchbay/midiout"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func openMIDIOut(prefix string) (midiout.Sender, func() error, error) {
	return midiout.Open(prefix)
}

func midiPorts() []string {
	return midiout.Ports()
}
