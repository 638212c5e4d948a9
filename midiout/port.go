package midiout

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
)

// Ports lists the names of the MIDI output ports of the registered driver.
func Ports() []string {
	var ret []string
	for _, out := range midi.GetOutPorts() {
		ret = append(ret, out.String())
	}
	return ret
}

// Open opens the first output port whose name starts with prefix. The
// returned func closes the port.
func Open(prefix string) (Sender, func() error, error) {
	for _, out := range midi.GetOutPorts() {
		if !strings.HasPrefix(out.String(), prefix) {
			continue
		}
		send, err := midi.SendTo(out)
		if err != nil {
			return nil, nil, fmt.Errorf("opening MIDI output %v failed: %w", out, err)
		}
		return send, out.Close, nil
	}
	return nil, nil, fmt.Errorf("no MIDI output found with prefix %q", prefix)
}
