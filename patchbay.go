package patchbay

import (
	"fmt"
	"math"
)

type (
	// ModuleType is the tag identifying the kind of a module, e.g.
	// "Oscillator" or "Sequencer". Tags are case sensitive and match the ones
	// used in preset files.
	ModuleType string

	// Params is a partial or complete state record of a module, as it
	// appears in preset files. Each module kind decides which keys it
	// understands; other keys are ignored.
	Params map[string]any

	// ModuleConfig describes a module to be created.
	ModuleConfig struct {
		// ID should be unique within a workspace. Connections refer to
		// modules by ID.
		ID   string     `json:"id" yaml:"id"`
		Type ModuleType `json:"type" yaml:"type"`
		// State is merged on top of the defaults of the module kind. Nil
		// means all defaults.
		State Params `json:"state,omitempty" yaml:"state,omitempty"`
	}

	// Connection is a directed edge from an output port of one module to an
	// input port of another module. At most one connection may terminate at
	// any given (To, ToPort) pair.
	Connection struct {
		ID       string `json:"id" yaml:"id"`
		From     string `json:"fromModuleId" yaml:"fromModuleId"`
		FromPort string `json:"fromPortName" yaml:"fromPortName"`
		To       string `json:"toModuleId" yaml:"toModuleId"`
		ToPort   string `json:"toPortName" yaml:"toPortName"`
	}

	// Preset is a serializable snapshot of a whole workspace: modules in
	// creation order followed by connections in creation order.
	Preset struct {
		Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
		Modules     []ModuleConfig `json:"modules" yaml:"modules"`
		Connections []Connection   `json:"connections" yaml:"connections"`
	}

	// PortKind tells if a port refers to a renderable stream or to an
	// automatable parameter.
	PortKind int

	// PortInfo documents one port of a module kind.
	PortInfo struct {
		Name string
		Kind PortKind
	}
)

const (
	Signal PortKind = iota
	Control
)

const (
	OscillatorModule  ModuleType = "Oscillator"
	FilterModule      ModuleType = "Filter"
	GainModule        ModuleType = "Gain"
	DelayModule       ModuleType = "Delay"
	ReverbModule      ModuleType = "Reverb"
	DistortionModule  ModuleType = "Distortion"
	DestinationModule ModuleType = "Destination"
	LFOModule         ModuleType = "LFO"
	ADSRModule        ModuleType = "ADSR"
	TransportModule   ModuleType = "Transport"
	SequencerModule   ModuleType = "Sequencer"
	SamplerModule     ModuleType = "Sampler"
	FMModule          ModuleType = "FM"

	// Placeholder tags, implemented by one of the kinds above until they get
	// an implementation of their own.
	MixerModule       ModuleType = "Mixer"
	LFOSyncModule     ModuleType = "LFO Sync"
	TB303Module       ModuleType = "TB-303"
	TB303SeqModule    ModuleType = "TB-303 Seq"
	DrumStationModule ModuleType = "Drum Station"
	LooperModule      ModuleType = "Looper"
	SidechainModule   ModuleType = "Sidechain"
	EQ8Module         ModuleType = "EQ8"
)

func (k PortKind) String() string {
	switch k {
	case Signal:
		return "signal"
	case Control:
		return "control"
	}
	return fmt.Sprintf("PortKind(%d)", int(k))
}

// CanFeed reports whether an output port of kind k may be connected to an
// input port of kind in. Signals can feed both signals and controls
// (modulation); a control can never feed a signal input.
func (k PortKind) CanFeed(in PortKind) bool {
	return k == Signal || in == Control
}

// NoteFrequency returns the equal-tempered frequency of a MIDI note number,
// with A4 (69) at 440 Hz.
func NoteFrequency(midi float64) float64 {
	return 440 * math.Pow(2, (midi-69)/12)
}

// Copy makes a deep copy of a Preset.
func (p Preset) Copy() Preset {
	modules := make([]ModuleConfig, len(p.Modules))
	for i, m := range p.Modules {
		modules[i] = m.Copy()
	}
	connections := make([]Connection, len(p.Connections))
	copy(connections, p.Connections)
	return Preset{Name: p.Name, Modules: modules, Connections: connections}
}

// Copy makes a deep copy of a ModuleConfig.
func (m ModuleConfig) Copy() ModuleConfig {
	return ModuleConfig{ID: m.ID, Type: m.Type, State: m.State.Copy()}
}

// Copy makes a deep copy of the params. Nested slices and maps, as used by
// sequencer steps, are copied too.
func (p Params) Copy() Params {
	if p == nil {
		return nil
	}
	ret := make(Params, len(p))
	for k, v := range p {
		ret[k] = copyValue(v)
	}
	return ret
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Params(x).Copy()
	case Params:
		return x.Copy()
	case []any:
		ret := make([]any, len(x))
		for i, e := range x {
			ret[i] = copyValue(e)
		}
		return ret
	}
	return v
}

// Validate checks that the preset is structurally sound: ids are present and
// unique, and every connection has all of its endpoints named. It does not
// check that the module types are known or the ports exist.
func (p *Preset) Validate() error {
	ids := map[string]bool{}
	for i, m := range p.Modules {
		if m.ID == "" {
			return fmt.Errorf("%w: module %d has no id", ErrMalformedPreset, i)
		}
		if m.Type == "" {
			return fmt.Errorf("%w: module %v has no type", ErrMalformedPreset, m.ID)
		}
		if ids[m.ID] {
			return fmt.Errorf("%w: %v", ErrDuplicateModule, m.ID)
		}
		ids[m.ID] = true
	}
	connIDs := map[string]bool{}
	for i, c := range p.Connections {
		if c.ID == "" || c.From == "" || c.FromPort == "" || c.To == "" || c.ToPort == "" {
			return fmt.Errorf("%w: connection %d is missing an endpoint or id", ErrMalformedPreset, i)
		}
		if connIDs[c.ID] {
			return fmt.Errorf("%w: duplicate connection id %v", ErrMalformedPreset, c.ID)
		}
		connIDs[c.ID] = true
	}
	return nil
}
