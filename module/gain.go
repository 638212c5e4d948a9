package module

import "github.com/vsariola/patchbay"

type (
	GainState struct {
		Gain float64 `json:"gain"`
	}

	// Gain is a voltage controlled amplifier; patching a signal into its
	// gain input gives amplitude modulation.
	Gain struct {
		base
		state GainState
		amp   patchbay.GainNode
	}

	DestinationState struct {
		Level float64 `json:"level"`
	}

	// Destination routes its input to the engine output through a master
	// level.
	Destination struct {
		base
		state  DestinationState
		master patchbay.GainNode
	}
)

var DefaultGainState = GainState{Gain: 1}

var DefaultDestinationState = DestinationState{Level: 0.8}

func NewGain(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Gain, error) {
	o := collect(opts)
	state, err := merge(DefaultGainState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Gain{state: state}
	m.init(m, cfg, eng, o.log)
	m.amp = eng.NewGain()
	m.own(m.amp)
	m.set(m.amp.Gain(), state.Gain)
	m.inputs = []Port{
		signalPort("in", m.amp),
		controlPort("gain", m.amp.Gain()),
	}
	m.outputs = []Port{signalPort("out", m.amp)}
	return m, nil
}

func (m *Gain) Settings() GainState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Gain) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *Gain) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	m.ramp(m.amp.Gain(), m.state.Gain, next.Gain)
	m.state = next
	return nil
}

func NewDestination(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Destination, error) {
	o := collect(opts)
	state, err := merge(DefaultDestinationState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Destination{state: state}
	m.init(m, cfg, eng, o.log)
	m.master = eng.NewGain()
	m.own(m.master)
	m.set(m.master.Gain(), state.Level)
	m.master.Connect(eng.Destination())
	m.inputs = []Port{signalPort("in", m.master)}
	return m, nil
}

func (m *Destination) Settings() DestinationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Destination) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *Destination) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	m.ramp(m.master.Gain(), m.state.Level, next.Level)
	m.state = next
	return nil
}
