package module

import (
	"errors"

	"github.com/vsariola/patchbay"
)

type (
	OscillatorState struct {
		Type      patchbay.Waveform `json:"type"`
		Frequency float64           `json:"freq"`
		Level     float64           `json:"level"`
	}

	// Oscillator is a periodic waveform generator followed by a level
	// control.
	Oscillator struct {
		base
		state OscillatorState
		osc   patchbay.OscillatorNode
		level patchbay.GainNode
	}

	LFOState struct {
		Type  patchbay.Waveform `json:"type"`
		Rate  float64           `json:"rate"`
		Depth float64           `json:"depth"`
	}

	// LFO is a low frequency oscillator whose output is scaled by depth,
	// meant to be patched into control inputs.
	LFO struct {
		base
		state LFOState
		osc   patchbay.OscillatorNode
		depth patchbay.GainNode
	}
)

var DefaultOscillatorState = OscillatorState{Type: patchbay.Sawtooth, Frequency: 440, Level: 0.3}

var DefaultLFOState = LFOState{Type: patchbay.Sine, Rate: 2, Depth: 100}

func (s *OscillatorState) validate() error {
	if s.Frequency < 0 {
		return errors.New("freq must not be negative")
	}
	return validWaveform("type", s.Type)
}

func (s *LFOState) validate() error {
	if s.Rate < 0 {
		return errors.New("rate must not be negative")
	}
	return validWaveform("type", s.Type)
}

func NewOscillator(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Oscillator, error) {
	o := collect(opts)
	state, err := merge(DefaultOscillatorState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Oscillator{state: state}
	m.init(m, cfg, eng, o.log)
	m.osc = eng.NewOscillator()
	m.level = eng.NewGain()
	m.own(m.osc, m.level)
	m.osc.SetType(state.Type)
	m.set(m.osc.Frequency(), state.Frequency)
	m.set(m.level.Gain(), state.Level)
	m.osc.Connect(m.level)
	m.start(m.osc)
	m.inputs = []Port{
		controlPort("freq", m.osc.Frequency()),
		controlPort("detune", m.osc.Detune()),
	}
	m.outputs = []Port{signalPort("out", m.level)}
	return m, nil
}

func (m *Oscillator) Settings() OscillatorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Oscillator) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *Oscillator) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	if next.Type != m.state.Type {
		m.osc.SetType(next.Type)
	}
	m.ramp(m.osc.Frequency(), m.state.Frequency, next.Frequency)
	m.ramp(m.level.Gain(), m.state.Level, next.Level)
	m.state = next
	return nil
}

func NewLFO(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*LFO, error) {
	o := collect(opts)
	state, err := merge(DefaultLFOState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &LFO{state: state}
	m.init(m, cfg, eng, o.log)
	m.osc = eng.NewOscillator()
	m.depth = eng.NewGain()
	m.own(m.osc, m.depth)
	m.osc.SetType(state.Type)
	m.set(m.osc.Frequency(), state.Rate)
	m.set(m.depth.Gain(), state.Depth)
	m.osc.Connect(m.depth)
	m.start(m.osc)
	m.inputs = []Port{controlPort("rate", m.osc.Frequency())}
	m.outputs = []Port{signalPort("out", m.depth)}
	return m, nil
}

func (m *LFO) Settings() LFOState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *LFO) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *LFO) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	if next.Type != m.state.Type {
		m.osc.SetType(next.Type)
	}
	m.ramp(m.osc.Frequency(), m.state.Rate, next.Rate)
	m.ramp(m.depth.Gain(), m.state.Depth, next.Depth)
	m.state = next
	return nil
}
