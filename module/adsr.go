package module

import (
	"errors"

	"github.com/vsariola/patchbay"
)

type (
	ADSRState struct {
		Attack  float64 `json:"attack"`
		Decay   float64 `json:"decay"`
		Sustain float64 `json:"sustain"`
		Release float64 `json:"release"`
	}

	// ADSR is an envelope generator. Its output is a control signal that
	// rises on Trigger and falls on Release; patch it into a gain input to
	// shape a sound.
	ADSR struct {
		base
		state    ADSRState
		source   patchbay.ConstantSourceNode
		envelope patchbay.GainNode
	}
)

var DefaultADSRState = ADSRState{Attack: 0.01, Decay: 0.1, Sustain: 0.7, Release: 0.3}

func (s *ADSRState) validate() error {
	if s.Attack < 0 || s.Decay < 0 || s.Release < 0 {
		return errors.New("envelope times must not be negative")
	}
	if s.Sustain < 0 || s.Sustain > 1 {
		return errors.New("sustain must be between 0 and 1")
	}
	return nil
}

func NewADSR(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*ADSR, error) {
	o := collect(opts)
	state, err := merge(DefaultADSRState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &ADSR{state: state}
	m.init(m, cfg, eng, o.log)
	m.source = eng.NewConstantSource()
	m.envelope = eng.NewGain()
	m.own(m.source, m.envelope)
	m.set(m.source.Offset(), 1)
	m.set(m.envelope.Gain(), 0)
	m.source.Connect(m.envelope)
	m.start(m.source)
	m.inputs = []Port{controlPort("gate", m.dummyParam())}
	m.outputs = []Port{signalPort("out", m.envelope)}
	return m, nil
}

// Trigger starts the attack stage now, peaking at velocity and decaying to
// velocity * sustain.
func (m *ADSR) Trigger(velocity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Disposed() {
		return
	}
	now := m.eng.CurrentTime()
	g := m.envelope.Gain()
	g.CancelScheduledValues(now)
	g.SetValueAtTime(0, now)
	g.LinearRampToValueAtTime(velocity, now+m.state.Attack)
	g.LinearRampToValueAtTime(velocity*m.state.Sustain, now+m.state.Attack+m.state.Decay)
}

// Release ramps the envelope from its current value to zero.
func (m *ADSR) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Disposed() {
		return
	}
	now := m.eng.CurrentTime()
	g := m.envelope.Gain()
	current := g.Value()
	g.CancelScheduledValues(now)
	g.SetValueAtTime(current, now)
	g.LinearRampToValueAtTime(0, now+m.state.Release)
}

func (m *ADSR) Settings() ADSRState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ADSR) State() patchbay.Params {
	return mustParams(m.Settings())
}

// SetState only stores the envelope times; they take effect on the next
// Trigger or Release.
func (m *ADSR) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	m.state = next
	return nil
}
