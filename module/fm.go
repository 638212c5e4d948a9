package module

import (
	"errors"

	"github.com/vsariola/patchbay"
)

type (
	FMState struct {
		CarrierType     patchbay.Waveform `json:"carrierType"`
		CarrierFreq     float64           `json:"carrierFreq"`
		CarrierDetune   float64           `json:"carrierDetune"`
		ModulatorType   patchbay.Waveform `json:"modulatorType"`
		ModulatorFreq   float64           `json:"modulatorFreq"`
		ModulatorDetune float64           `json:"modulatorDetune"`
		Index           float64           `json:"index"`
		Feedback        float64           `json:"feedback"`
		Drive           float64           `json:"drive"`
		Level           float64           `json:"level"`
	}

	// FM is a two operator frequency modulation voice. The modulator output,
	// scaled by index (in Hz of deviation), modulates the carrier frequency
	// and, scaled by feedback, its own frequency.
	FM struct {
		base
		state     FMState
		carrier   patchbay.OscillatorNode
		modulator patchbay.OscillatorNode
		index     patchbay.GainNode
		feedback  patchbay.GainNode
		drive     patchbay.GainNode
		level     patchbay.GainNode
	}
)

var DefaultFMState = FMState{
	CarrierType:   patchbay.Sine,
	CarrierFreq:   220,
	ModulatorType: patchbay.Sine,
	ModulatorFreq: 220,
	Drive:         1,
	Level:         0.3,
}

func (s *FMState) validate() error {
	if s.CarrierFreq < 0 || s.ModulatorFreq < 0 {
		return errors.New("frequencies must not be negative")
	}
	if err := validWaveform("carrierType", s.CarrierType); err != nil {
		return err
	}
	return validWaveform("modulatorType", s.ModulatorType)
}

func NewFM(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*FM, error) {
	o := collect(opts)
	state, err := merge(DefaultFMState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &FM{state: state}
	m.init(m, cfg, eng, o.log)
	m.carrier = eng.NewOscillator()
	m.modulator = eng.NewOscillator()
	m.index = eng.NewGain()
	m.feedback = eng.NewGain()
	m.drive = eng.NewGain()
	m.level = eng.NewGain()
	m.own(m.carrier, m.modulator, m.index, m.feedback, m.drive, m.level)
	m.carrier.SetType(state.CarrierType)
	m.set(m.carrier.Frequency(), state.CarrierFreq)
	m.set(m.carrier.Detune(), state.CarrierDetune)
	m.modulator.SetType(state.ModulatorType)
	m.set(m.modulator.Frequency(), state.ModulatorFreq)
	m.set(m.modulator.Detune(), state.ModulatorDetune)
	m.set(m.index.Gain(), state.Index)
	m.set(m.feedback.Gain(), state.Feedback)
	m.set(m.drive.Gain(), state.Drive)
	m.set(m.level.Gain(), state.Level)
	m.modulator.Connect(m.index)
	m.index.ConnectParam(m.carrier.Frequency())
	m.modulator.Connect(m.feedback)
	m.feedback.ConnectParam(m.modulator.Frequency())
	m.carrier.Connect(m.drive)
	m.drive.Connect(m.level)
	m.start(m.carrier)
	m.start(m.modulator)
	m.inputs = []Port{
		controlPort("carrierFreq", m.carrier.Frequency()),
		controlPort("carrierDetune", m.carrier.Detune()),
		controlPort("modulatorFreq", m.modulator.Frequency()),
		controlPort("modulatorDetune", m.modulator.Detune()),
		controlPort("index", m.index.Gain()),
		controlPort("feedback", m.feedback.Gain()),
	}
	m.outputs = []Port{signalPort("out", m.level)}
	return m, nil
}

func (m *FM) Settings() FMState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *FM) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *FM) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	prev := m.state
	if next.CarrierType != prev.CarrierType {
		m.carrier.SetType(next.CarrierType)
	}
	if next.ModulatorType != prev.ModulatorType {
		m.modulator.SetType(next.ModulatorType)
	}
	m.ramp(m.carrier.Frequency(), prev.CarrierFreq, next.CarrierFreq)
	m.ramp(m.carrier.Detune(), prev.CarrierDetune, next.CarrierDetune)
	m.ramp(m.modulator.Frequency(), prev.ModulatorFreq, next.ModulatorFreq)
	m.ramp(m.modulator.Detune(), prev.ModulatorDetune, next.ModulatorDetune)
	m.ramp(m.index.Gain(), prev.Index, next.Index)
	m.ramp(m.feedback.Gain(), prev.Feedback, next.Feedback)
	m.ramp(m.drive.Gain(), prev.Drive, next.Drive)
	m.ramp(m.level.Gain(), prev.Level, next.Level)
	m.state = next
	return nil
}
