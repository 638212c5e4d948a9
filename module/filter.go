package module

import (
	"errors"
	"fmt"

	"github.com/vsariola/patchbay"
)

type (
	FilterState struct {
		Type   patchbay.FilterType `json:"type"`
		Cutoff float64             `json:"cutoff"`
		Q      float64             `json:"q"`
	}

	Filter struct {
		base
		state  FilterState
		biquad patchbay.BiquadFilterNode
	}
)

var DefaultFilterState = FilterState{Type: patchbay.Lowpass, Cutoff: 1000, Q: 1}

func (s *FilterState) validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("type: unknown filter type %q", s.Type)
	}
	if s.Cutoff < 0 {
		return errors.New("cutoff must not be negative")
	}
	return nil
}

func NewFilter(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Filter, error) {
	o := collect(opts)
	state, err := merge(DefaultFilterState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Filter{state: state}
	m.init(m, cfg, eng, o.log)
	m.biquad = eng.NewBiquadFilter()
	m.own(m.biquad)
	m.biquad.SetType(state.Type)
	m.set(m.biquad.Frequency(), state.Cutoff)
	m.set(m.biquad.Q(), state.Q)
	m.inputs = []Port{
		signalPort("in", m.biquad),
		controlPort("cutoff", m.biquad.Frequency()),
		controlPort("q", m.biquad.Q()),
	}
	m.outputs = []Port{signalPort("out", m.biquad)}
	return m, nil
}

func (m *Filter) Settings() FilterState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Filter) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *Filter) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	if next.Type != m.state.Type {
		m.biquad.SetType(next.Type)
	}
	m.ramp(m.biquad.Frequency(), m.state.Cutoff, next.Cutoff)
	m.ramp(m.biquad.Q(), m.state.Q, next.Q)
	m.state = next
	return nil
}
