package module

import (
	"errors"

	"github.com/vsariola/patchbay"
)

// MaxDelayTime is the longest delay time a Delay module supports, in seconds.
const MaxDelayTime = 5

type (
	DelayState struct {
		Time     float64 `json:"time"`
		Feedback float64 `json:"feedback"`
		Mix      float64 `json:"mix"`
	}

	// Delay is a feedback delay line with a dry/wet mix. The input feeds
	// both the delay line and the dry path.
	Delay struct {
		base
		state    DelayState
		input    patchbay.GainNode
		line     patchbay.DelayNode
		feedback patchbay.GainNode
		wet      patchbay.GainNode
		dry      patchbay.GainNode
		output   patchbay.GainNode
	}
)

var DefaultDelayState = DelayState{Time: 0.5, Feedback: 0.3, Mix: 0.5}

func (s *DelayState) validate() error {
	if s.Time < 0 || s.Time > MaxDelayTime {
		return errors.New("time must be between 0 and 5 seconds")
	}
	if s.Mix < 0 || s.Mix > 1 {
		return errors.New("mix must be between 0 and 1")
	}
	return nil
}

func NewDelay(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Delay, error) {
	o := collect(opts)
	state, err := merge(DefaultDelayState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Delay{state: state}
	m.init(m, cfg, eng, o.log)
	m.input = eng.NewGain()
	m.line = eng.NewDelay(MaxDelayTime)
	m.feedback = eng.NewGain()
	m.wet = eng.NewGain()
	m.dry = eng.NewGain()
	m.output = eng.NewGain()
	m.own(m.input, m.line, m.feedback, m.wet, m.dry, m.output)
	m.set(m.line.DelayTime(), state.Time)
	m.set(m.feedback.Gain(), state.Feedback)
	m.set(m.wet.Gain(), state.Mix)
	m.set(m.dry.Gain(), 1-state.Mix)
	m.input.Connect(m.line)
	m.input.Connect(m.dry)
	m.line.Connect(m.feedback)
	m.feedback.Connect(m.line)
	m.line.Connect(m.wet)
	m.wet.Connect(m.output)
	m.dry.Connect(m.output)
	m.inputs = []Port{
		signalPort("in", m.input),
		controlPort("time", m.line.DelayTime()),
		controlPort("feedback", m.feedback.Gain()),
	}
	m.outputs = []Port{signalPort("out", m.output)}
	return m, nil
}

func (m *Delay) Settings() DelayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Delay) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *Delay) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	m.ramp(m.line.DelayTime(), m.state.Time, next.Time)
	m.ramp(m.feedback.Gain(), m.state.Feedback, next.Feedback)
	m.ramp(m.wet.Gain(), m.state.Mix, next.Mix)
	m.ramp(m.dry.Gain(), 1-m.state.Mix, 1-next.Mix)
	m.state = next
	return nil
}
