package module

import (
	"errors"
	"math"
	"math/rand"

	"github.com/viterin/vek/vek32"
	"github.com/vsariola/patchbay"
)

type (
	ReverbState struct {
		Mix      float64 `json:"mix"`
		Duration float64 `json:"duration"`
		Decay    float64 `json:"decay"`
	}

	// Reverb convolves its input with a generated impulse response of
	// exponentially decaying noise.
	Reverb struct {
		base
		state     ReverbState
		rand      *rand.Rand
		input     patchbay.GainNode
		convolver patchbay.ConvolverNode
		wet       patchbay.GainNode
		dry       patchbay.GainNode
		output    patchbay.GainNode
	}
)

var DefaultReverbState = ReverbState{Mix: 0.3, Duration: 2, Decay: 2}

func (s *ReverbState) validate() error {
	if s.Duration <= 0 || s.Duration > 10 {
		return errors.New("duration must be in (0, 10] seconds")
	}
	if s.Decay < 0 {
		return errors.New("decay must not be negative")
	}
	if s.Mix < 0 || s.Mix > 1 {
		return errors.New("mix must be between 0 and 1")
	}
	return nil
}

// ImpulseResponse generates a stereo impulse response of white noise shaped
// by the envelope (1 - t/duration)^decay.
func ImpulseResponse(sampleRate, duration, decay float64, rnd *rand.Rand) *patchbay.AudioBuffer {
	length := int(sampleRate * duration)
	buf := patchbay.NewAudioBuffer(2, length, sampleRate)
	env := make([]float32, length)
	for i := range env {
		env[i] = float32(math.Pow(float64(length-i)/float64(length), decay))
	}
	for _, ch := range buf.Channels {
		for i := range ch {
			ch[i] = float32(rnd.Float64()*2 - 1)
		}
		vek32.Mul_Inplace(ch, env)
	}
	return buf
}

func NewReverb(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Reverb, error) {
	o := collect(opts)
	state, err := merge(DefaultReverbState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Reverb{state: state, rand: o.rand}
	if m.rand == nil {
		m.rand = rand.New(rand.NewSource(rand.Int63()))
	}
	m.init(m, cfg, eng, o.log)
	m.input = eng.NewGain()
	m.convolver = eng.NewConvolver()
	m.wet = eng.NewGain()
	m.dry = eng.NewGain()
	m.output = eng.NewGain()
	m.own(m.input, m.convolver, m.wet, m.dry, m.output)
	m.regenerate()
	m.set(m.wet.Gain(), state.Mix)
	m.set(m.dry.Gain(), 1-state.Mix)
	m.input.Connect(m.convolver)
	m.input.Connect(m.dry)
	m.convolver.Connect(m.wet)
	m.wet.Connect(m.output)
	m.dry.Connect(m.output)
	m.inputs = []Port{signalPort("in", m.input)}
	m.outputs = []Port{signalPort("out", m.output)}
	return m, nil
}

func (m *Reverb) regenerate() {
	m.convolver.SetBuffer(ImpulseResponse(m.eng.SampleRate(), m.state.Duration, m.state.Decay, m.rand))
}

func (m *Reverb) Settings() ReverbState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Reverb) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *Reverb) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	prev := m.state
	m.state = next
	if prev.Duration != next.Duration || prev.Decay != next.Decay {
		m.regenerate()
	}
	m.ramp(m.wet.Gain(), prev.Mix, next.Mix)
	m.ramp(m.dry.Gain(), 1-prev.Mix, 1-next.Mix)
	return nil
}
