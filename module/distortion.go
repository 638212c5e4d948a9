package module

import (
	"errors"
	"math"

	"github.com/viterin/vek/vek32"
	"github.com/vsariola/patchbay"
)

const (
	curveLength    = 44100
	distortionTrim = 0.5 // output gain after the shaper
)

type (
	DistortionState struct {
		Amount float64 `json:"amount"`
	}

	// Distortion is a waveshaper with a soft clipping curve whose hardness
	// is controlled by amount.
	Distortion struct {
		base
		state  DistortionState
		pre    patchbay.GainNode
		shaper patchbay.WaveShaperNode
		post   patchbay.GainNode
	}
)

var DefaultDistortionState = DistortionState{Amount: 0.5}

func (s *DistortionState) validate() error {
	if s.Amount < 0 {
		return errors.New("amount must not be negative")
	}
	return nil
}

// DistortionCurve returns the shaping curve for the given amount, where
// amount 1 corresponds to k = 100 in y = (3+k)*x*20deg / (pi + k*|x|).
func DistortionCurve(amount float64, n int) []float32 {
	k := amount * 100
	x := make([]float32, n)
	for i := range x {
		x[i] = float32(float64(i)*2/float64(n) - 1)
	}
	curve := make([]float32, n)
	vek32.MulNumber_Into(curve, x, float32((3+k)*20*math.Pi/180))
	for i, v := range x {
		curve[i] /= float32(math.Pi + k*math.Abs(float64(v)))
	}
	return curve
}

func NewDistortion(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Distortion, error) {
	o := collect(opts)
	state, err := merge(DefaultDistortionState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Distortion{state: state}
	m.init(m, cfg, eng, o.log)
	m.pre = eng.NewGain()
	m.shaper = eng.NewWaveShaper()
	m.post = eng.NewGain()
	m.own(m.pre, m.shaper, m.post)
	m.shaper.SetCurve(DistortionCurve(state.Amount, curveLength))
	m.shaper.SetOversample(patchbay.Oversample4x)
	m.set(m.post.Gain(), distortionTrim)
	m.pre.Connect(m.shaper)
	m.shaper.Connect(m.post)
	m.inputs = []Port{signalPort("in", m.pre)}
	m.outputs = []Port{signalPort("out", m.post)}
	return m, nil
}

func (m *Distortion) Settings() DistortionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Distortion) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *Distortion) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	if next.Amount != m.state.Amount {
		m.shaper.SetCurve(DistortionCurve(next.Amount, curveLength))
	}
	m.state = next
	return nil
}
