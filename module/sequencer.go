package module

import (
	"errors"
	"fmt"

	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/transport"
)

type (
	// Step is one slot of a sequencer pattern. Velocity defaults to 1 when
	// not given.
	Step struct {
		On       bool     `json:"on"`
		Midi     float64  `json:"midi"`
		Velocity *float64 `json:"velocity,omitempty"`
	}

	SequencerState struct {
		// Steps is the pattern length. When a state sets it without a
		// pattern, the default pattern of that length is used.
		Steps   int    `json:"steps"`
		Pattern []Step `json:"pattern"`
		// GateLen is the fraction of a tick the gate stays open.
		GateLen float64 `json:"gateLen"`
	}

	// NoteEvent describes a step that was triggered: the note starts at Time
	// and lasts Duration seconds.
	NoteEvent struct {
		Sequencer string
		Time      float64
		Midi      float64
		Velocity  float64
		Duration  float64
	}

	// Sequencer steps through a pattern, one step per tick, driving its
	// pitch (Hz) and gate outputs. Patch the clock output of a Transport to
	// its clock input to make it run.
	Sequencer struct {
		base
		state     SequencerState
		cursor    int
		pitch     patchbay.ConstantSourceNode
		gate      patchbay.ConstantSourceNode
		sub       *transport.Subscription
		listeners []func(NoteEvent)
	}
)

var _ ClockFollower = (*Sequencer)(nil)

// MaxSteps bounds the length of a pattern.
const MaxSteps = 1024

// DefaultSequencerState returns the default pattern of eight steps.
func DefaultSequencerState() SequencerState {
	return SequencerState{Steps: 8, Pattern: DefaultPattern(8), GateLen: 0.5}
}

// DefaultPattern returns n steps alternating on and off, rising chromatically
// from C3.
func DefaultPattern(n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		v := 1.0
		steps[i] = Step{On: i%2 == 0, Midi: float64(48 + i%12), Velocity: &v}
	}
	return steps
}

func (s Step) velocity() float64 {
	if s.Velocity == nil {
		return 1
	}
	return *s.Velocity
}

func (s *SequencerState) validate() error {
	if s.Steps < 0 || s.Steps > MaxSteps {
		return fmt.Errorf("steps must be in [0, %d], got %d", MaxSteps, s.Steps)
	}
	if len(s.Pattern) == 0 {
		return errors.New("a pattern needs at least one step")
	}
	if len(s.Pattern) > MaxSteps {
		return fmt.Errorf("a pattern has at most %d steps, got %d", MaxSteps, len(s.Pattern))
	}
	if s.GateLen <= 0 || s.GateLen > 1 {
		return fmt.Errorf("gateLen must be in (0, 1], got %v", s.GateLen)
	}
	return nil
}

// resize applies a step count given in partial without a pattern, and keeps
// Steps equal to the pattern length. A zero count keeps the pattern.
func (s SequencerState) resize(partial patchbay.Params) SequencerState {
	if _, ok := partial["pattern"]; !ok && s.Steps > 0 && s.Steps != len(s.Pattern) {
		s.Pattern = DefaultPattern(s.Steps)
	}
	s.Steps = len(s.Pattern)
	return s
}

func NewSequencer(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Sequencer, error) {
	o := collect(opts)
	state, err := merge(DefaultSequencerState(), cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Sequencer{state: state.resize(cfg.State)}
	m.init(m, cfg, eng, o.log)
	m.pitch = eng.NewConstantSource()
	m.gate = eng.NewConstantSource()
	m.own(m.pitch, m.gate)
	m.set(m.pitch.Offset(), 0)
	m.set(m.gate.Offset(), 0)
	m.start(m.pitch)
	m.start(m.gate)
	m.inputs = []Port{
		controlPort("clock", m.dummyParam()),
		controlPort("bpm", m.dummyParam()),
	}
	m.outputs = []Port{
		signalPort("pitch", m.pitch),
		signalPort("gate", m.gate),
	}
	m.onDispose = func() {
		m.mu.Lock()
		sub := m.sub
		m.sub = nil
		m.mu.Unlock()
		sub.Cancel()
	}
	return m, nil
}

// OnTick advances the pattern by one step and schedules the outputs at the
// tick time. A reset event only rewinds the pattern.
func (m *Sequencer) OnTick(ev transport.Event) {
	m.mu.Lock()
	if m.Disposed() {
		m.mu.Unlock()
		return
	}
	if ev.Reset {
		m.cursor = 0
		m.mu.Unlock()
		return
	}
	step := m.state.Pattern[m.cursor]
	var note *NoteEvent
	if step.On {
		vel := step.velocity()
		dur := transport.SecondsPerTick(ev.BPM, ev.PPQN) * m.state.GateLen
		m.pitch.Offset().SetValueAtTime(patchbay.NoteFrequency(step.Midi), ev.Time)
		m.gate.Offset().SetValueAtTime(vel, ev.Time)
		m.gate.Offset().SetValueAtTime(0, ev.Time+dur)
		note = &NoteEvent{Sequencer: m.id, Time: ev.Time, Midi: step.Midi, Velocity: vel, Duration: dur}
	} else {
		m.gate.Offset().SetValueAtTime(0, ev.Time)
	}
	m.cursor = (m.cursor + 1) % len(m.state.Pattern)
	listeners := m.listeners
	m.mu.Unlock()
	if note == nil {
		return
	}
	for _, l := range listeners {
		l(*note)
	}
}

func (m *Sequencer) Follow(sub *transport.Subscription) {
	m.mu.Lock()
	prev := m.sub
	m.sub = sub
	m.mu.Unlock()
	if prev != nil && prev != sub {
		prev.Cancel()
	}
}

func (m *Sequencer) Unfollow(sub *transport.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub == sub {
		m.sub = nil
	}
}

// Following reports if the sequencer is currently clocked by a transport.
func (m *Sequencer) Following() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub != nil
}

// OnNote registers fn to be called for every step that triggers a note.
// Listeners are called on the goroutine delivering the ticks.
func (m *Sequencer) OnNote(fn func(NoteEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners[:len(m.listeners):len(m.listeners)], fn)
}

// Cursor returns the index of the step played on the next tick.
func (m *Sequencer) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// SetStep replaces step i of the pattern.
func (m *Sequencer) SetStep(i int, s Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.state.Pattern) {
		return fmt.Errorf("step %d out of range [0, %d)", i, len(m.state.Pattern))
	}
	steps := make([]Step, len(m.state.Pattern))
	copy(steps, m.state.Pattern)
	steps[i] = s
	m.state.Pattern = steps
	return nil
}

func (m *Sequencer) Settings() SequencerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Sequencer) State() patchbay.Params {
	return mustParams(m.Settings())
}

// SetState takes effect from the next tick. A shorter pattern wraps the
// cursor.
func (m *Sequencer) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	m.state = next.resize(partial)
	m.cursor %= len(m.state.Pattern)
	return nil
}
