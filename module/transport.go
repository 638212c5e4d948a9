package module

import (
	"errors"

	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/transport"
)

const resetSmoothing = 0.005

type (
	TransportState struct {
		BPM  float64 `json:"bpm"`
		PPQN int     `json:"ppqn"`
	}

	// ClockFollower is a module that consumes ticks. When its "clock" input
	// is patched from the "clock" output of a Transport, it is subscribed to
	// that transport's scheduler and handed the subscription.
	ClockFollower interface {
		Module
		OnTick(ev transport.Event)
		// Follow hands the follower its subscription, replacing any previous
		// one. Unfollow forgets sub if it is still the current one.
		Follow(sub *transport.Subscription)
		Unfollow(sub *transport.Subscription)
	}

	// Transport is the master clock module. Its clock and beat outputs step
	// to the tick and beat numbers at the exact tick times, and its bpm
	// output follows the tempo.
	Transport struct {
		base
		state     TransportState
		sched     *transport.Scheduler
		clock     patchbay.ConstantSourceNode
		bpm       patchbay.ConstantSourceNode
		beat      patchbay.ConstantSourceNode
		ticks     *transport.Subscription
		followers map[string]*transport.Subscription
	}
)

var DefaultTransportState = TransportState{BPM: transport.DefaultBPM, PPQN: transport.DefaultPPQN}

func (s *TransportState) validate() error {
	if s.PPQN <= 0 {
		return errors.New("ppqn must be positive")
	}
	s.BPM = transport.ClampBPM(s.BPM)
	return nil
}

func NewTransport(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Transport, error) {
	o := collect(opts)
	state, err := merge(DefaultTransportState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Transport{state: state, followers: map[string]*transport.Subscription{}}
	m.init(m, cfg, eng, o.log)
	schedOpts := append([]transport.Option{
		transport.WithLogger(m.log),
		transport.WithBPM(state.BPM),
		transport.WithPPQN(state.PPQN),
	}, o.transport...)
	m.sched = transport.New(eng, schedOpts...)
	m.clock = eng.NewConstantSource()
	m.bpm = eng.NewConstantSource()
	m.beat = eng.NewConstantSource()
	m.own(m.clock, m.bpm, m.beat)
	m.set(m.clock.Offset(), 0)
	m.set(m.bpm.Offset(), state.BPM)
	m.set(m.beat.Offset(), 0)
	m.start(m.clock)
	m.start(m.bpm)
	m.start(m.beat)
	m.outputs = []Port{
		signalPort("clock", m.clock),
		signalPort("bpm", m.bpm),
		signalPort("beat", m.beat),
	}
	m.ticks = m.sched.Subscribe(cfg.ID, m.onTick)
	m.onLink = m.link
	m.onUnlink = m.unlink
	m.onDispose = func() {
		m.sched.Stop()
		m.ticks.Cancel()
	}
	return m, nil
}

// Scheduler returns the look-ahead scheduler driving this transport. Run its
// Run loop to make the transport tick.
func (m *Transport) Scheduler() *transport.Scheduler {
	return m.sched
}

func (m *Transport) onTick(ev transport.Event) {
	if ev.Reset {
		m.clock.Offset().SetTargetAtTime(0, ev.Time, resetSmoothing)
		m.beat.Offset().SetTargetAtTime(0, ev.Time, resetSmoothing)
		return
	}
	m.clock.Offset().SetValueAtTime(float64(ev.Tick), ev.Time)
	m.beat.Offset().SetValueAtTime(float64(ev.Beat), ev.Time)
}

func (m *Transport) Start() {
	if m.Disposed() {
		return
	}
	m.sched.Start()
	m.log.Info("transport started", "bpm", m.sched.BPM())
}

// Stop stops the scheduler and lets the clock outputs glide to zero.
func (m *Transport) Stop() {
	if m.Disposed() {
		return
	}
	m.sched.Stop()
	now := m.eng.CurrentTime()
	patchbay.Ramp(m.clock.Offset(), 0, now)
	patchbay.Ramp(m.beat.Offset(), 0, now)
	m.log.Info("transport stopped", "tick", m.sched.Tick())
}

func (m *Transport) Reset() {
	if m.Disposed() {
		return
	}
	m.sched.Reset()
}

func (m *Transport) Running() bool {
	return m.sched.Running()
}

// SetBPM sets the tempo, clamped to the supported range, and returns the
// tempo that was applied.
func (m *Transport) SetBPM(bpm float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state
	next.BPM = bpm
	next.validate()
	m.apply(next)
	return m.state.BPM
}

func (m *Transport) apply(next TransportState) {
	if next.BPM != m.state.BPM {
		m.sched.SetBPM(next.BPM)
		m.ramp(m.bpm.Offset(), m.state.BPM, next.BPM)
	}
	if next.PPQN != m.state.PPQN {
		m.sched.SetPPQN(next.PPQN)
	}
	m.state = next
}

func (m *Transport) Settings() TransportState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Transport) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *Transport) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	m.apply(next)
	return nil
}

func (m *Transport) link(out string, target Module, in string) {
	f, ok := target.(ClockFollower)
	if out != "clock" || in != "clock" || !ok {
		return
	}
	sub := m.sched.Subscribe(target.ID(), f.OnTick)
	m.mu.Lock()
	m.followers[target.ID()] = sub
	m.mu.Unlock()
	f.Follow(sub)
	m.log.Debug("clock follower attached", "follower", target.ID())
}

func (m *Transport) unlink(out string, target Module, in string) {
	f, ok := target.(ClockFollower)
	if out != "clock" || in != "clock" || !ok {
		return
	}
	m.mu.Lock()
	sub := m.followers[target.ID()]
	delete(m.followers, target.ID())
	m.mu.Unlock()
	if sub == nil {
		return
	}
	sub.Cancel()
	f.Unfollow(sub)
	m.log.Debug("clock follower detached", "follower", target.ID())
}
