package module

import (
	"fmt"
	"io"

	"github.com/vsariola/patchbay"
)

type (
	SamplerState struct {
		Gain     float64 `json:"gain"`
		RootMidi float64 `json:"rootMidi"`
	}

	// Sampler plays back a loaded buffer, repitched relative to the root
	// note. Each Trigger replaces the voice that was playing.
	Sampler struct {
		base
		state  SamplerState
		output patchbay.GainNode
		buffer *patchbay.AudioBuffer
		name   string
		voice  patchbay.BufferSourceNode
	}
)

var DefaultSamplerState = SamplerState{Gain: 1, RootMidi: 60}

func NewSampler(cfg patchbay.ModuleConfig, eng patchbay.Engine, opts ...Option) (*Sampler, error) {
	o := collect(opts)
	state, err := merge(DefaultSamplerState, cfg.State)
	if err != nil {
		return nil, err
	}
	m := &Sampler{state: state}
	m.init(m, cfg, eng, o.log)
	m.output = eng.NewGain()
	m.own(m.output)
	m.set(m.output.Gain(), state.Gain)
	m.inputs = []Port{
		controlPort("pitch", m.dummyParam()),
		controlPort("gate", m.dummyParam()),
	}
	m.outputs = []Port{signalPort("out", m.output)}
	m.onDispose = m.Stop
	return m, nil
}

// LoadBuffer sets the sample to be played by subsequent triggers.
func (m *Sampler) LoadBuffer(b *patchbay.AudioBuffer, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = b
	m.name = name
	m.log.Info("sample loaded", "name", name, "seconds", b.Duration(), "channels", b.NumChannels())
}

// LoadWAV decodes a .wav file and loads it as the sample.
func (m *Sampler) LoadWAV(r io.Reader, name string) error {
	b, err := patchbay.ReadWav(r)
	if err != nil {
		return fmt.Errorf("could not load sample %v: %w", name, err)
	}
	m.LoadBuffer(b, name)
	return nil
}

func (m *Sampler) Buffer() (*patchbay.AudioBuffer, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffer, m.name
}

// Trigger starts playing the sample now, at a rate that makes the root note
// sound at the given frequency. Without a loaded buffer it only logs a
// warning.
func (m *Sampler) Trigger(freq float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Disposed() {
		return
	}
	if m.buffer == nil {
		m.log.Warn("sampler triggered", "err", patchbay.ErrNoBuffer)
		return
	}
	m.stopVoiceLocked()
	now := m.eng.CurrentTime()
	v := m.eng.NewBufferSource()
	v.SetBuffer(m.buffer)
	v.PlaybackRate().SetValueAtTime(freq/patchbay.NoteFrequency(m.state.RootMidi), now)
	v.Connect(m.output)
	if err := v.Start(now); err != nil && !patchbay.IsTransient(err) {
		m.log.Warn("could not start voice", "err", err)
	}
	m.voice = v
}

// TriggerNote is Trigger with a MIDI note number.
func (m *Sampler) TriggerNote(midi float64) {
	m.Trigger(patchbay.NoteFrequency(midi))
}

// Stop stops the playing voice, if any.
func (m *Sampler) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopVoiceLocked()
}

func (m *Sampler) stopVoiceLocked() {
	if m.voice == nil {
		return
	}
	// the voice may have already stopped by itself
	_ = m.voice.Stop(m.eng.CurrentTime())
	m.voice.DisconnectAll()
	m.voice = nil
}

func (m *Sampler) Settings() SamplerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Sampler) State() patchbay.Params {
	return mustParams(m.Settings())
}

func (m *Sampler) SetState(partial patchbay.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := merge(m.state, partial)
	if err != nil {
		return err
	}
	m.ramp(m.output.Gain(), m.state.Gain, next.Gain)
	m.state = next
	return nil
}
