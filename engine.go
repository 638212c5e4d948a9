package patchbay

import "context"

type (
	// Engine is the real-time audio rendering engine the modules are built
	// on. It is treated as a black box: it provides primitive node kinds,
	// sample-accurate parameter automation and a monotonic clock, and it
	// renders whatever graph of nodes it has been given. The patch graph in
	// this module never processes audio itself.
	Engine interface {
		// CurrentTime returns the engine clock in seconds. It never decreases.
		CurrentTime() float64
		SampleRate() float64
		// Destination is the final output node of the engine, e.g. the
		// speakers.
		Destination() Node

		NewOscillator() OscillatorNode
		NewGain() GainNode
		NewBiquadFilter() BiquadFilterNode
		NewDelay(maxTime float64) DelayNode
		NewConvolver() ConvolverNode
		NewWaveShaper() WaveShaperNode
		NewBufferSource() BufferSourceNode
		NewConstantSource() ConstantSourceNode
		NewBuffer(channels, length int) *AudioBuffer

		// Resume and Suspend control the rendering lifecycle. Both are
		// idempotent: resuming an already running engine returns nil.
		Resume(ctx context.Context) error
		Suspend(ctx context.Context) error
	}

	// Node is a renderable stream endpoint. Edges can go from a node to
	// another node, or from a node to a parameter (modulation).
	Node interface {
		Connect(dst Node)
		ConnectParam(dst Param)
		// Disconnect and DisconnectParam are tolerant of links that do not
		// exist.
		Disconnect(dst Node)
		DisconnectParam(dst Param)
		DisconnectAll()
	}

	// Param is a continuously automatable scalar, e.g. the frequency of an
	// oscillator. All times are in engine seconds, see Engine.CurrentTime.
	Param interface {
		Value() float64
		SetValueAtTime(value, time float64)
		// SetTargetAtTime approaches target exponentially, starting at
		// startTime, with the given time constant in seconds.
		SetTargetAtTime(target, startTime, timeConstant float64)
		LinearRampToValueAtTime(value, endTime float64)
		CancelScheduledValues(cancelTime float64)
	}

	// ScheduledSource is a self-driving node that needs to be started. Start
	// and Stop return ErrAlreadyStarted / ErrAlreadyStopped when called in the
	// wrong state; those errors are transient and callers usually ignore them.
	ScheduledSource interface {
		Node
		Start(when float64) error
		Stop(when float64) error
	}

	OscillatorNode interface {
		ScheduledSource
		SetType(w Waveform)
		Frequency() Param
		Detune() Param
	}

	GainNode interface {
		Node
		Gain() Param
	}

	BiquadFilterNode interface {
		Node
		SetType(t FilterType)
		Frequency() Param
		Q() Param
	}

	DelayNode interface {
		Node
		DelayTime() Param
	}

	ConvolverNode interface {
		Node
		SetBuffer(b *AudioBuffer)
	}

	WaveShaperNode interface {
		Node
		SetCurve(curve []float32)
		SetOversample(o Oversample)
	}

	BufferSourceNode interface {
		ScheduledSource
		SetBuffer(b *AudioBuffer)
		PlaybackRate() Param
	}

	ConstantSourceNode interface {
		ScheduledSource
		Offset() Param
	}

	Waveform   string
	FilterType string
	Oversample string
)

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Sawtooth Waveform = "sawtooth"
	Triangle Waveform = "triangle"
)

const (
	Lowpass   FilterType = "lowpass"
	Highpass  FilterType = "highpass"
	Bandpass  FilterType = "bandpass"
	Lowshelf  FilterType = "lowshelf"
	Highshelf FilterType = "highshelf"
	Peaking   FilterType = "peaking"
	Notch     FilterType = "notch"
	Allpass   FilterType = "allpass"
)

const (
	OversampleNone Oversample = "none"
	Oversample2x   Oversample = "2x"
	Oversample4x   Oversample = "4x"
)

// SmoothingTime is the time constant, in seconds, used when pushing a new
// value onto a live parameter. Values are never jumped to instantly, to avoid
// clicks.
const SmoothingTime = 0.01

// Waveforms lists the valid oscillator waveforms.
var Waveforms = []Waveform{Sine, Square, Sawtooth, Triangle}

// FilterTypes lists the valid biquad filter types.
var FilterTypes = []FilterType{Lowpass, Highpass, Bandpass, Lowshelf, Highshelf, Peaking, Notch, Allpass}

func (w Waveform) Valid() bool {
	for _, v := range Waveforms {
		if v == w {
			return true
		}
	}
	return false
}

func (f FilterType) Valid() bool {
	for _, v := range FilterTypes {
		if v == f {
			return true
		}
	}
	return false
}

// Ramp pushes value onto a live parameter using the shared smoothing
// convention.
func Ramp(p Param, value, now float64) {
	p.SetTargetAtTime(value, now, SmoothingTime)
}
