// Package timeline implements patchbay.Engine entirely in memory. It renders
// no audio; instead it keeps track of the node graph and of the automation
// events scheduled on every parameter, and can evaluate a parameter's value
// at any point in time. It is used as a dry-run engine by the command line
// tool and as the engine in tests.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vsariola/patchbay"
)

type (
	// Clock is the time source of an Engine, in seconds.
	Clock interface {
		Now() float64
	}

	// ManualClock only advances when told to. The zero value is ready to use
	// and starts at time 0.
	ManualClock struct {
		mu  sync.Mutex
		now float64
	}

	wallClock struct {
		start time.Time
	}

	Engine struct {
		mu         sync.Mutex
		clock      Clock
		sampleRate float64
		suspended  bool
		frozenAt   float64 // engine time when suspended
		offset     float64 // clock time spent suspended
		nodes      []*Node
		dest       *Node
	}

	Option func(*Engine)

	// Edge is a link from a node to a node or a parameter, described by the
	// labels of its endpoints.
	Edge struct {
		From string
		To   string
	}
)

var _ patchbay.Engine = (*Engine)(nil)

// WallClock returns a clock that follows real time, starting from zero.
func WallClock() Clock {
	return &wallClock{start: time.Now()}
}

func (c *wallClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

func (c *ManualClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t float64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(dt float64) {
	c.mu.Lock()
	c.now += dt
	c.mu.Unlock()
}

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithSampleRate(rate float64) Option {
	return func(e *Engine) { e.sampleRate = rate }
}

// New returns a running engine. Without options it uses a wall clock and a
// sample rate of 44100 Hz.
func New(opts ...Option) *Engine {
	e := &Engine{sampleRate: 44100}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = WallClock()
	}
	e.dest = e.newNode("destination")
	return e
}

func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now()
}

func (e *Engine) now() float64 {
	if e.suspended {
		return e.frozenAt
	}
	return e.clock.Now() - e.offset
}

func (e *Engine) SampleRate() float64 {
	return e.sampleRate
}

func (e *Engine) Destination() patchbay.Node {
	return e.dest
}

// Resume restarts the engine clock. Resuming a running engine is a no-op.
func (e *Engine) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("could not resume engine: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.suspended {
		return nil
	}
	e.offset = e.clock.Now() - e.frozenAt
	e.suspended = false
	return nil
}

// Suspend freezes the engine clock. Suspending a suspended engine is a
// no-op.
func (e *Engine) Suspend(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("could not suspend engine: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.suspended {
		return nil
	}
	e.frozenAt = e.now()
	e.suspended = true
	return nil
}

func (e *Engine) Suspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspended
}

func (e *Engine) NewOscillator() patchbay.OscillatorNode {
	n := e.newNode("oscillator", "frequency", "detune")
	n.params["frequency"].initial = 440
	n.waveform = patchbay.Sine
	return &Oscillator{n}
}

func (e *Engine) NewGain() patchbay.GainNode {
	n := e.newNode("gain", "gain")
	n.params["gain"].initial = 1
	return &Gain{n}
}

func (e *Engine) NewBiquadFilter() patchbay.BiquadFilterNode {
	n := e.newNode("biquad", "frequency", "Q")
	n.params["frequency"].initial = 350
	n.params["Q"].initial = 1
	n.filterType = patchbay.Lowpass
	return &Filter{n}
}

func (e *Engine) NewDelay(maxTime float64) patchbay.DelayNode {
	n := e.newNode("delay", "delayTime")
	n.maxDelay = maxTime
	return &Delay{n}
}

func (e *Engine) NewConvolver() patchbay.ConvolverNode {
	return &Convolver{e.newNode("convolver")}
}

func (e *Engine) NewWaveShaper() patchbay.WaveShaperNode {
	n := e.newNode("waveshaper")
	n.oversample = patchbay.OversampleNone
	return &WaveShaper{n}
}

func (e *Engine) NewBufferSource() patchbay.BufferSourceNode {
	n := e.newNode("buffersource", "playbackRate")
	n.params["playbackRate"].initial = 1
	return &BufferSource{n}
}

func (e *Engine) NewConstantSource() patchbay.ConstantSourceNode {
	n := e.newNode("constantsource", "offset")
	n.params["offset"].initial = 1
	return &ConstantSource{n}
}

func (e *Engine) NewBuffer(channels, length int) *patchbay.AudioBuffer {
	return patchbay.NewAudioBuffer(channels, length, e.sampleRate)
}

func (e *Engine) newNode(kind string, params ...string) *Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := &Node{eng: e, id: len(e.nodes), kind: kind, params: map[string]*Param{}}
	for _, name := range params {
		n.params[name] = &Param{eng: e, owner: n, name: name}
		n.paramNames = append(n.paramNames, name)
	}
	e.nodes = append(e.nodes, n)
	return n
}

// Nodes returns every node ever created by the engine, in creation order.
// The destination node is always first.
func (e *Engine) Nodes() []*Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	ret := make([]*Node, len(e.nodes))
	copy(ret, e.nodes)
	return ret
}

// Edges returns all live links in the engine, sorted by their labels.
func (e *Engine) Edges() []Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ret []Edge
	for _, n := range e.nodes {
		for _, o := range n.outs {
			ret = append(ret, Edge{From: n.label(), To: o.label()})
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].From != ret[j].From {
			return ret[i].From < ret[j].From
		}
		return ret[i].To < ret[j].To
	})
	return ret
}
