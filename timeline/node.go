package timeline

import (
	"fmt"

	"github.com/vsariola/patchbay"
)

type (
	// Node is the in-memory representation of every engine node kind. The
	// kind specific wrappers below only add the methods whose signatures
	// differ between kinds.
	Node struct {
		eng        *Engine
		id         int
		kind       string
		params     map[string]*Param
		paramNames []string
		outs       []target

		started, stopped bool
		startTime        float64
		stopTime         float64

		waveform   patchbay.Waveform
		filterType patchbay.FilterType
		maxDelay   float64
		buffer     *patchbay.AudioBuffer
		bufferSets int
		curve      []float32
		curveSets  int
		oversample patchbay.Oversample
	}

	// target is the destination of an edge: either a node or a parameter.
	target struct {
		node  *Node
		param *Param
	}

	Oscillator     struct{ *Node }
	Gain           struct{ *Node }
	Filter         struct{ *Node }
	Delay          struct{ *Node }
	Convolver      struct{ *Node }
	WaveShaper     struct{ *Node }
	BufferSource   struct{ *Node }
	ConstantSource struct{ *Node }
)

var (
	_ patchbay.OscillatorNode     = (*Oscillator)(nil)
	_ patchbay.GainNode           = (*Gain)(nil)
	_ patchbay.BiquadFilterNode   = (*Filter)(nil)
	_ patchbay.DelayNode          = (*Delay)(nil)
	_ patchbay.ConvolverNode      = (*Convolver)(nil)
	_ patchbay.WaveShaperNode     = (*WaveShaper)(nil)
	_ patchbay.BufferSourceNode   = (*BufferSource)(nil)
	_ patchbay.ConstantSourceNode = (*ConstantSource)(nil)
)

func (t target) label() string {
	if t.param != nil {
		return t.param.owner.label() + "." + t.param.name
	}
	return t.node.label()
}

func (n *Node) base() *Node { return n }

func (n *Node) label() string {
	return fmt.Sprintf("%s#%d", n.kind, n.id)
}

// String returns a label unique within the engine, e.g. "gain#3".
func (n *Node) String() string { return n.label() }

func (n *Node) Kind() string { return n.kind }

// Unwrap returns the underlying *Node of any node created by this package,
// or nil if the node came from elsewhere.
func Unwrap(n patchbay.Node) *Node {
	if b, ok := n.(interface{ base() *Node }); ok {
		return b.base()
	}
	return nil
}

func (n *Node) Connect(dst patchbay.Node) {
	d := Unwrap(dst)
	if d == nil {
		return
	}
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	n.addTarget(target{node: d})
}

func (n *Node) ConnectParam(dst patchbay.Param) {
	p, ok := dst.(*Param)
	if !ok {
		return
	}
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	n.addTarget(target{param: p})
}

func (n *Node) addTarget(t target) {
	for _, o := range n.outs {
		if o == t {
			return // connecting twice is a no-op
		}
	}
	n.outs = append(n.outs, t)
}

func (n *Node) Disconnect(dst patchbay.Node) {
	d := Unwrap(dst)
	if d == nil {
		return
	}
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	n.removeTarget(target{node: d})
}

func (n *Node) DisconnectParam(dst patchbay.Param) {
	p, ok := dst.(*Param)
	if !ok {
		return
	}
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	n.removeTarget(target{param: p})
}

func (n *Node) removeTarget(t target) {
	for i, o := range n.outs {
		if o == t {
			n.outs = append(n.outs[:i], n.outs[i+1:]...)
			return
		}
	}
}

func (n *Node) DisconnectAll() {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	n.outs = nil
}

// Linked reports if there is an edge from n to dst.
func (n *Node) Linked(dst patchbay.Node) bool {
	d := Unwrap(dst)
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	for _, o := range n.outs {
		if o.node != nil && o.node == d {
			return true
		}
	}
	return false
}

// LinkedParam reports if there is an edge from n to the parameter p.
func (n *Node) LinkedParam(p patchbay.Param) bool {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	for _, o := range n.outs {
		if o.param != nil && o.param == p {
			return true
		}
	}
	return false
}

// NumOutputs returns the number of live edges leaving n.
func (n *Node) NumOutputs() int {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return len(n.outs)
}

// Param returns the named parameter of the node, or nil.
func (n *Node) Param(name string) *Param {
	return n.params[name]
}

// ParamNames returns the parameter names of the node in declaration order.
func (n *Node) ParamNames() []string {
	return n.paramNames
}

func (n *Node) Start(when float64) error {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	if n.started {
		return patchbay.ErrAlreadyStarted
	}
	n.started = true
	n.startTime = when
	return nil
}

func (n *Node) Stop(when float64) error {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	if !n.started || n.stopped {
		return patchbay.ErrAlreadyStopped
	}
	n.stopped = true
	n.stopTime = when
	return nil
}

// Running reports if a source node has been started and not stopped.
func (n *Node) Running() bool {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return n.started && !n.stopped
}

// StartTime returns when a source node was scheduled to start.
func (n *Node) StartTime() float64 {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return n.startTime
}

func (n *Node) SetBuffer(b *patchbay.AudioBuffer) {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	n.buffer = b
	n.bufferSets++
}

func (n *Node) Buffer() *patchbay.AudioBuffer {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return n.buffer
}

// BufferSets counts how many times a buffer has been assigned to the node.
func (n *Node) BufferSets() int {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return n.bufferSets
}

func (n *Node) Curve() []float32 {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return n.curve
}

// CurveSets counts how many times a shaping curve has been assigned.
func (n *Node) CurveSets() int {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return n.curveSets
}

func (n *Node) Oversample() patchbay.Oversample {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return n.oversample
}

func (n *Node) Waveform() patchbay.Waveform {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return n.waveform
}

func (n *Node) FilterType() patchbay.FilterType {
	n.eng.mu.Lock()
	defer n.eng.mu.Unlock()
	return n.filterType
}

func (n *Node) MaxDelay() float64 { return n.maxDelay }

func (o *Oscillator) SetType(w patchbay.Waveform) {
	o.eng.mu.Lock()
	o.waveform = w
	o.eng.mu.Unlock()
}

func (o *Oscillator) Frequency() patchbay.Param { return o.params["frequency"] }
func (o *Oscillator) Detune() patchbay.Param    { return o.params["detune"] }

func (g *Gain) Gain() patchbay.Param { return g.params["gain"] }

func (f *Filter) SetType(t patchbay.FilterType) {
	f.eng.mu.Lock()
	f.filterType = t
	f.eng.mu.Unlock()
}

func (f *Filter) Frequency() patchbay.Param { return f.params["frequency"] }
func (f *Filter) Q() patchbay.Param         { return f.params["Q"] }

func (d *Delay) DelayTime() patchbay.Param { return d.params["delayTime"] }

func (w *WaveShaper) SetCurve(curve []float32) {
	w.eng.mu.Lock()
	defer w.eng.mu.Unlock()
	w.curve = curve
	w.curveSets++
}

func (w *WaveShaper) SetOversample(o patchbay.Oversample) {
	w.eng.mu.Lock()
	w.oversample = o
	w.eng.mu.Unlock()
}

func (b *BufferSource) PlaybackRate() patchbay.Param { return b.params["playbackRate"] }

func (c *ConstantSource) Offset() patchbay.Param { return c.params["offset"] }
