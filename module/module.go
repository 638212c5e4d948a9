// Package module implements the processing modules of a patch. Every module
// wraps one or more engine nodes behind named input and output ports and
// keeps a typed state record that can be merged from, and flattened to,
// patchbay.Params.
package module

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vsariola/patchbay"
)

type (
	// Module is a live processing unit in a workspace.
	Module interface {
		ID() string
		// Type is the tag the module was created with. For placeholder tags
		// this differs from the tag of the implementation.
		Type() patchbay.ModuleType
		Input(name string) (Port, bool)
		Output(name string) (Port, bool)
		Inputs() []Port
		Outputs() []Port

		// State returns a complete snapshot of the state record.
		State() patchbay.Params
		// SetState merges a partial update on top of the current state and
		// pushes the changed fields to the engine. Unknown keys are ignored.
		// A value of the wrong type fails with patchbay.ErrInvalidState and
		// leaves the state unchanged.
		SetState(partial patchbay.Params) error

		// Connect links output port out of this module to input port in of
		// target.
		Connect(out string, target Module, in string) error
		// Disconnect removes the link from out to (target, in). If target is
		// nil, every link leaving out is removed. Missing links are ignored.
		Disconnect(out string, target Module, in string)

		// Dispose severs every engine link of the module and stops its
		// sources. Calling it again does nothing.
		Dispose()
		Disposed() bool
	}

	// Port is a named attachment point. Signal ports refer to a Node,
	// control ports to a Param.
	Port struct {
		Name  string
		Kind  patchbay.PortKind
		Node  patchbay.Node
		Param patchbay.Param
	}

	link struct {
		target Module
		in     string
	}

	// base implements the port bookkeeping, linking and disposal shared by
	// all module kinds.
	base struct {
		self Module // the concrete module embedding this base
		id   string
		typ  patchbay.ModuleType
		eng  patchbay.Engine
		log  *slog.Logger

		mu       sync.Mutex
		inputs   []Port
		outputs  []Port
		links    map[string][]link
		nodes    []patchbay.Node
		sources  []patchbay.ScheduledSource
		disposed atomic.Bool

		// optional hooks, called without mu held
		onLink    func(out string, target Module, in string)
		onUnlink  func(out string, target Module, in string)
		onDispose func()
	}
)

func (b *base) init(self Module, cfg patchbay.ModuleConfig, eng patchbay.Engine, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	b.self = self
	b.id = cfg.ID
	b.typ = cfg.Type
	b.eng = eng
	b.log = log.With("module", cfg.ID, "type", cfg.Type)
	b.links = map[string][]link{}
}

func signalPort(name string, n patchbay.Node) Port {
	return Port{Name: name, Kind: patchbay.Signal, Node: n}
}

func controlPort(name string, p patchbay.Param) Port {
	return Port{Name: name, Kind: patchbay.Control, Param: p}
}

// own registers nodes to be disconnected on dispose. Scheduled sources are
// also stopped.
func (b *base) own(nodes ...patchbay.Node) {
	for _, n := range nodes {
		b.nodes = append(b.nodes, n)
		if s, ok := n.(patchbay.ScheduledSource); ok {
			b.sources = append(b.sources, s)
		}
	}
}

// start starts a source now. An already started source is not an error.
func (b *base) start(s patchbay.ScheduledSource) {
	if err := s.Start(b.eng.CurrentTime()); err != nil && !patchbay.IsTransient(err) {
		b.log.Warn("could not start source", "err", err)
	}
}

// dummyParam returns a parameter that nothing listens to. It gives inputs
// that are driven by other means, like the clock input of a sequencer, a
// place to connect cables to.
func (b *base) dummyParam() patchbay.Param {
	g := b.eng.NewGain()
	b.own(g)
	return g.Gain()
}

func (b *base) ID() string                { return b.id }
func (b *base) Type() patchbay.ModuleType { return b.typ }
func (b *base) Inputs() []Port            { return b.inputs }
func (b *base) Outputs() []Port           { return b.outputs }
func (b *base) Disposed() bool            { return b.disposed.Load() }

func (b *base) Input(name string) (Port, bool) {
	return findPort(b.inputs, name)
}

func (b *base) Output(name string) (Port, bool) {
	return findPort(b.outputs, name)
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// CheckLink resolves both ports of a prospective link and validates that
// they exist, that their kinds are compatible and that neither module has
// been disposed. It does not touch the engine.
func CheckLink(src Module, out string, dst Module, in string) (Port, Port, error) {
	if src.Disposed() {
		return Port{}, Port{}, fmt.Errorf("%w: %v", patchbay.ErrDisposed, src.ID())
	}
	if dst.Disposed() {
		return Port{}, Port{}, fmt.Errorf("%w: %v", patchbay.ErrDisposed, dst.ID())
	}
	op, ok := src.Output(out)
	if !ok {
		return Port{}, Port{}, fmt.Errorf("%w: %v has no output %q", patchbay.ErrPortNotFound, src.ID(), out)
	}
	ip, ok := dst.Input(in)
	if !ok {
		return Port{}, Port{}, fmt.Errorf("%w: %v has no input %q", patchbay.ErrPortNotFound, dst.ID(), in)
	}
	if !op.Kind.CanFeed(ip.Kind) {
		return Port{}, Port{}, fmt.Errorf("%w: %v.%v (%v) cannot feed %v.%v (%v)", patchbay.ErrIncompatiblePorts, src.ID(), out, op.Kind, dst.ID(), in, ip.Kind)
	}
	return op, ip, nil
}

func (b *base) Connect(out string, target Module, in string) error {
	op, ip, err := CheckLink(b.self, out, target, in)
	if err != nil {
		return err
	}
	b.mu.Lock()
	for _, l := range b.links[out] {
		if l.target == target && l.in == in {
			b.mu.Unlock()
			return nil
		}
	}
	engineLink(op, ip)
	b.links[out] = append(b.links[out], link{target: target, in: in})
	hook := b.onLink
	b.mu.Unlock()
	if hook != nil {
		hook(out, target, in)
	}
	return nil
}

func (b *base) Disconnect(out string, target Module, in string) {
	op, ok := b.Output(out)
	if !ok {
		return
	}
	b.mu.Lock()
	var removed []link
	kept := b.links[out][:0]
	for _, l := range b.links[out] {
		if target == nil || (l.target == target && l.in == in) {
			removed = append(removed, l)
			continue
		}
		kept = append(kept, l)
	}
	b.links[out] = kept
	for _, l := range removed {
		if ip, ok := l.target.Input(l.in); ok {
			engineUnlink(op, ip)
		}
	}
	hook := b.onUnlink
	b.mu.Unlock()
	if hook != nil {
		for _, l := range removed {
			hook(out, l.target, l.in)
		}
	}
}

func engineLink(op, ip Port) {
	if ip.Kind == patchbay.Signal {
		op.Node.Connect(ip.Node)
	} else {
		op.Node.ConnectParam(ip.Param)
	}
}

func engineUnlink(op, ip Port) {
	if ip.Kind == patchbay.Signal {
		op.Node.Disconnect(ip.Node)
	} else {
		op.Node.DisconnectParam(ip.Param)
	}
}

func (b *base) Dispose() {
	if b.disposed.Swap(true) {
		return
	}
	b.mu.Lock()
	links := b.links
	b.links = map[string][]link{}
	now := b.eng.CurrentTime()
	for _, s := range b.sources {
		if err := s.Stop(now); err != nil && !patchbay.IsTransient(err) {
			b.log.Warn("could not stop source", "err", err)
		}
	}
	for _, n := range b.nodes {
		n.DisconnectAll()
	}
	unlink, dispose := b.onUnlink, b.onDispose
	b.mu.Unlock()
	if unlink != nil {
		for out, ls := range links {
			for _, l := range ls {
				unlink(out, l.target, l.in)
			}
		}
	}
	if dispose != nil {
		dispose()
	}
	b.log.Debug("module disposed")
}
