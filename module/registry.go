package module

import (
	"fmt"
	"sort"

	"github.com/vsariola/patchbay"
)

type (
	// Constructor builds a module from its config on the given engine. It
	// must either return a fully built module or an error, never a partially
	// constructed one.
	Constructor func(cfg patchbay.ModuleConfig, eng patchbay.Engine) (Module, error)

	// Registry maps module type tags to constructors. Several tags may share
	// one implementation: a placeholder tag is an alias of an implemented
	// kind, until it gets a constructor of its own.
	Registry struct {
		entries map[patchbay.ModuleType]entry
	}

	entry struct {
		ctor Constructor
		impl patchbay.ModuleType // tag of the implementation; differs for aliases
	}

	// TypeInfo documents one registered tag.
	TypeInfo struct {
		Type    patchbay.ModuleType
		Impl    patchbay.ModuleType
		Inputs  []patchbay.PortInfo
		Outputs []patchbay.PortInfo
	}
)

// Placeholders lists the tags that borrow the implementation of another kind.
var Placeholders = map[patchbay.ModuleType]patchbay.ModuleType{
	patchbay.MixerModule:       patchbay.GainModule,
	patchbay.LFOSyncModule:     patchbay.LFOModule,
	patchbay.TB303Module:       patchbay.OscillatorModule,
	patchbay.TB303SeqModule:    patchbay.SequencerModule,
	patchbay.DrumStationModule: patchbay.SamplerModule,
	patchbay.LooperModule:      patchbay.SamplerModule,
	patchbay.SidechainModule:   patchbay.GainModule,
	patchbay.EQ8Module:         patchbay.FilterModule,
}

// DefaultRegistry contains every built-in module kind and placeholder.
var DefaultRegistry = NewRegistry()

func wrap[T Module](f func(patchbay.ModuleConfig, patchbay.Engine, ...Option) (T, error), opts []Option) Constructor {
	return func(cfg patchbay.ModuleConfig, eng patchbay.Engine) (Module, error) {
		m, err := f(cfg, eng, opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// NewRegistry returns a registry with all the built-in kinds and
// placeholders. The options are passed to every constructor.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{entries: map[patchbay.ModuleType]entry{}}
	r.Register(patchbay.OscillatorModule, wrap(NewOscillator, opts))
	r.Register(patchbay.FilterModule, wrap(NewFilter, opts))
	r.Register(patchbay.GainModule, wrap(NewGain, opts))
	r.Register(patchbay.DelayModule, wrap(NewDelay, opts))
	r.Register(patchbay.ReverbModule, wrap(NewReverb, opts))
	r.Register(patchbay.DistortionModule, wrap(NewDistortion, opts))
	r.Register(patchbay.DestinationModule, wrap(NewDestination, opts))
	r.Register(patchbay.LFOModule, wrap(NewLFO, opts))
	r.Register(patchbay.ADSRModule, wrap(NewADSR, opts))
	r.Register(patchbay.TransportModule, wrap(NewTransport, opts))
	r.Register(patchbay.SequencerModule, wrap(NewSequencer, opts))
	r.Register(patchbay.SamplerModule, wrap(NewSampler, opts))
	r.Register(patchbay.FMModule, wrap(NewFM, opts))
	for alias, impl := range Placeholders {
		if err := r.Alias(alias, impl); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds or replaces the constructor of a tag.
func (r *Registry) Register(t patchbay.ModuleType, ctor Constructor) {
	r.entries[t] = entry{ctor: ctor, impl: t}
}

// Alias makes alias construct modules with the implementation of target.
func (r *Registry) Alias(alias, target patchbay.ModuleType) error {
	e, ok := r.entries[target]
	if !ok {
		return fmt.Errorf("cannot alias %q to %q: %w", alias, target, patchbay.ErrUnknownModuleType)
	}
	r.entries[alias] = entry{ctor: e.ctor, impl: e.impl}
	return nil
}

// Has reports whether t is a known tag.
func (r *Registry) Has(t patchbay.ModuleType) bool {
	_, ok := r.entries[t]
	return ok
}

// Resolve returns the tag implementing t.
func (r *Registry) Resolve(t patchbay.ModuleType) (patchbay.ModuleType, bool) {
	e, ok := r.entries[t]
	return e.impl, ok
}

// Create constructs a module. An unknown type fails with
// patchbay.ErrUnknownModuleType before anything is built.
func (r *Registry) Create(cfg patchbay.ModuleConfig, eng patchbay.Engine) (Module, error) {
	e, ok := r.entries[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", patchbay.ErrUnknownModuleType, cfg.Type)
	}
	m, err := e.ctor(cfg, eng)
	if err != nil {
		return nil, fmt.Errorf("could not create %v module %q: %w", cfg.Type, cfg.ID, err)
	}
	return m, nil
}

// Types returns every registered tag, sorted.
func (r *Registry) Types() []patchbay.ModuleType {
	ret := make([]patchbay.ModuleType, 0, len(r.entries))
	for t := range r.entries {
		ret = append(ret, t)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// Describe builds a throwaway module of type t on eng to list its ports.
func (r *Registry) Describe(t patchbay.ModuleType, eng patchbay.Engine) (TypeInfo, error) {
	m, err := r.Create(patchbay.ModuleConfig{ID: "describe", Type: t}, eng)
	if err != nil {
		return TypeInfo{}, err
	}
	defer m.Dispose()
	impl, _ := r.Resolve(t)
	info := TypeInfo{Type: t, Impl: impl}
	for _, p := range m.Inputs() {
		info.Inputs = append(info.Inputs, patchbay.PortInfo{Name: p.Name, Kind: p.Kind})
	}
	for _, p := range m.Outputs() {
		info.Outputs = append(info.Outputs, patchbay.PortInfo{Name: p.Name, Kind: p.Kind})
	}
	return info, nil
}
