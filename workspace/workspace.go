// Package workspace implements the patch graph: the set of live modules and
// the connections between their ports.
//
// The workspace maintains two invariants at all times: at most one
// connection terminates at any (module, input port) pair, and no connection
// refers to a module that is not in the workspace.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/module"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type (
	Workspace struct {
		eng      patchbay.Engine
		registry *module.Registry
		log      *slog.Logger

		mu          sync.Mutex
		modules     map[string]module.Module
		moduleOrder []string
		conns       map[string]patchbay.Connection
		connOrder   []string
	}

	Option func(*Workspace)
)

func WithRegistry(r *module.Registry) Option {
	return func(w *Workspace) { w.registry = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.log = l }
}

func New(eng patchbay.Engine, opts ...Option) *Workspace {
	w := &Workspace{
		eng:      eng,
		registry: module.DefaultRegistry,
		log:      slog.Default(),
		modules:  map[string]module.Module{},
		conns:    map[string]patchbay.Connection{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewModuleID returns a fresh module id for the given type, e.g.
// "oscillator-0190a2c4-...".
func NewModuleID(t patchbay.ModuleType) string {
	return fmt.Sprintf("%s-%s", slug(t), uuid.Must(uuid.NewV7()))
}

func slug(t patchbay.ModuleType) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '-'
	}, cases.Lower(language.Und).String(string(t)))
}

func (w *Workspace) Engine() patchbay.Engine {
	return w.eng
}

// CreateModule constructs a module and adds it to the workspace. An unknown
// type or a duplicate id is a configuration error; the workspace is left
// unchanged.
func (w *Workspace) CreateModule(cfg patchbay.ModuleConfig) (module.Module, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.modules[cfg.ID]; ok {
		return nil, fmt.Errorf("%w: %q", patchbay.ErrDuplicateModule, cfg.ID)
	}
	m, err := w.registry.Create(cfg, w.eng)
	if err != nil {
		w.log.Error("could not create module", "id", cfg.ID, "type", cfg.Type, "err", err)
		return nil, err
	}
	w.add(m)
	return m, nil
}

func (w *Workspace) add(m module.Module) {
	w.modules[m.ID()] = m
	w.moduleOrder = append(w.moduleOrder, m.ID())
}

// RemoveModule severs every connection touching the module, then disposes
// and forgets it. Missing ids are ignored.
func (w *Workspace) RemoveModule(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.modules[id]
	if !ok {
		return
	}
	for _, cid := range append([]string(nil), w.connOrder...) {
		c := w.conns[cid]
		if c.From == id || c.To == id {
			w.removeConnection(cid)
		}
	}
	m.Dispose()
	delete(w.modules, id)
	w.moduleOrder = remove(w.moduleOrder, id)
}

// Module returns the module with the given id.
func (w *Workspace) Module(id string) (module.Module, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.modules[id]
	return m, ok
}

// Modules returns the modules in creation order.
func (w *Workspace) Modules() []module.Module {
	w.mu.Lock()
	defer w.mu.Unlock()
	ret := make([]module.Module, len(w.moduleOrder))
	for i, id := range w.moduleOrder {
		ret[i] = w.modules[id]
	}
	return ret
}

func (w *Workspace) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.modules)
}

// Connect creates a connection with a generated id.
func (w *Workspace) Connect(from, fromPort, to, toPort string) (patchbay.Connection, error) {
	c := patchbay.Connection{ID: uuid.NewString(), From: from, FromPort: fromPort, To: to, ToPort: toPort}
	if err := w.CreateConnection(c); err != nil {
		return patchbay.Connection{}, err
	}
	return c, nil
}

// CreateConnection links two modules. Any connection already terminating at
// the same input port is retired first. If an endpoint module or port is
// missing, or the port kinds do not match, the error is logged and returned
// and the workspace is left unchanged.
func (w *Workspace) CreateConnection(c patchbay.Connection) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.createConnection(c)
	if err != nil {
		w.log.Warn("connection refused", "id", c.ID, "from", c.From+"."+c.FromPort, "to", c.To+"."+c.ToPort, "err", err)
	}
	return err
}

func (w *Workspace) createConnection(c patchbay.Connection) error {
	if c.ID == "" {
		return fmt.Errorf("%w: connection has no id", patchbay.ErrMalformedPreset)
	}
	if _, ok := w.conns[c.ID]; ok {
		return fmt.Errorf("%w: duplicate connection id %q", patchbay.ErrMalformedPreset, c.ID)
	}
	src, ok := w.modules[c.From]
	if !ok {
		return fmt.Errorf("%w: %q", patchbay.ErrModuleNotFound, c.From)
	}
	dst, ok := w.modules[c.To]
	if !ok {
		return fmt.Errorf("%w: %q", patchbay.ErrModuleNotFound, c.To)
	}
	if _, _, err := module.CheckLink(src, c.FromPort, dst, c.ToPort); err != nil {
		return err
	}
	for _, cid := range append([]string(nil), w.connOrder...) {
		old := w.conns[cid]
		if old.To == c.To && old.ToPort == c.ToPort {
			w.log.Debug("retiring connection into occupied input", "id", cid, "input", c.To+"."+c.ToPort)
			w.removeConnection(cid)
		}
	}
	if err := src.Connect(c.FromPort, dst, c.ToPort); err != nil {
		return err
	}
	w.conns[c.ID] = c
	w.connOrder = append(w.connOrder, c.ID)
	return nil
}

// RemoveConnection unlinks and forgets a connection. Missing ids are
// ignored.
func (w *Workspace) RemoveConnection(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeConnection(id)
}

func (w *Workspace) removeConnection(id string) {
	c, ok := w.conns[id]
	if !ok {
		return
	}
	src, srcOK := w.modules[c.From]
	dst, dstOK := w.modules[c.To]
	if srcOK && dstOK {
		src.Disconnect(c.FromPort, dst, c.ToPort)
	}
	delete(w.conns, id)
	w.connOrder = remove(w.connOrder, id)
}

// Connection returns the connection with the given id.
func (w *Workspace) Connection(id string) (patchbay.Connection, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.conns[id]
	return c, ok
}

// Connections returns the connections in creation order.
func (w *Workspace) Connections() []patchbay.Connection {
	w.mu.Lock()
	defer w.mu.Unlock()
	ret := make([]patchbay.Connection, len(w.connOrder))
	for i, id := range w.connOrder {
		ret[i] = w.conns[id]
	}
	return ret
}

// ConnectionsOf returns the connections having the module as source or
// destination.
func (w *Workspace) ConnectionsOf(id string) []patchbay.Connection {
	var ret []patchbay.Connection
	for _, c := range w.Connections() {
		if c.From == id || c.To == id {
			ret = append(ret, c)
		}
	}
	return ret
}

// Clear disposes every module and forgets every connection. Disposal
// severs all engine links owned by the modules, so connections need not be
// retired one by one.
func (w *Workspace) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clear()
}

func (w *Workspace) clear() {
	for _, id := range w.moduleOrder {
		w.modules[id].Dispose()
	}
	w.modules = map[string]module.Module{}
	w.moduleOrder = nil
	w.conns = map[string]patchbay.Connection{}
	w.connOrder = nil
}

// ExportState snapshots the workspace as a preset.
func (w *Workspace) ExportState() patchbay.Preset {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := patchbay.Preset{
		Modules:     make([]patchbay.ModuleConfig, 0, len(w.moduleOrder)),
		Connections: make([]patchbay.Connection, 0, len(w.connOrder)),
	}
	for _, id := range w.moduleOrder {
		m := w.modules[id]
		p.Modules = append(p.Modules, patchbay.ModuleConfig{ID: id, Type: m.Type(), State: m.State()})
	}
	for _, id := range w.connOrder {
		p.Connections = append(p.Connections, w.conns[id])
	}
	return p
}

// ImportState replaces the contents of the workspace with the preset. All
// modules are built before the current ones are cleared, so a preset with an
// unknown module type or an invalid state is rejected without touching the
// workspace. Connections that cannot be made are logged and skipped.
func (w *Workspace) ImportState(p patchbay.Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for _, cfg := range p.Modules {
		if !w.registry.Has(cfg.Type) {
			return fmt.Errorf("%w: %q (module %q)", patchbay.ErrUnknownModuleType, cfg.Type, cfg.ID)
		}
	}
	staged := make([]module.Module, 0, len(p.Modules))
	for _, cfg := range p.Modules {
		m, err := w.registry.Create(cfg, w.eng)
		if err != nil {
			for _, s := range staged {
				s.Dispose()
			}
			return err
		}
		staged = append(staged, m)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clear()
	for _, m := range staged {
		w.add(m)
	}
	var failed []error
	for _, c := range p.Connections {
		if err := w.createConnection(c); err != nil {
			w.log.Warn("skipping connection", "id", c.ID, "err", err)
			failed = append(failed, err)
		}
	}
	w.log.Info("preset imported", "name", p.Name, "modules", len(staged), "connections", len(w.connOrder), "skipped", len(failed))
	return nil
}

// Check verifies the graph invariants and returns every violation found.
func (w *Workspace) Check() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	inputs := map[[2]string]string{}
	for _, id := range w.connOrder {
		c := w.conns[id]
		if _, ok := w.modules[c.From]; !ok {
			errs = append(errs, fmt.Errorf("connection %v: dangling source %q", id, c.From))
		}
		if _, ok := w.modules[c.To]; !ok {
			errs = append(errs, fmt.Errorf("connection %v: dangling destination %q", id, c.To))
		}
		key := [2]string{c.To, c.ToPort}
		if other, ok := inputs[key]; ok {
			errs = append(errs, fmt.Errorf("input %v.%v has connections %v and %v", c.To, c.ToPort, other, id))
		}
		inputs[key] = id
	}
	return errors.Join(errs...)
}

func remove(ids []string, id string) []string {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
