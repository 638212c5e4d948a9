package module

import (
	"encoding/json"
	"fmt"

	"github.com/vsariola/patchbay"
)

// validator is implemented by state records that have constraints beyond
// their Go types, e.g. the set of valid waveforms.
type validator interface {
	validate() error
}

// merge overlays partial on top of cur and returns the result. Keys that are
// not fields of T are dropped. The returned error wraps
// patchbay.ErrInvalidState, in which case cur is returned unchanged.
func merge[T any](cur T, partial patchbay.Params) (T, error) {
	if len(partial) == 0 {
		return cur, nil
	}
	m, err := toParams(cur)
	if err != nil {
		return cur, err
	}
	for k, v := range partial {
		m[k] = v
	}
	b, err := json.Marshal(m)
	if err != nil {
		return cur, fmt.Errorf("%w: %v", patchbay.ErrInvalidState, err)
	}
	var next T
	if err := json.Unmarshal(b, &next); err != nil {
		return cur, fmt.Errorf("%w: %v", patchbay.ErrInvalidState, err)
	}
	if v, ok := any(&next).(validator); ok {
		if err := v.validate(); err != nil {
			return cur, fmt.Errorf("%w: %v", patchbay.ErrInvalidState, err)
		}
	}
	return next, nil
}

// toParams flattens a state record into params, using the json field names.
func toParams(state any) (patchbay.Params, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("could not flatten state: %w", err)
	}
	var m patchbay.Params
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("could not flatten state: %w", err)
	}
	return m, nil
}

// mustParams is toParams for records that are known to be plain data.
func mustParams(state any) patchbay.Params {
	m, err := toParams(state)
	if err != nil {
		panic(err)
	}
	return m
}

// ramp smoothly moves p to value if it differs from old.
func (b *base) ramp(p patchbay.Param, old, value float64) {
	if old == value {
		return
	}
	patchbay.Ramp(p, value, b.eng.CurrentTime())
}

// set sets p immediately; used when building nodes.
func (b *base) set(p patchbay.Param, value float64) {
	p.SetValueAtTime(value, b.eng.CurrentTime())
}

func validWaveform(name string, w patchbay.Waveform) error {
	if !w.Valid() {
		return fmt.Errorf("%s: unknown waveform %q", name, w)
	}
	return nil
}
