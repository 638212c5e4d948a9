package preset

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/vsariola/patchbay"
)

//go:embed schema.cue
var schemaSource string

// the cue runtime is not safe for concurrent use
var schemaMu sync.Mutex

var schema = sync.OnceValues(func() (cue.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("could not compile preset schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#Preset"))
	if !def.Exists() {
		return cue.Value{}, fmt.Errorf("preset schema has no #Preset definition")
	}
	return def, nil
})

// Validate checks the preset against the preset schema. It checks the shape
// of the document, e.g. that every connection names both of its ports and
// that port names are identifiers; it knows nothing about module types.
// Every violation found is reported.
func Validate(p patchbay.Preset) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	def, err := schema()
	if err != nil {
		return err
	}
	if p.Modules == nil {
		p.Modules = []patchbay.ModuleConfig{}
	}
	if p.Connections == nil {
		p.Connections = []patchbay.Connection{}
	}
	v := def.Context().Encode(p)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %v", patchbay.ErrMalformedPreset, err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		msgs := cueerrors.Errors(err)
		ret := make([]error, 0, len(msgs))
		for _, e := range msgs {
			ret = append(ret, fmt.Errorf("%w: %v", patchbay.ErrMalformedPreset, e))
		}
		return errors.Join(ret...)
	}
	return nil
}
