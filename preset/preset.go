// Package preset reads and writes patchbay presets. Presets are stored as
// .yml or .json files; a handful of built-in presets are compiled into the
// binary.
package preset

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vsariola/patchbay"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

type Format int

const (
	YAML Format = iota
	JSON
)

//go:embed builtin/*.yml
var builtinFS embed.FS

var builtins = func() map[string]patchbay.Preset {
	ret := map[string]patchbay.Preset{}
	files, err := fs.Glob(builtinFS, "builtin/*.yml")
	if err != nil {
		panic(err)
	}
	for _, f := range files {
		data, err := builtinFS.ReadFile(f)
		if err != nil {
			panic(err)
		}
		p, err := Parse(data)
		if err != nil {
			panic(fmt.Errorf("builtin preset %v: %w", f, err))
		}
		ret[p.Name] = p
	}
	return ret
}()

// Builtins returns the names of the built-in presets, sorted.
func Builtins() []string {
	ret := make([]string, 0, len(builtins))
	for name := range builtins {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Builtin returns a copy of the built-in preset with the given name.
func Builtin(name string) (patchbay.Preset, bool) {
	p, ok := builtins[name]
	if !ok {
		return patchbay.Preset{}, false
	}
	return p.Copy(), true
}

// Parse decodes a preset from JSON or YAML. Fields that are not part of the
// preset format are ignored. Module ids and port names are normalized to
// NFC, so that visually identical ids written on different systems match.
func Parse(data []byte) (patchbay.Preset, error) {
	var p patchbay.Preset
	if errJSON := json.Unmarshal(data, &p); errJSON != nil {
		p = patchbay.Preset{}
		if errYaml := yaml.Unmarshal(data, &p); errYaml != nil {
			return patchbay.Preset{}, fmt.Errorf("%w: could not be parsed as .json (%v) or .yml (%v)", patchbay.ErrMalformedPreset, errJSON, errYaml)
		}
	}
	normalize(&p)
	if err := p.Validate(); err != nil {
		return patchbay.Preset{}, err
	}
	return p, nil
}

func normalize(p *patchbay.Preset) {
	for i := range p.Modules {
		p.Modules[i].ID = norm.NFC.String(p.Modules[i].ID)
		p.Modules[i].State = normalizeParams(p.Modules[i].State)
	}
	for i := range p.Connections {
		c := &p.Connections[i]
		c.ID = norm.NFC.String(c.ID)
		c.From = norm.NFC.String(c.From)
		c.FromPort = norm.NFC.String(c.FromPort)
		c.To = norm.NFC.String(c.To)
		c.ToPort = norm.NFC.String(c.ToPort)
	}
}

// normalizeParams converts the integers decoded by yaml into float64, the
// way encoding/json decodes numbers, so that states read from either format
// compare equal.
func normalizeParams(p patchbay.Params) patchbay.Params {
	if p == nil {
		return nil
	}
	for k, v := range p {
		p[k] = normalizeValue(v)
	}
	return p
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case map[string]any:
		return map[string]any(normalizeParams(x))
	case []any:
		for i := range x {
			x[i] = normalizeValue(x[i])
		}
		return x
	}
	return v
}

// Marshal encodes a preset in the given format.
func Marshal(p patchbay.Preset, f Format) ([]byte, error) {
	switch f {
	case JSON:
		b, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("could not marshal preset to json: %w", err)
		}
		return append(b, '\n'), nil
	case YAML:
		b, err := yaml.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("could not marshal preset to yaml: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown preset format %d", f)
}

// FormatOf guesses the format from a file name, defaulting to YAML.
func FormatOf(filename string) Format {
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		return JSON
	}
	return YAML
}

// Load reads a preset file.
func Load(filename string) (patchbay.Preset, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return patchbay.Preset{}, fmt.Errorf("could not read preset %v: %w", filename, err)
	}
	p, err := Parse(data)
	if err != nil {
		return patchbay.Preset{}, fmt.Errorf("%v: %w", filename, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return p, nil
}

// Save writes a preset file, in the format given by the file extension.
func Save(filename string, p patchbay.Preset) error {
	data, err := Marshal(p, FormatOf(filename))
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("could not write preset %v: %w", filename, err)
	}
	return nil
}

// Open resolves a preset by name: first as a built-in preset, then as a
// file path, then as a .yml or .json file in any of the dirs.
func Open(name string, dirs []string) (patchbay.Preset, error) {
	if p, ok := Builtin(name); ok {
		return p, nil
	}
	if _, err := os.Stat(name); err == nil {
		return Load(name)
	}
	for _, dir := range dirs {
		for _, ext := range []string{"", ".yml", ".yaml", ".json"} {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return patchbay.Preset{}, fmt.Errorf("could not open preset %v: %w", path, err)
			}
		}
	}
	return patchbay.Preset{}, fmt.Errorf("preset %q not found: %w", name, fs.ErrNotExist)
}
