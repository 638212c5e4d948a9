package preset_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/module"
	"github.com/vsariola/patchbay/preset"
	"github.com/vsariola/patchbay/timeline"
	"github.com/vsariola/patchbay/workspace"
)

const tremoloJSON = `{
  "name": "Tremolo",
  "modules": [
    {"id": "osc-1", "type": "Oscillator", "position": {"x": 100, "y": 100}, "state": {"type": "sawtooth", "freq": 220, "level": 0.3}},
    {"id": "lfo-1", "type": "LFO", "state": {"type": "sine", "rate": 5, "depth": 0.5}},
    {"id": "gain-1", "type": "Gain", "state": {"gain": 0.5}},
    {"id": "dest-1", "type": "Destination", "state": {"level": 0.9}}
  ],
  "connections": [
    {"id": "c1", "fromModuleId": "osc-1", "fromPortName": "out", "toModuleId": "gain-1", "toPortName": "in"},
    {"id": "c2", "fromModuleId": "lfo-1", "fromPortName": "out", "toModuleId": "gain-1", "toPortName": "gain"},
    {"id": "c3", "fromModuleId": "gain-1", "fromPortName": "out", "toModuleId": "dest-1", "toPortName": "in"}
  ],
  "version": 2
}`

func TestBuiltins(t *testing.T) {
	assert.Equal(t, []string{"Echo Space", "Simple Bass", "Tremolo", "Vibrato Pad"}, preset.Builtins())
	for _, name := range preset.Builtins() {
		t.Run(name, func(t *testing.T) {
			p, ok := preset.Builtin(name)
			require.True(t, ok)
			require.NoError(t, preset.Validate(p))
			w := workspace.New(timeline.New())
			require.NoError(t, w.ImportState(p))
			assert.Len(t, w.Connections(), len(p.Connections), "every built-in connection must be valid")
		})
	}
	_, ok := preset.Builtin("Dubstep Wobble")
	assert.False(t, ok)
}

func TestBuiltinIsCopy(t *testing.T) {
	a, _ := preset.Builtin("Tremolo")
	a.Modules[0].State["freq"] = 1.0
	b, _ := preset.Builtin("Tremolo")
	assert.Equal(t, 220.0, b.Modules[0].State["freq"])
}

func TestJSONAndYAMLAgree(t *testing.T) {
	fromJSON, err := preset.Parse([]byte(tremoloJSON))
	require.NoError(t, err)
	builtin, _ := preset.Builtin("Tremolo")
	assert.Equal(t, builtin, fromJSON, "unknown fields are ignored and numbers decode alike")

	data, err := preset.Marshal(fromJSON, preset.YAML)
	require.NoError(t, err)
	fromYAML, err := preset.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)
}

func TestParseErrors(t *testing.T) {
	_, err := preset.Parse([]byte("modules: [oops"))
	assert.ErrorIs(t, err, patchbay.ErrMalformedPreset)
	_, err = preset.Parse([]byte(`{"modules": [{"id": "a", "type": "Gain"}, {"id": "a", "type": "Gain"}]}`))
	assert.ErrorIs(t, err, patchbay.ErrDuplicateModule)
}

func TestParseNormalizesIDs(t *testing.T) {
	decomposed := "osc-e\u0301"
	composed := "osc-\u00e9"
	p, err := preset.Parse([]byte(`{"modules": [{"id": "` + decomposed + `", "type": "Oscillator"}],
		"connections": [{"id": "c", "fromModuleId": "` + composed + `", "fromPortName": "out", "toModuleId": "` + decomposed + `", "toPortName": "freq"}]}`))
	require.NoError(t, err)
	assert.Equal(t, composed, p.Modules[0].ID)
	assert.Equal(t, composed, p.Connections[0].To)
}

func TestSchema(t *testing.T) {
	p, _ := preset.Builtin("Simple Bass")
	p.Connections[0].ToPort = "in put"
	p.Connections[1].FromPort = "9out"
	err := preset.Validate(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, patchbay.ErrMalformedPreset)
	assert.Contains(t, err.Error(), "toPortName")
	assert.Contains(t, err.Error(), "fromPortName")

	assert.NoError(t, preset.Validate(patchbay.Preset{}))
}

func TestSaveLoadOpen(t *testing.T) {
	dir := t.TempDir()
	p, _ := preset.Builtin("Echo Space")
	p.Name = ""
	require.NoError(t, preset.Save(filepath.Join(dir, "echo.json"), p))
	require.NoError(t, preset.Save(filepath.Join(dir, "echo2.yml"), p))

	got, err := preset.Load(filepath.Join(dir, "echo.json"))
	require.NoError(t, err)
	assert.Equal(t, "echo", got.Name, "a preset without a name is named after its file")
	got.Name = ""
	assert.Equal(t, p, got)

	got, err = preset.Open("echo2", []string{filepath.Join(dir, "missing"), dir})
	require.NoError(t, err)
	assert.Equal(t, "echo2", got.Name)

	got, err = preset.Open("Vibrato Pad", nil)
	require.NoError(t, err)
	assert.Equal(t, "Vibrato Pad", got.Name)

	_, err = preset.Open("nothing", []string{dir})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteDOT(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	eng := timeline.New()
	control := func(c patchbay.Connection) bool {
		p, _ := preset.Builtin("Vibrato Pad")
		for _, m := range p.Modules {
			if m.ID != c.To {
				continue
			}
			info, err := module.DefaultRegistry.Describe(m.Type, eng)
			require.NoError(t, err)
			for _, in := range info.Inputs {
				if in.Name == c.ToPort {
					return in.Kind == patchbay.Control
				}
			}
		}
		return false
	}
	for _, tt := range []struct {
		golden  string
		preset  patchbay.Preset
		control func(patchbay.Connection) bool
	}{
		{"vibrato-pad", mustBuiltin(t, "Vibrato Pad"), control},
		{"simple-bass", mustBuiltin(t, "Simple Bass"), nil},
		{"unnamed", patchbay.Preset{Modules: []patchbay.ModuleConfig{{ID: `say "hi"`, Type: patchbay.GainModule}}}, nil},
	} {
		t.Run(tt.golden, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, preset.WriteDOT(&buf, tt.preset, tt.control))
			g.Assert(t, tt.golden, buf.Bytes())
		})
	}
}

func mustBuiltin(t *testing.T, name string) patchbay.Preset {
	t.Helper()
	p, ok := preset.Builtin(name)
	require.True(t, ok)
	return p
}
