package workspace_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/module"
	"github.com/vsariola/patchbay/preset"
	"github.com/vsariola/patchbay/timeline"
	"github.com/vsariola/patchbay/workspace"
)

func newWorkspace(t *testing.T) (*workspace.Workspace, *timeline.Engine, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	eng := timeline.New(timeline.WithClock(&timeline.ManualClock{}))
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w := workspace.New(eng,
		workspace.WithLogger(log),
		workspace.WithRegistry(module.NewRegistry(module.WithLogger(log))))
	return w, eng, &logs
}

func mustCreate(t *testing.T, w *workspace.Workspace, id string, typ patchbay.ModuleType) module.Module {
	t.Helper()
	m, err := w.CreateModule(patchbay.ModuleConfig{ID: id, Type: typ})
	require.NoError(t, err)
	return m
}

func conn(id, from, fromPort, to, toPort string) patchbay.Connection {
	return patchbay.Connection{ID: id, From: from, FromPort: fromPort, To: to, ToPort: toPort}
}

func TestCreateModule(t *testing.T) {
	w, _, _ := newWorkspace(t)
	mustCreate(t, w, "osc-1", patchbay.OscillatorModule)
	_, err := w.CreateModule(patchbay.ModuleConfig{ID: "osc-1", Type: patchbay.GainModule})
	assert.ErrorIs(t, err, patchbay.ErrDuplicateModule)
	assert.Equal(t, 1, w.Len())
	m, ok := w.Module("osc-1")
	require.True(t, ok)
	assert.Equal(t, patchbay.OscillatorModule, m.Type())
}

func TestUnknownModuleType(t *testing.T) {
	w, eng, _ := newWorkspace(t)
	mustCreate(t, w, "gain-1", patchbay.GainModule)
	nodes := len(eng.Nodes())
	_, err := w.CreateModule(patchbay.ModuleConfig{ID: "x", Type: "Theremin"})
	require.ErrorIs(t, err, patchbay.ErrUnknownModuleType)
	assert.True(t, patchbay.IsConfigError(err))
	assert.Equal(t, 1, w.Len())
	assert.Len(t, eng.Nodes(), nodes, "no engine nodes should be built for an unknown type")
}

func TestSingleConnectionPerInput(t *testing.T) {
	w, _, _ := newWorkspace(t)
	a := mustCreate(t, w, "osc-a", patchbay.OscillatorModule)
	b := mustCreate(t, w, "osc-b", patchbay.OscillatorModule)
	f := mustCreate(t, w, "filter-1", patchbay.FilterModule)
	require.NoError(t, w.CreateConnection(conn("c1", "osc-a", "out", "filter-1", "in")))
	require.NoError(t, w.CreateConnection(conn("c2", "osc-b", "out", "filter-1", "in")))

	conns := w.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, "c2", conns[0].ID)
	_, ok := w.Connection("c1")
	assert.False(t, ok)
	require.NoError(t, w.Check())

	aOut, _ := a.Output("out")
	bOut, _ := b.Output("out")
	fIn, _ := f.Input("in")
	assert.False(t, timeline.Unwrap(aOut.Node).Linked(fIn.Node), "replaced connection must be unlinked in the engine")
	assert.True(t, timeline.Unwrap(bOut.Node).Linked(fIn.Node))
}

func TestConnectGeneratesID(t *testing.T) {
	w, _, _ := newWorkspace(t)
	mustCreate(t, w, "lfo-1", patchbay.LFOModule)
	mustCreate(t, w, "osc-1", patchbay.OscillatorModule)
	c, err := w.Connect("lfo-1", "out", "osc-1", "freq")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	got, ok := w.Connection(c.ID)
	require.True(t, ok)
	assert.Equal(t, c, got)
}

func TestConnectionErrors(t *testing.T) {
	w, eng, logs := newWorkspace(t)
	mustCreate(t, w, "osc-1", patchbay.OscillatorModule)
	mustCreate(t, w, "lfo-1", patchbay.LFOModule)
	mustCreate(t, w, "transport-1", patchbay.TransportModule)
	mustCreate(t, w, "seq-1", patchbay.SequencerModule)
	before := eng.Edges()

	for _, tt := range []struct {
		name string
		c    patchbay.Connection
		want error
	}{
		{"missing source", conn("c", "nope", "out", "osc-1", "freq"), patchbay.ErrModuleNotFound},
		{"missing destination", conn("c", "osc-1", "out", "nope", "in"), patchbay.ErrModuleNotFound},
		{"missing output", conn("c", "osc-1", "bogus", "lfo-1", "rate"), patchbay.ErrPortNotFound},
		{"missing input", conn("c", "osc-1", "out", "lfo-1", "bogus"), patchbay.ErrPortNotFound},
		{"no id", conn("", "osc-1", "out", "lfo-1", "rate"), patchbay.ErrMalformedPreset},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := w.CreateConnection(tt.c)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, w.Connections())
	assert.Equal(t, before, eng.Edges())
	assert.Contains(t, logs.String(), "connection refused")
}

func TestFailedConnectionKeepsExisting(t *testing.T) {
	w, _, _ := newWorkspace(t)
	mustCreate(t, w, "osc-1", patchbay.OscillatorModule)
	mustCreate(t, w, "filter-1", patchbay.FilterModule)
	require.NoError(t, w.CreateConnection(conn("c1", "osc-1", "out", "filter-1", "in")))
	err := w.CreateConnection(conn("c2", "osc-1", "nope", "filter-1", "in"))
	require.ErrorIs(t, err, patchbay.ErrPortNotFound)
	_, ok := w.Connection("c1")
	assert.True(t, ok, "a refused connection must not retire the existing one")
}

func TestRemoveModuleScenario(t *testing.T) {
	w, eng, _ := newWorkspace(t)
	osc := mustCreate(t, w, "osc-1", patchbay.OscillatorModule)
	mustCreate(t, w, "filter-1", patchbay.FilterModule)
	mustCreate(t, w, "dest-1", patchbay.DestinationModule)
	require.NoError(t, w.CreateConnection(conn("c1", "osc-1", "out", "filter-1", "in")))
	require.NoError(t, w.CreateConnection(conn("c2", "filter-1", "out", "dest-1", "in")))

	w.RemoveModule("filter-1")

	assert.Equal(t, 2, w.Len())
	assert.Empty(t, w.Connections())
	assert.Empty(t, w.ConnectionsOf("osc-1"))
	require.NoError(t, w.Check())
	oscOut, _ := osc.Output("out")
	assert.Zero(t, timeline.Unwrap(oscOut.Node).NumOutputs())
	for _, e := range eng.Edges() {
		assert.False(t, strings.HasPrefix(e.From, "biquad"), "filter node still linked: %v", e)
	}

	w.RemoveModule("filter-1")
	assert.Equal(t, 2, w.Len())
}

func TestRemoveConnection(t *testing.T) {
	w, _, _ := newWorkspace(t)
	osc := mustCreate(t, w, "osc-1", patchbay.OscillatorModule)
	g := mustCreate(t, w, "gain-1", patchbay.GainModule)
	require.NoError(t, w.CreateConnection(conn("c1", "osc-1", "out", "gain-1", "in")))
	w.RemoveConnection("c1")
	w.RemoveConnection("c1")
	assert.Empty(t, w.Connections())
	out, _ := osc.Output("out")
	in, _ := g.Input("in")
	assert.False(t, timeline.Unwrap(out.Node).Linked(in.Node))
}

func TestClear(t *testing.T) {
	w, eng, _ := newWorkspace(t)
	osc := mustCreate(t, w, "osc-1", patchbay.OscillatorModule)
	mustCreate(t, w, "dest-1", patchbay.DestinationModule)
	require.NoError(t, w.CreateConnection(conn("c1", "osc-1", "out", "dest-1", "in")))
	w.Clear()
	assert.Zero(t, w.Len())
	assert.Empty(t, w.Connections())
	assert.Empty(t, eng.Edges())
	assert.True(t, osc.Disposed())
}

func buildPatch(t *testing.T, w *workspace.Workspace) {
	t.Helper()
	_, err := w.CreateModule(patchbay.ModuleConfig{ID: "osc-1", Type: patchbay.OscillatorModule, State: patchbay.Params{"freq": 110.0, "type": "square"}})
	require.NoError(t, err)
	_, err = w.CreateModule(patchbay.ModuleConfig{ID: "mix-1", Type: patchbay.MixerModule, State: patchbay.Params{"gain": 0.5}})
	require.NoError(t, err)
	mustCreate(t, w, "dest-1", patchbay.DestinationModule)
	require.NoError(t, w.CreateConnection(conn("c1", "osc-1", "out", "mix-1", "in")))
	require.NoError(t, w.CreateConnection(conn("c2", "mix-1", "out", "dest-1", "in")))
}

func TestExportImportRoundTrip(t *testing.T) {
	w, _, _ := newWorkspace(t)
	buildPatch(t, w)
	exported := w.ExportState()

	w2, _, _ := newWorkspace(t)
	require.NoError(t, w2.ImportState(exported))
	assert.Equal(t, exported, w2.ExportState())

	m, ok := w2.Module("mix-1")
	require.True(t, ok)
	assert.Equal(t, patchbay.MixerModule, m.Type(), "aliased modules keep their tag")
	assert.Equal(t, 0.5, m.State()["gain"])
}

func TestImportIsAtomic(t *testing.T) {
	w, eng, _ := newWorkspace(t)
	buildPatch(t, w)
	before := w.ExportState()
	edges := eng.Edges()

	bad := patchbay.Preset{Modules: []patchbay.ModuleConfig{
		{ID: "a", Type: patchbay.GainModule},
		{ID: "b", Type: "Theremin"},
	}}
	err := w.ImportState(bad)
	require.ErrorIs(t, err, patchbay.ErrUnknownModuleType)
	assert.Equal(t, before, w.ExportState())
	assert.Equal(t, edges, eng.Edges())

	invalid := patchbay.Preset{Modules: []patchbay.ModuleConfig{
		{ID: "a", Type: patchbay.GainModule},
		{ID: "b", Type: patchbay.OscillatorModule, State: patchbay.Params{"freq": "loud"}},
	}}
	err = w.ImportState(invalid)
	require.ErrorIs(t, err, patchbay.ErrInvalidState)
	assert.Equal(t, before, w.ExportState())
	assert.Equal(t, edges, eng.Edges(), "staged modules must be disposed")
}

func TestImportSkipsBadConnections(t *testing.T) {
	w, _, logs := newWorkspace(t)
	p := patchbay.Preset{
		Name: "partial",
		Modules: []patchbay.ModuleConfig{
			{ID: "osc-1", Type: patchbay.OscillatorModule},
			{ID: "dest-1", Type: patchbay.DestinationModule},
		},
		Connections: []patchbay.Connection{
			conn("c1", "osc-1", "out", "ghost", "in"),
			conn("c2", "osc-1", "out", "dest-1", "in"),
		},
	}
	require.NoError(t, w.ImportState(p))
	conns := w.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, "c2", conns[0].ID)
	assert.Contains(t, logs.String(), "skipping connection")
}

func TestImportDuplicateID(t *testing.T) {
	w, _, _ := newWorkspace(t)
	err := w.ImportState(patchbay.Preset{Modules: []patchbay.ModuleConfig{
		{ID: "a", Type: patchbay.GainModule},
		{ID: "a", Type: patchbay.GainModule},
	}})
	assert.ErrorIs(t, err, patchbay.ErrDuplicateModule)
	assert.Zero(t, w.Len())
}

func TestClockCableSubscribesSequencer(t *testing.T) {
	w, _, _ := newWorkspace(t)
	tr := mustCreate(t, w, "transport-1", patchbay.TransportModule).(*module.Transport)
	seq := mustCreate(t, w, "seq-1", patchbay.SequencerModule).(*module.Sequencer)
	require.NoError(t, w.CreateConnection(conn("c1", "transport-1", "clock", "seq-1", "clock")))
	assert.True(t, seq.Following())
	assert.Equal(t, []string{"transport-1", "seq-1"}, tr.Scheduler().Subscribers())

	w.RemoveConnection("c1")
	assert.False(t, seq.Following())
	assert.Equal(t, []string{"transport-1"}, tr.Scheduler().Subscribers())

	require.NoError(t, w.CreateConnection(conn("c2", "transport-1", "clock", "seq-1", "clock")))
	w.RemoveModule("seq-1")
	assert.Equal(t, []string{"transport-1"}, tr.Scheduler().Subscribers())
}

func TestNewModuleID(t *testing.T) {
	a := workspace.NewModuleID(patchbay.TB303SeqModule)
	b := workspace.NewModuleID(patchbay.TB303SeqModule)
	assert.True(t, strings.HasPrefix(a, "tb-303-seq-"), a)
	assert.NotEqual(t, a, b)
	c := workspace.NewModuleID("ÖVERDRIVE Unit")
	assert.True(t, strings.HasPrefix(c, "överdrive-unit-"), c)
}

func TestImportExportedPreset(t *testing.T) {
	// as saved by the browser version: positions and the original state keys
	data := `{
  "modules": [
    {"id": "transport-1", "type": "Transport", "position": {"x": 100, "y": 300}, "state": {"bpm": 90}},
    {"id": "seq-1", "type": "Sequencer", "position": {"x": 400, "y": 300}, "state": {"steps": 16, "gateLen": 0.25}},
    {"id": "osc-1", "type": "Oscillator", "position": {"x": 100, "y": 100}, "state": {"type": "sawtooth", "freq": 55, "level": 0.3}},
    {"id": "dest-1", "type": "Destination", "position": {"x": 1000, "y": 100}, "state": {"level": 0.9}}
  ],
  "connections": [
    {"id": "c1", "fromModuleId": "transport-1", "fromPortName": "clock", "toModuleId": "seq-1", "toPortName": "clock"},
    {"id": "c2", "fromModuleId": "seq-1", "fromPortName": "pitch", "toModuleId": "osc-1", "toPortName": "freq"},
    {"id": "c3", "fromModuleId": "osc-1", "fromPortName": "out", "toModuleId": "dest-1", "toPortName": "in"}
  ]
}`
	p, err := preset.Parse([]byte(data))
	require.NoError(t, err)
	w, _, _ := newWorkspace(t)
	require.NoError(t, w.ImportState(p))
	assert.Len(t, w.Connections(), 3)

	osc, ok := w.Module("osc-1")
	require.True(t, ok)
	assert.Equal(t, 55.0, osc.State()["freq"])
	seq, ok := w.Module("seq-1")
	require.True(t, ok)
	settings := seq.(*module.Sequencer).Settings()
	assert.Len(t, settings.Pattern, 16)
	assert.Equal(t, 0.25, settings.GateLen)

	exported := w.ExportState()
	for _, m := range exported.Modules {
		if m.ID == "seq-1" {
			assert.Equal(t, 16.0, m.State["steps"])
			assert.Len(t, m.State["pattern"], 16)
		}
	}
}
