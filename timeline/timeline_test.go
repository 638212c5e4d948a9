package timeline_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/timeline"
)

func TestParamEvaluation(t *testing.T) {
	eng := timeline.New(timeline.WithClock(&timeline.ManualClock{}))
	g := eng.NewGain()
	p := g.Gain().(*timeline.Param)
	assert.Equal(t, 1.0, p.ValueAt(0), "gain starts at unity")

	p.SetValueAtTime(0.5, 1)
	p.LinearRampToValueAtTime(1.5, 2)
	p.SetTargetAtTime(0, 3, 0.5)

	for _, tt := range []struct {
		t, want float64
	}{
		{0.5, 1},
		{1, 0.5},
		{1.5, 1},
		{2, 1.5},
		{2.5, 1.5},
		{3, 1.5},
		{3.5, 1.5 * math.Exp(-1)},
		{13, 1.5 * math.Exp(-20)},
	} {
		assert.InDelta(t, tt.want, p.ValueAt(tt.t), 1e-9, "value at %v", tt.t)
	}

	p.CancelScheduledValues(2)
	assert.Len(t, p.Events(), 1)
	assert.InDelta(t, 0.5, p.ValueAt(10), 1e-9)

	p.SetTargetAtTime(2, 4, 0)
	assert.Equal(t, timeline.SetValue, p.Events()[1].Kind)
	assert.Equal(t, 2.0, p.ValueAt(4))
}

func TestRampFromInitialValue(t *testing.T) {
	eng := timeline.New()
	p := eng.NewConstantSource().Offset().(*timeline.Param)
	p.LinearRampToValueAtTime(3, 2)
	assert.InDelta(t, 1, p.ValueAt(0), 1e-9)
	assert.InDelta(t, 2, p.ValueAt(1), 1e-9)
	assert.InDelta(t, 3, p.ValueAt(5), 1e-9)
}

func TestEdges(t *testing.T) {
	eng := timeline.New()
	osc := eng.NewOscillator()
	g := eng.NewGain()
	lfo := eng.NewOscillator()
	osc.Connect(g)
	osc.Connect(g)
	g.Connect(eng.Destination())
	lfo.ConnectParam(osc.Frequency())
	assert.Equal(t, []timeline.Edge{
		{From: "gain#2", To: "destination#0"},
		{From: "oscillator#1", To: "gain#2"},
		{From: "oscillator#3", To: "oscillator#1.frequency"},
	}, eng.Edges())

	lfo.DisconnectParam(osc.Frequency())
	osc.Disconnect(eng.Destination())
	g.DisconnectAll()
	assert.Equal(t, []timeline.Edge{{From: "oscillator#1", To: "gain#2"}}, eng.Edges())
	assert.True(t, timeline.Unwrap(osc).Linked(g))
	assert.Nil(t, timeline.Unwrap(nil))
}

func TestSourceLifecycle(t *testing.T) {
	eng := timeline.New()
	src := eng.NewConstantSource()
	assert.ErrorIs(t, src.Stop(0), patchbay.ErrAlreadyStopped)
	require.NoError(t, src.Start(0.5))
	assert.ErrorIs(t, src.Start(1), patchbay.ErrAlreadyStarted)
	assert.True(t, patchbay.IsTransient(src.Start(1)))
	n := timeline.Unwrap(src)
	assert.True(t, n.Running())
	assert.Equal(t, 0.5, n.StartTime())
	require.NoError(t, src.Stop(1))
	assert.ErrorIs(t, src.Stop(1), patchbay.ErrAlreadyStopped)
	assert.False(t, n.Running())
}

func TestSuspendFreezesTime(t *testing.T) {
	clock := &timeline.ManualClock{}
	eng := timeline.New(timeline.WithClock(clock), timeline.WithSampleRate(48000))
	assert.Equal(t, 48000.0, eng.SampleRate())
	ctx := context.Background()
	clock.Set(1)
	assert.Equal(t, 1.0, eng.CurrentTime())

	require.NoError(t, eng.Suspend(ctx))
	require.NoError(t, eng.Suspend(ctx))
	assert.True(t, eng.Suspended())
	clock.Advance(2)
	assert.Equal(t, 1.0, eng.CurrentTime())

	require.NoError(t, eng.Resume(ctx))
	clock.Advance(0.5)
	assert.Equal(t, 1.5, eng.CurrentTime())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, eng.Suspend(canceled), context.Canceled)
	assert.False(t, eng.Suspended())
}

func TestBufferAssignments(t *testing.T) {
	eng := timeline.New()
	conv := eng.NewConvolver()
	b := eng.NewBuffer(2, 10)
	assert.Equal(t, 2, b.NumChannels())
	assert.Equal(t, eng.SampleRate(), b.SampleRate)
	conv.SetBuffer(b)
	conv.SetBuffer(b)
	n := timeline.Unwrap(conv)
	assert.Equal(t, 2, n.BufferSets())
	assert.Same(t, b, n.Buffer())

	ws := eng.NewWaveShaper()
	ws.SetCurve([]float32{-1, 0, 1})
	ws.SetOversample(patchbay.Oversample2x)
	assert.Equal(t, 1, timeline.Unwrap(ws).CurveSets())
	assert.Equal(t, patchbay.Oversample2x, timeline.Unwrap(ws).Oversample())
}
