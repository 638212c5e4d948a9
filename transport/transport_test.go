package transport_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/patchbay/transport"
)

type fakeClock struct {
	mu  sync.Mutex
	now float64
}

func (c *fakeClock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t float64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func record(s *transport.Scheduler, name string) *[]transport.Event {
	var events []transport.Event
	s.Subscribe(name, func(ev transport.Event) { events = append(events, ev) })
	return &events
}

func TestClampBPM(t *testing.T) {
	for _, tt := range []struct{ in, want float64 }{
		{120, 120},
		{5, transport.MinBPM},
		{5000, transport.MaxBPM},
		{20, 20},
		{300, 300},
	} {
		assert.Equal(t, tt.want, transport.ClampBPM(tt.in), "ClampBPM(%v)", tt.in)
	}
}

func TestPollBeforeStart(t *testing.T) {
	clock := &fakeClock{}
	s := transport.New(clock)
	events := record(s, "a")
	clock.set(10)
	assert.Zero(t, s.Poll())
	assert.Empty(t, *events)
}

func TestTicksAreMonotonic(t *testing.T) {
	clock := &fakeClock{}
	s := transport.New(clock, transport.WithBPM(150), transport.WithPPQN(2))
	events := record(s, "a")
	s.Start()
	assert.Equal(t, transport.DefaultStartOffset, s.NextTime())

	for now := 0.0; now < 3; now += 0.016 {
		clock.set(now)
		s.Poll()
	}
	require.NotEmpty(t, *events)
	spt := transport.SecondsPerTick(150, 2)
	for i, ev := range *events {
		assert.Equal(t, int64(i), ev.Tick)
		assert.Equal(t, int64(i/2), ev.Beat)
		assert.InDelta(t, transport.DefaultStartOffset+float64(i)*spt, ev.Time, 1e-9)
		assert.False(t, ev.Reset)
	}
}

func TestLatePollCatchesUp(t *testing.T) {
	clock := &fakeClock{}
	s := transport.New(clock, transport.WithLookahead(0.1), transport.WithStartOffset(0))
	events := record(s, "a")
	s.Start()
	// 0.125 s per tick: a one second stall must emit every missed tick
	clock.set(1)
	n := s.Poll()
	assert.Equal(t, 9, n)
	assert.Len(t, *events, 9)
	assert.Equal(t, int64(9), s.Tick())
	assert.Zero(t, s.Poll())
}

func TestReset(t *testing.T) {
	clock := &fakeClock{}
	s := transport.New(clock, transport.WithStartOffset(0.05))
	events := record(s, "a")
	s.Start()
	clock.set(0.5)
	s.Poll()
	require.NotZero(t, s.Tick())

	s.Reset()
	last := (*events)[len(*events)-1]
	assert.True(t, last.Reset)
	assert.Equal(t, 0.5, last.Time)
	assert.Zero(t, s.Tick())
	assert.InDelta(t, 0.55, s.NextTime(), 1e-9)

	*events = nil
	s.Poll()
	require.NotEmpty(t, *events)
	assert.Equal(t, int64(0), (*events)[0].Tick)

	s.Stop()
	clock.set(2)
	s.Reset()
	assert.Equal(t, 2.0, s.NextTime())
	assert.True(t, (*events)[len(*events)-1].Reset, "reset is emitted even when stopped")
}

func TestSetBPM(t *testing.T) {
	clock := &fakeClock{}
	s := transport.New(clock, transport.WithStartOffset(0))
	events := record(s, "a")
	s.Start()
	clock.set(0.01)
	s.Poll() // ticks 0 at 0 (horizon 0.11)
	assert.Equal(t, float64(transport.MaxBPM), s.SetBPM(900))
	clock.set(0.1)
	s.Poll()
	require.Len(t, *events, 3)
	// the already scheduled tick keeps its time, then the new tempo applies
	assert.InDelta(t, 0.125, (*events)[1].Time, 1e-9)
	assert.InDelta(t, 0.125+transport.SecondsPerTick(transport.MaxBPM, 4), (*events)[2].Time, 1e-9)
	assert.Equal(t, float64(transport.MaxBPM), (*events)[2].BPM)
}

func TestSubscriberOrderAndCancel(t *testing.T) {
	clock := &fakeClock{}
	s := transport.New(clock, transport.WithStartOffset(0))
	var order []string
	a := s.Subscribe("a", func(transport.Event) { order = append(order, "a") })
	s.Subscribe("b", func(transport.Event) { order = append(order, "b") })
	s.Subscribe("a", func(transport.Event) { order = append(order, "a2") })
	assert.Equal(t, []string{"a", "b"}, s.Subscribers())

	s.Start()
	s.Poll()
	assert.Equal(t, []string{"a2", "b"}, order)

	a.Cancel()
	a.Cancel()
	assert.Equal(t, []string{"b"}, s.Subscribers())
	s.Unsubscribe("b")
	assert.Empty(t, s.Subscribers())
	var nilSub *transport.Subscription
	nilSub.Cancel()
}

func TestCancelAfterNameReuse(t *testing.T) {
	s := transport.New(&fakeClock{})
	old := s.Subscribe("seq", func(transport.Event) {})
	old.Cancel()
	fresh := s.Subscribe("seq", func(transport.Event) {})
	old.Cancel()
	assert.Equal(t, []string{"seq"}, s.Subscribers())
	assert.Equal(t, "seq", fresh.Name())
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	var logs bytes.Buffer
	clock := &fakeClock{}
	s := transport.New(clock,
		transport.WithStartOffset(0),
		transport.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	s.Subscribe("bad", func(transport.Event) { panic("boom") })
	events := record(s, "good")
	s.Start()
	s.Poll()
	assert.Len(t, *events, 1)
	assert.Contains(t, logs.String(), "subscriber=bad")
	assert.Contains(t, logs.String(), "boom")
}

func TestSubscriberMayCallBack(t *testing.T) {
	clock := &fakeClock{}
	s := transport.New(clock, transport.WithStartOffset(0))
	s.Subscribe("tempo", func(ev transport.Event) {
		if ev.Tick == 0 {
			s.SetBPM(60)
		}
	})
	s.Start()
	s.Poll()
	assert.Equal(t, 60.0, s.BPM())
}

func TestRun(t *testing.T) {
	clock := &fakeClock{}
	s := transport.New(clock, transport.WithStartOffset(0))
	ticked := make(chan struct{}, 1)
	s.Subscribe("a", func(transport.Event) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})
	s.Start()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Millisecond) }()
	select {
	case <-ticked:
	case <-time.After(5 * time.Second):
		t.Fatal("no tick emitted by Run")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
