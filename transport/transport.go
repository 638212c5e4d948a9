// Package transport implements the look-ahead scheduler that drives the
// musical clock. A coarse, jitter-prone polling loop pre-commits ticks that
// fall within a short horizon; each tick carries its exact scheduled engine
// time, so listeners can schedule their output changes sample-accurately on
// the engine's own timeline.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	MinBPM = 20
	MaxBPM = 300

	DefaultBPM          = 120
	DefaultPPQN         = 4
	DefaultLookahead    = 0.1  // seconds
	DefaultStartOffset  = 0.05 // seconds
	DefaultPollInterval = 16 * time.Millisecond
)

type (
	// Clock gives the current time in seconds. patchbay.Engine satisfies
	// it.
	Clock interface {
		CurrentTime() float64
	}

	// Event is a single tick of the clock. Time is the engine time at which
	// the tick should take effect, which is usually a bit in the future.
	Event struct {
		Time  float64
		BPM   float64
		PPQN  int
		Tick  int64
		Beat  int64
		Reset bool
	}

	// Func is called for every tick and reset event.
	Func func(Event)

	Scheduler struct {
		clock       Clock
		lookahead   float64
		startOffset float64
		log         *slog.Logger

		mu       sync.Mutex
		bpm      float64
		ppqn     int
		running  bool
		tick     int64
		nextTime float64
		subs     []*Subscription
	}

	// Subscription is a handle returned by Subscribe.
	Subscription struct {
		s    *Scheduler
		name string
		fn   Func
	}

	Option func(*Scheduler)
)

func WithLookahead(seconds float64) Option {
	return func(s *Scheduler) { s.lookahead = seconds }
}

func WithStartOffset(seconds float64) Option {
	return func(s *Scheduler) { s.startOffset = seconds }
}

func WithPPQN(ppqn int) Option {
	return func(s *Scheduler) {
		if ppqn > 0 {
			s.ppqn = ppqn
		}
	}
}

func WithBPM(bpm float64) Option {
	return func(s *Scheduler) { s.bpm = ClampBPM(bpm) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func New(clock Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:       clock,
		lookahead:   DefaultLookahead,
		startOffset: DefaultStartOffset,
		bpm:         DefaultBPM,
		ppqn:        DefaultPPQN,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampBPM limits bpm to [MinBPM, MaxBPM].
func ClampBPM(bpm float64) float64 {
	if bpm != bpm || bpm < MinBPM { // NaN or too small
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

// SecondsPerTick is the duration of one tick at the given tempo.
func SecondsPerTick(bpm float64, ppqn int) float64 {
	return 60 / bpm / float64(ppqn)
}

// Start puts the scheduler in the running state. The first tick is
// scheduled slightly in the future. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.nextTime = s.clock.CurrentTime() + s.startOffset
	s.log.Debug("transport started", "bpm", s.bpm, "ppqn", s.ppqn)
}

// Stop cancels all future polls. A poll already in progress completes its
// batch.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.log.Debug("transport stopped", "tick", s.tick)
}

// Reset rewinds the clock to tick zero and emits one reset event, whether
// the scheduler is running or not.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	now := s.clock.CurrentTime()
	s.tick = 0
	if s.running {
		s.nextTime = now + s.startOffset
	} else {
		s.nextTime = now
	}
	ev := Event{Time: now, BPM: s.bpm, PPQN: s.ppqn, Reset: true}
	subs := s.snapshot()
	s.mu.Unlock()
	s.fanout(subs, []Event{ev})
}

// SetBPM changes the tempo, clamped to [MinBPM, MaxBPM], and returns the
// tempo that was actually applied. The next tick keeps its time; the ticks
// after that follow the new tempo.
func (s *Scheduler) SetBPM(bpm float64) float64 {
	bpm = ClampBPM(bpm)
	s.mu.Lock()
	s.bpm = bpm
	s.mu.Unlock()
	return bpm
}

// SetPPQN changes the resolution. The tick index is kept, so the beat
// numbers jump if the scheduler is running.
func (s *Scheduler) SetPPQN(ppqn int) {
	if ppqn <= 0 {
		return
	}
	s.mu.Lock()
	s.ppqn = ppqn
	s.mu.Unlock()
}

func (s *Scheduler) BPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

func (s *Scheduler) PPQN() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ppqn
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tick returns the index of the next tick to be emitted.
func (s *Scheduler) Tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// NextTime returns the scheduled time of the next tick.
func (s *Scheduler) NextTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextTime
}

// Poll emits every tick whose scheduled time falls before now + lookahead
// and returns the number of ticks emitted. A late poll catches up by
// emitting several ticks; no tick is ever skipped. When the scheduler is not
// running, Poll does nothing.
func (s *Scheduler) Poll() int {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return 0
	}
	horizon := s.clock.CurrentTime() + s.lookahead
	spt := SecondsPerTick(s.bpm, s.ppqn)
	var batch []Event
	for s.nextTime < horizon {
		batch = append(batch, Event{
			Time: s.nextTime,
			BPM:  s.bpm,
			PPQN: s.ppqn,
			Tick: s.tick,
			Beat: s.tick / int64(s.ppqn),
		})
		s.nextTime += spt
		s.tick++
	}
	subs := s.snapshot()
	s.mu.Unlock()
	s.fanout(subs, batch)
	return len(batch)
}

// Run is the scheduling loop: it polls every interval until ctx is done.
// The running flag, toggled by Start and Stop, decides whether a poll
// emits anything, so Run can be left going across start/stop cycles.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Poll()
		}
	}
}

// Subscribe registers fn to be called for every tick and reset event, after
// all earlier subscribers. Subscribing with a name already in use replaces
// the callback but keeps its position.
func (s *Scheduler) Subscribe(name string, fn Func) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.name == name {
			sub.fn = fn
			return sub
		}
	}
	sub := &Subscription{s: s, name: name, fn: fn}
	s.subs = append(s.subs, sub)
	return sub
}

// Unsubscribe removes the subscriber with the given name, if any.
func (s *Scheduler) Unsubscribe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.name == name {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the names of the subscribers in notification order.
func (s *Scheduler) Subscribers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]string, len(s.subs))
	for i, sub := range s.subs {
		ret[i] = sub.name
	}
	return ret
}

func (sub *Subscription) Name() string { return sub.name }

// Cancel removes the subscription. It is safe to call more than once, also
// after the subscriber name has been reused by someone else.
func (sub *Subscription) Cancel() {
	if sub == nil {
		return
	}
	s := sub.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.subs {
		if x == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

type delivery struct {
	name string
	fn   Func
}

func (s *Scheduler) snapshot() []delivery {
	ret := make([]delivery, len(s.subs))
	for i, sub := range s.subs {
		ret[i] = delivery{name: sub.name, fn: sub.fn}
	}
	return ret
}

func (s *Scheduler) fanout(subs []delivery, events []Event) {
	for _, ev := range events {
		for _, d := range subs {
			s.deliver(d, ev)
		}
	}
}

func (s *Scheduler) deliver(d delivery, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("transport subscriber failed", "subscriber", d.name, "tick", ev.Tick, "reset", ev.Reset, "err", fmt.Sprint(r))
		}
	}()
	d.fn(ev)
}
