// Package midiout mirrors what the patch plays to a MIDI output port: the
// notes triggered by sequencers, and the transport clock as MIDI realtime
// messages.
package midiout

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/vsariola/patchbay/module"
	"github.com/vsariola/patchbay/transport"
	"gitlab.com/gomidi/midi/v2"
)

// ClocksPerQuarter is the rate of MIDI timing clock messages.
const ClocksPerQuarter = 24

type (
	// Sender writes a message to a port, as returned by midi.SendTo.
	Sender func(midi.Message) error

	// Clock gives the current engine time in seconds.
	Clock interface {
		CurrentTime() float64
	}

	// Out converts note and tick events, which are stamped with engine
	// times, into messages sent at the corresponding wall clock times.
	Out struct {
		send      Sender
		clock     Clock
		channel   uint8
		afterFunc func(time.Duration, func())
		log       *slog.Logger

		mu      sync.Mutex
		ticks   int // since start or reset
		running bool
	}

	Option func(*Out)
)

// WithChannel sets the MIDI channel of the notes, 1 to 16.
func WithChannel(ch int) Option {
	return func(o *Out) {
		if ch >= 1 && ch <= 16 {
			o.channel = uint8(ch - 1)
		}
	}
}

// WithAfterFunc replaces time.AfterFunc as the way of delaying messages.
func WithAfterFunc(f func(time.Duration, func())) Option {
	return func(o *Out) { o.afterFunc = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Out) { o.log = l }
}

func New(send Sender, clock Clock, opts ...Option) *Out {
	o := &Out{
		send:      send,
		clock:     clock,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Follow mirrors the notes of a sequencer.
func (o *Out) Follow(seq *module.Sequencer) {
	seq.OnNote(o.Note)
}

// Sync mirrors the ticks of a transport as timing clock messages. Start and
// Stop are not mirrored automatically; call the methods of Out alongside the
// ones of the transport.
func (o *Out) Sync(t *module.Transport) *transport.Subscription {
	return t.Scheduler().Subscribe(t.ID()+"/midi", o.Tick)
}

// Note sends a note on at the start of the note and a note off at its end.
func (o *Out) Note(ev module.NoteEvent) {
	key := uint8(math.Max(0, math.Min(127, math.Round(ev.Midi))))
	vel := uint8(math.Max(1, math.Min(127, math.Round(ev.Velocity*127))))
	o.at(ev.Time, midi.NoteOn(o.channel, key, vel))
	o.at(ev.Time+ev.Duration, midi.NoteOff(o.channel, key))
}

// Tick sends the timing clocks that fall within the tick, spread evenly over
// its duration. A reset event realigns the clock to the tick grid.
func (o *Out) Tick(ev transport.Event) {
	o.mu.Lock()
	if ev.Reset || !o.running {
		o.ticks = 0
		o.mu.Unlock()
		return
	}
	k := o.ticks
	o.ticks++
	o.mu.Unlock()
	n := (k+1)*ClocksPerQuarter/ev.PPQN - k*ClocksPerQuarter/ev.PPQN
	spacing := transport.SecondsPerTick(ev.BPM, ev.PPQN) / float64(max(n, 1))
	for i := range n {
		o.at(ev.Time+float64(i)*spacing, midi.TimingClock())
	}
}

// Start sends a MIDI start message and begins sending timing clocks.
func (o *Out) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.ticks = 0
	o.mu.Unlock()
	o.sendNow(midi.Start())
}

// Stop sends a MIDI stop message.
func (o *Out) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()
	o.sendNow(midi.Stop())
}

func (o *Out) at(when float64, msg midi.Message) {
	d := when - o.clock.CurrentTime()
	if d <= 0 {
		o.sendNow(msg)
		return
	}
	o.afterFunc(time.Duration(d*float64(time.Second)), func() { o.sendNow(msg) })
}

func (o *Out) sendNow(msg midi.Message) {
	if err := o.send(msg); err != nil {
		o.log.Warn("could not send midi message", "msg", msg.String(), "err", err)
	}
}
