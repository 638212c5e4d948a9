package timeline

import (
	"math"
	"sort"

	"github.com/vsariola/patchbay"
)

type (
	// Param keeps the automation events scheduled on a node parameter,
	// sorted by time.
	Param struct {
		eng     *Engine
		owner   *Node
		name    string
		initial float64
		events  []Event
	}

	Event struct {
		Kind         EventKind
		Time         float64
		Value        float64
		TimeConstant float64 // only for SetTarget
	}

	EventKind int
)

const (
	SetValue EventKind = iota
	SetTarget
	LinearRamp
)

var _ patchbay.Param = (*Param)(nil)

func (k EventKind) String() string {
	switch k {
	case SetValue:
		return "set"
	case SetTarget:
		return "target"
	case LinearRamp:
		return "linear"
	}
	return "unknown"
}

func (p *Param) Name() string { return p.name }

// Owner returns the node the parameter belongs to.
func (p *Param) Owner() *Node { return p.owner }

// Value returns the value of the parameter at the current engine time.
func (p *Param) Value() float64 {
	p.eng.mu.Lock()
	defer p.eng.mu.Unlock()
	return p.valueAt(p.eng.now())
}

// ValueAt evaluates the automation timeline of the parameter at time t.
func (p *Param) ValueAt(t float64) float64 {
	p.eng.mu.Lock()
	defer p.eng.mu.Unlock()
	return p.valueAt(t)
}

// Events returns a copy of the scheduled automation events.
func (p *Param) Events() []Event {
	p.eng.mu.Lock()
	defer p.eng.mu.Unlock()
	ret := make([]Event, len(p.events))
	copy(ret, p.events)
	return ret
}

func (p *Param) SetValueAtTime(value, time float64) {
	p.insert(Event{Kind: SetValue, Time: time, Value: value})
}

func (p *Param) SetTargetAtTime(target, startTime, timeConstant float64) {
	if timeConstant <= 0 {
		p.insert(Event{Kind: SetValue, Time: startTime, Value: target})
		return
	}
	p.insert(Event{Kind: SetTarget, Time: startTime, Value: target, TimeConstant: timeConstant})
}

func (p *Param) LinearRampToValueAtTime(value, endTime float64) {
	p.insert(Event{Kind: LinearRamp, Time: endTime, Value: value})
}

// CancelScheduledValues removes all events at or after cancelTime.
func (p *Param) CancelScheduledValues(cancelTime float64) {
	p.eng.mu.Lock()
	defer p.eng.mu.Unlock()
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].Time >= cancelTime })
	p.events = p.events[:i]
}

func (p *Param) insert(e Event) {
	p.eng.mu.Lock()
	defer p.eng.mu.Unlock()
	// events with equal times keep their insertion order
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].Time > e.Time })
	p.events = append(p.events, Event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

func (p *Param) valueAt(t float64) float64 {
	v, vt := p.initial, 0.0
	var active *Event // SetTarget in progress since vt
	at := func(x float64) float64 {
		if active == nil || x <= vt {
			return v
		}
		return active.Value + (v-active.Value)*math.Exp(-(x-vt)/active.TimeConstant)
	}
	for i := range p.events {
		e := &p.events[i]
		if e.Time > t {
			if e.Kind == LinearRamp {
				start := at(vt)
				if e.Time <= vt {
					return e.Value
				}
				return start + (e.Value-start)*(t-vt)/(e.Time-vt)
			}
			break
		}
		switch e.Kind {
		case SetValue, LinearRamp:
			v, vt, active = e.Value, e.Time, nil
		case SetTarget:
			v, vt, active = at(e.Time), e.Time, e
		}
	}
	return at(t)
}
