package diag

import (
	"sort"
	"sync"

	"crossmod/internal/engine/source"
)

// Sink receives diagnostics.
type Sink interface {
	Report(d *Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(d *Diagnostic)

func (f SinkFunc) Report(d *Diagnostic) { f(d) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(*Diagnostic) {})

// Bag collects diagnostics grouped by the unit of their primary location.
type Bag struct {
	mu     sync.Mutex
	byUnit map[source.Handle][]*Diagnostic
}

func NewBag() *Bag {
	return &Bag{byUnit: make(map[source.Handle][]*Diagnostic)}
}

// Report stores d. Diagnostics without a unit are stored under the empty handle.
func (b *Bag) Report(d *Diagnostic) {
	if d == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byUnit[d.Location.Unit] = append(b.byUnit[d.Location.Unit], d)
}

// ClearUnit drops the diagnostics of h produced by the given phases, or all of
// them when no phase is given.
func (b *Bag) ClearUnit(h source.Handle, phases ...Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(phases) == 0 {
		delete(b.byUnit, h)
		return
	}
	drop := make(map[Phase]bool, len(phases))
	for _, p := range phases {
		drop[p] = true
	}
	kept := b.byUnit[h][:0]
	for _, d := range b.byUnit[h] {
		if !drop[d.Phase] {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		delete(b.byUnit, h)
		return
	}
	b.byUnit[h] = kept
}

// ClearPhase drops the diagnostics of every unit produced by phase.
func (b *Bag) ClearPhase(phase Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for h := range b.byUnit {
		kept := b.byUnit[h][:0]
		for _, d := range b.byUnit[h] {
			if d.Phase != phase {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(b.byUnit, h)
			continue
		}
		b.byUnit[h] = kept
	}
}

// ForUnit returns a copy of the diagnostics stored for h.
func (b *Bag) ForUnit(h source.Handle) []*Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Diagnostic(nil), b.byUnit[h]...)
}

// All returns every diagnostic ordered by location, then code.
func (b *Bag) All() []*Diagnostic {
	b.mu.Lock()
	res := make([]*Diagnostic, 0)
	for _, ds := range b.byUnit {
		res = append(res, ds...)
	}
	b.mu.Unlock()

	sort.SliceStable(res, func(i, j int) bool {
		a, c := res[i].Location, res[j].Location
		if a.Unit != c.Unit {
			return a.Unit < c.Unit
		}
		if a.Line != c.Line {
			return a.Line < c.Line
		}
		if a.Column != c.Column {
			return a.Column < c.Column
		}
		return res[i].Code < res[j].Code
	})
	return res
}

// Counts returns the number of errors and warnings currently stored.
func (b *Bag) Counts() (errors, warnings int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ds := range b.byUnit {
		for _, d := range ds {
			switch d.Severity {
			case Error:
				errors++
			case Warning:
				warnings++
			}
		}
	}
	return errors, warnings
}

func (b *Bag) HasErrors() bool {
	errs, _ := b.Counts()
	return errs > 0
}

func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ds := range b.byUnit {
		n += len(ds)
	}
	return n
}

// WithCode returns every stored diagnostic carrying code.
func (b *Bag) WithCode(code Code) []*Diagnostic {
	res := make([]*Diagnostic, 0)
	for _, d := range b.All() {
		if d.Code == code {
			res = append(res, d)
		}
	}
	return res
}

// PhaseSink stamps a default phase on everything it forwards.
func PhaseSink(next Sink, phase Phase) Sink {
	return SinkFunc(func(d *Diagnostic) {
		if d == nil {
			return
		}
		if d.Phase == PhaseUnset {
			d.Phase = phase
		}
		next.Report(d)
	})
}

// Collector is an unsynchronized Sink that keeps diagnostics in report order.
type Collector struct {
	Items []*Diagnostic
}

func (c *Collector) Report(d *Diagnostic) {
	if d != nil {
		c.Items = append(c.Items, d)
	}
}
