// Package parser turns source units into module models. It ships header-level
// grammars for ASN.1 and TTCN-3 and a pool that parses batches concurrently.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crossmod/internal/core/ports"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/source"
	"crossmod/internal/shared/observability"
)

// Result is the parse outcome of one unit.
type Result struct {
	Unit        source.Handle
	Version     uint64
	Module      *module.Module
	Diagnostics []*diag.Diagnostic
	// HighlyErroneous units did not yield a module identifier.
	HighlyErroneous bool
	Cached          bool
	Duration        time.Duration
	Err             error
}

// Pool parses batches of units through a scheduler. Each unit writes only its
// own result slot, so no state is shared between workers.
type Pool struct {
	grammar ports.Grammar
	cache   *Cache
}

// NewPool creates a pool. cache may be nil.
func NewPool(grammar ports.Grammar, cache *Cache) *Pool {
	return &Pool{grammar: grammar, cache: cache}
}

// ParseBatch parses every snapshot and returns the results in input order. It
// stops submitting once the scheduler is cancelled; unparsed slots then carry
// the cancellation error.
func (p *Pool) ParseBatch(ctx context.Context, sched ports.Scheduler, units []source.Snapshot) ([]Result, error) {
	results := make([]Result, len(units))
	handles := make([]ports.TaskHandle, 0, len(units))

	for i, snap := range units {
		results[i] = Result{Unit: snap.Handle, Version: snap.Version}
		if sched.IsCancelled() {
			break
		}
		handles = append(handles, sched.Submit(func(context.Context) error {
			results[i] = p.parseOne(snap)
			return nil
		}))
	}

	if err := sched.AwaitAll(handles); err != nil {
		return results, err
	}
	if sched.IsCancelled() {
		return results, context.Canceled
	}
	return results, ctx.Err()
}

func (p *Pool) parseOne(snap source.Snapshot) (res Result) {
	res = Result{Unit: snap.Handle, Version: snap.Version}
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Module = nil
			res.HighlyErroneous = true
			res.Err = fmt.Errorf("parse %s: grammar panicked: %v", snap.Handle, r)
			res.Diagnostics = append(res.Diagnostics, diag.NewError(diag.CodeInternal,
				"grammar failed on this unit: %v", r).At(source.Location{Unit: snap.Handle}).InPhase(diag.PhaseSyntax))
		}
		res.Duration = time.Since(started)
	}()

	if m, diags, ok := p.cache.Get(snap.Handle, snap.Hash); ok {
		observability.ParseCacheHitsTotal.Inc()
		res.Module, res.Diagnostics, res.Cached = m, diags, true
		res.HighlyErroneous = m == nil
		return res
	}

	m, diags := p.grammar.Parse(snap.Handle, snap.Text)
	for _, d := range diags {
		if d.Phase == diag.PhaseUnset {
			d.Phase = diag.PhaseSyntax
		}
	}
	notation := "unknown"
	if m != nil {
		m.Unit = snap.Handle
		notation = m.Notation.String()
	} else {
		observability.HighlyErroneousUnitsTotal.Inc()
		diags = append(diags, diag.NewError(diag.CodeHighlyErroneous,
			"unit does not contain a recognizable module header").
			At(source.Location{Unit: snap.Handle}).InPhase(diag.PhaseSyntax))
	}
	observability.ParsingDuration.WithLabelValues(notation).Observe(time.Since(started).Seconds())
	slog.Debug("parsed unit", "unit", snap.Handle, "notation", notation, "diagnostics", len(diags))

	p.cache.Put(snap.Handle, snap.Hash, m, diags)
	res.Module, res.Diagnostics = m, diags
	res.HighlyErroneous = m == nil
	return res
}

// Forget drops cached results of a removed unit.
func (p *Pool) Forget(h source.Handle) {
	p.cache.Forget(h)
}
