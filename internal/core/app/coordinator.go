package app

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainerrors "crossmod/internal/core/errors"
	"crossmod/internal/core/ports"
	"crossmod/internal/data/history"
	"crossmod/internal/shared/observability"
	"crossmod/internal/shared/util"
)

// Analyzer runs cycles for a set of projects. Workspace implements it.
type Analyzer interface {
	Analyze(ctx context.Context, projects ...string) ([]CycleReport, error)
	Projects() []string
}

// Result is the outcome of one submitted request.
type Result struct {
	Scope   []string
	Status  string
	Reports []CycleReport
	Err     error
}

type CoordinatorOptions struct {
	// Limiter bounds how often cycles start. Nil means unlimited.
	Limiter  *util.Limiter
	History  ports.HistoryStore
	OnResult func(Result)
}

type request struct {
	scope    string
	projects []string
	done     chan Result
}

// Coordinator queues cycle requests and runs them one at a time. A request
// for a scope that already has a queued, not yet started request replaces it;
// the replaced request completes as superseded. OnResult sees every completed
// request, superseded ones included.
type Coordinator struct {
	analyzer Analyzer
	limiter  *util.Limiter
	history  ports.HistoryStore
	onResult func(Result)

	mu      sync.Mutex
	queue   []*request
	byScope map[string]*request
	wake    chan struct{}
}

func NewCoordinator(analyzer Analyzer, opts CoordinatorOptions) *Coordinator {
	if opts.Limiter == nil {
		opts.Limiter = util.NewLimiter(0, 1)
	}
	return &Coordinator{
		analyzer: analyzer,
		limiter:  opts.Limiter,
		history:  opts.History,
		onResult: opts.OnResult,
		byScope:  make(map[string]*request),
		wake:     make(chan struct{}, 1),
	}
}

func scopeKey(projects []string) string {
	if len(projects) == 0 {
		return "*"
	}
	sorted := append([]string(nil), projects...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Submit queues a cycle over projects (all projects when empty). The returned
// channel receives exactly one Result.
func (c *Coordinator) Submit(projects ...string) <-chan Result {
	req := &request{
		scope:    scopeKey(projects),
		projects: append([]string(nil), projects...),
		done:     make(chan Result, 1),
	}

	c.mu.Lock()
	old, replaced := c.byScope[req.scope]
	if replaced {
		for i, q := range c.queue {
			if q == old {
				c.queue[i] = req
				break
			}
		}
	} else {
		c.queue = append(c.queue, req)
	}
	c.byScope[req.scope] = req
	c.mu.Unlock()

	if replaced {
		c.supersede(old)
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return req.done
}

func (c *Coordinator) supersede(req *request) {
	observability.CycleRequestsSupersededTotal.Inc()
	observability.CyclesTotal.WithLabelValues(history.StatusSuperseded).Inc()
	slog.Debug("cycle request superseded", "scope", req.scope)

	if c.history != nil {
		projects := req.projects
		if len(projects) == 0 {
			projects = c.analyzer.Projects()
		}
		now := time.Now().UTC()
		for _, p := range projects {
			run := history.CycleRun{ID: uuid.NewString(), Project: p, StartedAt: now, Status: history.StatusSuperseded}
			if err := c.history.SaveRun(run); err != nil {
				slog.Warn("failed to save superseded cycle", "project", p, "error", err)
			}
		}
	}

	res := Result{Scope: req.projects, Status: history.StatusSuperseded}
	req.done <- res
	if c.onResult != nil {
		c.onResult(res)
	}
}

// Pending returns how many requests wait to start.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// SetRate changes the cycle start rate.
func (c *Coordinator) SetRate(perSecond float64, burst int) {
	c.limiter.SetRate(perSecond, burst)
}

func (c *Coordinator) next() *request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	req := c.queue[0]
	c.queue = c.queue[1:]
	delete(c.byScope, req.scope)
	return req
}

// Run processes requests until ctx is done. Requests still queued then
// complete as cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		req := c.next()
		if req == nil {
			select {
			case <-ctx.Done():
				c.drain(ctx.Err())
				return ctx.Err()
			case <-c.wake:
				continue
			}
		}

		if err := c.limiter.Wait(ctx, 1); err != nil {
			req.done <- Result{Scope: req.projects, Status: history.StatusCancelled, Err: domainerrors.Cancelled(err, "cycle")}
			c.drain(err)
			return ctx.Err()
		}

		reports, err := c.analyzer.Analyze(ctx, req.projects...)
		res := Result{Scope: req.projects, Reports: reports, Err: err, Status: history.StatusCompleted}
		switch {
		case err == nil:
		case domainerrors.IsCode(err, domainerrors.CodeCancelled):
			res.Status = history.StatusCancelled
		default:
			res.Status = history.StatusFailed
			slog.Error("cycle failed", "scope", req.scope, "error", err)
		}
		req.done <- res
		if c.onResult != nil {
			c.onResult(res)
		}
	}
}

func (c *Coordinator) drain(cause error) {
	c.mu.Lock()
	queued := c.queue
	c.queue = nil
	c.byScope = make(map[string]*request)
	c.mu.Unlock()
	for _, req := range queued {
		req.done <- Result{Scope: req.projects, Status: history.StatusCancelled, Err: domainerrors.Cancelled(cause, "cycle")}
	}
}
