package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cortexa-go/internal/assessment"
	"cortexa-go/internal/clock"
	"cortexa-go/internal/relay"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	ErrRunNotFound = errors.New("assessment run not found")

	runsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cortexa_runs_created_total",
		Help: "Assessment runs created.",
	})
	runsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cortexa_runs_active",
		Help: "Assessment runs currently held in memory.",
	})
)

// ConfigFunc returns the collaborators for a new run. Clock, Recognizer and Levels are
// filled in by the registry.
type ConfigFunc func() assessment.Config

// Run is one live battery with its own event loop and browser bridge. ID is the handle
// clients address; it survives Reset, which only rotates the submission run id.
type Run struct {
	ID     string
	Bridge *relay.Bridge

	loop       *clock.Loop
	orch       *assessment.Orchestrator
	lastActive atomic.Int64
}

// Do runs fn on the run's loop and waits for it.
func (r *Run) Do(fn func(o *assessment.Orchestrator) error) error {
	r.touch(time.Now())
	var err error
	if callErr := r.loop.Call(func() { err = fn(r.orch) }); callErr != nil {
		return ErrRunNotFound
	}
	return err
}

func (r *Run) touch(t time.Time) {
	r.lastActive.Store(t.UnixNano())
}

// LastActive is the time of the most recent Do.
func (r *Run) LastActive() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

func (r *Run) teardown() {
	_ = r.loop.Call(r.orch.Close)
	r.Bridge.Close()
	r.loop.Close()
}

// Registry holds the live runs.
type Registry struct {
	log       *zap.Logger
	newConfig ConfigFunc

	mu   sync.RWMutex
	runs map[string]*Run
}

func NewRegistry(log *zap.Logger, newConfig ConfigFunc) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:       log,
		newConfig: newConfig,
		runs:      make(map[string]*Run),
	}
}

// Create starts a new run for userID, which may be nil.
func (g *Registry) Create(userID *int64) (*Run, error) {
	id := uuid.NewString()
	log := g.log.With(zap.String("handle", id))
	loop := clock.NewLoop(log)
	bridge := relay.NewBridge(loop, log)

	cfg := g.newConfig()
	cfg.Clock = loop
	cfg.Recognizer = bridge
	cfg.Levels = bridge
	cfg.Log = log

	run := &Run{ID: id, Bridge: bridge, loop: loop}
	run.touch(time.Now())
	if err := loop.Call(func() {
		run.orch = assessment.New(cfg, userID)
		run.orch.Start()
	}); err != nil {
		loop.Close()
		return nil, err
	}

	g.mu.Lock()
	g.runs[id] = run
	g.mu.Unlock()
	runsCreated.Inc()
	runsActive.Inc()
	g.log.Info("Assessment run created", zap.String("handle", id))
	return run, nil
}

func (g *Registry) Get(id string) (*Run, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	run, ok := g.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// Remove tears a run down and forgets it.
func (g *Registry) Remove(id string) error {
	g.mu.Lock()
	run, ok := g.runs[id]
	delete(g.runs, id)
	g.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	run.teardown()
	runsActive.Dec()
	g.log.Info("Assessment run removed", zap.String("handle", id))
	return nil
}

// Sweep removes runs idle since before cutoff and returns how many went.
func (g *Registry) Sweep(cutoff time.Time) int {
	g.mu.RLock()
	var idle []string
	for id, run := range g.runs {
		if run.LastActive().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	g.mu.RUnlock()

	removed := 0
	for _, id := range idle {
		if g.Remove(id) == nil {
			removed++
		}
	}
	return removed
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.runs)
}

// Close tears down every run.
func (g *Registry) Close() {
	g.mu.RLock()
	ids := make([]string, 0, len(g.runs))
	for id := range g.runs {
		ids = append(ids, id)
	}
	g.mu.RUnlock()
	for _, id := range ids {
		_ = g.Remove(id)
	}
}
