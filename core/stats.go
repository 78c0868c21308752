package core

import (
	"github.com/searchktools/tiny-server/core/observability"
	"github.com/searchktools/tiny-server/core/pools"
)

// Stats is a point-in-time view of the engine.
type Stats struct {
	Workers   pools.WorkerPoolStats
	Accepted  uint64
	Malformed uint64
	StaticDir string
	Requests  observability.Snapshot
}

// Stats returns worker pool, connection and per-route request statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		Workers:   e.workers.Stats(),
		Accepted:  e.accepted.Load(),
		Malformed: e.malformed.Load(),
		StaticDir: e.staticDir,
		Requests:  e.monitor.Snapshot(),
	}
}

// StatsFields returns Stats flattened for observability.StatsHandler.
func (e *Engine) StatsFields() map[string]any {
	return e.Stats().Fields()
}

// Fields flattens the stats for encoding.
func (s Stats) Fields() map[string]any {
	return map[string]any{
		"workers": map[string]any{
			"num_workers":     s.Workers.NumWorkers,
			"tasks_submitted": s.Workers.TasksSubmitted,
			"tasks_completed": s.Workers.TasksCompleted,
			"tasks_panicked":  s.Workers.TasksPanicked,
			"tasks_pending":   s.Workers.TasksPending,
			"tasks_running":   s.Workers.TasksRunning,
		},
		"connections": map[string]any{
			"accepted":  s.Accepted,
			"malformed": s.Malformed,
		},
		"static_dir": s.StaticDir,
		"requests":   s.Requests.Fields(),
	}
}
