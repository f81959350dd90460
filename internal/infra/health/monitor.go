package health

import (
	"context"
	"sync"
	"time"
)

// Checker probes one dependency.
type Checker interface {
	Health(ctx context.Context) error
}

// Counter reports the failed-jobs queue depth.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Sizer reports the content index size.
type Sizer interface {
	Len() int
}

// Monitor aggregates health status from the pipeline's dependencies.
// The generation backend is the only hard dependency; Redis and the
// database degrade the system when down but never make it critical.
type Monitor struct {
	backend Checker
	redis   Checker // nil when Redis is not configured
	db      Checker // nil when running on the file index
	index   Sizer
	failed  Counter // nil when Redis is not configured

	lastCheck  time.Time
	lastReport Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Optional dependencies may be
// nil and are then omitted from the report.
func NewMonitor(backend Checker, redis, db Checker, index Sizer, failed Counter) *Monitor {
	return &Monitor{backend: backend, redis: redis, db: db, index: index, failed: failed}
}

// checkInterval rate-limits probes so /health polling does not hammer
// the backend.
const checkInterval = 10 * time.Second

// CheckHealth probes every configured dependency and aggregates the
// result (worst case wins).
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < checkInterval && m.lastReport.Components != nil {
		return m.lastReport
	}

	report := Report{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}

	report.Components["backend"] = m.probe(ctx, "backend", m.backend, StatusCritical)
	if m.redis != nil {
		report.Components["redis"] = m.probe(ctx, "redis", m.redis, StatusDegraded)
	}
	if m.db != nil {
		report.Components["database"] = m.probe(ctx, "database", m.db, StatusDegraded)
	}

	if m.index != nil {
		report.IndexEntries = m.index.Len()
	}
	if m.failed != nil {
		if count, err := m.failed.Count(ctx); err == nil {
			report.FailedJobs = count
			if count > 0 && report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
	}

	for _, c := range report.Components {
		if c.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if c.Status == StatusDegraded && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) probe(ctx context.Context, name string, c Checker, onFail SystemStatus) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.Health(ctx); err != nil {
		return ComponentHealth{Component: name, Status: onFail, Detail: err.Error()}
	}
	return ComponentHealth{Component: name, Status: StatusHealthy}
}
