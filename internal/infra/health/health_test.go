package health

import (
	"context"
	"errors"
	"testing"
)

// =============================================================================
// Mocks
// =============================================================================

type stubChecker struct {
	err error
}

func (s *stubChecker) Health(context.Context) error { return s.err }

type stubCounter struct {
	count int
}

func (s *stubCounter) Count(context.Context) (int, error) { return s.count, nil }

type stubSizer struct {
	size int
}

func (s *stubSizer) Len() int { return s.size }

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	monitor := NewMonitor(
		&stubChecker{},
		&stubChecker{},
		&stubChecker{},
		&stubSizer{size: 12},
		&stubCounter{count: 0},
	)

	report := monitor.CheckHealth(context.Background())

	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if report.IndexEntries != 12 {
		t.Errorf("expected 12 index entries, got %d", report.IndexEntries)
	}
}

func TestMonitor_DegradedOnRedisFailure(t *testing.T) {
	monitor := NewMonitor(
		&stubChecker{},
		&stubChecker{err: errors.New("connection refused")},
		nil,
		&stubSizer{},
		nil,
	)

	report := monitor.CheckHealth(context.Background())

	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
}

func TestMonitor_DegradedOnFailedJobs(t *testing.T) {
	monitor := NewMonitor(
		&stubChecker{},
		&stubChecker{},
		nil,
		&stubSizer{},
		&stubCounter{count: 3},
	)

	report := monitor.CheckHealth(context.Background())

	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	if report.FailedJobs != 3 {
		t.Errorf("expected 3 failed jobs, got %d", report.FailedJobs)
	}
}

func TestMonitor_CriticalOnBackendFailure(t *testing.T) {
	monitor := NewMonitor(
		&stubChecker{err: errors.New("backend unreachable")},
		&stubChecker{},
		&stubChecker{},
		&stubSizer{},
		&stubCounter{},
	)

	report := monitor.CheckHealth(context.Background())

	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
	if report.Components["backend"].Detail == "" {
		t.Error("expected backend failure detail")
	}
}

func TestMonitor_OptionalDependenciesOmitted(t *testing.T) {
	monitor := NewMonitor(&stubChecker{}, nil, nil, nil, nil)

	report := monitor.CheckHealth(context.Background())

	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if _, ok := report.Components["redis"]; ok {
		t.Error("redis should be absent from the report")
	}
	if _, ok := report.Components["database"]; ok {
		t.Error("database should be absent from the report")
	}
}
