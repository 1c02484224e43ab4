// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// PipelineHealth contains health data for one polling pipeline.
type PipelineHealth struct {
	Name       string       `json:"name"`
	Status     SystemStatus `json:"status"`
	Running    bool         `json:"running"`
	Cursor     *int64       `json:"cursor,omitempty"`
	CursorLag  int64        `json:"cursor_lag_seconds"`
	LastWindow string       `json:"last_window,omitempty"`
	LastRunAt  *time.Time   `json:"last_run_at,omitempty"`
	Ticks      int64        `json:"ticks"`
	Skipped    int64        `json:"skipped"`
	Failures   int64        `json:"failures"`
	LastError  string       `json:"last_error,omitempty"`
}

// DependencyHealth is the result of pinging one backend.
type DependencyHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                `json:"system_status"`
	Pipelines    map[string]PipelineHealth   `json:"pipelines"`
	Dependencies map[string]DependencyHealth `json:"dependencies,omitempty"`
}

// worst returns the more severe of two statuses.
func worst(a, b SystemStatus) SystemStatus {
	rank := func(s SystemStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
