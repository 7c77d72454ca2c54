package application

import (
	"context"
	"time"

	"github.com/Apurer/worktrack/internal/domains/projections/ports"
	"github.com/Apurer/worktrack/internal/platform/metrics"
)

// ProjectorStatus is the operator view of one projector.
type ProjectorStatus struct {
	Name                  string       `json:"name"`
	Status                ports.Status `json:"status"`
	LastProcessedSequence int64        `json:"lastProcessedSequence"`
	LagEvents             int64        `json:"lagEvents"`
	EventsProcessedTotal  int64        `json:"eventsProcessedTotal"`
	ErrorsCount           int64        `json:"errorsCount"`
	LastError             string       `json:"lastError,omitempty"`
	LastProcessedAt       *time.Time   `json:"lastProcessedAt,omitempty"`
}

// Snapshot is the JSON metrics document.
type Snapshot struct {
	Timestamp           time.Time          `json:"timestamp"`
	LatestEventSequence int64              `json:"latestEventSequence"`
	Projectors          []ProjectorStatus  `json:"projectors"`
	Totals              metrics.Totals     `json:"totals"`
	RecentLogs          []metrics.LogEntry `json:"recentLogs"`
}

// Status reports checkpoint state and lag for every projector.
func (r *Runner) Status(ctx context.Context) (int64, []ProjectorStatus, error) {
	latest, err := r.events.LatestGlobalSequence(ctx)
	if err != nil {
		return 0, nil, err
	}
	out := make([]ProjectorStatus, 0, len(r.order))
	for _, name := range r.order {
		cp, err := r.loadCheckpoint(ctx, name)
		if err != nil {
			return 0, nil, err
		}
		lag := latest - cp.LastProcessedGlobalSequence
		if lag < 0 {
			lag = 0
		}
		r.metrics.SetLag(name, lag)
		out = append(out, ProjectorStatus{
			Name:                  name,
			Status:                cp.Status,
			LastProcessedSequence: cp.LastProcessedGlobalSequence,
			LagEvents:             lag,
			EventsProcessedTotal:  cp.EventsProcessedCount,
			ErrorsCount:           cp.ErrorsCount,
			LastError:             cp.LastError,
			LastProcessedAt:       cp.LastProcessedAt,
		})
	}
	return latest, out, nil
}

// Snapshot assembles the metrics document.
func (r *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	latest, statuses, err := r.Status(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Timestamp:           r.now().UTC(),
		LatestEventSequence: latest,
		Projectors:          statuses,
		Totals:              r.metrics.Totals(),
		RecentLogs:          r.metrics.RecentLogs(),
	}, nil
}
