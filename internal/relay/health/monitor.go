package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/relay/breaker"
	"github.com/vietddude/botrelay/internal/relay/metrics"
)

// ServicePrefix names the per-actor gRPC health services.
const ServicePrefix = "botrelay.actor/"

// StateSource reports breaker state.
type StateSource interface {
	Snapshot(actors []domain.ActorID) []breaker.ActorState
}

// Monitor derives relay health from the circuit breaker.
type Monitor struct {
	actors []domain.ActorID
	source StateSource
	grpc   *health.Server
	now    func() time.Time

	mu   sync.RWMutex
	last Report
}

// NewMonitor creates a monitor. grpcHealth may be nil.
func NewMonitor(actors []domain.ActorID, source StateSource, grpcHealth *health.Server) *Monitor {
	return &Monitor{
		actors: actors,
		source: source,
		grpc:   grpcHealth,
		now:    time.Now,
	}
}

// CheckHealth builds a fresh report and publishes it to the gRPC health
// server and the actor gauge.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	report := Report{
		SystemStatus: StatusHealthy,
		Actors:       make([]ActorHealth, 0, len(m.actors)),
		CheckedAt:    m.now(),
	}

	blocked := 0
	for _, st := range m.source.Snapshot(m.actors) {
		h := ActorHealth{
			Actor:        string(st.Actor),
			Status:       StatusHealthy,
			Blocked:      st.Blocked,
			LastFailure:  st.LastFailure,
			BlockedUntil: st.BlockedUntil,
		}
		gauge := 0.0
		if st.Blocked {
			h.Status = StatusBlocked
			gauge = 1
			blocked++
		}
		metrics.ActorBlocked.WithLabelValues(string(st.Actor)).Set(gauge)
		report.Actors = append(report.Actors, h)
	}

	// Evaluate Status
	switch {
	case len(m.actors) > 0 && blocked == len(m.actors):
		report.SystemStatus = StatusCritical
	case blocked > 0:
		report.SystemStatus = StatusDegraded
	}

	m.publish(report)

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()
	return report
}

// Last returns the most recent report without re-checking.
func (m *Monitor) Last() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Run refreshes health every interval until ctx is done. Block windows expire
// lazily, so this keeps gRPC health and metrics current while the relay is idle.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.CheckHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r := m.CheckHealth(ctx)
			slog.Debug("Health refreshed", "status", r.SystemStatus)
		}
	}
}

func (m *Monitor) publish(r Report) {
	if m.grpc == nil {
		return
	}
	for _, a := range r.Actors {
		status := healthpb.HealthCheckResponse_SERVING
		if a.Blocked {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		m.grpc.SetServingStatus(ServicePrefix+a.Actor, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if r.SystemStatus == StatusCritical {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.grpc.SetServingStatus("", overall)
}
