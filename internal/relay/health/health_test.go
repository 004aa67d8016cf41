package health

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/relay/breaker"
)

// =============================================================================
// Stubs
// =============================================================================

type stubSource struct {
	blocked map[domain.ActorID]bool
}

func (s *stubSource) Snapshot(actors []domain.ActorID) []breaker.ActorState {
	out := make([]breaker.ActorState, 0, len(actors))
	for _, a := range actors {
		st := breaker.ActorState{Actor: a, Blocked: s.blocked[a]}
		if st.Blocked {
			last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			until := last.Add(6 * time.Hour)
			st.LastFailure, st.BlockedUntil = &last, &until
		}
		out = append(out, st)
	}
	return out
}

var actors = []domain.ActorID{"@primary", "@backup"}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Status(t *testing.T) {
	tests := []struct {
		name    string
		blocked map[domain.ActorID]bool
		want    SystemStatus
	}{
		{"all healthy", nil, StatusHealthy},
		{"one blocked", map[domain.ActorID]bool{"@primary": true}, StatusDegraded},
		{"all blocked", map[domain.ActorID]bool{"@primary": true, "@backup": true}, StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(actors, &stubSource{blocked: tt.blocked}, nil)
			report := m.CheckHealth(context.Background())
			if report.SystemStatus != tt.want {
				t.Errorf("status = %s, want %s", report.SystemStatus, tt.want)
			}
			if len(report.Actors) != 2 {
				t.Fatalf("actors = %d", len(report.Actors))
			}
			for _, a := range report.Actors {
				if a.Blocked != tt.blocked[domain.ActorID(a.Actor)] {
					t.Errorf("%s blocked = %v", a.Actor, a.Blocked)
				}
				if a.Blocked && (a.LastFailure == nil || a.Status != StatusBlocked) {
					t.Errorf("%s: blocked actor should report last failure and status", a.Actor)
				}
			}
			if m.Last().SystemStatus != tt.want {
				t.Error("Last should return the latest report")
			}
		})
	}
}

func TestMonitor_PublishesGRPCHealth(t *testing.T) {
	hs := health.NewServer()
	src := &stubSource{blocked: map[domain.ActorID]bool{"@primary": true}}
	m := NewMonitor(actors, src, hs)
	m.CheckHealth(context.Background())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tests := []struct {
		service string
		want    healthpb.HealthCheckResponse_ServingStatus
	}{
		{ServicePrefix + "@primary", healthpb.HealthCheckResponse_NOT_SERVING},
		{ServicePrefix + "@backup", healthpb.HealthCheckResponse_SERVING},
		{"", healthpb.HealthCheckResponse_SERVING},
	}
	for _, tt := range tests {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: tt.service})
		if err != nil {
			t.Fatalf("Check(%q): %v", tt.service, err)
		}
		if resp.Status != tt.want {
			t.Errorf("Check(%q) = %s, want %s", tt.service, resp.Status, tt.want)
		}
	}

	// Block lifted: publishes SERVING again.
	src.blocked = nil
	m.CheckHealth(context.Background())
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServicePrefix + "@primary"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("after unblock = %s", resp.Status)
	}
}
