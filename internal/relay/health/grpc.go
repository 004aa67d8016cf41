package health

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes the standard gRPC health service.
type GRPCServer struct {
	addr   string
	health *health.Server
	server *grpc.Server
}

// NewGRPCServer creates a gRPC health server listening on port.
func NewGRPCServer(port int) *GRPCServer {
	hs := health.NewServer()
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	return &GRPCServer{
		addr:   fmt.Sprintf(":%d", port),
		health: hs,
		server: s,
	}
}

// Health returns the health service to publish statuses to.
func (g *GRPCServer) Health() *health.Server {
	return g.health
}

// Start listens and serves until Stop.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}
	return g.Serve(lis)
}

// Serve serves on an existing listener.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
