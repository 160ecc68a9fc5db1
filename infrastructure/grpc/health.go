package grpc

import (
	"log/slog"
	"net"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	SignalingService = "meet-relay.signaling"
	ChatService      = "meet-relay.chat"
)

// HealthServer exposes grpc.health.v1.Health for orchestrators and load balancers.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)
	return &HealthServer{log: log, server: s, health: h}
}

// SetServing flips the status reported for one service and for the server as a whole ("").
func (h *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, status)
	h.log.Debug("Health status changed", "service", service, "status", status.String())
}

func (h *HealthServer) Serve(listener net.Listener) error {
	for name := range h.server.GetServiceInfo() {
		h.log.Debug("📡 gRPC exposed services", "name", name)
	}
	return h.server.Serve(listener)
}

// Stop reports every service as not serving, then drains in-flight calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
