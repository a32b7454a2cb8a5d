package services

import (
	"context"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/axstorch/foodcourt/cartstore"
)

// HealthCheckService implements the gRPC health protocol for platform
// probes, reporting serving status from the cart store's backend.
type HealthCheckService struct {
	store *cartstore.Store
	healthpb.UnimplementedHealthServer
}

// NewHealthCheckService creates a health service backed by the store.
func NewHealthCheckService(store *cartstore.Store) *HealthCheckService {
	return &HealthCheckService{store: store}
}

// Check reports SERVING while the cart's persistence backend answers pings.
func (h *HealthCheckService) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if h.store.Ping(ctx) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
}
