// Package health exposes the dispatcher's readiness over the standard gRPC
// health protocol.
package health

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"onnxd/internal/dispatcher"
)

// Service is the name under which model readiness is reported. The empty
// service reports process liveness.
const Service = "onnxd.Dispatcher"

// Reporter turns dispatcher events into health statuses. It is a
// dispatcher.EventPublisher.
type Reporter struct {
	srv *health.Server
	log zerolog.Logger
}

func NewReporter(logger *zerolog.Logger) *Reporter {
	r := &Reporter{srv: health.NewServer(), log: zerolog.Nop()}
	if logger != nil {
		r.log = logger.With().Str("component", "health").Logger()
	}
	r.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	r.srv.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

// Publish implements dispatcher.EventPublisher.
func (r *Reporter) Publish(e dispatcher.Event) {
	var st healthpb.HealthCheckResponse_ServingStatus
	switch e.Name {
	case "load_ready":
		st = healthpb.HealthCheckResponse_SERVING
	case "load_start", "load_error", "load_timeout", "terminate", "channel_closed":
		st = healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return
	}
	r.srv.SetServingStatus(Service, st)
	r.log.Debug().Str("event", e.Name).Str("status", st.String()).Msg("health status")
}

// Server returns the underlying health server.
func (r *Reporter) Server() *health.Server { return r.srv }

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (r *Reporter) Shutdown() { r.srv.Shutdown() }

// NewGRPCServer builds a gRPC server carrying the health service and
// reflection, instrumented with OpenTelemetry.
func NewGRPCServer(r *Reporter) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(s, r.srv)
	reflection.Register(s)
	return s
}
