package health

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"onnxd/internal/dispatcher"
)

func status(t *testing.T, r *Reporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.Status
}

func TestReporter_FollowsDispatcherEvents(t *testing.T) {
	r := NewReporter(nil)
	if got := status(t, r, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("liveness = %v", got)
	}
	if got := status(t, r, Service); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial = %v", got)
	}
	steps := []struct {
		event string
		want  healthpb.HealthCheckResponse_ServingStatus
	}{
		{"load_start", healthpb.HealthCheckResponse_NOT_SERVING},
		{"load_ready", healthpb.HealthCheckResponse_SERVING},
		{"run_done", healthpb.HealthCheckResponse_SERVING},
		{"channel_closed", healthpb.HealthCheckResponse_NOT_SERVING},
		{"load_ready", healthpb.HealthCheckResponse_SERVING},
		{"terminate", healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, s := range steps {
		r.Publish(dispatcher.Event{Name: s.event})
		if got := status(t, r, Service); got != s.want {
			t.Fatalf("after %s: status = %v, want %v", s.event, got, s.want)
		}
	}
	r.Shutdown()
	if got := status(t, r, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after shutdown liveness = %v", got)
	}
}

func TestGRPCServer_Check(t *testing.T) {
	r := NewReporter(nil)
	r.Publish(dispatcher.Event{Name: "load_ready"})

	lis := bufconn.Listen(1 << 20)
	s := NewGRPCServer(r)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", resp.Status)
	}
}
