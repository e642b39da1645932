package doctor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkRecognizerHealth asks the recognizer's gRPC health service whether it is serving.
func checkRecognizerHealth(ctx context.Context, addr string) Check {
	addr = strings.TrimSpace(addr)
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status, err := probeHealth(ctx, addr)
	if err != nil {
		return Check{Name: "recognizer.health", Pass: false, Message: err.Error()}
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		return Check{Name: "recognizer.health", Pass: false, Message: fmt.Sprintf("%s reports %s", addr, status)}
	}
	return Check{Name: "recognizer.health", Pass: true, Message: fmt.Sprintf("serving at %s", addr)}
}

func probeHealth(ctx context.Context, addr string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(transportCredentials(addr)))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("connect %s: %w", addr, err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check %s: %w", addr, err)
	}
	return resp.GetStatus(), nil
}

// transportCredentials keeps plaintext to loopback addresses.
func transportCredentials(addr string) credentials.TransportCredentials {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return insecure.NewCredentials()
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return insecure.NewCredentials()
	}
	return credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
}

// waitForReady blocks until conn reaches READY or the context expires.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}
		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
