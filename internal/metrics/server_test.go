package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestNewServerDefaultsPath(t *testing.T) {
	s := NewServer("127.0.0.1:0", "")
	if s.path != "/metrics" {
		t.Errorf("expected default path /metrics, got %q", s.path)
	}
}

func TestServerStartStop(t *testing.T) {
	addr := freeAddr(t)
	s := NewServer(addr, "/metrics")

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestServerStopBeforeStartIsNoop(t *testing.T) {
	s := NewServer("127.0.0.1:0", "/metrics")
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("expected nil error stopping unstarted server, got %v", err)
	}
}
