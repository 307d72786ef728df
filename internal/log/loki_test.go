package log

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewLokiWriter(t *testing.T) {
	cfg := LokiConfig{
		Endpoint:      "http://localhost:3100/loki/api/v1/push",
		Labels:        map[string]string{"service": "test"},
		BatchSize:     10,
		FlushInterval: time.Second,
	}

	lw, err := NewLokiWriter(cfg)
	if err != nil {
		t.Fatalf("NewLokiWriter failed: %v", err)
	}
	defer lw.Close()

	if lw.endpoint != cfg.Endpoint {
		t.Errorf("expected endpoint %s, got %s", cfg.Endpoint, lw.endpoint)
	}
	if lw.batchSize != cfg.BatchSize {
		t.Errorf("expected batch size %d, got %d", cfg.BatchSize, lw.batchSize)
	}
	if lw.flushInterval != time.Second {
		t.Errorf("expected flush interval 1s, got %v", lw.flushInterval)
	}
}

func TestNewLokiWriterDefaultBatchSize(t *testing.T) {
	lw, err := NewLokiWriter(LokiConfig{Endpoint: "http://localhost:3100/loki/api/v1/push"})
	if err != nil {
		t.Fatalf("NewLokiWriter failed: %v", err)
	}
	defer lw.Close()

	if lw.batchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", lw.batchSize)
	}
}

func TestNewLokiWriterDefaultLabels(t *testing.T) {
	lw, err := NewLokiWriter(LokiConfig{Endpoint: "http://localhost:3100/loki/api/v1/push"})
	if err != nil {
		t.Fatalf("NewLokiWriter failed: %v", err)
	}
	defer lw.Close()

	if lw.labels["job"] != "otus" {
		t.Errorf("expected default job label 'otus', got %s", lw.labels["job"])
	}
}

func TestLokiWriterWrite(t *testing.T) {
	lw, err := NewLokiWriter(LokiConfig{Endpoint: "http://localhost:3100/loki/api/v1/push", BatchSize: 10})
	if err != nil {
		t.Fatalf("NewLokiWriter failed: %v", err)
	}
	defer lw.Close()

	n, err := lw.Write([]byte("test log message"))
	if err != nil {
		t.Errorf("Write failed: %v", err)
	}
	if n != 16 {
		t.Errorf("expected 16 bytes written, got %d", n)
	}

	lw.mu.Lock()
	batchLen := len(lw.batch)
	lw.mu.Unlock()
	if batchLen != 1 {
		t.Errorf("expected 1 entry in batch, got %d", batchLen)
	}
}

func TestLokiWriterWriteAfterClose(t *testing.T) {
	lw, err := NewLokiWriter(LokiConfig{Endpoint: "http://localhost:3100/loki/api/v1/push", BatchSize: 10})
	if err != nil {
		t.Fatalf("NewLokiWriter failed: %v", err)
	}
	lw.Close()

	if _, err := lw.Write([]byte("test")); err == nil {
		t.Error("expected error when writing after close, got nil")
	}
}

func TestLokiWriterBatchFlush(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("expected POST request, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var pushReq lokiPushRequest
		if err := json.Unmarshal(body, &pushReq); err != nil {
			t.Errorf("failed to parse request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(pushReq.Streams) != 1 {
			t.Errorf("expected 1 stream, got %d", len(pushReq.Streams))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	lw, err := NewLokiWriter(LokiConfig{Endpoint: server.URL, BatchSize: 3})
	if err != nil {
		t.Fatalf("NewLokiWriter failed: %v", err)
	}
	defer lw.Close()

	for i := 0; i < 3; i++ {
		if _, err := lw.Write([]byte(fmt.Sprintf("log message %d\n", i))); err != nil {
			t.Errorf("Write failed: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)
	if requestCount.Load() < 1 {
		t.Errorf("expected at least 1 request, got %d", requestCount.Load())
	}
}

func TestLokiWriterPeriodicFlush(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	lw, err := NewLokiWriter(LokiConfig{Endpoint: server.URL, BatchSize: 100, FlushInterval: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewLokiWriter failed: %v", err)
	}
	defer lw.Close()

	if _, err := lw.Write([]byte("periodic flush message")); err != nil {
		t.Errorf("Write failed: %v", err)
	}

	time.Sleep(250 * time.Millisecond)
	if requestCount.Load() < 1 {
		t.Errorf("expected periodic flush to have sent at least 1 request, got %d", requestCount.Load())
	}
}
