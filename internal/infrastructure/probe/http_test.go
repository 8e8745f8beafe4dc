package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

func TestHTTPProbe_Check(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewHTTPProbe()
	inst := domain.ServiceInstance{ID: "inst-1", Endpoint: server.URL}

	if err := p.Check(context.Background(), inst); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
}

func TestHTTPProbe_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewHTTPProbe()
	inst := domain.ServiceInstance{ID: "inst-1", Endpoint: server.URL}

	if err := p.Check(context.Background(), inst); err == nil {
		t.Error("expected error for 503")
	}
}

func TestHTTPProbe_Unreachable(t *testing.T) {
	p := NewHTTPProbe()
	inst := domain.ServiceInstance{ID: "inst-1", Endpoint: "127.0.0.1:1"}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := p.Check(ctx, inst); err == nil {
		t.Error("expected error for unreachable endpoint")
	}
}

func TestHTTPProbe_RespectsContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	p := NewHTTPProbe()
	inst := domain.ServiceInstance{ID: "inst-1", Endpoint: server.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx, inst)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("probe must abort at the context deadline")
	}
}
