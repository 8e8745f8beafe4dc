package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apascualco/maestro/internal/domain"
	"github.com/apascualco/maestro/internal/infrastructure/jwt"
)

func TestHTTPInvoker_Invoke(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"charged":true}`))
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(nil, nil, nil)
	inst := domain.ServiceInstance{ID: "inst-1", ServiceID: "payments", Endpoint: server.URL}

	result, err := invoker.Invoke(context.Background(), inst, "charge", json.RawMessage(`{"amount":10}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/actions/charge" {
		t.Errorf("path = %q, want /actions/charge", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if string(gotBody) != `{"amount":10}` {
		t.Errorf("body = %s", gotBody)
	}
	if string(result) != `{"charged":true}` {
		t.Errorf("result = %s", result)
	}
}

func TestHTTPInvoker_EmptyParamsSendEmptyObject(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(nil, nil, nil)
	inst := domain.ServiceInstance{ID: "inst-1", ServiceID: "payments", Endpoint: server.URL}

	if _, err := invoker.Invoke(context.Background(), inst, "ping", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(gotBody) != `{}` {
		t.Errorf("body = %s, want {}", gotBody)
	}
}

func TestHTTPInvoker_AttachesCallToken(t *testing.T) {
	privateKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	tokens := jwt.NewServiceWithKeys(privateKey, &privateKey.PublicKey, "maestro", time.Minute)

	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(HeaderCallToken)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(tokens, nil, nil)
	inst := domain.ServiceInstance{ID: "inst-1", ServiceID: "payments", Endpoint: server.URL}

	if _, err := invoker.Invoke(context.Background(), inst, "charge", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotToken == "" {
		t.Fatal("expected call token header")
	}

	claims, err := tokens.ParseCallToken(gotToken)
	if err != nil {
		t.Fatalf("token did not validate: %v", err)
	}
	if claims.Audience != "payments" || claims.Action != "charge" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestHTTPInvoker_DownstreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient_funds"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(nil, nil, nil)
	inst := domain.ServiceInstance{ID: "inst-1", ServiceID: "payments", Endpoint: server.URL}

	_, err := invoker.Invoke(context.Background(), inst, "charge", nil)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("expected status in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient_funds") {
		t.Errorf("expected downstream body in error, got %v", err)
	}
}

func TestHTTPInvoker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context; otherwise
		// server.Close deadlocks waiting on this handler.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(nil, nil, nil)
	inst := domain.ServiceInstance{ID: "inst-1", ServiceID: "payments", Endpoint: server.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := invoker.Invoke(ctx, inst, "slow", nil)
	if err == nil {
		t.Fatal("expected error on context deadline")
	}
	if !strings.Contains(err.Error(), "deadline") && !strings.Contains(err.Error(), "canceled") {
		t.Errorf("expected context error, got %v", err)
	}
}

func TestActionURL(t *testing.T) {
	cases := []struct {
		endpoint string
		action   string
		want     string
	}{
		{"127.0.0.1:9000", "charge", "http://127.0.0.1:9000/actions/charge"},
		{"http://svc.local:9000", "charge", "http://svc.local:9000/actions/charge"},
		{"https://svc.local/", "refund", "https://svc.local/actions/refund"},
	}
	for _, tc := range cases {
		if got := actionURL(tc.endpoint, tc.action); got != tc.want {
			t.Errorf("actionURL(%q, %q) = %q, want %q", tc.endpoint, tc.action, got, tc.want)
		}
	}
}
