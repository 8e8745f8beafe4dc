package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/apascualco/maestro/internal/infrastructure/config"
)

type SpanKind int

const (
	SpanKindServer SpanKind = iota
	SpanKindClient
	SpanKindInternal
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "SERVER"
	case SpanKindClient:
		return "CLIENT"
	case SpanKindInternal:
		return "INTERNAL"
	default:
		return "UNSPECIFIED"
	}
}

type SpanData struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	ServiceName  string
	Kind         SpanKind
	StartTime    time.Time
	EndTime      time.Time
	StatusCode   int
	Attributes   map[string]string
}

type SpanExporter interface {
	Export(ctx context.Context, span SpanData)
	Shutdown(ctx context.Context) error
}

func NewExporter(cfg *config.Config) SpanExporter {
	switch cfg.TraceExporter {
	case "otlp":
		if cfg.OTLPEndpoint == "" {
			slog.Warn("TRACE_EXPORTER=otlp but OTLP_ENDPOINT is empty, falling back to noop")
			return &NoopExporter{}
		}
		slog.Info("trace exporter enabled",
			slog.String("exporter", "otlp"),
			slog.String("endpoint", cfg.OTLPEndpoint),
			slog.String("service_name", cfg.TraceServiceName),
		)
		return NewOTLPExporter(cfg.OTLPEndpoint, cfg.TraceServiceName)
	default:
		slog.Debug("trace exporter disabled (noop)")
		return &NoopExporter{}
	}
}

func NewTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func NewSpanID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
