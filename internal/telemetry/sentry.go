// Package telemetry wires Sentry error reporting and tracing.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

const serverName = "vectorgate"

// Config holds the Sentry initialization settings.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init sets up the Sentry client. The returned function flushes pending
// events and should be deferred by the caller. An empty DSN disables
// telemetry entirely; init failures are logged, never fatal.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}

	env := cfg.Environment
	if env == "" {
		env = "development"
	}
	rate := cfg.TracesSampleRate
	if rate == 0 {
		rate = 1.0
	}

	sampler := func(sc sentry.SamplingContext) float64 {
		// Health checks would dominate the trace volume.
		if sc.Span.Name == "GET /health" || sc.Span.Op == "http.server GET /health" {
			return 0.0
		}
		// Child spans inherit the parent's decision.
		var root sentry.SpanID
		if sc.Span.ParentSpanID != root {
			if sc.Span.Sampled.Bool() {
				return 1.0
			}
			return 0.0
		}
		return rate
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		EnableTracing:    true,
		TracesSampleRate: rate,
		TracesSampler:    sentry.TracesSampler(sampler),
		Debug:            cfg.Debug,
		ServerName:       serverName,
	}); err != nil {
		log.Printf("sentry: init failed, telemetry disabled: %v", err)
		return func() {}, nil
	}

	log.Printf("sentry: initialized (environment: %s, sample_rate: %.2f)", env, rate)
	return func() { sentry.Flush(5 * time.Second) }, nil
}

// SpanTags carries the retrieval-domain identifiers attached to spans.
type SpanTags struct {
	UserID           string
	SourceDocumentID string
	KnowledgeBaseID  string
}

// Span is a thin wrapper so callers never nil-check the sentry span.
type Span struct {
	inner *sentry.Span
}

// StartSpan opens a child span under the transaction in ctx, or a new
// transaction when there is none (background worker paths).
func StartSpan(ctx context.Context, name string, tags SpanTags) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	if tags.UserID != "" {
		span.SetTag("user_id", tags.UserID)
	}
	if tags.SourceDocumentID != "" {
		span.SetTag("source_document_id", tags.SourceDocumentID)
	}
	if tags.KnowledgeBaseID != "" {
		span.SetTag("knowledge_base_id", tags.KnowledgeBaseID)
	}

	return span.Context(), &Span{inner: span}
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed and reports the error.
func (s *Span) SetError(err error) {
	if s.inner == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	if hub := sentry.GetHubFromContext(s.inner.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

// CaptureError reports an error outside of any span.
func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
