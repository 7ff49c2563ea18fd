package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// SentryMiddleware opens a Sentry transaction per request, tags it with the
// request id and authenticated caller, and reports panics and 5xx responses.
// With no Sentry client initialized everything degrades to no-ops.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		opts := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceURL),
		}
		// Join an upstream trace when the web app propagates one.
		if trace := r.Header.Get("sentry-trace"); trace != "" {
			opts = append(opts, sentry.ContinueFromHeaders(trace, r.Header.Get("baggage")))
		}

		txn := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, opts...)
		defer txn.Finish()

		ctx := sentry.SetHubOnContext(txn.Context(), hub)
		r = r.WithContext(ctx)

		scope := hub.Scope()
		scope.SetContext("request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"query":       r.URL.RawQuery,
			"remote_addr": r.RemoteAddr,
		})
		if id := GetRequestID(r.Context()); id != "" {
			scope.SetTag("request_id", id)
			txn.SetTag("request_id", id)
		}
		if ua := r.UserAgent(); ua != "" {
			scope.SetTag("user_agent", ua)
		}

		defer func() {
			if v := recover(); v != nil {
				txn.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), v)
				panic(v)
			}
		}()

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		code := sw.status
		if code == 0 {
			code = http.StatusOK
		}
		txn.Status = spanStatus(code)
		txn.SetData("http.response.status_code", code)

		// Auth runs inside this middleware, so the caller is only known now.
		if caller := GetCaller(r.Context()); caller != "" {
			scope.SetTag("caller", caller)
			txn.SetTag("caller", caller)
		}

		if code >= 500 {
			hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s", code, http.StatusText(code)))
		}
	})
}

func spanStatus(code int) sentry.SpanStatus {
	if code >= 200 && code < 300 {
		return sentry.SpanStatusOK
	}
	switch code {
	case http.StatusUnauthorized:
		return sentry.SpanStatusUnauthenticated
	case http.StatusForbidden:
		return sentry.SpanStatusPermissionDenied
	case http.StatusNotFound:
		return sentry.SpanStatusNotFound
	case http.StatusConflict:
		return sentry.SpanStatusAlreadyExists
	case http.StatusTooManyRequests:
		return sentry.SpanStatusResourceExhausted
	case http.StatusNotImplemented:
		return sentry.SpanStatusUnimplemented
	case http.StatusServiceUnavailable:
		return sentry.SpanStatusUnavailable
	case http.StatusGatewayTimeout:
		return sentry.SpanStatusDeadlineExceeded
	}
	switch {
	case code >= 400 && code < 500:
		return sentry.SpanStatusInvalidArgument
	case code >= 500:
		return sentry.SpanStatusInternalError
	}
	return sentry.SpanStatusUnknown
}

// statusWriter records the response code for the transaction status.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}
