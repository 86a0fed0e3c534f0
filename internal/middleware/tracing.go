package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request. Once chi has matched the route
// the span is named "METHOD /route/{pattern}" to keep span names bounded;
// unmatched requests keep the raw path.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		renamed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			trace.SpanFromContext(r.Context()).SetName(spanName(r))
		})

		// otelhttp calls the formatter again after the handler when the
		// request carries a pattern, so it must resolve the route too.
		return otelhttp.NewHandler(renamed, "http.request",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return spanName(r)
			}),
		)
	}
}

func spanName(r *http.Request) string {
	return r.Method + " " + routeName(r)
}

// routeName prefers the matched chi pattern, then the request pattern
// without its method prefix, then the raw path.
func routeName(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	return r.URL.Path
}
