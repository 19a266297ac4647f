// Package trace assigns request ids and writes one access log line per request.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"finbot/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type ContextKey string

const RequestIDKey ContextKey = "request_id"

// Metrics tracks request totals.
type Metrics struct {
	TotalRequests         int64 `json:"total_requests"`
	LastResponseTimeMicro int64 `json:"last_response_time_us"`
}

type Middleware struct {
	extractIP func(*http.Request) string
	access    *log.StructuredLogger
	total     int64
	lastMicro int64
}

func NewMiddleware(extractIP func(*http.Request) string, logger *log.Logger) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		access:    log.NewStructuredLogger(logger),
	}
}

// Middleware tags the request with an id, puts a request-scoped logger in
// its context and logs completion.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	timed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		atomic.AddInt64(&m.total, 1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		atomic.StoreInt64(&m.lastMicro, elapsed.Microseconds())
		m.access.LogHTTPEnd(r.Context(), r, rw.statusCode, elapsed.Milliseconds(), clientIP)
	})
	scoped := log.RequestIDMiddleware(func(r *http.Request) string {
		return GetRequestID(r.Context())
	})(timed)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r)
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		scoped.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestID keeps a well-formed incoming id and otherwise mints a new one.
func requestID(r *http.Request) string {
	if in := r.Header.Get(HeaderRequestID); in != "" {
		if id, err := uuid.Parse(in); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func (m *Middleware) Metrics() Metrics {
	return Metrics{
		TotalRequests:         atomic.LoadInt64(&m.total),
		LastResponseTimeMicro: atomic.LoadInt64(&m.lastMicro),
	}
}

// responseWriter records the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
