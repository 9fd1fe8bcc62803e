package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/medrex/booking/pkg/logger"
)

// RequestIDHeader carries the request correlation id
const RequestIDHeader = "X-Request-ID"

// Logger is the subset of the service logger the middleware needs
type Logger interface {
	HTTPRequest(ctx context.Context, method, path, userAgent, clientIP string, statusCode int, duration int64)
	DatabaseOperation(ctx context.Context, operation, table string, duration int64, rowsAffected int64, success bool)
}

// MonitoringMiddleware combines request ids, metrics and access logging
type MonitoringMiddleware struct {
	metrics  *MetricsCollector
	logger   Logger
	endpoint func(*http.Request) string
}

// NewMonitoringMiddleware creates a new monitoring middleware. endpoint maps a
// request to its route template for metric labels; nil uses the raw path.
func NewMonitoringMiddleware(metrics *MetricsCollector, log Logger, endpoint func(*http.Request) string) *MonitoringMiddleware {
	return &MonitoringMiddleware{
		metrics:  metrics,
		logger:   log,
		endpoint: endpoint,
	}
}

// HTTPMiddleware assigns a request id, records metrics and logs the request
func (mm *MonitoringMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)

		wrapper := &monitoringResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		wrapper.Header().Set(RequestIDHeader, requestID)

		r = r.WithContext(ctx)
		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		if mm.metrics != nil {
			path := r.URL.Path
			if mm.endpoint != nil {
				if tmpl := mm.endpoint(r); tmpl != "" {
					path = tmpl
				}
			}
			mm.metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(wrapper.statusCode), duration)
		}

		if mm.logger != nil {
			mm.logger.HTTPRequest(
				ctx,
				r.Method,
				r.URL.Path,
				r.UserAgent(),
				r.RemoteAddr,
				wrapper.statusCode,
				duration.Milliseconds(),
			)
		}
	})
}

// DatabaseMiddleware times a database operation. dbFunc returns the number of
// affected rows.
func (mm *MonitoringMiddleware) DatabaseMiddleware(operation, table string) func(context.Context, func() (int64, error)) error {
	return func(ctx context.Context, dbFunc func() (int64, error)) error {
		start := time.Now()

		rows, err := dbFunc()

		duration := time.Since(start)

		if mm.metrics != nil {
			mm.metrics.RecordDBQuery(operation, duration)
			if err != nil {
				mm.metrics.RecordSystemError("database_error", "database")
			}
		}
		if mm.logger != nil {
			mm.logger.DatabaseOperation(ctx, operation, table, duration.Milliseconds(), rows, err == nil)
		}

		return err
	}
}

// AuthMiddleware records the outcome of an authentication attempt
func (mm *MonitoringMiddleware) AuthMiddleware(method string) func(func() error) error {
	return func(authFunc func() error) error {
		err := authFunc()

		status := "success"
		if err != nil {
			status = "failed"
		}

		if mm.metrics != nil {
			mm.metrics.RecordAuthAttempt(method, status)
		}

		return err
	}
}

// monitoringResponseWriter wraps http.ResponseWriter to capture the status code
type monitoringResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (mrw *monitoringResponseWriter) WriteHeader(code int) {
	mrw.statusCode = code
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *monitoringResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.bytesWritten += int64(n)
	return n, err
}
