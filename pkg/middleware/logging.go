package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/registrar/pkg/composables"
	"github.com/iota-uz/registrar/pkg/httpapi"
)

type LoggerOptions struct {
	LogRequestBody bool
	MaxBodyLength  int
	// RequestIDHeader is read from incoming requests; a uuid is generated when absent.
	RequestIDHeader string
	Repanic         bool
}

func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		LogRequestBody:  false,
		MaxBodyLength:   512,
		RequestIDHeader: "X-Request-ID",
	}
}

type responseCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
}

func (w *responseCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
		w.ResponseWriter.WriteHeader(code)
	}
}

// Status returns the HTTP status code
func (w *responseCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	if !w.statusWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseCaptureWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *responseCaptureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}

var tracer = otel.Tracer("registrar-middleware")

func TracedMiddleware(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(
				r.Context(),
				"middleware."+name,
				trace.WithAttributes(
					attribute.String("middleware.name", name),
					attribute.String("http.method", r.Method),
					attribute.String("http.url", r.URL.String()),
				),
			)
			defer span.End()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestID(r *http.Request, header string) string {
	if header != "" {
		if v := r.Header.Get(header); v != "" {
			return v
		}
	}
	return uuid.New().String()
}

// readBody returns at most limit bytes of the body for logging and restores it.
func readBody(r *http.Request, limit int) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r.Body); err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
	body := buf.String()
	if limit > 0 && len(body) > limit {
		body = body[:limit] + "..."
	}
	return body, nil
}

// WithLogger opens the root span of each request, binds a request-scoped
// logger to the context and turns panics into a JSON 500.
func WithLogger(logger *logrus.Logger, opts LoggerOptions) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := requestID(r, opts.RequestIDHeader)

			fieldsLogger := logger.WithFields(logrus.Fields{
				"request-id": reqID,
				"path":       r.URL.Path,
				"method":     r.Method,
			})

			if opts.LogRequestBody && r.Method == http.MethodPost &&
				strings.Contains(r.Header.Get("Content-Type"), "application/json") {
				body, err := readBody(r, opts.MaxBodyLength)
				if err != nil {
					fieldsLogger.WithError(err).Error("failed to read request-body")
					_ = httpapi.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read request body", nil)
					return
				}
				fieldsLogger = fieldsLogger.WithField("request-body", body)
			}

			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(
				ctx,
				"http.request",
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", r.URL.Path),
					attribute.String("http.request_id", reqID),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				w.Header().Set("X-Trace-Id", sc.TraceID().String())
				fieldsLogger = fieldsLogger.WithField("trace-id", sc.TraceID().String())
			}
			w.Header().Set("X-Request-Id", reqID)
			ctx = composables.WithLogger(ctx, fieldsLogger)

			wrapped := &responseCaptureWriter{ResponseWriter: w}
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				fieldsLogger.WithFields(logrus.Fields{
					"panic":    recovered,
					"stack":    string(debug.Stack()),
					"duration": time.Since(start),
				}).Error("panic recovered in request handler")
				if !wrapped.statusWritten {
					wrapped.Header().Set("Content-Type", "application/json")
					wrapped.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(wrapped).Encode(httpapi.ErrorEnvelope{
						Code:    "INTERNAL_SERVER_ERROR",
						Message: "internal server error",
						Meta:    map[string]string{"request_id": reqID},
					})
				}
				if opts.Repanic {
					panic(recovered)
				}
			}()

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			status := wrapped.Status()
			duration := time.Since(start)
			span.SetAttributes(
				attribute.Int64("http.request_duration_ms", duration.Milliseconds()),
				attribute.Int("http.status_code", status),
			)
			fieldsLogger.WithFields(logrus.Fields{
				"duration":     duration,
				"status-code":  status,
				"status-class": status / 100,
			}).Info("request completed")
		})
	}
}
