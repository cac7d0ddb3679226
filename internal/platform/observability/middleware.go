package observability

import (
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fazaproducts/storefront/internal/platform/httpx"
	"github.com/fazaproducts/storefront/internal/platform/idempotency"
	"github.com/fazaproducts/storefront/internal/platform/requestctx"
)

// InjectLoggerMiddleware puts logger on every request context.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware scopes the request logger with request and trace ids and writes one
// "request completed" entry per request. The level follows the status class. With a projectID
// the entry also carries the Cloud Logging trace link.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			scoped := []zap.Field{
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("method", logMethod(r.Method)),
				zap.String("path", logRoute(r.URL.Path)),
			}
			if traceID := requestctx.TraceID(ctx); traceID != "" {
				scoped = append(scoped, zap.String("trace_id", traceID))
				if projectID != "" {
					scoped = append(scoped, zap.String("logging.googleapis.com/trace", "projects/"+projectID+"/traces/"+traceID))
				}
			}
			if ip := remoteIP(r.RemoteAddr); ip != "" {
				scoped = append(scoped, zap.String("remote_ip", ip))
			}
			logger := requestctx.Logger(ctx).With(scoped...)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(requestctx.WithLogger(ctx, logger))
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("route", routePattern(r)),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.Int("bytes", ww.BytesWritten()),
			}
			if session := sessionFrom(r, ww); session != "" {
				fields = append(fields, zap.String("session_id", session))
			}
			if ww.Header().Get(idempotency.ReplayHeader) == "true" {
				fields = append(fields, zap.Bool("idempotent_replay", true))
			}
			if ce := logger.Check(levelFor(status), "request completed"); ce != nil {
				ce.Write(fields...)
			}
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500 internal_error envelope and logs the stack.
// fallback is used when the panic happens before a request logger was attached.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger := requestctx.Logger(r.Context())
				if logger == requestctx.NoopLogger() && fallback != nil {
					logger = fallback
				}
				logger.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("session_id", logSession(requestctx.Session(r.Context()))),
					zap.ByteString("stack", debug.Stack()),
				)
				httpx.WriteError(r.Context(), w, httpx.NewError("internal_error", "something went wrong, please try again", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// sessionFrom finds the shopper session. The session middleware runs inside the /api/v1 group,
// so its context value is usually not visible here and the cookies are consulted instead.
func sessionFrom(r *http.Request, w http.ResponseWriter) string {
	if id := requestctx.Session(r.Context()); id != "" {
		return logSession(id)
	}
	for _, line := range w.Header().Values("Set-Cookie") {
		if c, err := http.ParseSetCookie(line); err == nil && c.Name == requestctx.SessionCookie {
			return logSession(c.Value)
		}
	}
	if c, err := r.Cookie(requestctx.SessionCookie); err == nil {
		return logSession(c.Value)
	}
	return ""
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return clip(addr, maxAddrLen)
}
