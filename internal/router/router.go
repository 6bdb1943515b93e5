package router

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Egold-Exchange/uigisc-be/internal/token"
	"github.com/Egold-Exchange/uigisc-be/internal/user"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the id set by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures status and size for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.size += n
	return n, err
}

// RequestIDMiddleware keeps a caller-supplied X-Request-ID or mints a uuid,
// echoes it on the response and stores it on the context.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// LoggingMiddleware logs each request at debug level.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(sr, r)
			status := sr.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", sr.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets conservative security headers for a JSON API.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			if h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
			}
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes mounts the auth API on a standard library ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, users *user.Handler, tokens token.Validator) http.Handler {
	mux := http.NewServeMux()

	requireAuth := token.RequireAuth(tokens, logger)
	optionalAuth := token.OptionalAuth(tokens, logger)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /auth/send-verification-code", users.SendVerificationCode)
	mux.HandleFunc("POST /auth/register", users.Register)
	mux.HandleFunc("POST /auth/login", users.Login)
	mux.HandleFunc("POST /auth/forgot-password", users.ForgotPassword)
	mux.HandleFunc("POST /auth/verify-reset-code", users.VerifyResetCode)
	mux.HandleFunc("POST /auth/reset-password", users.ResetPassword)
	mux.Handle("GET /auth/me", requireAuth(http.HandlerFunc(users.Me)))
	mux.Handle("PUT /auth/password", requireAuth(http.HandlerFunc(users.ChangePassword)))
	mux.Handle("GET /auth/session", optionalAuth(http.HandlerFunc(users.Session)))

	mux.HandleFunc("GET /public/check-subdomain/{subdomain}", users.CheckSubdomain)

	mux.Handle("GET /admin/users/{id}", requireAuth(token.RequireAdmin(http.HandlerFunc(users.GetUser))))

	return RequestIDMiddleware()(LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux)))
}
