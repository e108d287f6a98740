package api

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/validation"
)

type contextKey string

const identityKey contextKey = "identity"

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

// IdentityFromCtx returns the requester set by requireIdentity.
func IdentityFromCtx(ctx context.Context) (validation.Identity, bool) {
	id, ok := ctx.Value(identityKey).(validation.Identity)
	return id, ok
}

// requireIdentity rejects requests without a requester.
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := validation.ExtractIdentity(r)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// auditRequests logs every request and its outcome to the audit log.
func auditRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Audit(fmt.Sprintf("[Gateway] Incoming request: %s %s from %s userId=%s",
			r.Method, r.URL.Path, extractClientIP(r), r.Header.Get(validation.HeaderUserID)))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		entry := logger.Module("gateway").WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rw.statusCode,
			"duration": time.Since(start).String(),
		})
		if rw.statusCode >= 400 {
			entry.WithField("body", rw.body.String()).Warn("request failed")
			return
		}
		entry.Info("request served")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code and error bodies
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	// only error bodies are logged; exports can be large
	if rw.statusCode >= 400 && rw.body.Len() < 4096 {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacking not supported")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func notFound(w http.ResponseWriter, r *http.Request) {
	logger.Audit("[Gateway] [Error] " + r.URL.Path + " from " + extractClientIP(r) + " (route not found)")
	RespondWithError(w, http.StatusNotFound, "route not found")
}

// NewRouter wires every route onto a gorilla/mux router.
func NewRouter(d *Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(auditRequests)
	router.NotFoundHandler = http.HandlerFunc(notFound)

	router.HandleFunc("/health", HealthHandler(d.Health)).Methods(http.MethodGet)
	if d.Events != nil {
		// browsers cannot set headers on EventSource or websocket requests
		router.HandleFunc("/api/events", EventsHandler(d.Events, false)).Methods(http.MethodGet)
		router.HandleFunc("/api/events/ws", EventsHandler(d.Events, true)).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(requireIdentity)
	registerRoutes(api, d)
	return router
}
