package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"telloom/api/internal/auth"
	"telloom/api/internal/metrics"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		metrics:    service.metrics,
		log:        service.log,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)

	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/health", s.handleHealth)
	r.Head("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Post("/api/auth/signup", s.handleSignUp)
	r.Post("/api/auth/signin", s.handleSignIn)
	r.Post("/api/session/refresh", s.handleRefresh)
	r.Post("/api/session/logout", s.handleLogout)

	r.Get("/api/invitations/{token}", s.handleFindInvitation)

	r.Group(func(r chi.Router) {
		r.Use(s.requireCaller)

		r.Get("/api/me", s.handleMe)
		r.Post("/api/me/sharer", s.handleBecomeSharer)

		r.Post("/api/invitations/accept", s.handleAcceptInvitation)
		r.Post("/api/invitations/decline", s.handleDeclineInvitation)

		r.Get("/api/follow-requests", s.handleListMyFollowRequests)
		r.Post("/api/follow-requests", s.handleCreateFollowRequest)
		r.Post("/api/follow-requests/{requestId}/approve", s.handleApproveFollowRequest)
		r.Post("/api/follow-requests/{requestId}/deny", s.handleDenyFollowRequest)
		r.Post("/api/follow-requests/{requestId}/restore", s.handleRestoreFollowRequest)

		r.Get("/api/notifications", s.handleListNotifications)
		r.Post("/api/notifications/read", s.handleMarkNotificationsRead)
		r.Post("/api/notifications/read-all", s.handleMarkAllNotificationsRead)

		r.Route("/api/sharers/{sharerId}", func(r chi.Router) {
			r.Get("/connections", s.handleListConnections)
			r.Delete("/listeners/{listenerId}", s.handleRevokeListener)
			r.Delete("/executors/{executorId}", s.handleRevokeExecutor)

			r.Get("/invitations", s.handleListInvitations)
			r.Post("/invitations", s.handleCreateInvitation)
			r.Delete("/invitations/{invitationId}", s.handleCancelInvitation)

			r.Get("/follow-requests", s.handleListSharerFollowRequests)

			r.Get("/topics", s.handleListTopics)
			r.Get("/topics/{categoryId}", s.handleGetTopic)
			r.Post("/topics/{categoryId}/favorite", s.handleToggleFavorite)
			r.Post("/topics/{categoryId}/queue", s.handleToggleQueue)
			r.Get("/topics/{categoryId}/export", s.handleExportTopic)
			r.Get("/search", s.handleSearch)
		})
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error"}
		s.service.log.Warn("readiness check failed", zap.Error(err))
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

type callerKey struct{}
type requestIDKey struct{}

func callerFrom(ctx context.Context) Caller {
	caller, _ := ctx.Value(callerKey{}).(Caller)
	return caller
}

func (s *HTTPServer) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
			return
		}
		caller, err := s.service.CallerFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
				return
			}
			s.log.Error("session lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, CodeServerError, "Session lookup failed", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(started)
		s.metrics.ObserveRequest(r.Method, route, writer.status, elapsed)
		s.log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Request-ID")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID,Content-Disposition")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeServiceError maps err and logs anything that surfaces as a 5xx.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		requestID, _ := r.Context().Value(requestIDKey{}).(string)
		s.log.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, CodeNotFound, "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil
	}
	return http.StatusInternalServerError, CodeServerError, "Server error", nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryBool(r *http.Request, key string) bool {
	value, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	return value
}
