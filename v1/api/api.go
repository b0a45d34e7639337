// Package api exposes the lock manager over HTTP. Every business outcome is
// carried in a uniform JSON envelope with HTTP status 200; the envelope code
// distinguishes success, conflict, lost grants, invalid input and backend
// failure.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mirkobrombin/go-lockd/v1/lock"
	"github.com/mirkobrombin/go-lockd/v1/manager"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-lockd/v1/api")

// DefaultNamespace is used when an acquire request omits the namespace.
const DefaultNamespace = "default"

// Envelope codes. Zero means lock-semantics success.
const (
	CodeOK                 = 0
	CodeConflict           = 1001
	CodeHeartbeatLost      = 2001
	CodeReleaseLost        = 3001
	CodeInvalidRequest     = 4001
	CodeStorageUnavailable = 5001
)

// Response is the uniform envelope wrapping all three operations.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Success bool   `json:"success"`
}

func success(data any) Response {
	return Response{Code: CodeOK, Message: "success", Data: data, Success: true}
}

func failure(code int, message string) Response {
	return Response{Code: code, Message: message}
}

type acquireRequest struct {
	Namespace  string `json:"namespace"`
	BusinessID string `json:"business_id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Timeout    int64  `json:"timeout"` // seconds
}

type tokenRequest struct {
	LockID string `json:"lock_id"`
}

// Handler serves the lock API backed by mgr.
type Handler struct {
	mgr *manager.Manager
}

// NewHandler returns the API routes wrapped in the logging middleware.
func NewHandler(mgr *manager.Manager) http.Handler {
	h := &Handler{mgr: mgr}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/lock/acquire", h.acquire)
	mux.HandleFunc("POST /api/lock/heartbeat", h.heartbeat)
	mux.HandleFunc("POST /api/lock/release", h.release)
	return loggerMiddleware(mux)
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

// mapError turns a manager error into its envelope.
func mapError(err error) Response {
	if manager.IsInvalidInput(err) {
		return failure(CodeInvalidRequest, err.Error())
	}
	if lock.IsStorageUnavailable(err) {
		return failure(CodeStorageUnavailable, "storage unavailable")
	}
	return failure(CodeStorageUnavailable, err.Error())
}

func (h *Handler) acquire(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "lock.acquire")
	defer span.End()

	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, failure(CodeInvalidRequest, "invalid request body"))
		return
	}
	if req.Namespace == "" {
		req.Namespace = DefaultNamespace
	}
	span.SetAttributes(
		attribute.String("lock.namespace", req.Namespace),
		attribute.String("lock.business_id", req.BusinessID),
	)

	res, err := h.mgr.Acquire(ctx, manager.AcquireRequest{
		Namespace:  req.Namespace,
		BusinessID: req.BusinessID,
		UserID:     req.UserID,
		UserName:   req.UserName,
		Timeout:    time.Duration(req.Timeout) * time.Second,
	})
	if err != nil {
		writeJSON(w, mapError(err))
		return
	}
	if !res.OK {
		writeJSON(w, failure(CodeConflict, fmt.Sprintf("Lock already held by %s", res.HeldBy)))
		return
	}
	writeJSON(w, success(map[string]string{"lock_id": res.Token}))
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "lock.heartbeat")
	defer span.End()

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, failure(CodeInvalidRequest, "invalid request body"))
		return
	}

	renewed, err := h.mgr.Heartbeat(ctx, req.LockID)
	if err != nil {
		writeJSON(w, mapError(err))
		return
	}
	if !renewed {
		writeJSON(w, failure(CodeHeartbeatLost, "Lock not found or expired"))
		return
	}
	writeJSON(w, success(map[string]bool{"renewed": true}))
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "lock.release")
	defer span.End()

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, failure(CodeInvalidRequest, "invalid request body"))
		return
	}

	released, err := h.mgr.Release(ctx, req.LockID)
	if err != nil {
		writeJSON(w, mapError(err))
		return
	}
	if !released {
		writeJSON(w, failure(CodeReleaseLost, "Lock not found or not owned"))
		return
	}
	writeJSON(w, success(map[string]bool{"released": true}))
}
