package api

import (
	"clientreg/internal/registry"
	"clientreg/internal/types"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	RequestIDHdrName = "X-Request-Id"

	maxBodyBytes = 1 << 20
)

type ctxKey int

const loggerKey ctxKey = iota

type Handler struct {
	Service *registry.Service
}

type registerRequest struct {
	CNPJ string `json:"cnpj"`
	Nome string `json:"nome"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	CNPJ    string `json:"cnpj"`
}

type meResponse struct {
	Nome string `json:"nome"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(svc *registry.Service) *Handler {
	return &Handler{Service: svc}
}

// Routes mounts the client endpoints on r. /me sits outside /clientes so every CNPJ
// stays addressable.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Route("/clientes", func(r chi.Router) {
		r.Post("/", h.handleRegister)
		r.Get("/", h.handleList)
		r.Get("/{cnpj}", h.handleGet)
		r.Delete("/{cnpj}", h.handleDelete)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read error")
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()
	var req registerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	token, err := h.Service.Register(r.Context(), req.CNPJ, req.Nome)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, registerResponse{Success: true, Token: token})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.ListAll(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if expr := r.URL.Query().Get("filter"); expr != "" {
		views, err = registry.Filter(expr, views)
		if err != nil {
			requestLogger(r.Context()).WithError(err).Info("rejected list filter")
			writeError(w, http.StatusBadRequest, "invalid filter expression")
			return
		}
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetByCNPJ(r.Context(), chi.URLParam(r, "cnpj"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	cnpj, err := h.Service.Delete(r.Context(), chi.URLParam(r, "cnpj"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, deleteResponse{Success: true, CNPJ: cnpj})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	nome, err := h.Service.Authenticate(r.Context(), r.Header.Get(types.ClientSecretHdrName))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, meResponse{Nome: nome})
}

// writeServiceError translates a service error into a status and a public message.
// Causes are logged by the service and never reach the response body.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		requestLogger(r.Context()).WithError(err).Error("request failed")
	}
	writeError(w, status, msg)
}

func statusFor(err error) (int, string) {
	var ve *types.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict, "client already exists"
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "client not found"
	case errors.Is(err, types.ErrInvalidSecret):
		return http.StatusUnauthorized, "invalid client secret"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// requestIDMiddleware tags each request with an id, echoed in the response and carried
// by the request-scoped logger.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHdrName)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHdrName, id)
		entry := log.WithFields(log.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		ctx := context.WithValue(r.Context(), loggerKey, entry)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLogMiddleware logs every request once it completes.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		requestLogger(r.Context()).WithField("status", ww.Status()).Debug("request served")
	})
}

func requestLogger(ctx context.Context) *log.Entry {
	if entry, ok := ctx.Value(loggerKey).(*log.Entry); ok {
		return entry
	}
	return log.NewEntry(log.StandardLogger())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		requestLogger(r.Context()).WithError(err).Warn("failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
