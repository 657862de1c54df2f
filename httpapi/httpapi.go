/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package httpapi exposes the triage service over HTTP. Every incident route
// authenticates the caller's bearer token and exchanges it for a delegated
// credential before any data is served.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/go-chi/chi/v5"

	"github.com/secopshub/sentriage"
	"github.com/secopshub/sentriage/internal/authutil"
	"github.com/secopshub/sentriage/sentinel"
	"github.com/secopshub/sentriage/tenantstore"
)

// Gateway authenticates bearer tokens and brokers delegated credentials.
// It is implemented by *sentriage.Authenticator.
type Gateway interface {
	Authenticate(ctx context.Context, token string) (*sentriage.UserIdentity, error)
	DelegatedToken(ctx context.Context, identity *sentriage.UserIdentity, resource string) (string, error)
}

// IncidentReader serves incident data given a delegated access token.
// It is implemented by *sentinel.Client.
type IncidentReader interface {
	ListIncidents(ctx context.Context, delegatedToken string, limit int, filter sentinel.Filter) ([]sentinel.Incident, error)
	GetIncident(ctx context.Context, delegatedToken, incidentID string) (sentinel.IncidentDetail, error)
	MetricsDashboard(ctx context.Context, delegatedToken string) (sentinel.Dashboard, error)
}

// HandlerOpts are additional options for Handler.
type HandlerOpts struct {
	// LoggerProvider is a function that provides a logger for request handling.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// Handler implements the triage HTTP API.
type Handler struct {
	gateway        Gateway
	incidents      IncidentReader
	tenants        *tenantstore.Store
	loggerProvider func(ctx context.Context) log.FieldLogger
}

// NewHandler creates a new API handler.
func NewHandler(gateway Gateway, incidents IncidentReader, tenants *tenantstore.Store, opts HandlerOpts) *Handler {
	loggerProvider := opts.LoggerProvider
	if loggerProvider == nil {
		loggerProvider = middleware.GetLoggerFromContext
	}
	return &Handler{gateway: gateway, incidents: incidents, tenants: tenants, loggerProvider: loggerProvider}
}

// Routes mounts all API routes on a new chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.handleHealth)
	r.Post("/authenticate", h.handleAuthenticate)
	r.Post("/incidents/list", h.handleListIncidents)
	r.Post("/incidents/get", h.handleGetIncident)
	r.Post("/metrics/dashboard", h.handleMetricsDashboard)
	r.Get("/tenants", h.handleListTenants)
	return r
}

type dataResponse struct {
	Data interface{} `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondData(rw http.ResponseWriter, r *http.Request, data interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(dataResponse{Data: data}); err != nil {
		authutil.GetLoggerFromProvider(r.Context(), h.loggerProvider).Error(
			"error encoding response", log.Error(err))
	}
}

func (h *Handler) respondError(rw http.ResponseWriter, r *http.Request, statusCode int, message string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	if err := json.NewEncoder(rw).Encode(errorResponse{Error: message}); err != nil {
		authutil.GetLoggerFromProvider(r.Context(), h.loggerProvider).Error(
			"error encoding response", log.Error(err))
	}
}

// respondAuthError maps gateway errors to their HTTP status with the
// outward-safe message. Causes stay in the log.
func (h *Handler) respondAuthError(rw http.ResponseWriter, r *http.Request, err error) {
	logger := authutil.GetLoggerFromProvider(r.Context(), h.loggerProvider)
	var authErr *sentriage.Error
	if errors.As(err, &authErr) {
		logger.Error("request rejected",
			log.String("error_kind", string(authErr.Kind)), log.Error(err))
		h.respondError(rw, r, authErr.Kind.HTTPStatus(), authErr.Message)
		return
	}
	logger.Error("request failed", log.Error(err))
	h.respondError(rw, r, http.StatusInternalServerError, "internal error")
}

// authenticate validates the request's bearer token. On failure the error
// response has already been written and false is returned.
func (h *Handler) authenticate(rw http.ResponseWriter, r *http.Request) (*sentriage.UserIdentity, bool) {
	identity, err := h.gateway.Authenticate(r.Context(), sentriage.GetBearerTokenFromRequest(r))
	if err != nil {
		h.respondAuthError(rw, r, err)
		return nil, false
	}
	return identity, true
}

// delegatedToken mints a delegated credential for the incident resource.
func (h *Handler) delegatedToken(rw http.ResponseWriter, r *http.Request, identity *sentriage.UserIdentity) (string, bool) {
	token, err := h.gateway.DelegatedToken(r.Context(), identity, sentinel.Resource)
	if err != nil {
		h.respondAuthError(rw, r, err)
		return "", false
	}
	return token, true
}

func (h *Handler) handleHealth(rw http.ResponseWriter, r *http.Request) {
	h.respondData(rw, r, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleAuthenticate(rw http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(rw, r)
	if !ok {
		return
	}
	h.respondData(rw, r, map[string]interface{}{
		"message":   "Token validated successfully",
		"user_info": identity,
	})
}

type incidentFilterRequest struct {
	Severity string `json:"severity"`
	Status   string `json:"status"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

type listIncidentsRequest struct {
	Limit  int                   `json:"limit"`
	Filter incidentFilterRequest `json:"filter"`
}

func (h *Handler) handleListIncidents(rw http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(rw, r)
	if !ok {
		return
	}

	var req listIncidentsRequest
	if !h.decodeBody(rw, r, &req) {
		return
	}
	filter, err := parseFilter(req.Filter)
	if err != nil {
		h.respondError(rw, r, http.StatusBadRequest, err.Error())
		return
	}

	delegated, ok := h.delegatedToken(rw, r, identity)
	if !ok {
		return
	}
	incidents, err := h.incidents.ListIncidents(r.Context(), delegated, req.Limit, filter)
	if err != nil {
		h.respondAuthError(rw, r, err)
		return
	}
	h.respondData(rw, r, map[string]interface{}{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

type getIncidentRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handleGetIncident(rw http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(rw, r)
	if !ok {
		return
	}

	var req getIncidentRequest
	if !h.decodeBody(rw, r, &req) {
		return
	}
	if req.ID == "" {
		h.respondError(rw, r, http.StatusBadRequest, "Incident ID is required")
		return
	}

	delegated, ok := h.delegatedToken(rw, r, identity)
	if !ok {
		return
	}
	detail, err := h.incidents.GetIncident(r.Context(), delegated, req.ID)
	if err != nil {
		h.respondAuthError(rw, r, err)
		return
	}
	h.respondData(rw, r, detail)
}

func (h *Handler) handleMetricsDashboard(rw http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(rw, r)
	if !ok {
		return
	}
	delegated, ok := h.delegatedToken(rw, r, identity)
	if !ok {
		return
	}
	dashboard, err := h.incidents.MetricsDashboard(r.Context(), delegated)
	if err != nil {
		h.respondAuthError(rw, r, err)
		return
	}
	h.respondData(rw, r, dashboard)
}

func (h *Handler) handleListTenants(rw http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(rw, r); !ok {
		return
	}
	if h.tenants == nil {
		h.respondError(rw, r, http.StatusNotImplemented, "tenant store is not configured")
		return
	}
	tenants, err := h.tenants.Tenants()
	if err != nil {
		h.respondAuthError(rw, r, err)
		return
	}
	h.respondData(rw, r, map[string]interface{}{
		"tenants": tenants,
		"count":   len(tenants),
	})
}

// decodeBody decodes a JSON request body. A missing body is treated as empty.
func (h *Handler) decodeBody(rw http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(rw, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseFilter(req incidentFilterRequest) (sentinel.Filter, error) {
	filter := sentinel.Filter{Severity: req.Severity, Status: req.Status}
	if req.DateFrom != "" {
		t, err := time.Parse(time.RFC3339, req.DateFrom)
		if err != nil {
			return sentinel.Filter{}, errors.New("date_from must be an RFC 3339 timestamp")
		}
		filter.DateFrom = t
	}
	if req.DateTo != "" {
		t, err := time.Parse(time.RFC3339, req.DateTo)
		if err != nil {
			return sentinel.Filter{}, errors.New("date_to must be an RFC 3339 timestamp")
		}
		filter.DateTo = t
	}
	return filter, nil
}
