package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"regwatch/internal/catalog/models"
	"regwatch/internal/platform/middleware"
	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
	"regwatch/pkg/platform/httputil"
)

// Service defines the catalog operations exposed over HTTP.
type Service interface {
	RegisterDomain(ctx context.Context, name, tld string) (*models.Domain, error)
	RegisterFQDN(ctx context.Context, fqdn string) (*models.Domain, error)
	GetDomain(ctx context.Context, domainID id.DomainID) (*models.Domain, error)
	ListDomains(ctx context.Context) ([]*models.Domain, error)
	SetSnapshot(ctx context.Context, domainID id.DomainID, snapshot models.Snapshot) (*models.Domain, error)
	ListFlags(ctx context.Context) ([]*models.Flag, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/domains", h.handleListDomains)
	r.Get("/domains/{domainID}", h.handleGetDomain)
	r.Get("/flags", h.handleListFlags)
}

// RegisterAdmin mounts catalog writes. Callers wrap r with the admin guard.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/domains", h.handleRegisterDomain)
	r.Put("/domains/{domainID}/snapshot", h.handleSetSnapshot)
}

func (h *Handler) handleRegisterDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid json body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var (
		d   *models.Domain
		err error
	)
	if req.FQDN != "" {
		d, err = h.service.RegisterFQDN(ctx, req.FQDN)
	} else {
		d, err = h.service.RegisterDomain(ctx, req.Name, req.TLD)
	}
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to register domain")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toDomainResponse(d))
}

func (h *Handler) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.service.GetDomain(ctx, domainID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to get domain")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDomainResponse(d))
}

func (h *Handler) handleListDomains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domains, err := h.service.ListDomains(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list domains")
		return
	}
	resp := DomainListResponse{Domains: make([]DomainResponse, 0, len(domains))}
	for _, d := range domains {
		resp.Domains = append(resp.Domains, toDomainResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req SetSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid json body"))
		return
	}
	snapshot, err := req.Validate()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.service.SetSnapshot(ctx, domainID, snapshot)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to set snapshot")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDomainResponse(d))
}

func (h *Handler) handleListFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flags, err := h.service.ListFlags(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list flags")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FlagListResponse{Flags: flags})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	}
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
