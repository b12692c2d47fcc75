package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"regwatch/internal/listing/service"
	"regwatch/internal/platform/middleware"
	"regwatch/pkg/platform/httputil"
	"regwatch/pkg/requestcontext"
)

type Service interface {
	CachedSnapshot(ctx context.Context) ([]string, error)
	DerivedCurrent(ctx context.Context, at time.Time) ([]string, error)
	EverOccurred(ctx context.Context) ([]string, error)
	SnapshotDrift(ctx context.Context, at time.Time) ([]service.Drift, error)
}

// ListingResponse labels which source of truth produced the listing.
type ListingResponse struct {
	Listing string    `json:"listing"`
	Source  string    `json:"source"`
	At      time.Time `json:"at,omitzero"`
	Domains []string  `json:"domains"`
}

type DriftResponse struct {
	At      time.Time       `json:"at"`
	Domains []service.Drift `json:"domains"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/listings/snapshot", h.handleSnapshot)
	r.Get("/listings/current", h.handleCurrent)
	r.Get("/listings/ever-occurred", h.handleEverOccurred)
	r.Get("/listings/drift", h.handleDrift)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fqdns, err := h.service.CachedSnapshot(ctx)
	if err != nil {
		h.fail(ctx, w, err, "snapshot")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListingResponse{
		Listing: "snapshot",
		Source:  "cached",
		Domains: fqdns,
	})
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	at, err := instant(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	fqdns, err := h.service.DerivedCurrent(ctx, at)
	if err != nil {
		h.fail(ctx, w, err, "current")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListingResponse{
		Listing: "current",
		Source:  "derived",
		At:      at,
		Domains: fqdns,
	})
}

func (h *Handler) handleEverOccurred(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fqdns, err := h.service.EverOccurred(ctx)
	if err != nil {
		h.fail(ctx, w, err, "ever-occurred")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListingResponse{
		Listing: "ever-occurred",
		Source:  "derived",
		Domains: fqdns,
	})
}

func (h *Handler) handleDrift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	at, err := instant(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	drift, err := h.service.SnapshotDrift(ctx, at)
	if err != nil {
		h.fail(ctx, w, err, "drift")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DriftResponse{At: at, Domains: drift})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error, listing string) {
	h.logger.ErrorContext(ctx, "failed to build listing",
		"listing", listing,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
	httputil.WriteError(w, err)
}

func instant(r *http.Request) (time.Time, error) {
	at, err := httputil.QueryTime(r, "at")
	if err != nil {
		return time.Time{}, err
	}
	if at.IsZero() {
		return requestcontext.Now(r.Context()), nil
	}
	return at, nil
}
