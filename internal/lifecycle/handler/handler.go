package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"regwatch/internal/lifecycle/models"
	"regwatch/internal/platform/middleware"
	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
	"regwatch/pkg/platform/httputil"
	"regwatch/pkg/requestcontext"
)

// Service defines the lifecycle operations exposed over HTTP.
type Service interface {
	SubmitRegistration(ctx context.Context, domainID id.DomainID, at time.Time, newState models.RegistrationState) (*models.RegistrationTransition, error)
	SubmitFlag(ctx context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time, setTo bool, validUntil *time.Time) (*models.FlagTransition, error)
	RegisteredAt(ctx context.Context, domainID id.DomainID, at time.Time) (bool, error)
	FlagActiveAt(ctx context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time) (bool, error)
	EverFlagTrue(ctx context.Context, domainID id.DomainID, flagID id.FlagID) (bool, error)
	Timeline(ctx context.Context, domainID id.DomainID) ([]models.TimelineEntry, error)
}

// Handler serves transition submission and effective-state queries.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the read routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/domains/{domainID}/registration", h.handleGetRegistration)
	r.Get("/domains/{domainID}/flags/{flagID}", h.handleGetFlag)
	r.Get("/domains/{domainID}/timeline", h.handleGetTimeline)
}

// RegisterAdmin mounts the write routes. Callers wrap r with the admin guard.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/domains/{domainID}/registration", h.handleSubmitRegistration)
	r.Post("/domains/{domainID}/flags/{flagID}", h.handleSubmitFlag)
}

func (h *Handler) handleSubmitRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req SubmitRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid registration request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	state, err := req.Validate()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	t, err := h.service.SubmitRegistration(ctx, domainID, req.Timestamp, state)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to submit registration")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleSubmitFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, flagID, err := pathIDs(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req SubmitFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid flag request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	t, err := h.service.SubmitFlag(ctx, domainID, flagID, req.Timestamp, *req.SetTo, req.ValidUntil)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to submit flag transition")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	at, err := instant(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	registered, err := h.service.RegisteredAt(ctx, domainID, at)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to resolve registration")
		return
	}
	state := models.StateUnregistered
	if registered {
		state = models.StateRegistered
	}
	httputil.WriteJSON(w, http.StatusOK, RegistrationResponse{
		DomainID:   domainID,
		At:         at,
		Registered: registered,
		State:      state,
	})
}

func (h *Handler) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, flagID, err := pathIDs(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	at, err := instant(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	active, err := h.service.FlagActiveAt(ctx, domainID, flagID, at)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to resolve flag")
		return
	}
	// A second read is consistent with the first: ever_true is monotone, so a
	// flag read as active above is still ever_true here.
	ever, err := h.service.EverFlagTrue(ctx, domainID, flagID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to resolve flag")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FlagResponse{
		DomainID: domainID,
		FlagID:   flagID,
		At:       at,
		Active:   active,
		EverTrue: ever,
	})
}

func (h *Handler) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.service.Timeline(ctx, domainID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load timeline")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TimelineResponse{DomainID: domainID, Entries: entries})
}

// writeServiceError logs server faults at error level and caller faults at
// warn level, then writes the mapped response.
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

func pathIDs(r *http.Request) (id.DomainID, id.FlagID, error) {
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		return id.DomainID{}, id.FlagID{}, err
	}
	flagID, err := id.ParseFlagID(chi.URLParam(r, "flagID"))
	if err != nil {
		return id.DomainID{}, id.FlagID{}, err
	}
	return domainID, flagID, nil
}

// instant reads ?at=, defaulting to the request clock.
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
