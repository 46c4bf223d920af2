// Package handler exposes the promotional cart HTTP contract: a uniform
// {success, data, error} envelope over chi-routed JSON endpoints.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/cart"
	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/promotion"
)

// CartService is the evaluation pipeline consumed by the cart endpoints.
type CartService interface {
	Evaluate(ctx context.Context, snap cart.Snapshot) (*cart.Result, error)
	Validate(ctx context.Context, snap cart.Snapshot) (*cart.ValidationResult, error)
	CanRemoveGift(ctx context.Context, item cart.Item) cart.CanRemoveResult
	GiftDisplayInfo(ctx context.Context, items []cart.Item) ([]cart.GiftDisplayInfo, error)
	GiftSummary(ctx context.Context, items []cart.Item) ([]cart.GiftSummaryEntry, error)
	Commit(ctx context.Context, snap cart.Snapshot) (*cart.CommitResult, error)
}

// AdminService is the promotion lifecycle consumed by the admin endpoints.
type AdminService interface {
	Create(ctx context.Context, p *promotion.Promotion) error
	Activate(ctx context.Context, id string) error
	Schedule(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Duplicate(ctx context.Context, id string) (*promotion.Promotion, error)
	Delete(ctx context.Context, id string) error
}

// Invalidator drops cached promotion state after admin mutations.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler wires the domain services to the HTTP surface.
type Handler struct {
	carts    CartService
	admin    AdminService
	cache    Invalidator
	security *SecurityHandler
}

// NewHandler constructs a Handler. The security handler may be nil, which
// leaves the admin surface unauthenticated (local development only).
func NewHandler(carts CartService, admin AdminService, cache Invalidator, security *SecurityHandler) *Handler {
	return &Handler{carts: carts, admin: admin, cache: cache, security: security}
}

// Routes assembles the chi router for the full API surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/cart/promotional", func(r chi.Router) {
		r.Post("/evaluate", h.EvaluateCart)
		r.Post("/validate", h.ValidateCart)
		r.Post("/commit", h.CommitCart)
		r.Route("/gift", func(r chi.Router) {
			r.Post("/can-remove", h.CanRemoveGift)
			r.Post("/display-info", h.GiftDisplayInfo)
			r.Post("/summary", h.GiftSummary)
		})
	})

	r.Route("/api/admin/promotions", func(r chi.Router) {
		if h.security != nil {
			r.Use(h.security.RequireAPIKey)
		}
		r.Post("/", h.CreatePromotion)
		r.Post("/{id}/activate", h.lifecycle(h.admin.Activate))
		r.Post("/{id}/schedule", h.lifecycle(h.admin.Schedule))
		r.Post("/{id}/pause", h.lifecycle(h.admin.Pause))
		r.Post("/{id}/resume", h.lifecycle(h.admin.Resume))
		r.Post("/{id}/duplicate", h.DuplicatePromotion)
		r.Delete("/{id}", h.DeletePromotion)
	})

	return r
}

type apiError struct {
	Message string `json:"message"`
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func respondData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Message: message}})
}

// respondDomainError maps domain failure classes to envelope responses.
// Unexpected errors are logged and surfaced as opaque 500s so transport
// failures are never mistaken for "no promotions apply".
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var iqErr *cart.InvalidQuantityError
	if errors.As(err, &iqErr) {
		respondError(w, http.StatusUnprocessableEntity, iqErr.Error())
		return
	}
	var pnfErr *cart.ProductNotFoundError
	if errors.As(err, &pnfErr) {
		respondError(w, http.StatusUnprocessableEntity, pnfErr.Error())
		return
	}
	switch {
	case errors.Is(err, promotion.ErrInvalidCode):
		respondError(w, http.StatusUnprocessableEntity, "invalid discount code")
	case errors.Is(err, promotion.ErrCodeNotActive):
		respondError(w, http.StatusUnprocessableEntity, "discount code is not active")
	case errors.Is(err, promotion.ErrUsageLimitReached):
		respondError(w, http.StatusConflict, "promotion usage limit reached")
	case errors.Is(err, promotion.ErrNotFound):
		respondError(w, http.StatusNotFound, "promotion not found")
	case errors.Is(err, promotion.ErrInvalidTransition),
		errors.Is(err, promotion.ErrInvalidPromotion):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
