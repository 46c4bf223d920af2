package handler

import (
	"net/http"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/cart"
)

type evaluateRequest struct {
	Items          []cart.Item `json:"items"`
	CustomerID     string      `json:"customerId,omitempty"`
	DiscountCode   string      `json:"discountCode,omitempty"`
	ShippingMethod string      `json:"shippingMethod,omitempty"`
}

func (req *evaluateRequest) snapshot() cart.Snapshot {
	return cart.Snapshot{
		Items:          req.Items,
		CustomerID:     req.CustomerID,
		DiscountCode:   req.DiscountCode,
		ShippingMethod: req.ShippingMethod,
	}
}

type itemsRequest struct {
	Items      []cart.Item `json:"items"`
	CustomerID string      `json:"customerId,omitempty"`
}

// EvaluateCart runs the full evaluation pipeline for the submitted snapshot.
func (h *Handler) EvaluateCart(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.carts.Evaluate(r.Context(), req.snapshot())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

// ValidateCart reconciles gift lines whose eligibility may have changed.
func (h *Handler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.carts.Validate(r.Context(), cart.Snapshot{
		Items:      req.Items,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

// CommitCart re-evaluates the cart and consumes usage for applied promotions.
func (h *Handler) CommitCart(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.carts.Commit(r.Context(), req.snapshot())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

type canRemoveRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
}

// CanRemoveGift answers the gift removal guard.
func (h *Handler) CanRemoveGift(w http.ResponseWriter, r *http.Request) {
	var req canRemoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result := h.carts.CanRemoveGift(r.Context(), cart.Item{
		ProductID:         req.ProductID,
		VariantID:         req.VariantID,
		IsPromotionalGift: true,
	})
	respondData(w, http.StatusOK, result)
}

// GiftDisplayInfo returns per-line gift labeling metadata for the cart UI.
func (h *Handler) GiftDisplayInfo(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	infos, err := h.carts.GiftDisplayInfo(r.Context(), req.Items)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, infos)
}

// GiftSummary returns aggregate gift counts and values grouped by promotion.
func (h *Handler) GiftSummary(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	summary, err := h.carts.GiftSummary(r.Context(), req.Items)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, summary)
}
