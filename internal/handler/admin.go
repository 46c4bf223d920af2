package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/promotion"
)

type conditionRuleDTO struct {
	ConditionType string   `json:"conditionType"`
	Operator      string   `json:"operator"`
	NumericValue  int64    `json:"numericValue,omitempty"`
	Values        []string `json:"values,omitempty"`
}

type benefitRuleDTO struct {
	BenefitType        string          `json:"benefitType,omitempty"`
	Value              decimal.Decimal `json:"value"`
	MaxDiscountAmount  int64           `json:"maxDiscountAmount,omitempty"`
	GiftProductIDs     []string        `json:"giftProductIds,omitempty"`
	GiftQuantities     []int           `json:"giftQuantities,omitempty"`
	GiftSelectionLimit int             `json:"giftSelectionLimit,omitempty"`
}

type createPromotionRequest struct {
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	Type             string             `json:"type"`
	Code             string             `json:"code,omitempty"`
	Priority         int                `json:"priority,omitempty"`
	StartsAt         time.Time          `json:"startsAt"`
	EndsAt           time.Time          `json:"endsAt"`
	UsageLimit       int                `json:"usageLimit,omitempty"`
	PerCustomerLimit int                `json:"perCustomerLimit,omitempty"`
	Conditions       []conditionRuleDTO `json:"conditions,omitempty"`
	Benefit          benefitRuleDTO     `json:"benefit"`
}

type promotionResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// CreatePromotion persists a new draft promotion.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req createPromotionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conditions := make([]promotion.ConditionRule, len(req.Conditions))
	for i, c := range req.Conditions {
		conditions[i] = promotion.ConditionRule{
			ConditionType: promotion.ConditionType(c.ConditionType),
			Operator:      promotion.Operator(c.Operator),
			NumericValue:  c.NumericValue,
			Values:        c.Values,
		}
	}

	p := &promotion.Promotion{
		Name:             req.Name,
		Description:      req.Description,
		Type:             promotion.Type(req.Type),
		Code:             req.Code,
		Priority:         req.Priority,
		StartsAt:         req.StartsAt,
		EndsAt:           req.EndsAt,
		UsageLimit:       req.UsageLimit,
		PerCustomerLimit: req.PerCustomerLimit,
		Conditions:       conditions,
		Benefit: promotion.BenefitRule{
			BenefitType:        promotion.Type(req.Benefit.BenefitType),
			Value:              req.Benefit.Value,
			MaxDiscountMinor:   req.Benefit.MaxDiscountAmount,
			GiftProductIDs:     req.Benefit.GiftProductIDs,
			GiftQuantities:     req.Benefit.GiftQuantities,
			GiftSelectionLimit: req.Benefit.GiftSelectionLimit,
		},
	}

	if err := h.admin.Create(r.Context(), p); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.invalidate(r.Context())
	respondData(w, http.StatusCreated, promotionResponse{ID: p.ID, Name: p.Name, Status: string(p.Status)})
}

// lifecycle adapts a single-id lifecycle transition to an HTTP handler.
func (h *Handler) lifecycle(op func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := op(r.Context(), id); err != nil {
			respondDomainError(w, r, err)
			return
		}
		h.invalidate(r.Context())
		respondData(w, http.StatusOK, map[string]string{"id": id})
	}
}

// DuplicatePromotion copies an existing promotion into a fresh draft.
func (h *Handler) DuplicatePromotion(w http.ResponseWriter, r *http.Request) {
	dup, err := h.admin.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, promotionResponse{ID: dup.ID, Name: dup.Name, Status: string(dup.Status)})
}

// DeletePromotion removes a promotion; dependent gift lines cascade out of
// carts on their next evaluation pass.
func (h *Handler) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.admin.Delete(r.Context(), id); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.invalidate(r.Context())
	respondData(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) invalidate(ctx context.Context) {
	if h.cache != nil {
		_ = h.cache.Invalidate(ctx)
	}
}
