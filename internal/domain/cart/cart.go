// Package cart composes the condition evaluator, benefit calculator, and
// selection resolver into the cart pricing result consumed by the storefront.
package cart

import "time"

// Money is a monetary value in minor currency units (satang).
type Money = int64

// Item is a single cart line as submitted by the storefront. Regular items
// and gift items with the same product coexist as distinct lines,
// distinguished by IsPromotionalGift.
type Item struct {
	ProductID         string `json:"productId"`
	VariantID         string `json:"variantId,omitempty"`
	Quantity          int    `json:"quantity"`
	IsPromotionalGift bool   `json:"isPromotionalGift,omitempty"`
	SourcePromotionID string `json:"sourcePromotionId,omitempty"`
	GiftValue         Money  `json:"giftValue,omitempty"`
}

// Snapshot is the full cart state submitted for one evaluation pass.
type Snapshot struct {
	Items          []Item
	CustomerID     string
	DiscountCode   string
	ShippingMethod string
}

// FreeGift is a zero-price cart line awarded as a promotional benefit,
// traceable to its source promotion. Value is the gift's catalog price,
// used for savings reporting.
type FreeGift struct {
	ProductID   string `json:"productId"`
	VariantID   string `json:"variantId,omitempty"`
	Quantity    int    `json:"quantity"`
	Name        string `json:"name"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Value       Money  `json:"value"`
	PromotionID string `json:"promotionId"`
}

// AppliedPromotion is the result of successfully applying one promotion.
type AppliedPromotion struct {
	PromotionID    string     `json:"promotionId"`
	PromotionName  string     `json:"promotionName"`
	DiscountAmount Money      `json:"discountAmount"`
	FreeGifts      []FreeGift `json:"freeGifts,omitempty"`
	AppliedAt      time.Time  `json:"appliedAt"`
}

// RejectedPromotion explains why a known promotion did not apply.
type RejectedPromotion struct {
	PromotionID   string `json:"promotionId"`
	PromotionName string `json:"promotionName"`
	Reason        string `json:"reason"`
}

// PendingGiftSelection is a free-gift promotion offering more eligible gift
// options than granted slots; the customer must choose before the gifts
// materialize as cart lines.
type PendingGiftSelection struct {
	PromotionID         string     `json:"promotionId"`
	PromotionName       string     `json:"promotionName"`
	AvailableOptions    []FreeGift `json:"availableOptions"`
	SelectionsRemaining int        `json:"selectionsRemaining"`
}

// DiscountSummary names the manually entered discount code's contribution.
type DiscountSummary struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Amount      Money  `json:"amount"`
}

// Pricing is the aggregate cart pricing breakdown. The invariant
// TotalAmount = Subtotal + ShippingCost + TaxAmount - DiscountAmount holds,
// floored at zero.
type Pricing struct {
	Subtotal            Money            `json:"subtotal"`
	ShippingCost        Money            `json:"shippingCost"`
	TaxAmount           Money            `json:"taxAmount"`
	DiscountAmount      Money            `json:"discountAmount"`
	TotalAmount         Money            `json:"totalAmount"`
	Discount            *DiscountSummary `json:"discount,omitempty"`
	PromotionalDiscount Money            `json:"promotionalDiscount"`
	FreeGifts           []FreeGift       `json:"freeGifts,omitempty"`
}

// Result is the full outcome of one evaluation pass: the reconciled cart
// lines, the applied and rejected promotions, awarded gifts, pending
// selections, and the pricing breakdown.
type Result struct {
	Items                 []Item                 `json:"items"`
	AppliedPromotions     []AppliedPromotion     `json:"appliedPromotions"`
	RejectedPromotions    []RejectedPromotion    `json:"rejectedPromotions,omitempty"`
	TotalDiscount         Money                  `json:"totalDiscount"`
	FreeGifts             []FreeGift             `json:"freeGifts"`
	Pricing               Pricing                `json:"pricing"`
	PendingGiftSelections []PendingGiftSelection `json:"pendingGiftSelections,omitempty"`
}

// ValidationError describes one cart line rejected during reconciliation.
type ValidationError struct {
	ProductID string `json:"productId"`
	Message   string `json:"message"`
}

// ValidationResult reconciles gift lines whose eligibility may have changed:
// UpdatedItems is the cart with orphaned gift lines removed.
type ValidationResult struct {
	IsValid      bool              `json:"isValid"`
	UpdatedItems []Item            `json:"updatedItems"`
	Errors       []ValidationError `json:"errors,omitempty"`
}

// CanRemoveResult answers the gift removal guard. Gifts are always removable
// by the customer; the next pricing pass reconciles eligibility lazily.
type CanRemoveResult struct {
	CanRemove bool   `json:"canRemove"`
	Reason    string `json:"reason,omitempty"`
}

// GiftDisplayInfo carries per-line gift labeling metadata for the UI.
type GiftDisplayInfo struct {
	ProductID     string `json:"productId"`
	VariantID     string `json:"variantId,omitempty"`
	IsGift        bool   `json:"isGift"`
	Label         string `json:"label,omitempty"`
	PromotionID   string `json:"promotionId,omitempty"`
	PromotionName string `json:"promotionName,omitempty"`
	Value         Money  `json:"value,omitempty"`
}

// GiftSummaryEntry aggregates gift counts and values per source promotion.
type GiftSummaryEntry struct {
	PromotionID   string `json:"promotionId"`
	PromotionName string `json:"promotionName,omitempty"`
	GiftCount     int    `json:"giftCount"`
	TotalValue    Money  `json:"totalValue"`
}

// CommitResult reports the promotions whose usage was consumed for an order.
type CommitResult struct {
	Result               *Result  `json:"result"`
	ConsumedPromotionIDs []string `json:"consumedPromotionIds"`
}
