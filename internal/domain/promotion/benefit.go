package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/product"
)

var hundred = decimal.NewFromInt(100)

// GiftOption is a deliverable gift candidate: a catalog product that is in
// stock and active, valued at its current catalog price for savings reporting.
type GiftOption struct {
	ProductID  string
	Quantity   int
	Name       string
	ImageURL   string
	ValueMinor int64
}

// BenefitResult is the monetary or gift effect of one eligible promotion.
type BenefitResult struct {
	DiscountMinor int64
	// Gifts are the auto-awarded gift lines.
	Gifts []GiftOption
	// PendingOptions is non-empty when the pool offers more deliverable
	// options than the promotion grants and the customer must choose.
	PendingOptions      []GiftOption
	SelectionsRemaining int
}

// CalculateBenefit computes the discount amount or gift set for an eligible
// promotion. The discount base is the subtotal of regular (non-gift) lines.
// Percentage amounts round half up to the nearest minor unit.
func CalculateBenefit(p *Promotion, lines []CartLine, catalog map[string]product.Product) (BenefitResult, error) {
	switch p.Benefit.BenefitType {
	case TypePercentageDiscount:
		return BenefitResult{DiscountMinor: percentageDiscount(p.Benefit, RegularSubtotal(lines))}, nil
	case TypeFixedDiscount:
		return BenefitResult{DiscountMinor: fixedDiscount(p.Benefit, RegularSubtotal(lines))}, nil
	case TypeFreeGift:
		return freeGiftBenefit(p, lines, catalog), nil
	default:
		return BenefitResult{}, errors.Errorf("unsupported benefit type: %q", p.Benefit.BenefitType)
	}
}

// percentageDiscount computes subtotal * value / 100 rounded half up, then
// applies the cap. Never exceeds the subtotal it discounts.
func percentageDiscount(b BenefitRule, subtotalMinor int64) int64 {
	raw := decimal.NewFromInt(subtotalMinor).Mul(b.Value).Div(hundred)
	amount := raw.Round(0).IntPart()
	if amount < 0 {
		amount = 0
	}
	if amount > subtotalMinor {
		amount = subtotalMinor
	}
	if b.MaxDiscountMinor > 0 && amount > b.MaxDiscountMinor {
		amount = b.MaxDiscountMinor
	}
	return amount
}

// fixedDiscount clamps the fixed amount at the subtotal so totals can never
// go negative.
func fixedDiscount(b BenefitRule, subtotalMinor int64) int64 {
	amount := b.Value.IntPart()
	if amount < 0 {
		amount = 0
	}
	if amount > subtotalMinor {
		amount = subtotalMinor
	}
	if b.MaxDiscountMinor > 0 && amount > b.MaxDiscountMinor {
		amount = b.MaxDiscountMinor
	}
	return amount
}

// freeGiftBenefit resolves the deliverable gift pool against the catalog.
// Unavailable gift products are silently excluded; a promotion left with zero
// deliverable gifts still counts as applied with an empty gift set. When the
// deliverable pool exceeds the selection limit, nothing is auto-awarded:
// previously selected gift lines in the cart count against the remaining
// slots and the rest surfaces as a pending customer choice.
func freeGiftBenefit(p *Promotion, lines []CartLine, catalog map[string]product.Product) BenefitResult {
	options := deliverableOptions(p.Benefit, catalog)
	limit := p.Benefit.GiftSelectionLimit

	if limit <= 0 || len(options) <= limit {
		return BenefitResult{Gifts: options}
	}

	// Selection required. Honor gift lines already chosen for this promotion.
	selected := make([]GiftOption, 0, limit)
	for _, l := range lines {
		if !l.Gift || l.SourcePromotionID != p.ID {
			continue
		}
		for _, opt := range options {
			if opt.ProductID == l.ProductID {
				selected = append(selected, opt)
				break
			}
		}
	}
	if len(selected) > limit {
		selected = selected[:limit]
	}

	remaining := limit - len(selected)
	if remaining <= 0 {
		return BenefitResult{Gifts: selected}
	}
	return BenefitResult{
		Gifts:               selected,
		PendingOptions:      options,
		SelectionsRemaining: remaining,
	}
}

// deliverableOptions maps the rule's gift pool to catalog products, dropping
// entries that are deleted, inactive, or out of stock.
func deliverableOptions(b BenefitRule, catalog map[string]product.Product) []GiftOption {
	options := make([]GiftOption, 0, len(b.GiftProductIDs))
	for i, id := range b.GiftProductIDs {
		prod, ok := catalog[id]
		if !ok || !prod.Available() {
			continue
		}
		qty := 1
		if i < len(b.GiftQuantities) && b.GiftQuantities[i] > 0 {
			qty = b.GiftQuantities[i]
		}
		options = append(options, GiftOption{
			ProductID:  prod.ID,
			Quantity:   qty,
			Name:       prod.Name,
			ImageURL:   prod.ImageURL,
			ValueMinor: prod.PriceMinor,
		})
	}
	return options
}
