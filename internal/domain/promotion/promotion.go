package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported promotion benefit strategies.
type Type string

const (
	// TypePercentageDiscount applies a percentage-based discount to the
	// subtotal of regular (non-gift) items.
	TypePercentageDiscount Type = "percentage_discount"
	// TypeFixedDiscount applies a fixed discount capped at the subtotal.
	TypeFixedDiscount Type = "fixed_discount"
	// TypeFreeGift awards zero-price gift lines from a configured pool.
	TypeFreeGift Type = "free_gift"
)

// IsDiscount reports whether the type reduces the cart total monetarily.
// Only one discount-type promotion may apply per cart; free-gift promotions
// stack independently.
func (t Type) IsDiscount() bool {
	return t == TypePercentageDiscount || t == TypeFixedDiscount
}

// Status enumerates the promotion lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusExpired   Status = "expired"
)

// ConditionType enumerates the supported eligibility predicates.
type ConditionType string

const (
	// ConditionCartValue compares the regular-item subtotal (minor units)
	// against the rule's numeric value.
	ConditionCartValue ConditionType = "cart_value"
	// ConditionProductQuantity compares the total quantity of matching
	// regular items against the rule's numeric value.
	ConditionProductQuantity ConditionType = "product_quantity"
	// ConditionSpecificProducts tests cart membership against a product id set.
	ConditionSpecificProducts ConditionType = "specific_products"
	// ConditionCategoryProducts tests cart membership against a category set.
	ConditionCategoryProducts ConditionType = "category_products"
)

// Operator enumerates the supported condition comparisons.
type Operator string

const (
	OpGTE   Operator = "gte"
	OpLTE   Operator = "lte"
	OpEQ    Operator = "eq"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

var (
	// ErrInvalidCode is returned when a discount code is unknown.
	ErrInvalidCode = errors.New("invalid discount code")
	// ErrCodeNotActive is returned when a discount code maps to a promotion
	// that is outside its valid window or not in the active state.
	ErrCodeNotActive = errors.New("discount code is not active")
	// ErrUsageLimitReached is returned when consuming a promotion whose
	// usage limit is exhausted.
	ErrUsageLimitReached = errors.New("promotion usage limit reached")
	// ErrNotFound is returned when a promotion id is unknown.
	ErrNotFound = errors.New("promotion not found")
)

// ConditionRule is a predicate over cart state gating promotion eligibility.
// A promotion is eligible only when ALL of its condition rules hold; the rule
// model deliberately has no OR combinator.
type ConditionRule struct {
	ConditionType ConditionType
	Operator      Operator
	// NumericValue holds thresholds for cart_value (minor units) and
	// product_quantity rules.
	NumericValue int64
	// Values holds the product/category id set for in/not_in rules, and
	// optionally scopes product_quantity rules to a product subset.
	Values []string
}

// BenefitRule describes the effect a promotion grants once eligible.
type BenefitRule struct {
	BenefitType Type
	// Value is the percentage (for percentage_discount) or the fixed amount
	// in minor units (for fixed_discount).
	Value decimal.Decimal
	// MaxDiscountMinor caps the computed discount. Zero means no cap.
	MaxDiscountMinor int64
	// GiftProductIDs and GiftQuantities are parallel arrays describing the
	// gift pool for free_gift promotions.
	GiftProductIDs []string
	GiftQuantities []int
	// GiftSelectionLimit is the number of gift options the customer may pick
	// from the pool. Zero means every available option is auto-awarded.
	GiftSelectionLimit int
}

// Promotion is a named, time-bounded, condition-gated offer.
type Promotion struct {
	ID          string
	Name        string
	Description string
	Type        Type
	// Code is non-empty for promotions activated by a manually entered
	// discount code; automatic promotions have an empty code.
	Code             string
	Priority         int
	StartsAt         time.Time
	EndsAt           time.Time
	Status           Status
	UsageLimit       int // zero means unlimited
	UsageCount       int
	PerCustomerLimit int // zero means unlimited
	Conditions       []ConditionRule
	Benefit          BenefitRule
}

// ActiveAt reports whether the promotion may be applied at the given instant:
// status is active and the instant falls inside [StartsAt, EndsAt].
func (p *Promotion) ActiveAt(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	if now.Before(p.StartsAt) || now.After(p.EndsAt) {
		return false
	}
	return true
}

// UsageExhausted reports whether the total usage limit has been consumed.
func (p *Promotion) UsageExhausted() bool {
	return p.UsageLimit > 0 && p.UsageCount >= p.UsageLimit
}

// Automatic reports whether the promotion applies without a discount code.
func (p *Promotion) Automatic() bool {
	return p.Code == ""
}

// Repository provides read access to promotion definitions for evaluation.
type Repository interface {
	// ListActive returns promotions in the active state whose window covers now.
	ListActive(ctx context.Context, now time.Time) ([]Promotion, error)
	// Get returns a promotion by id regardless of lifecycle state.
	// Returns ErrNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*Promotion, error)
	// FindByCode resolves a manually entered discount code to its promotion.
	// Returns ErrInvalidCode when the code is unknown.
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	// UsageByCustomer returns how many times the customer has consumed each
	// of the given promotions. Missing ids mean zero usage.
	UsageByCustomer(ctx context.Context, customerID string, promotionIDs []string) (map[string]int, error)
}

// Consumer records promotion usage when an order is committed. Implementations
// must apply increment-with-limit-check semantics atomically so capped
// promotions cannot be oversold under concurrent checkouts.
type Consumer interface {
	// Consume increments usage for every promotion id within one transaction.
	// Returns ErrUsageLimitReached (wrapped with the offending id) and rolls
	// back when any limit is exhausted.
	Consume(ctx context.Context, promotionIDs []string, customerID string) error
}

// AdminRepository provides lifecycle mutations for the back-office.
type AdminRepository interface {
	Create(ctx context.Context, p *Promotion) error
	Get(ctx context.Context, id string) (*Promotion, error)
	SetStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
}
