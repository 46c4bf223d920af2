package promotion

import (
	"fmt"
	"sort"
	"time"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/product"
)

// ResolveInput bundles everything the resolver needs. It is assembled per
// evaluation pass; the resolver itself holds no state and touches no I/O.
type ResolveInput struct {
	Lines      []CartLine
	Candidates []Promotion
	// CustomerUsage maps promotion id to how many times the current customer
	// has consumed it. Nil when the customer is anonymous.
	CustomerUsage map[string]int
	Catalog       map[string]product.Product
	Now           time.Time
}

// Applied is one promotion that survived conflict resolution, with its
// computed benefit.
type Applied struct {
	Promotion     *Promotion
	DiscountMinor int64
	Gifts         []GiftOption
}

// PendingSelection is a free-gift promotion awaiting a customer choice.
type PendingSelection struct {
	PromotionID         string
	PromotionName       string
	Options             []GiftOption
	SelectionsRemaining int
}

// Rejection records why an otherwise known promotion did not apply. Reasons
// are human-readable and surfaced informationally, never as errors.
type Rejection struct {
	PromotionID   string
	PromotionName string
	Reason        string
}

// ResolveResult is the full outcome of one resolution pass.
type ResolveResult struct {
	Applied  []Applied
	Pending  []PendingSelection
	Rejected []Rejection
}

// Resolve filters candidates by eligibility, orders them deterministically,
// and applies the stacking contract: at most one discount-type promotion
// (percentage or fixed, automatic or coded) applies per cart, chosen by
// priority; free-gift promotions stack independently.
//
// Ordering is priority descending, then StartsAt ascending, then id ascending
// so equal-priority resolution is stable across passes.
func Resolve(in ResolveInput) ResolveResult {
	var result ResolveResult

	eligible := make([]*Promotion, 0, len(in.Candidates))
	for i := range in.Candidates {
		p := &in.Candidates[i]
		if reason, ok := screen(p, in); !ok {
			result.Rejected = append(result.Rejected, Rejection{
				PromotionID:   p.ID,
				PromotionName: p.Name,
				Reason:        reason,
			})
			continue
		}
		eligible = append(eligible, p)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.StartsAt.Equal(b.StartsAt) {
			return a.StartsAt.Before(b.StartsAt)
		}
		return a.ID < b.ID
	})

	var winner *Promotion
	for _, p := range eligible {
		if p.Type.IsDiscount() && winner != nil {
			result.Rejected = append(result.Rejected, Rejection{
				PromotionID:   p.ID,
				PromotionName: p.Name,
				Reason:        fmt.Sprintf("lower priority than %s", winner.Name),
			})
			continue
		}

		benefit, err := CalculateBenefit(p, in.Lines, in.Catalog)
		if err != nil {
			result.Rejected = append(result.Rejected, Rejection{
				PromotionID:   p.ID,
				PromotionName: p.Name,
				Reason:        err.Error(),
			})
			continue
		}

		if p.Type.IsDiscount() {
			winner = p
		}
		result.Applied = append(result.Applied, Applied{
			Promotion:     p,
			DiscountMinor: benefit.DiscountMinor,
			Gifts:         benefit.Gifts,
		})
		if benefit.SelectionsRemaining > 0 {
			result.Pending = append(result.Pending, PendingSelection{
				PromotionID:         p.ID,
				PromotionName:       p.Name,
				Options:             benefit.PendingOptions,
				SelectionsRemaining: benefit.SelectionsRemaining,
			})
		}
	}

	return result
}

// screen applies the pre-condition gates: lifecycle state, time window,
// total usage limit, per-customer usage limit, then the condition rules.
func screen(p *Promotion, in ResolveInput) (reason string, ok bool) {
	if p.Status != StatusActive {
		return fmt.Sprintf("promotion is %s", p.Status), false
	}
	if !p.ActiveAt(in.Now) {
		return "outside promotion window", false
	}
	if p.UsageExhausted() {
		return "usage limit reached", false
	}
	if p.PerCustomerLimit > 0 && in.CustomerUsage != nil {
		if in.CustomerUsage[p.ID] >= p.PerCustomerLimit {
			return "per-customer usage limit reached", false
		}
	}
	if eligible, why := Eligible(p, in.Lines); !eligible {
		return why, false
	}
	return "", true
}
