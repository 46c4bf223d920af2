package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/product"
	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/promotion"
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a regular cart line references an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// PricingConfig holds the non-promotional pricing knobs: flat shipping rates
// per method and tax in basis points applied to the discounted subtotal.
type PricingConfig struct {
	TaxBasisPoints  int
	ShippingRates   map[string]Money
	DefaultShipping Money
}

// Service is the cart pricing aggregator. Evaluation is pure over the cart
// snapshot, the promotion set, the catalog, and the injected clock, so the
// same snapshot always yields an identical result.
type Service struct {
	products   product.Repository
	promotions promotion.Repository
	consumer   promotion.Consumer
	pricing    PricingConfig
	tracer     trace.Tracer
	now        func() time.Time
}

// NewService creates a cart Service with the required domain dependencies.
// A nil tracer disables span creation.
func NewService(
	products product.Repository,
	promotions promotion.Repository,
	consumer promotion.Consumer,
	pricing PricingConfig,
	tracer trace.Tracer,
) *Service {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{
		products:   products,
		promotions: promotions,
		consumer:   consumer,
		pricing:    pricing,
		tracer:     tracer,
		now:        time.Now,
	}
}

// Evaluate runs the full pipeline for one cart snapshot: condition
// evaluation, conflict resolution, benefit calculation, gift reconciliation,
// and the final pricing breakdown. It is re-run from scratch on every cart
// mutation; no incremental update is attempted.
func (s *Service) Evaluate(ctx context.Context, snap Snapshot) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "cart.Evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("cart.items", len(snap.Items)),
		attribute.Bool("cart.has_code", snap.DiscountCode != ""),
	)

	for _, item := range snap.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	now := s.now()

	candidates, err := s.loadCandidates(ctx, snap.DiscountCode, now)
	if err != nil {
		return nil, err
	}

	catalog, err := s.loadCatalog(ctx, snap.Items, candidates)
	if err != nil {
		return nil, err
	}

	// Every regular line must resolve to a catalog product. Gift lines are
	// exempt: an orphaned gift simply drops out during reconciliation.
	for _, item := range snap.Items {
		if item.IsPromotionalGift {
			continue
		}
		if _, ok := catalog[item.ProductID]; !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
	}

	var usage map[string]int
	if snap.CustomerID != "" && len(candidates) > 0 {
		ids := make([]string, len(candidates))
		for i := range candidates {
			ids[i] = candidates[i].ID
		}
		usage, err = s.promotions.UsageByCustomer(ctx, snap.CustomerID, ids)
		if err != nil {
			return nil, errors.Wrap(err, "load customer usage")
		}
	}

	resolved := promotion.Resolve(promotion.ResolveInput{
		Lines:         buildLines(snap.Items, catalog),
		Candidates:    candidates,
		CustomerUsage: usage,
		Catalog:       catalog,
		Now:           now,
	})

	result := s.assemble(snap, resolved, catalog, now)

	zctx.From(ctx).Debug("cart evaluated",
		zap.Int("applied", len(result.AppliedPromotions)),
		zap.Int("pending", len(result.PendingGiftSelections)),
		zap.Int64("discount", result.TotalDiscount),
	)
	return result, nil
}

// Validate reconciles gift lines whose eligibility may have changed since the
// cart was last priced. Gift lines no longer backed by an applied promotion
// are removed from UpdatedItems and reported as errors.
func (s *Service) Validate(ctx context.Context, snap Snapshot) (*ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "cart.Validate")
	defer span.End()

	result, err := s.Evaluate(ctx, snap)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]int)
	for _, item := range result.Items {
		if item.IsPromotionalGift {
			kept[item.SourcePromotionID+"/"+item.ProductID]++
		}
	}

	var verrs []ValidationError
	for _, item := range snap.Items {
		if !item.IsPromotionalGift {
			continue
		}
		key := item.SourcePromotionID + "/" + item.ProductID
		if kept[key] > 0 {
			kept[key]--
			continue
		}
		verrs = append(verrs, ValidationError{
			ProductID: item.ProductID,
			Message:   "promotional gift is no longer eligible",
		})
	}

	return &ValidationResult{
		IsValid:      len(verrs) == 0,
		UpdatedItems: result.Items,
		Errors:       verrs,
	}, nil
}

// CanRemoveGift implements the gift removal guard. The cart never blocks a
// user action: gifts are always removable and the next pricing pass
// reconciles gift lines to current eligibility (lazy reconciliation).
func (s *Service) CanRemoveGift(_ context.Context, item Item) CanRemoveResult {
	if !item.IsPromotionalGift {
		return CanRemoveResult{CanRemove: true}
	}
	return CanRemoveResult{
		CanRemove: true,
		Reason:    "gift will be re-evaluated on the next pricing update",
	}
}

// GiftDisplayInfo returns per-line labeling metadata for the cart UI.
func (s *Service) GiftDisplayInfo(ctx context.Context, items []Item) ([]GiftDisplayInfo, error) {
	infos := make([]GiftDisplayInfo, 0, len(items))
	names := make(map[string]string)

	for _, item := range items {
		info := GiftDisplayInfo{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			IsGift:    item.IsPromotionalGift,
		}
		if item.IsPromotionalGift {
			name, ok := names[item.SourcePromotionID]
			if !ok {
				if p, err := s.promotions.Get(ctx, item.SourcePromotionID); err == nil {
					name = p.Name
				}
				names[item.SourcePromotionID] = name
			}
			info.Label = "Free gift"
			if name != "" {
				info.Label = fmt.Sprintf("Free gift — %s", name)
			}
			info.PromotionID = item.SourcePromotionID
			info.PromotionName = name
			info.Value = item.GiftValue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// GiftSummary aggregates gift counts and catalog values per source promotion.
func (s *Service) GiftSummary(ctx context.Context, items []Item) ([]GiftSummaryEntry, error) {
	byPromo := make(map[string]*GiftSummaryEntry)
	order := make([]string, 0, 4)

	for _, item := range items {
		if !item.IsPromotionalGift {
			continue
		}
		entry, ok := byPromo[item.SourcePromotionID]
		if !ok {
			entry = &GiftSummaryEntry{PromotionID: item.SourcePromotionID}
			if p, err := s.promotions.Get(ctx, item.SourcePromotionID); err == nil {
				entry.PromotionName = p.Name
			}
			byPromo[item.SourcePromotionID] = entry
			order = append(order, item.SourcePromotionID)
		}
		entry.GiftCount += item.Quantity
		entry.TotalValue += item.GiftValue * Money(item.Quantity)
	}

	summary := make([]GiftSummaryEntry, 0, len(order))
	for _, id := range order {
		summary = append(summary, *byPromo[id])
	}
	return summary, nil
}

// Commit re-evaluates the cart and atomically consumes usage for every
// applied promotion. A promotion whose limit was exhausted between
// evaluation and commit fails the whole commit; nothing is consumed.
func (s *Service) Commit(ctx context.Context, snap Snapshot) (*CommitResult, error) {
	ctx, span := s.tracer.Start(ctx, "cart.Commit")
	defer span.End()

	result, err := s.Evaluate(ctx, snap)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(result.AppliedPromotions))
	for i, ap := range result.AppliedPromotions {
		ids[i] = ap.PromotionID
	}
	if len(ids) > 0 {
		if err := s.consumer.Consume(ctx, ids, snap.CustomerID); err != nil {
			return nil, errors.Wrap(err, "consume promotion usage")
		}
	}

	return &CommitResult{Result: result, ConsumedPromotionIDs: ids}, nil
}

// loadCandidates collects automatic active promotions plus the promotion
// behind a manually entered discount code. Unknown codes are an error; a
// known code outside its window or exhausted is ErrCodeNotActive. A failed
// condition on a coded promotion is NOT an error: it lands in rejected.
func (s *Service) loadCandidates(ctx context.Context, code string, now time.Time) ([]promotion.Promotion, error) {
	active, err := s.promotions.ListActive(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "list active promotions")
	}

	candidates := make([]promotion.Promotion, 0, len(active)+1)
	for _, p := range active {
		if p.Automatic() {
			candidates = append(candidates, p)
		}
	}

	if code != "" {
		coded, err := s.promotions.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, promotion.ErrInvalidCode) {
				return nil, promotion.ErrInvalidCode
			}
			return nil, errors.Wrap(err, "resolve discount code")
		}
		if !coded.ActiveAt(now) || coded.UsageExhausted() {
			return nil, promotion.ErrCodeNotActive
		}
		candidates = append(candidates, *coded)
	}

	return candidates, nil
}

// loadCatalog batch-fetches every product the pass can touch: cart lines plus
// the gift pools of all candidate promotions.
func (s *Service) loadCatalog(ctx context.Context, items []Item, candidates []promotion.Promotion) (map[string]product.Product, error) {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(items))
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, item := range items {
		add(item.ProductID)
	}
	for i := range candidates {
		for _, id := range candidates[i].Benefit.GiftProductIDs {
			add(id)
		}
	}
	if len(ids) == 0 {
		return map[string]product.Product{}, nil
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	catalog := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		catalog[p.ID] = p
	}
	return catalog, nil
}

// assemble merges the resolver outcome into the final result: reconciled cart
// lines, applied/rejected promotion records, and the pricing breakdown.
func (s *Service) assemble(snap Snapshot, resolved promotion.ResolveResult, catalog map[string]product.Product, now time.Time) *Result {
	result := &Result{
		AppliedPromotions: make([]AppliedPromotion, 0, len(resolved.Applied)),
		FreeGifts:         []FreeGift{},
	}

	var discountTotal, codedDiscount Money
	var codedSummary *DiscountSummary

	for _, ap := range resolved.Applied {
		gifts := make([]FreeGift, len(ap.Gifts))
		for i, g := range ap.Gifts {
			gifts[i] = FreeGift{
				ProductID:   g.ProductID,
				Quantity:    g.Quantity,
				Name:        g.Name,
				ImageURL:    g.ImageURL,
				Value:       g.ValueMinor,
				PromotionID: ap.Promotion.ID,
			}
		}
		result.AppliedPromotions = append(result.AppliedPromotions, AppliedPromotion{
			PromotionID:    ap.Promotion.ID,
			PromotionName:  ap.Promotion.Name,
			DiscountAmount: ap.DiscountMinor,
			FreeGifts:      gifts,
			AppliedAt:      now,
		})
		result.FreeGifts = append(result.FreeGifts, gifts...)
		discountTotal += ap.DiscountMinor

		if !ap.Promotion.Automatic() && ap.Promotion.Type.IsDiscount() {
			codedDiscount = ap.DiscountMinor
			codedSummary = &DiscountSummary{
				Code:        ap.Promotion.Code,
				Description: ap.Promotion.Description,
				Amount:      ap.DiscountMinor,
			}
		}
	}

	for _, rej := range resolved.Rejected {
		result.RejectedPromotions = append(result.RejectedPromotions, RejectedPromotion(rej))
	}
	for _, pend := range resolved.Pending {
		options := make([]FreeGift, len(pend.Options))
		for i, g := range pend.Options {
			options[i] = FreeGift{
				ProductID:   g.ProductID,
				Quantity:    g.Quantity,
				Name:        g.Name,
				ImageURL:    g.ImageURL,
				Value:       g.ValueMinor,
				PromotionID: pend.PromotionID,
			}
		}
		result.PendingGiftSelections = append(result.PendingGiftSelections, PendingGiftSelection{
			PromotionID:         pend.PromotionID,
			PromotionName:       pend.PromotionName,
			AvailableOptions:    options,
			SelectionsRemaining: pend.SelectionsRemaining,
		})
	}

	// Reconciled cart: regular lines as submitted, gift lines regenerated
	// from the awarded set. Orphaned gifts cascade out here.
	items := make([]Item, 0, len(snap.Items)+len(result.FreeGifts))
	var subtotal Money
	for _, item := range snap.Items {
		if item.IsPromotionalGift {
			continue
		}
		items = append(items, item)
		if p, ok := catalog[item.ProductID]; ok {
			subtotal += p.PriceMinor * Money(item.Quantity)
		}
	}
	for _, g := range result.FreeGifts {
		items = append(items, Item{
			ProductID:         g.ProductID,
			VariantID:         g.VariantID,
			Quantity:          g.Quantity,
			IsPromotionalGift: true,
			SourcePromotionID: g.PromotionID,
			GiftValue:         g.Value,
		})
	}
	result.Items = items
	result.TotalDiscount = discountTotal

	var shipping Money
	if subtotal > 0 {
		shipping = s.shippingCost(snap.ShippingMethod)
	}
	taxable := subtotal - discountTotal
	if taxable < 0 {
		taxable = 0
	}
	tax := taxable * Money(s.pricing.TaxBasisPoints) / 10000

	total := subtotal + shipping + tax - discountTotal
	if total < 0 {
		total = 0
	}

	result.Pricing = Pricing{
		Subtotal:            subtotal,
		ShippingCost:        shipping,
		TaxAmount:           tax,
		DiscountAmount:      discountTotal,
		TotalAmount:         total,
		Discount:            codedSummary,
		PromotionalDiscount: discountTotal - codedDiscount,
		FreeGifts:           result.FreeGifts,
	}
	return result
}

func (s *Service) shippingCost(method string) Money {
	if rate, ok := s.pricing.ShippingRates[method]; ok {
		return rate
	}
	return s.pricing.DefaultShipping
}

// buildLines converts cart items into the resolver's evaluation view.
func buildLines(items []Item, catalog map[string]product.Product) []promotion.CartLine {
	lines := make([]promotion.CartLine, 0, len(items))
	for _, item := range items {
		line := promotion.CartLine{
			ProductID:         item.ProductID,
			VariantID:         item.VariantID,
			Quantity:          item.Quantity,
			Gift:              item.IsPromotionalGift,
			SourcePromotionID: item.SourcePromotionID,
		}
		if p, ok := catalog[item.ProductID]; ok {
			line.Category = p.Category
			line.UnitPriceMinor = p.PriceMinor
		}
		lines = append(lines, line)
	}
	return lines
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
