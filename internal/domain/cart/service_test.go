package cart

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/product"
	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/promotion"
)

var evalNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]product.Product
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	found := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			found = append(found, p)
		}
	}
	return found, nil
}

type mockPromoRepo struct {
	active []promotion.Promotion
	coded  map[string]promotion.Promotion
	usage  map[string]int
}

func (m *mockPromoRepo) ListActive(_ context.Context, _ time.Time) ([]promotion.Promotion, error) {
	return m.active, nil
}

func (m *mockPromoRepo) Get(_ context.Context, id string) (*promotion.Promotion, error) {
	for _, p := range m.active {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, promotion.ErrNotFound
}

func (m *mockPromoRepo) FindByCode(_ context.Context, code string) (*promotion.Promotion, error) {
	p, ok := m.coded[strings.ToUpper(code)]
	if !ok {
		return nil, promotion.ErrInvalidCode
	}
	return &p, nil
}

func (m *mockPromoRepo) UsageByCustomer(_ context.Context, _ string, _ []string) (map[string]int, error) {
	return m.usage, nil
}

type mockConsumer struct {
	consumed []string
	customer string
	err      error
}

func (m *mockConsumer) Consume(_ context.Context, ids []string, customerID string) error {
	if m.err != nil {
		return m.err
	}
	m.consumed = ids
	m.customer = customerID
	return nil
}

// --- Helpers ---

func testProduct(id, name, category string, price Money) product.Product {
	return product.Product{
		ID:         id,
		Name:       name,
		PriceMinor: price,
		Category:   category,
		Active:     true,
		InStock:    true,
	}
}

func activePromo(id, name string, typ promotion.Type, priority int) promotion.Promotion {
	return promotion.Promotion{
		ID:       id,
		Name:     name,
		Type:     typ,
		Priority: priority,
		StartsAt: evalNow.Add(-24 * time.Hour),
		EndsAt:   evalNow.Add(24 * time.Hour),
		Status:   promotion.StatusActive,
		Benefit:  promotion.BenefitRule{BenefitType: typ},
	}
}

func testPricing() PricingConfig {
	return PricingConfig{
		TaxBasisPoints: 700,
		ShippingRates: map[string]Money{
			"standard": 5000,
			"express":  12000,
			"pickup":   0,
		},
		DefaultShipping: 5000,
	}
}

func newTestService(products *mockProductRepo, promos *mockPromoRepo, consumer *mockConsumer) *Service {
	if consumer == nil {
		consumer = &mockConsumer{}
	}
	svc := NewService(products, promos, consumer, testPricing(), nil)
	return svc.WithClock(func() time.Time { return evalNow })
}

func assertPricingInvariant(t *testing.T, p Pricing) {
	t.Helper()
	want := p.Subtotal + p.ShippingCost + p.TaxAmount - p.DiscountAmount
	if want < 0 {
		want = 0
	}
	assert.Equal(t, want, p.TotalAmount)
}

// --- Tests ---

func TestEvaluate_InvalidQuantity(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockPromoRepo{}, nil)

	_, err := svc.Evaluate(context.Background(), Snapshot{
		Items: []Item{{ProductID: "p1", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestEvaluate_ProductNotFound(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockPromoRepo{}, nil)

	_, err := svc.Evaluate(context.Background(), Snapshot{
		Items: []Item{{ProductID: "missing", Quantity: 1}},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestEvaluate_EmptyCart(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockPromoRepo{}, nil)

	result, err := svc.Evaluate(context.Background(), Snapshot{ShippingMethod: "standard"})
	require.NoError(t, err)

	assert.Zero(t, result.Pricing.Subtotal)
	assert.Zero(t, result.Pricing.ShippingCost, "no shipping on an empty cart")
	assert.Zero(t, result.Pricing.TotalAmount)
	assertPricingInvariant(t, result.Pricing)
}

func TestEvaluate_NoPromotions(t *testing.T) {
	svc := newTestService(
		newProductRepo(testProduct("p1", "Kettle", "drinkware", 129000)),
		&mockPromoRepo{},
		nil,
	)

	result, err := svc.Evaluate(context.Background(), Snapshot{
		Items:          []Item{{ProductID: "p1", Quantity: 1}},
		ShippingMethod: "express",
	})
	require.NoError(t, err)

	assert.Equal(t, Money(129000), result.Pricing.Subtotal)
	assert.Equal(t, Money(12000), result.Pricing.ShippingCost)
	assert.Equal(t, Money(129000*700/10000), result.Pricing.TaxAmount)
	assert.Empty(t, result.AppliedPromotions)
	assertPricingInvariant(t, result.Pricing)
}

func TestEvaluate_AutomaticPercentageDiscount(t *testing.T) {
	promo := activePromo("promo-10", "Summer Sale", promotion.TypePercentageDiscount, 5)
	promo.Benefit.Value = decimal.NewFromInt(10)

	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{active: []promotion.Promotion{promo}},
		nil,
	)

	result, err := svc.Evaluate(context.Background(), Snapshot{
		Items:          []Item{{ProductID: "p1", Quantity: 3}},
		ShippingMethod: "standard",
	})
	require.NoError(t, err)

	require.Len(t, result.AppliedPromotions, 1)
	assert.Equal(t, Money(15000), result.TotalDiscount)
	assert.Equal(t, Money(150000), result.Pricing.Subtotal)
	assert.Equal(t, Money(5000), result.Pricing.ShippingCost)
	// Tax applies to the discounted subtotal.
	assert.Equal(t, Money((150000-15000)*700/10000), result.Pricing.TaxAmount)
	assert.Equal(t, Money(15000), result.Pricing.PromotionalDiscount)
	assert.Nil(t, result.Pricing.Discount)
	assertPricingInvariant(t, result.Pricing)
}

func TestEvaluate_DiscountCode(t *testing.T) {
	coded := activePromo("promo-code", "Welcome", promotion.TypeFixedDiscount, 10)
	coded.Code = "WELCOME50"
	coded.Description = "Flat 50 THB off"
	coded.Benefit.Value = decimal.NewFromInt(5000)

	repo := &mockPromoRepo{coded: map[string]promotion.Promotion{"WELCOME50": coded}}
	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		repo,
		nil,
	)

	result, err := svc.Evaluate(context.Background(), Snapshot{
		Items:        []Item{{ProductID: "p1", Quantity: 1}},
		DiscountCode: "welcome50",
	})
	require.NoError(t, err)

	require.Len(t, result.AppliedPromotions, 1)
	require.NotNil(t, result.Pricing.Discount)
	assert.Equal(t, "WELCOME50", result.Pricing.Discount.Code)
	assert.Equal(t, Money(5000), result.Pricing.Discount.Amount)
	assert.Zero(t, result.Pricing.PromotionalDiscount, "coded discount is not promotional")
	assertPricingInvariant(t, result.Pricing)
}

func TestEvaluate_UnknownCode(t *testing.T) {
	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{},
		nil,
	)

	_, err := svc.Evaluate(context.Background(), Snapshot{
		Items:        []Item{{ProductID: "p1", Quantity: 1}},
		DiscountCode: "NOPE",
	})
	require.ErrorIs(t, err, promotion.ErrInvalidCode)
}

func TestEvaluate_ExpiredCode(t *testing.T) {
	coded := activePromo("promo-old", "Old Deal", promotion.TypeFixedDiscount, 1)
	coded.Code = "OLDDEAL"
	coded.EndsAt = evalNow.Add(-time.Hour)

	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{coded: map[string]promotion.Promotion{"OLDDEAL": coded}},
		nil,
	)

	_, err := svc.Evaluate(context.Background(), Snapshot{
		Items:        []Item{{ProductID: "p1", Quantity: 1}},
		DiscountCode: "OLDDEAL",
	})
	require.ErrorIs(t, err, promotion.ErrCodeNotActive)
}

func TestEvaluate_IneligibleCodeIsRejectedNotError(t *testing.T) {
	coded := activePromo("promo-big", "Big Carts", promotion.TypePercentageDiscount, 10)
	coded.Code = "BIGCART"
	coded.Benefit.Value = decimal.NewFromInt(10)
	coded.Conditions = []promotion.ConditionRule{
		{ConditionType: promotion.ConditionCartValue, Operator: promotion.OpGTE, NumericValue: 1000000},
	}

	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{coded: map[string]promotion.Promotion{"BIGCART": coded}},
		nil,
	)

	result, err := svc.Evaluate(context.Background(), Snapshot{
		Items:        []Item{{ProductID: "p1", Quantity: 1}},
		DiscountCode: "BIGCART",
	})
	require.NoError(t, err)
	assert.Empty(t, result.AppliedPromotions)
	require.Len(t, result.RejectedPromotions, 1)
	assert.Equal(t, "condition not met: cart_value", result.RejectedPromotions[0].Reason)
}

func TestEvaluate_AwardsGiftLines(t *testing.T) {
	gift := activePromo("promo-gift", "Free Sampler", promotion.TypeFreeGift, 1)
	gift.Benefit.GiftProductIDs = []string{"sampler"}

	svc := newTestService(
		newProductRepo(
			testProduct("p1", "Oolong", "tea", 50000),
			testProduct("sampler", "Tea Sampler", "tea", 9900),
		),
		&mockPromoRepo{active: []promotion.Promotion{gift}},
		nil,
	)

	result, err := svc.Evaluate(context.Background(), Snapshot{
		Items: []Item{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)

	require.Len(t, result.FreeGifts, 1)
	assert.Equal(t, "sampler", result.FreeGifts[0].ProductID)
	assert.Equal(t, Money(9900), result.FreeGifts[0].Value)

	require.Len(t, result.Items, 2)
	giftItem := result.Items[1]
	assert.True(t, giftItem.IsPromotionalGift)
	assert.Equal(t, "promo-gift", giftItem.SourcePromotionID)

	// Gift value never enters the monetary breakdown.
	assert.Equal(t, Money(50000), result.Pricing.Subtotal)
	assert.Zero(t, result.TotalDiscount)
	assertPricingInvariant(t, result.Pricing)
}

func TestEvaluate_OrphanedGiftCascadesOut(t *testing.T) {
	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{},
		nil,
	)

	result, err := svc.Evaluate(context.Background(), Snapshot{
		Items: []Item{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "sampler", Quantity: 1, IsPromotionalGift: true, SourcePromotionID: "promo-gone"},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "p1", result.Items[0].ProductID)
}

func TestEvaluate_Deterministic(t *testing.T) {
	promo := activePromo("promo-10", "Summer Sale", promotion.TypePercentageDiscount, 5)
	promo.Benefit.Value = decimal.NewFromInt(10)

	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{active: []promotion.Promotion{promo}},
		nil,
	)
	snap := Snapshot{Items: []Item{{ProductID: "p1", Quantity: 2}}}

	first, err := svc.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	second, err := svc.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidate_ReportsOrphanedGifts(t *testing.T) {
	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{},
		nil,
	)

	result, err := svc.Validate(context.Background(), Snapshot{
		Items: []Item{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "sampler", Quantity: 1, IsPromotionalGift: true, SourcePromotionID: "promo-gone"},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "sampler", result.Errors[0].ProductID)
	require.Len(t, result.UpdatedItems, 1)
	assert.Equal(t, "p1", result.UpdatedItems[0].ProductID)
}

func TestValidate_KeepsEligibleGifts(t *testing.T) {
	gift := activePromo("promo-gift", "Free Sampler", promotion.TypeFreeGift, 1)
	gift.Benefit.GiftProductIDs = []string{"sampler"}

	svc := newTestService(
		newProductRepo(
			testProduct("p1", "Oolong", "tea", 50000),
			testProduct("sampler", "Tea Sampler", "tea", 9900),
		),
		&mockPromoRepo{active: []promotion.Promotion{gift}},
		nil,
	)

	result, err := svc.Validate(context.Background(), Snapshot{
		Items: []Item{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "sampler", Quantity: 1, IsPromotionalGift: true, SourcePromotionID: "promo-gift"},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
}

func TestCanRemoveGift_AlwaysAllowed(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockPromoRepo{}, nil)

	res := svc.CanRemoveGift(context.Background(), Item{ProductID: "p1"})
	assert.True(t, res.CanRemove)
	assert.Empty(t, res.Reason)

	res = svc.CanRemoveGift(context.Background(), Item{
		ProductID: "sampler", IsPromotionalGift: true, SourcePromotionID: "promo-gift",
	})
	assert.True(t, res.CanRemove)
	assert.NotEmpty(t, res.Reason)
}

func TestGiftDisplayInfo_LabelsGiftLines(t *testing.T) {
	gift := activePromo("promo-gift", "Free Sampler", promotion.TypeFreeGift, 1)
	svc := newTestService(
		newProductRepo(),
		&mockPromoRepo{active: []promotion.Promotion{gift}},
		nil,
	)

	infos, err := svc.GiftDisplayInfo(context.Background(), []Item{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "sampler", Quantity: 1, IsPromotionalGift: true, SourcePromotionID: "promo-gift", GiftValue: 9900},
	})
	require.NoError(t, err)
	require.Len(t, infos, 2)

	regular := infos[0]
	assert.False(t, regular.IsGift)
	assert.Empty(t, regular.Label)
	assert.Empty(t, regular.PromotionID)
	assert.Zero(t, regular.Value)

	giftInfo := infos[1]
	assert.True(t, giftInfo.IsGift)
	assert.Equal(t, "Free gift — Free Sampler", giftInfo.Label)
	assert.Equal(t, "promo-gift", giftInfo.PromotionID)
	assert.Equal(t, "Free Sampler", giftInfo.PromotionName)
	assert.Equal(t, Money(9900), giftInfo.Value)
}

func TestGiftDisplayInfo_UnknownPromotionFallsBack(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockPromoRepo{}, nil)

	infos, err := svc.GiftDisplayInfo(context.Background(), []Item{
		{ProductID: "sampler", Quantity: 1, IsPromotionalGift: true, SourcePromotionID: "promo-gone", GiftValue: 9900},
	})
	require.NoError(t, err)
	require.Len(t, infos, 1)

	// The line stays labeled as a gift even when its promotion is gone; the
	// next evaluate pass decides whether it survives.
	assert.True(t, infos[0].IsGift)
	assert.Equal(t, "Free gift", infos[0].Label)
	assert.Equal(t, "promo-gone", infos[0].PromotionID)
	assert.Empty(t, infos[0].PromotionName)
	assert.Equal(t, Money(9900), infos[0].Value)
}

func TestGiftSummary_GroupsBySourcePromotion(t *testing.T) {
	gift := activePromo("promo-gift", "Free Sampler", promotion.TypeFreeGift, 1)
	svc := newTestService(
		newProductRepo(),
		&mockPromoRepo{active: []promotion.Promotion{gift}},
		nil,
	)

	summary, err := svc.GiftSummary(context.Background(), []Item{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "sampler", Quantity: 1, IsPromotionalGift: true, SourcePromotionID: "promo-gift", GiftValue: 9900},
		{ProductID: "spoon", Quantity: 2, IsPromotionalGift: true, SourcePromotionID: "promo-gift", GiftValue: 4000},
	})
	require.NoError(t, err)

	require.Len(t, summary, 1)
	assert.Equal(t, "promo-gift", summary[0].PromotionID)
	assert.Equal(t, "Free Sampler", summary[0].PromotionName)
	assert.Equal(t, 3, summary[0].GiftCount)
	assert.Equal(t, Money(9900+2*4000), summary[0].TotalValue)
}

func TestCommit_ConsumesAppliedPromotions(t *testing.T) {
	promo := activePromo("promo-10", "Summer Sale", promotion.TypePercentageDiscount, 5)
	promo.Benefit.Value = decimal.NewFromInt(10)
	consumer := &mockConsumer{}

	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{active: []promotion.Promotion{promo}, usage: map[string]int{}},
		consumer,
	)

	result, err := svc.Commit(context.Background(), Snapshot{
		Items:      []Item{{ProductID: "p1", Quantity: 1}},
		CustomerID: "cust-1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"promo-10"}, result.ConsumedPromotionIDs)
	assert.Equal(t, []string{"promo-10"}, consumer.consumed)
	assert.Equal(t, "cust-1", consumer.customer)
}

func TestCommit_UsageLimitFailsWholeCommit(t *testing.T) {
	promo := activePromo("promo-10", "Summer Sale", promotion.TypePercentageDiscount, 5)
	promo.Benefit.Value = decimal.NewFromInt(10)

	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{active: []promotion.Promotion{promo}},
		&mockConsumer{err: promotion.ErrUsageLimitReached},
	)

	_, err := svc.Commit(context.Background(), Snapshot{
		Items: []Item{{ProductID: "p1", Quantity: 1}},
	})
	require.ErrorIs(t, err, promotion.ErrUsageLimitReached)
}

func TestCommit_NothingAppliedConsumesNothing(t *testing.T) {
	consumer := &mockConsumer{err: promotion.ErrUsageLimitReached}
	svc := newTestService(
		newProductRepo(testProduct("p1", "Oolong", "tea", 50000)),
		&mockPromoRepo{},
		consumer,
	)

	result, err := svc.Commit(context.Background(), Snapshot{
		Items: []Item{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Empty(t, result.ConsumedPromotionIDs)
}
