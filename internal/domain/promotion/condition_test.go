package promotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func regularLine(productID, category string, price int64, qty int) CartLine {
	return CartLine{
		ProductID:      productID,
		Category:       category,
		UnitPriceMinor: price,
		Quantity:       qty,
	}
}

func giftLine(productID, promoID string) CartLine {
	return CartLine{ProductID: productID, Quantity: 1, Gift: true, SourcePromotionID: promoID}
}

func TestRegularSubtotal_ExcludesGiftLines(t *testing.T) {
	lines := []CartLine{
		regularLine("p1", "tea", 10000, 2),
		regularLine("p2", "tea", 5000, 1),
		giftLine("g1", "promo-1"),
	}

	assert.Equal(t, int64(25000), RegularSubtotal(lines))
}

func TestEvaluateCondition_CartValue(t *testing.T) {
	lines := []CartLine{regularLine("p1", "tea", 10000, 5)} // 50000

	tests := []struct {
		name string
		op   Operator
		val  int64
		want bool
	}{
		{"gte met exactly", OpGTE, 50000, true},
		{"gte not met", OpGTE, 50001, false},
		{"lte met", OpLTE, 50000, true},
		{"lte not met", OpLTE, 49999, false},
		{"eq met", OpEQ, 50000, true},
		{"eq not met", OpEQ, 40000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := ConditionRule{ConditionType: ConditionCartValue, Operator: tt.op, NumericValue: tt.val}
			assert.Equal(t, tt.want, EvaluateCondition(lines, rule))
		})
	}
}

func TestEvaluateCondition_ProductQuantity(t *testing.T) {
	lines := []CartLine{
		regularLine("p1", "tea", 10000, 2),
		regularLine("p2", "tea", 5000, 3),
		giftLine("g1", "promo-1"),
	}

	unscoped := ConditionRule{ConditionType: ConditionProductQuantity, Operator: OpGTE, NumericValue: 5}
	assert.True(t, EvaluateCondition(lines, unscoped), "gift lines must not count")

	scoped := ConditionRule{
		ConditionType: ConditionProductQuantity,
		Operator:      OpGTE,
		NumericValue:  3,
		Values:        []string{"p2"},
	}
	assert.True(t, EvaluateCondition(lines, scoped))

	scoped.NumericValue = 4
	assert.False(t, EvaluateCondition(lines, scoped))
}

func TestEvaluateCondition_SpecificProducts(t *testing.T) {
	lines := []CartLine{
		regularLine("p1", "tea", 10000, 1),
		giftLine("p9", "promo-1"),
	}

	in := ConditionRule{ConditionType: ConditionSpecificProducts, Operator: OpIn, Values: []string{"p1", "p5"}}
	assert.True(t, EvaluateCondition(lines, in))

	in.Values = []string{"p9"}
	assert.False(t, EvaluateCondition(lines, in), "gift lines must not satisfy membership")

	notIn := ConditionRule{ConditionType: ConditionSpecificProducts, Operator: OpNotIn, Values: []string{"p9"}}
	assert.True(t, EvaluateCondition(lines, notIn))

	notIn.Values = []string{"p1"}
	assert.False(t, EvaluateCondition(lines, notIn))
}

func TestEvaluateCondition_CategoryProducts(t *testing.T) {
	lines := []CartLine{
		regularLine("p1", "tea", 10000, 1),
		regularLine("p2", "drinkware", 20000, 1),
	}

	rule := ConditionRule{ConditionType: ConditionCategoryProducts, Operator: OpIn, Values: []string{"tea"}}
	assert.True(t, EvaluateCondition(lines, rule))

	rule.Values = []string{"pantry"}
	assert.False(t, EvaluateCondition(lines, rule))
}

func TestEvaluateCondition_UnknownTypeOrOperator(t *testing.T) {
	lines := []CartLine{regularLine("p1", "tea", 10000, 1)}

	assert.False(t, EvaluateCondition(lines, ConditionRule{ConditionType: "bogus"}))
	assert.False(t, EvaluateCondition(lines, ConditionRule{
		ConditionType: ConditionCartValue, Operator: "between", NumericValue: 1,
	}))
}

func TestEligible_AllConditionsMustHold(t *testing.T) {
	p := &Promotion{
		Conditions: []ConditionRule{
			{ConditionType: ConditionCartValue, Operator: OpGTE, NumericValue: 10000},
			{ConditionType: ConditionCategoryProducts, Operator: OpIn, Values: []string{"tea"}},
		},
	}

	lines := []CartLine{regularLine("p1", "tea", 10000, 2)}
	ok, reason := Eligible(p, lines)
	assert.True(t, ok)
	assert.Empty(t, reason)

	lines = []CartLine{regularLine("p1", "drinkware", 10000, 2)}
	ok, reason = Eligible(p, lines)
	assert.False(t, ok)
	assert.Equal(t, "condition not met: category_products", reason)
}

func TestEligible_NoConditions(t *testing.T) {
	ok, reason := Eligible(&Promotion{}, nil)
	assert.True(t, ok)
	assert.Empty(t, reason)
}
