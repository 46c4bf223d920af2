package promotion

import "fmt"

// CartLine is the evaluation view of a single cart line. Gift lines are
// carried so the resolver can reconcile prior selections, but they never
// count toward condition thresholds or discount bases.
type CartLine struct {
	ProductID         string
	VariantID         string
	Category          string
	UnitPriceMinor    int64
	Quantity          int
	Gift              bool
	SourcePromotionID string
}

// RegularSubtotal returns the pre-discount subtotal of non-gift lines in
// minor units.
func RegularSubtotal(lines []CartLine) int64 {
	var sum int64
	for _, l := range lines {
		if l.Gift {
			continue
		}
		sum += l.UnitPriceMinor * int64(l.Quantity)
	}
	return sum
}

// EvaluateCondition reports whether a single condition rule holds for the
// given cart lines. It is a pure function and cheap enough to re-run on
// every cart mutation.
func EvaluateCondition(lines []CartLine, rule ConditionRule) bool {
	switch rule.ConditionType {
	case ConditionCartValue:
		return compare(RegularSubtotal(lines), rule.Operator, rule.NumericValue)
	case ConditionProductQuantity:
		return compare(matchingQuantity(lines, rule.Values), rule.Operator, rule.NumericValue)
	case ConditionSpecificProducts:
		return membership(lines, rule, func(l CartLine) string { return l.ProductID })
	case ConditionCategoryProducts:
		return membership(lines, rule, func(l CartLine) string { return l.Category })
	default:
		return false
	}
}

// Eligible reports whether every condition rule of the promotion holds.
// Conditions combine with logical AND only. When ineligible, the returned
// reason names the first failing rule for the explanation surface.
func Eligible(p *Promotion, lines []CartLine) (bool, string) {
	for _, rule := range p.Conditions {
		if !EvaluateCondition(lines, rule) {
			return false, fmt.Sprintf("condition not met: %s", rule.ConditionType)
		}
	}
	return true, ""
}

func compare(actual int64, op Operator, expected int64) bool {
	switch op {
	case OpGTE:
		return actual >= expected
	case OpLTE:
		return actual <= expected
	case OpEQ:
		return actual == expected
	default:
		return false
	}
}

// matchingQuantity sums quantities of regular lines, optionally scoped to a
// product id subset. An empty scope counts every regular line.
func matchingQuantity(lines []CartLine, scope []string) int64 {
	scoped := toSet(scope)
	var total int64
	for _, l := range lines {
		if l.Gift {
			continue
		}
		if len(scoped) > 0 && !scoped[l.ProductID] {
			continue
		}
		total += int64(l.Quantity)
	}
	return total
}

// membership implements the in/not_in operators: "in" holds when at least one
// regular line's key is a member of the rule's value set, "not_in" holds when
// no regular line's key is a member.
func membership(lines []CartLine, rule ConditionRule, key func(CartLine) string) bool {
	set := toSet(rule.Values)
	found := false
	for _, l := range lines {
		if l.Gift {
			continue
		}
		if set[key(l)] {
			found = true
			break
		}
	}
	switch rule.Operator {
	case OpIn:
		return found
	case OpNotIn:
		return !found
	default:
		return false
	}
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
