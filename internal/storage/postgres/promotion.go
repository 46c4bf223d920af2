package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/promotion"
)

var (
	_ promotion.Repository      = (*PromotionRepository)(nil)
	_ promotion.Consumer        = (*PromotionRepository)(nil)
	_ promotion.AdminRepository = (*PromotionRepository)(nil)
)

// PromotionRepository implements the promotion read, admin, and consumption
// interfaces backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository using the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

const promotionColumns = `id, name, description, type, code, priority,
	starts_at, ends_at, status, usage_limit, usage_count, per_customer_limit`

// ListActive returns active promotions whose window covers now, with their
// rules attached.
func (r *PromotionRepository) ListActive(ctx context.Context, now time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+promotionColumns+`
		FROM promotions
		WHERE status = 'active' AND starts_at <= $1 AND ends_at >= $1
		ORDER BY priority DESC, starts_at ASC, id ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	promos, err := scanPromotions(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachRules(ctx, promos); err != nil {
		return nil, err
	}
	return promos, nil
}

// Get returns one promotion by id with rules attached.
func (r *PromotionRepository) Get(ctx context.Context, id string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+promotionColumns+`
		FROM promotions
		WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("finding promotion %q: %w", id, err)
	}
	promos, err := scanPromotions(rows)
	if err != nil {
		return nil, err
	}
	if len(promos) == 0 {
		return nil, promotion.ErrNotFound
	}
	if err := r.attachRules(ctx, promos); err != nil {
		return nil, err
	}
	return &promos[0], nil
}

// FindByCode resolves a discount code to its promotion. Codes live either
// directly on the promotion row or in the bulk-ingested discount_codes
// table; lookup is case-insensitive.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+promotionColumns+`
		FROM promotions
		WHERE UPPER(code) = UPPER($1)
		UNION
		SELECT `+promotionColumns+`
		FROM promotions
		WHERE id = (SELECT promotion_id FROM discount_codes WHERE code = UPPER($1))
		LIMIT 1`, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion by code: %w", err)
	}
	promos, err := scanPromotions(rows)
	if err != nil {
		return nil, err
	}
	if len(promos) == 0 {
		return nil, promotion.ErrInvalidCode
	}
	if err := r.attachRules(ctx, promos); err != nil {
		return nil, err
	}
	p := promos[0]
	// Bulk-ingested codes live off-row; surface the entered code so the
	// discount summary can echo it.
	if p.Code == "" {
		p.Code = code
	}
	return &p, nil
}

// UsageByCustomer returns per-promotion consumption counters for a customer.
func (r *PromotionRepository) UsageByCustomer(ctx context.Context, customerID string, promotionIDs []string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT promotion_id, used_count
		FROM promotion_usage
		WHERE customer_id = $1 AND promotion_id = ANY($2)`, customerID, promotionIDs)
	if err != nil {
		return nil, fmt.Errorf("loading customer usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]int, len(promotionIDs))
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		usage[id] = count
	}
	return usage, rows.Err()
}

// Consume atomically increments usage for every promotion id inside one
// transaction, applying increment-with-limit-check semantics so capped
// promotions cannot be oversold under concurrent checkouts. Per-customer
// counters are bumped with the same guard when a customer id is known.
func (r *PromotionRepository) Consume(ctx context.Context, promotionIDs []string, customerID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning consume transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, id := range promotionIDs {
		tag, err := tx.Exec(ctx, `
			UPDATE promotions
			SET usage_count = usage_count + 1, updated_at = now()
			WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`, id)
		if err != nil {
			return fmt.Errorf("consuming promotion %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(promotion.ErrUsageLimitReached, "promotion %s", id)
		}

		if customerID == "" {
			continue
		}
		var perCustomerLimit int
		if err := tx.QueryRow(ctx,
			`SELECT per_customer_limit FROM promotions WHERE id = $1`, id,
		).Scan(&perCustomerLimit); err != nil {
			return fmt.Errorf("loading per-customer limit for %q: %w", id, err)
		}
		tag, err = tx.Exec(ctx, `
			INSERT INTO promotion_usage (promotion_id, customer_id, used_count)
			VALUES ($1, $2, 1)
			ON CONFLICT (promotion_id, customer_id) DO UPDATE
			SET used_count = promotion_usage.used_count + 1, updated_at = now()
			WHERE $3 = 0 OR promotion_usage.used_count < $3`,
			id, customerID, perCustomerLimit)
		if err != nil {
			return fmt.Errorf("consuming per-customer usage for %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(promotion.ErrUsageLimitReached, "promotion %s (customer)", id)
		}
	}

	return tx.Commit(ctx)
}

// Create persists a promotion and its rules in one transaction.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning create transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO promotions
			(id, name, description, type, code, priority, starts_at, ends_at,
			 status, usage_limit, usage_count, per_customer_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Name, p.Description, string(p.Type), p.Code, p.Priority,
		p.StartsAt, p.EndsAt, string(p.Status), p.UsageLimit, p.UsageCount,
		p.PerCustomerLimit)
	if err != nil {
		return fmt.Errorf("inserting promotion %q: %w", p.ID, err)
	}

	for _, c := range p.Conditions {
		_, err = tx.Exec(ctx, `
			INSERT INTO promotion_rules
				(promotion_id, rule_type, condition_type, operator, numeric_value, value_set)
			VALUES ($1, 'condition', $2, $3, $4, $5)`,
			p.ID, string(c.ConditionType), string(c.Operator), c.NumericValue,
			encodeStringArray(c.Values))
		if err != nil {
			return fmt.Errorf("inserting condition rule for %q: %w", p.ID, err)
		}
	}

	b := p.Benefit
	_, err = tx.Exec(ctx, `
		INSERT INTO promotion_rules
			(promotion_id, rule_type, benefit_type, benefit_value, max_discount_minor,
			 gift_product_ids, gift_quantities, gift_selection_limit)
		VALUES ($1, 'benefit', $2, $3, $4, $5, $6, $7)`,
		p.ID, string(b.BenefitType), b.Value, b.MaxDiscountMinor,
		encodeStringArray(b.GiftProductIDs), encodeIntArray(b.GiftQuantities),
		b.GiftSelectionLimit)
	if err != nil {
		return fmt.Errorf("inserting benefit rule for %q: %w", p.ID, err)
	}

	return tx.Commit(ctx)
}

// SetStatus updates the lifecycle state.
func (r *PromotionRepository) SetStatus(ctx context.Context, id string, status promotion.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE promotions SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

// Delete removes the promotion; rules, codes, and usage cascade.
func (r *PromotionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

func scanPromotions(rows pgx.Rows) ([]promotion.Promotion, error) {
	defer rows.Close()

	promos := make([]promotion.Promotion, 0, 8)
	for rows.Next() {
		var p promotion.Promotion
		var typ, status string
		err := rows.Scan(&p.ID, &p.Name, &p.Description, &typ, &p.Code,
			&p.Priority, &p.StartsAt, &p.EndsAt, &status,
			&p.UsageLimit, &p.UsageCount, &p.PerCustomerLimit)
		if err != nil {
			return nil, fmt.Errorf("scanning promotion row: %w", err)
		}
		p.Type = promotion.Type(typ)
		p.Status = promotion.Status(status)
		promos = append(promos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading promotion rows: %w", err)
	}
	return promos, nil
}

// attachRules loads condition and benefit rows for the given promotions in a
// single query and assembles them in place.
func (r *PromotionRepository) attachRules(ctx context.Context, promos []promotion.Promotion) error {
	if len(promos) == 0 {
		return nil
	}
	index := make(map[string]*promotion.Promotion, len(promos))
	ids := make([]string, len(promos))
	for i := range promos {
		index[promos[i].ID] = &promos[i]
		ids[i] = promos[i].ID
	}

	rows, err := r.pool.Query(ctx, `
		SELECT promotion_id, rule_type, condition_type, operator, numeric_value,
		       value_set, benefit_type, benefit_value, max_discount_minor,
		       gift_product_ids, gift_quantities, gift_selection_limit
		FROM promotion_rules
		WHERE promotion_id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("loading promotion rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			promoID, ruleType, condType, operator, benefitType string
			numericValue, maxDiscount                          int64
			valueSet, giftIDs, giftQtys                        string
			benefitValue                                       decimal.Decimal
			selectionLimit                                     int
		)
		err := rows.Scan(&promoID, &ruleType, &condType, &operator, &numericValue,
			&valueSet, &benefitType, &benefitValue, &maxDiscount,
			&giftIDs, &giftQtys, &selectionLimit)
		if err != nil {
			return fmt.Errorf("scanning rule row: %w", err)
		}
		p, ok := index[promoID]
		if !ok {
			continue
		}

		switch ruleType {
		case "condition":
			values, err := decodeStringArray(valueSet)
			if err != nil {
				return fmt.Errorf("decoding value set for %q: %w", promoID, err)
			}
			p.Conditions = append(p.Conditions, promotion.ConditionRule{
				ConditionType: promotion.ConditionType(condType),
				Operator:      promotion.Operator(operator),
				NumericValue:  numericValue,
				Values:        values,
			})
		case "benefit":
			productIDs, err := decodeStringArray(giftIDs)
			if err != nil {
				return fmt.Errorf("decoding gift ids for %q: %w", promoID, err)
			}
			quantities, err := decodeIntArray(giftQtys)
			if err != nil {
				return fmt.Errorf("decoding gift quantities for %q: %w", promoID, err)
			}
			p.Benefit = promotion.BenefitRule{
				BenefitType:        promotion.Type(benefitType),
				Value:              benefitValue,
				MaxDiscountMinor:   maxDiscount,
				GiftProductIDs:     productIDs,
				GiftQuantities:     quantities,
				GiftSelectionLimit: selectionLimit,
			}
		}
	}
	return rows.Err()
}
