// Command seed-db loads a product catalog, a starter promotion set, and an
// admin API key into the database. Intended for local development and demo
// environments; all writes are idempotent upserts.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/theerakarnm/ekoe-promotion-service/internal/storage/postgres"
)

type productJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"priceMinor"`
	Category   string `json:"category"`
	ImageURL   string `json:"imageUrl"`
	InStock    *bool  `json:"inStock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or EKOE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or EKOE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("EKOE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or EKOE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("EKOE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedPromotions(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	const query = `
		INSERT INTO products (id, name, price_minor, category, image_url, active, in_stock)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price_minor = EXCLUDED.price_minor,
			category = EXCLUDED.category,
			image_url = EXCLUDED.image_url,
			in_stock = EXCLUDED.in_stock`

	for _, p := range products {
		inStock := true
		if p.InStock != nil {
			inStock = *p.InStock
		}
		if _, err := pool.Exec(ctx, query, p.ID, p.Name, p.PriceMinor, p.Category, p.ImageURL, inStock); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

// seedPromotion is a promotion definition with its condition and benefit rows.
type seedPromotion struct {
	id, name, description, promoType, code string
	priority                               int
	conditions                             []seedCondition
	benefit                                seedBenefit
}

type seedCondition struct {
	conditionType, operator string
	numericValue            int64
	valueSet                string
}

type seedBenefit struct {
	benefitType        string
	value              string
	maxDiscountMinor   int64
	giftProductIDs     string
	giftQuantities     string
	giftSelectionLimit int
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding starter promotions")

	now := time.Now().UTC()
	startsAt := now.Add(-time.Hour)
	endsAt := now.AddDate(1, 0, 0)

	promos := []seedPromotion{
		{
			id:          "seed-summer-10",
			name:        "Summer Sale 10%",
			description: "10% off carts over 500 THB",
			promoType:   "percentage_discount",
			priority:    5,
			conditions: []seedCondition{
				{conditionType: "cart_value", operator: "gte", numericValue: 50000},
			},
			benefit: seedBenefit{benefitType: "percentage_discount", value: "10", maxDiscountMinor: 20000},
		},
		{
			id:          "seed-welcome-50",
			name:        "Welcome 50 THB",
			description: "Flat 50 THB off with code WELCOME50",
			promoType:   "fixed_discount",
			code:        "WELCOME50",
			priority:    10,
			benefit:     seedBenefit{benefitType: "fixed_discount", value: "5000"},
		},
		{
			id:          "seed-tea-gift",
			name:        "Free Tea Sampler",
			description: "Free sampler for carts with 3+ tea items",
			promoType:   "free_gift",
			priority:    1,
			conditions: []seedCondition{
				{conditionType: "category_products", operator: "in", valueSet: `["tea"]`},
				{conditionType: "product_quantity", operator: "gte", numericValue: 3},
			},
			benefit: seedBenefit{
				benefitType:    "free_gift",
				value:          "0",
				giftProductIDs: `["tea-sampler"]`,
				giftQuantities: `[1]`,
			},
		},
	}

	const promoQuery = `
		INSERT INTO promotions (id, name, description, type, code, priority, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active')
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			code = EXCLUDED.code,
			priority = EXCLUDED.priority,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			status = 'active',
			updated_at = now()`

	for _, p := range promos {
		if _, err := pool.Exec(ctx, promoQuery,
			p.id, p.name, p.description, p.promoType, p.code, p.priority, startsAt, endsAt,
		); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.id)
		}

		// Rules are replaced wholesale on re-seed.
		if _, err := pool.Exec(ctx, `DELETE FROM promotion_rules WHERE promotion_id = $1`, p.id); err != nil {
			return errors.Wrapf(err, "clear rules for %s", p.id)
		}

		for _, c := range p.conditions {
			valueSet := c.valueSet
			if valueSet == "" {
				valueSet = "[]"
			}
			if _, err := pool.Exec(ctx, `
				INSERT INTO promotion_rules (promotion_id, rule_type, condition_type, operator, numeric_value, value_set)
				VALUES ($1, 'condition', $2, $3, $4, $5)`,
				p.id, c.conditionType, c.operator, c.numericValue, valueSet,
			); err != nil {
				return errors.Wrapf(err, "insert condition for %s", p.id)
			}
		}

		b := p.benefit
		giftIDs, giftQtys := b.giftProductIDs, b.giftQuantities
		if giftIDs == "" {
			giftIDs = "[]"
		}
		if giftQtys == "" {
			giftQtys = "[]"
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO promotion_rules (promotion_id, rule_type, benefit_type, benefit_value, max_discount_minor, gift_product_ids, gift_quantities, gift_selection_limit)
			VALUES ($1, 'benefit', $2, $3::numeric, $4, $5, $6, $7)`,
			p.id, b.benefitType, b.value, b.maxDiscountMinor, giftIDs, giftQtys, b.giftSelectionLimit,
		); err != nil {
			return errors.Wrapf(err, "insert benefit for %s", p.id)
		}

		slog.Info("upserted promotion", slog.String("id", p.id), slog.String("name", p.name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ('default', $1, 'Default admin key', $2, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			scopes = EXCLUDED.scopes,
			active = TRUE`,
		keyHash, []string{"promotions:admin"},
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default admin key"))

	return nil
}
