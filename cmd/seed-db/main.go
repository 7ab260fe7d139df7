// Command seed-db populates a development database with sample customers,
// promotional offers, and an HMAC-hashed admin API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/grocerbay/wholesale-api/internal/domain/offer"
	"github.com/grocerbay/wholesale-api/internal/repository"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or GROCER_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or GROCER_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("GROCER_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or GROCER_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("GROCER_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCustomers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed customers")
	}

	if err := seedOffers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed offers")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

const upsertCustomerSQL = `INSERT INTO customers (id, name, email, vip)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET name = $2, email = $3, vip = $4`

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding sample customers")

	customers := []struct {
		id, name, email string
		vip             bool
	}{
		{"cust-acme", "Acme Foods Ltd", "purchasing@acmefoods.test", false},
		{"cust-bigbox", "BigBox Wholesale", "orders@bigbox.test", true},
		{"cust-corner", "Corner Deli", "owner@cornerdeli.test", false},
	}

	for _, c := range customers {
		if _, err := pool.Exec(ctx, upsertCustomerSQL, c.id, c.name, c.email, c.vip); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.id)
		}
		slog.Info("upserted customer", slog.String("id", c.id), slog.String("name", c.name))
	}

	return nil
}

const upsertOfferSQL = `INSERT INTO offers (id, code, description, discount_type,
	discount_value, min_purchase, max_discount, usage_limit, valid_from, valid_to,
	status, applicable_to)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (code) DO UPDATE SET description = $3, discount_type = $4,
		discount_value = $5, min_purchase = $6, max_discount = $7, usage_limit = $8,
		valid_from = $9, valid_to = $10, status = $11, applicable_to = $12`

func seedOffers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding sample offers")

	now := time.Now()
	offers := []offer.Offer{
		{
			ID:            "offer-save10",
			Code:          "SAVE10",
			Description:   "10% off orders over $20, up to $15",
			DiscountType:  offer.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(10),
			MinPurchase:   decimal.NewFromInt(20),
			MaxDiscount:   decimal.NewFromInt(15),
			UsageLimit:    100,
			ValidFrom:     now.AddDate(0, 0, -1),
			ValidTo:       now.AddDate(0, 1, 0),
			ApplicableTo:  offer.ApplyAll,
		},
		{
			ID:            "offer-welcome",
			Code:          "WELCOME5",
			Description:   "$5 off your first order",
			DiscountType:  offer.DiscountFixed,
			DiscountValue: decimal.NewFromInt(5),
			ValidFrom:     now.AddDate(0, 0, -1),
			ValidTo:       now.AddDate(1, 0, 0),
			ApplicableTo:  offer.ApplyNewCustomers,
		},
		{
			ID:            "offer-vipship",
			Code:          "VIPSHIP",
			Description:   "Free shipping for VIP accounts",
			DiscountType:  offer.DiscountShipping,
			DiscountValue: decimal.Zero,
			MinPurchase:   decimal.NewFromInt(50),
			ValidFrom:     now.AddDate(0, 0, -1),
			ValidTo:       now.AddDate(0, 3, 0),
			ApplicableTo:  offer.ApplyVIPCustomers,
		},
	}

	for _, o := range offers {
		status := offer.EffectiveStatus(o.Status, o.ValidFrom, o.ValidTo, now)
		if _, err := pool.Exec(ctx, upsertOfferSQL,
			o.ID, o.Code, o.Description, string(o.DiscountType), o.DiscountValue,
			o.MinPurchase, o.MaxDiscount, o.UsageLimit, o.ValidFrom, o.ValidTo,
			string(status), string(o.ApplicableTo),
		); err != nil {
			return errors.Wrapf(err, "upsert offer %s", o.Code)
		}
		slog.Info("upserted offer", slog.String("code", o.Code), slog.String("description", o.Description))
	}

	return nil
}

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, active)
	VALUES ($1, $2, $3, TRUE)
	ON CONFLICT (id) DO UPDATE SET key_hash = $2, name = $3, active = TRUE`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, "admin", keyHash, "Admin key"); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("id", "admin"))
	return nil
}
