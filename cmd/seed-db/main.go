package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	apiKeyPepper string
	userID       string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "products JSON file; the embedded catalog when empty")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.StringVar(&opts.userID, "user-id", "demo-user", "user the seeded API key authenticates as")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or STORE_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data := db.SeedProducts
	if opts.productsFile != "" {
		if data, err = os.ReadFile(opts.productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}
	products, err := parseProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}

	productRepo := postgres.NewProductRepository(pool)
	for _, p := range products {
		if err := productRepo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name), zap.Int("stock", p.Stock))
	}

	discountRepo := postgres.NewDiscountRepository(pool)
	for _, c := range seedDiscounts(time.Now()) {
		if err := discountRepo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert discount %s", c.Code)
		}
		lg.Info("Upserted discount", zap.String("code", c.Code), zap.String("description", c.Description))
	}

	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(opts.apiKeyPepper), opts.apiKey),
		Name:    "Default test key",
		UserID:  opts.userID,
		Scopes:  []string{"cart", "checkout", "orders"},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	lg.Info("Upserted API key", zap.String("id", "default"), zap.String("user_id", opts.userID))
	return nil
}

// seedDiscounts returns the launch promotions, expiring relative to now.
func seedDiscounts(now time.Time) []discount.Code {
	return []discount.Code{
		{
			Code:          "WELCOME10",
			Description:   "10% off your first order",
			Type:          discount.Percentage,
			Value:         decimal.NewFromInt(10),
			MinimumAmount: ptr(decimal.NewFromInt(50)),
			MaxUses:       ptr(100),
			Active:        true,
			ExpiresAt:     ptr(now.AddDate(0, 0, 30)),
		},
		{
			Code:          "SAVE20",
			Description:   "$20 off orders over $100",
			Type:          discount.FixedAmount,
			Value:         decimal.NewFromInt(20),
			MinimumAmount: ptr(decimal.NewFromInt(100)),
			MaxUses:       ptr(50),
			Active:        true,
			ExpiresAt:     ptr(now.AddDate(0, 0, 60)),
		},
	}
}

// parseProducts decodes the catalog seed file. Prices may be strings or
// numbers.
func parseProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
			switch key {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "description":
				p.Description, err = d.Str()
			case "category":
				p.Category, err = d.Str()
			case "imageUrl":
				p.ImageURL, err = d.Str()
			case "price":
				p.Price, err = decodeDecimal(d)
			case "stock":
				p.Stock, err = d.Int()
			case "featured":
				p.Featured, err = d.Bool()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if p.ID == "" {
			return errors.New("product without id")
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(string(n))
}

func ptr[T any](v T) *T { return &v }
