// Command seed-db applies the schema and loads a tenant, its catalog,
// customers, an API key and discount rules from a YAML fixture.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront-promotions/internal/cache"
	"github.com/xenking/storefront-promotions/internal/domain/auth"
	"github.com/xenking/storefront-promotions/internal/repository"
)

type options struct {
	databaseURL  string
	redisURL     string
	fixtureFile  string
	apiKey       string
	apiKeyPepper string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.redisURL, "redis-url", "", "Redis URL whose rule cache is invalidated (or REDIS_URL env)")
	flag.StringVar(&opts.fixtureFile, "fixture", "db/seed/fixture.yaml", "path to the YAML fixture")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	opts.databaseURL = orEnv(opts.databaseURL, "DATABASE_URL")
	opts.redisURL = orEnv(opts.redisURL, "REDIS_URL")
	opts.apiKey = orEnv(opts.apiKey, "PROMO_SEED_API_KEY")
	opts.apiKeyPepper = orEnv(opts.apiKeyPepper, "PROMO_API_KEY_PEPPER")

	lg, err := zap.NewProduction()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	if opts.databaseURL == "" {
		return errors.New("database URL is required: set -database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		return errors.New("API key is required: set -api-key or PROMO_SEED_API_KEY")
	}

	f, err := loadFixture(opts.fixtureFile)
	if err != nil {
		return err
	}
	products, err := f.products()
	if err != nil {
		return err
	}
	rules, err := f.rules()
	if err != nil {
		return err
	}
	tenantID := f.Tenant.ID

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	store := repository.NewStore(pool)

	err = store.InTx(ctx, func(ctx context.Context) error {
		if err := repository.NewTenantRepository(store).Upsert(ctx, tenantID, f.Tenant.Name); err != nil {
			return err
		}

		productRepo := repository.NewProductRepository(store)
		for _, p := range products {
			if err := productRepo.Upsert(ctx, p); err != nil {
				return err
			}
		}
		lg.Info("Products seeded", zap.Int("count", len(products)))

		customerRepo := repository.NewCustomerRepository(store)
		now := time.Now()
		for _, c := range f.Customers {
			var registeredAt *time.Time
			if c.Member {
				registeredAt = &now
			}
			if err := customerRepo.Upsert(ctx, tenantID, c.ID, c.Email, registeredAt); err != nil {
				return err
			}
		}
		lg.Info("Customers seeded", zap.Int("count", len(f.Customers)))

		ruleRepo := repository.NewRuleRepository(store)
		created := 0
		for i := range rules {
			err := ruleRepo.Create(ctx, tenantID, &rules[i])
			if errors.Is(err, repository.ErrRuleExists) {
				lg.Info("Rule exists, skipping", zap.String("rule_id", rules[i].ID))
				continue
			}
			if err != nil {
				return err
			}
			created++
		}
		lg.Info("Rules seeded", zap.Int("created", created), zap.Int("total", len(rules)))

		return repository.NewAPIKeyRepository(store).Upsert(ctx, auth.APIKeyInfo{
			ID:       f.APIKey.ID,
			TenantID: tenantID,
			KeyHash:  auth.HashKey([]byte(opts.apiKeyPepper), opts.apiKey),
			Name:     f.APIKey.Name,
			Scopes:   f.APIKey.Scopes,
		})
	})
	if err != nil {
		return errors.Wrap(err, "seed")
	}

	if opts.redisURL != "" {
		if err := invalidateCache(ctx, opts.redisURL, tenantID); err != nil {
			return err
		}
		lg.Info("Rule cache invalidated", zap.String("tenant_id", tenantID))
	}
	return nil
}

func invalidateCache(ctx context.Context, redisURL, tenantID string) error {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(redisOpts)
	defer func() { _ = client.Close() }()

	// Only the cache layer is used here; the wrapped repository is never hit.
	if err := cache.NewRuleCache(nil, client, time.Minute).Invalidate(ctx, tenantID); err != nil {
		return errors.Wrap(err, "invalidate rule cache")
	}
	return nil
}
