// Package bootstrap wires the shared runtime pieces (database, Redis,
// optional dev seeding) for commands that are not the API server.
package bootstrap

import (
	"fmt"

	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	Seed    seed.Options
	RunSeed bool
	Migrate bool
}

// InitRuntime connects to the database and Redis and optionally applies the
// schema and development seed data. The Redis client may be nil when the
// server is unreachable; callers must tolerate that.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.Migrate {
		if err := database.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("schema migration failed: %w", err)
		}
	}

	if opts.RunSeed {
		if err := seed.Run(db, opts.Seed); err != nil {
			return nil, nil, fmt.Errorf("seeding failed: %w", err)
		}
	}

	return db, r, nil
}
