package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/qdmz/webchaxun/internal/config"
	"github.com/qdmz/webchaxun/internal/database"
	"github.com/qdmz/webchaxun/internal/log"
	"github.com/qdmz/webchaxun/internal/repository"
	"github.com/qdmz/webchaxun/internal/security"
	"github.com/qdmz/webchaxun/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flags := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	dsn := flags.String("dsn", cfg.Postgres.DSN, "postgres connection string")
	down := flags.Bool("down", false, "roll back the latest migration")
	adminUsername := flags.String("admin-username", "", "create this admin account if it does not exist")
	adminEmail := flags.String("admin-email", "", "email of the seeded admin")
	adminPassword := flags.String("admin-password", os.Getenv("WEBCHAXUN_ADMIN_PASSWORD"), "password of the seeded admin")
	_ = flags.Parse(os.Args[1:])

	logger := log.Component(log.New(cfg.Environment, cfg.Logging.Level), "migrate")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *dsn == "" {
		logger.Fatal().Msg("--dsn or WEBCHAXUN_POSTGRES_DSN is required")
	}

	if err := database.Migrate(ctx, *dsn, *down); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Bool("down", *down).Msg("migrations applied")

	if *down || *adminUsername == "" {
		return
	}

	cfg.Postgres.DSN = *dsn
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()

	seeder := seed.NewAdminSeeder(repository.NewUserRepository(pool), security.NewPasswordHasher(cfg.Security))
	created, err := seeder.Seed(ctx, seed.Admin{
		Username: *adminUsername,
		Email:    *adminEmail,
		Password: *adminPassword,
	})
	switch {
	case errors.Is(err, seed.ErrWeakPassword):
		logger.Fatal().Msg("admin password must be 8 to 72 bytes with upper-case, lower-case and digit")
	case err != nil:
		logger.Fatal().Err(err).Msg("seed admin failed")
	case created:
		logger.Info().Str("username", *adminUsername).Msg("admin account created")
	default:
		logger.Info().Str("username", *adminUsername).Msg("admin account already present")
	}
}
