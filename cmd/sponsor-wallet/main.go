package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"offramp.backend/internal/config"
	"offramp.backend/internal/domain/entities"
	"offramp.backend/internal/infrastructure/blockchain"
	"offramp.backend/internal/infrastructure/repositories"
	"offramp.backend/internal/usecases"
	"offramp.backend/pkg/crypto"
)

var openSponsorDB = func(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), &gorm.Config{PrepareStmt: false})
}

var openSponsorSQLDB = func(db *gorm.DB) (io.Closer, error) {
	return db.DB()
}

type sponsorRuntime interface {
	ProvisionWallet(ctx context.Context, chain string, threshold decimal.Decimal) (*entities.GasSponsorWallet, error)
}

type sponsorWalletDeps struct {
	loadEnv func() error
	loadCfg func() *config.Config
	prepare func(cfg *config.Config) (sponsorRuntime, io.Closer, error)
	out     io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type registryCloser struct{ r *blockchain.Registry }

func (c registryCloser) Close() error {
	c.r.Close()
	return nil
}

func defaultSponsorWalletDeps() sponsorWalletDeps {
	return sponsorWalletDeps{
		loadEnv: func() error { return godotenv.Load() },
		loadCfg: config.Load,
		prepare: func(cfg *config.Config) (sponsorRuntime, io.Closer, error) {
			vault, err := crypto.NewVault([]byte(cfg.Security.MasterSecret),
				crypto.WithIterations(cfg.Security.KDFIterations),
				crypto.WithKDFWorkers(cfg.Security.KDFWorkers),
			)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to init key vault: %w", err)
			}

			db, err := openSponsorDB(cfg.Database.URL())
			if err != nil {
				return nil, nil, fmt.Errorf("failed to connect db: %w", err)
			}
			sqlDB, err := openSponsorSQLDB(db)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to init sql db: %w", err)
			}

			chains := make([]entities.Chain, 0, len(cfg.Chains))
			for _, c := range cfg.Chains {
				chains = append(chains, c.Entity())
			}
			registry := blockchain.NewRegistry(chains)

			sponsor := usecases.NewGasSponsor(repositories.NewGasSponsorWalletRepository(db), registry, vault)
			return sponsor, closers{registryCloser{registry}, sqlDB}, nil
		},
		out: os.Stdout,
	}
}

func parseThreshold(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --min-balance %q: %w", raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("--min-balance must not be negative")
	}
	return d, nil
}

func runSponsorWallet(args []string, deps sponsorWalletDeps) error {
	if deps.loadEnv == nil {
		deps.loadEnv = func() error { return godotenv.Load() }
	}
	if deps.loadCfg == nil {
		deps.loadCfg = config.Load
	}
	if deps.prepare == nil {
		deps.prepare = defaultSponsorWalletDeps().prepare
	}
	if deps.out == nil {
		deps.out = os.Stdout
	}

	fs := flag.NewFlagSet("sponsor-wallet", flag.ContinueOnError)
	chainFlag := fs.String("chain", "", "chain name, e.g. ethereum, solana, tron (required)")
	minBalanceFlag := fs.String("min-balance", "", "alert threshold in native base units (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *chainFlag == "" {
		return fmt.Errorf("--chain is required")
	}
	threshold, err := parseThreshold(*minBalanceFlag)
	if err != nil {
		return err
	}

	if err := deps.loadEnv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := deps.loadCfg()
	runtime, closer, err := deps.prepare(cfg)
	if err != nil {
		return err
	}
	if closer == nil {
		closer = nopCloser{}
	}
	defer closer.Close()

	wallet, err := runtime.ProvisionWallet(context.Background(), *chainFlag, threshold)
	if err != nil {
		return fmt.Errorf("failed provisioning sponsor wallet: %w", err)
	}

	_, _ = fmt.Fprintln(deps.out, "Provisioned gas sponsor wallet and stored encrypted key in DB")
	_, _ = fmt.Fprintf(deps.out, "chain=%s\n", wallet.Chain)
	_, _ = fmt.Fprintf(deps.out, "address=%s\n", wallet.Address)
	_, _ = fmt.Fprintf(deps.out, "min_balance=%s\n", wallet.MinBalanceThreshold.String())
	_, _ = fmt.Fprintln(deps.out, "Fund this address before enabling sweeps of token deposits.")
	return nil
}

func main() {
	if err := runSponsorWallet(os.Args[1:], defaultSponsorWalletDeps()); err != nil {
		log.Fatal(err)
	}
}
