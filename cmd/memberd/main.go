package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"memberchain/config"
	"memberchain/core"
	"memberchain/crypto"
	"memberchain/native/loyalty"
	"memberchain/native/membership"
	"memberchain/native/payment"
	"memberchain/observability/logging"
	"memberchain/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const ownerPassEnv = "MBR_OWNER_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MBR_ENV"))
	logger := logging.Setup("memberd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	ownerKey, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, os.Getenv(ownerPassEnv))
	if err != nil {
		panic(fmt.Sprintf("Failed to load owner key: %v", err))
	}
	ownerAddr := ownerKey.PubKey().Address()
	owner := ownerAddr.Array()

	node, err := core.NewNode(db, owner)
	if err != nil {
		panic(fmt.Sprintf("Failed to open ledger: %v", err))
	}
	node.SetLogger(logger)

	unit, err := cfg.RewardUnit()
	if err != nil {
		logger.Error("Invalid reward configuration", slog.Any("error", err))
		os.Exit(1)
	}
	node.SetRewardPolicy(payment.PriceScaledRewards{UnitWei: unit, XPFactor: cfg.RewardXPFactor})

	if err := wireComponents(node, owner); err != nil {
		logger.Error("Component wiring failed", slog.Any("error", err))
		os.Exit(1)
	}

	if seller, ok, err := cfg.Seller(); err != nil {
		logger.Error("Invalid seller configuration", slog.Any("error", err))
		os.Exit(1)
	} else if ok {
		if err := node.SetSeller(owner, seller.Array()); err != nil {
			logger.Error("Seller configuration failed", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("No seller configured; paid purchases will be rejected")
	}

	if err := seedProducts(node, owner, cfg, logger); err != nil {
		logger.Error("Catalog seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Ledger ready",
		slog.String("owner", ownerAddr.String()),
		slog.String("root", node.StateRoot().Hex()),
	)

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		http.Handle("/metrics", promhttp.Handler())
		logger.Info("Serving metrics", slog.String("address", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error("Metrics server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// wireComponents runs the bring-up sequence establishing each component's
// single trusted caller. The calls are idempotent, so a restart re-running
// them is harmless.
func wireComponents(node *core.Node, owner [20]byte) error {
	if err := node.SetPaymentContract(owner, payment.ModuleAddress()); err != nil {
		return fmt.Errorf("payment principal: %w", err)
	}
	if err := node.SetMembershipContract(owner, membership.ModuleAddress()); err != nil {
		return fmt.Errorf("membership target: %w", err)
	}
	if err := node.SetLoyaltyContract(owner, loyalty.ModuleAddress()); err != nil {
		return fmt.Errorf("loyalty principal: %w", err)
	}
	return nil
}

// seedProducts registers configured catalog entries on an empty catalog.
// A non-empty catalog means a previous run already seeded it.
func seedProducts(node *core.Node, owner [20]byte, cfg *config.Config, logger *slog.Logger) error {
	if len(cfg.Products) == 0 {
		return nil
	}
	count, err := node.ProductCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, seed := range cfg.Products {
		price, err := seed.Price()
		if err != nil {
			return err
		}
		id, err := node.AddProduct(owner, seed.Name, seed.Description, price)
		if err != nil {
			return fmt.Errorf("seed %q: %w", seed.Name, err)
		}
		logger.Info("Seeded product",
			slog.Uint64("id", id),
			slog.String("name", seed.Name),
			slog.String("priceWei", price.String()),
		)
	}
	return nil
}
