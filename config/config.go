package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"memberchain/crypto"

	"github.com/BurntSushi/toml"
)

// ProductSeed describes a catalog entry registered at bring-up when the
// catalog is still empty.
type ProductSeed struct {
	Name        string `toml:"Name"`
	Description string `toml:"Description"`
	PriceWei    string `toml:"PriceWei"`
}

// Price parses the seed's price into wei.
func (p ProductSeed) Price() (*big.Int, error) {
	raw := strings.TrimSpace(p.PriceWei)
	if raw == "" {
		return big.NewInt(0), nil
	}
	price, ok := new(big.Int).SetString(raw, 10)
	if !ok || price.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid product price %q", p.PriceWei)
	}
	return price, nil
}

type Config struct {
	DataDir           string        `toml:"DataDir"`
	MetricsAddress    string        `toml:"MetricsAddress"`
	OwnerKeystorePath string        `toml:"OwnerKeystorePath"`
	SellerAddress     string        `toml:"SellerAddress"`
	RewardUnitWei     string        `toml:"RewardUnitWei"`
	RewardXPFactor    uint64        `toml:"RewardXPFactor"`
	Products          []ProductSeed `toml:"Products"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./member-data"
	}
	if cfg.RewardXPFactor == 0 {
		cfg.RewardXPFactor = 2
	}

	return cfg, nil
}

// RewardUnit parses the configured reward unit, falling back to the stock
// 1e15 wei per point.
func (c *Config) RewardUnit() (*big.Int, error) {
	raw := strings.TrimSpace(c.RewardUnitWei)
	if raw == "" {
		return big.NewInt(1_000_000_000_000_000), nil
	}
	unit, ok := new(big.Int).SetString(raw, 10)
	if !ok || unit.Sign() <= 0 {
		return nil, fmt.Errorf("config: invalid reward unit %q", c.RewardUnitWei)
	}
	return unit, nil
}

// Seller decodes the configured seller address, if any.
func (c *Config) Seller() (crypto.Address, bool, error) {
	raw := strings.TrimSpace(c.SellerAddress)
	if raw == "" {
		return crypto.Address{}, false, nil
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, false, fmt.Errorf("config: invalid seller address: %w", err)
	}
	return addr, true, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:        "./member-data",
		MetricsAddress: ":9464",
		RewardXPFactor: 2,
	}
	cfg.OwnerKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
