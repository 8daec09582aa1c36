package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed describes funded accounts and minted assets loaded into a fresh
// development node.
type Seed struct {
	Accounts []SeedAccount `yaml:"accounts"`
	Assets   []SeedAsset   `yaml:"assets"`
}

type SeedAccount struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

type SeedAsset struct {
	Holder string `yaml:"holder"`
	Kind   string `yaml:"kind"`
	Data   string `yaml:"data"`
	Salt   string `yaml:"salt"`
}

// LoadSeed parses the YAML seed file at path.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed := new(Seed)
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(seed); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	for i, acc := range seed.Accounts {
		if _, err := acc.Amount(); err != nil {
			return nil, fmt.Errorf("seed %s: accounts[%d]: %w", path, i, err)
		}
	}
	for i, asset := range seed.Assets {
		if strings.TrimSpace(asset.Kind) == "" {
			return nil, fmt.Errorf("seed %s: assets[%d]: kind must not be empty", path, i)
		}
	}
	return seed, nil
}

// Amount parses the decimal balance of a seeded account.
func (a SeedAccount) Amount() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(a.Balance), 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance %q", a.Balance)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("balance must be positive")
	}
	return amount, nil
}
