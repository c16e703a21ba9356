package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"invoicechain/crypto"

	"github.com/BurntSushi/toml"
)

// Config carries the daemon's startup settings. Addresses are bech32 strings
// in the file and decoded once during validation.
type Config struct {
	RPCAddress         string            `toml:"RPCAddress"`
	DataDir            string            `toml:"DataDir"`
	AdminAddress       string            `toml:"AdminAddress"`
	FactoryAddress     string            `toml:"FactoryAddress"`
	WrappedNativeToken string            `toml:"WrappedNativeToken"`
	PausedModules      []string          `toml:"PausedModules"`
	GenesisTokens      map[string]string `toml:"GenesisTokens,omitempty"`
}

// Load reads the configuration at path, writing a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./invoice-data"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
}

// createDefault creates and saves a default configuration file. The admin,
// factory and wrapped-native addresses have no sensible defaults and must be
// filled in before the daemon will start.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:    ":8080",
		DataDir:       "./invoice-data",
		PausedModules: []string{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func decodeAddr(field, value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("config: %s: %w", field, err)
	}
	copy(out[:], addr.Bytes())
	if out == ([20]byte{}) {
		return out, fmt.Errorf("config: %s must not be the zero address", field)
	}
	return out, nil
}

// Admin decodes the configured admin address.
func (c *Config) Admin() ([20]byte, error) {
	return decodeAddr("AdminAddress", c.AdminAddress)
}

// Factory decodes the configured factory registry address.
func (c *Config) Factory() ([20]byte, error) {
	return decodeAddr("FactoryAddress", c.FactoryAddress)
}

// WrappedNative decodes the configured wrapped-native token address.
func (c *Config) WrappedNative() ([20]byte, error) {
	return decodeAddr("WrappedNativeToken", c.WrappedNativeToken)
}

// Validate checks that every required address decodes. Called once at daemon
// startup so later address accessors cannot fail.
func (c *Config) Validate() error {
	if _, err := c.Admin(); err != nil {
		return err
	}
	if _, err := c.Factory(); err != nil {
		return err
	}
	if _, err := c.WrappedNative(); err != nil {
		return err
	}
	return nil
}

// Pauses converts the configured pause list into a lookup view.
func (c *Config) Pauses() PauseSet {
	set := make(PauseSet, len(c.PausedModules))
	for _, module := range c.PausedModules {
		name := strings.ToLower(strings.TrimSpace(module))
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// PauseSet is a static module pause list loaded from configuration.
type PauseSet map[string]struct{}

// IsPaused reports whether the module is administratively paused.
func (p PauseSet) IsPaused(module string) bool {
	_, ok := p[strings.ToLower(module)]
	return ok
}
