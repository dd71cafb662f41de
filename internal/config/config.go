package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/vault"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"LFS_ENV"`
	HTTPAddr string `mapstructure:"LFS_HTTP_ADDR"`
	LogLevel string `mapstructure:"LFS_LOG_LEVEL"`
	Network  string `mapstructure:"LFS_NETWORK"`

	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	State    StateConfig    `mapstructure:",squash"`
	Vault    VaultConfig    `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

// DBConfig selects the event journal. An empty DSN keeps the journal in the
// state backend.
type DBConfig struct {
	PostgresDSN string `mapstructure:"LFS_POSTGRES_DSN"`
}

type CacheConfig struct {
	RedisAddr string `mapstructure:"LFS_REDIS_ADDR"`
}

type StateConfig struct {
	Backend          string `mapstructure:"LFS_STATE_BACKEND"` // "memory", "redis"
	RedisURL         string `mapstructure:"LFS_REDIS_URL"`
	FallbackToMemory bool   `mapstructure:"LFS_STATE_FALLBACK_TO_MEMORY"`
}

type VaultConfig struct {
	ProgramID         string        `mapstructure:"LFS_VAULT_PROGRAM_ID"`
	RoleRegistryID    string        `mapstructure:"LFS_VAULT_ROLE_REGISTRY_ID"`
	RegistryAdmin     string        `mapstructure:"LFS_VAULT_REGISTRY_ADMIN"`
	BootstrapAdmin    string        `mapstructure:"LFS_VAULT_BOOTSTRAP_ADMIN"`
	BaseAsset         string        `mapstructure:"LFS_VAULT_BASE_ASSET"`
	ShareAsset        string        `mapstructure:"LFS_VAULT_SHARE_ASSET"`
	BaseDecimals      uint8         `mapstructure:"LFS_VAULT_BASE_DECIMALS"`
	ShareDecimals     uint8         `mapstructure:"LFS_VAULT_SHARE_DECIMALS"`
	MinShares         uint64        `mapstructure:"LFS_VAULT_MIN_SHARES"`
	MinInitialDeposit uint64        `mapstructure:"LFS_VAULT_MIN_INITIAL_DEPOSIT"`
	MaxDeposit        uint64        `mapstructure:"LFS_VAULT_MAX_DEPOSIT"`
	VestingPeriod     time.Duration `mapstructure:"LFS_VAULT_VESTING_PERIOD"`

	CollateralAssets   []string `mapstructure:"LFS_VAULT_COLLATERAL_ASSETS"`
	CollateralDecimals uint8    `mapstructure:"LFS_VAULT_COLLATERAL_DECIMALS"`
	Fund               string   `mapstructure:"LFS_VAULT_FUND_ADDRESS"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"LFS_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"LFS_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // variables already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("LFS_ENV", "dev")
	v.SetDefault("LFS_HTTP_ADDR", ":8080")
	v.SetDefault("LFS_LOG_LEVEL", "")
	v.SetDefault("LFS_NETWORK", "localnet")
	v.SetDefault("LFS_POSTGRES_DSN", "")
	v.SetDefault("LFS_REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("LFS_STATE_BACKEND", "memory")
	v.SetDefault("LFS_REDIS_URL", "redis://127.0.0.1:6379/0")
	v.SetDefault("LFS_STATE_FALLBACK_TO_MEMORY", false)
	v.SetDefault("LFS_VAULT_PROGRAM_ID", "leafsii-vault")
	v.SetDefault("LFS_VAULT_ROLE_REGISTRY_ID", "leafsii-guardian")
	v.SetDefault("LFS_VAULT_REGISTRY_ADMIN", "")
	v.SetDefault("LFS_VAULT_BOOTSTRAP_ADMIN", "")
	v.SetDefault("LFS_VAULT_BASE_ASSET", "USDU")
	v.SetDefault("LFS_VAULT_SHARE_ASSET", "SUSDU")
	v.SetDefault("LFS_VAULT_BASE_DECIMALS", 6)
	v.SetDefault("LFS_VAULT_SHARE_DECIMALS", 6)
	v.SetDefault("LFS_VAULT_MIN_SHARES", vault.DefaultMinShares)
	v.SetDefault("LFS_VAULT_MIN_INITIAL_DEPOSIT", vault.DefaultMinInitialDeposit)
	v.SetDefault("LFS_VAULT_MAX_DEPOSIT", uint64(math.MaxUint64))
	v.SetDefault("LFS_VAULT_VESTING_PERIOD", vault.DefaultVestingPeriod.String())
	v.SetDefault("LFS_VAULT_COLLATERAL_ASSETS", "USDC,USDT")
	v.SetDefault("LFS_VAULT_COLLATERAL_DECIMALS", 6)
	v.SetDefault("LFS_VAULT_FUND_ADDRESS", "leafsii-fund")
	v.SetDefault("LFS_RATE_LIMIT_RPM", 120)
	v.SetDefault("LFS_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	// Handle array parsing for comma-separated values
	if origins := v.GetString("LFS_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("LFS_CORS_ALLOWED_ORIGINS", strings.Split(origins, ","))
	}
	v.Set("LFS_VAULT_COLLATERAL_ASSETS", splitList(v.GetString("LFS_VAULT_COLLATERAL_ASSETS")))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Network = strings.ToLower(strings.TrimSpace(cfg.Network))
	cfg.State.Backend = strings.ToLower(strings.TrimSpace(cfg.State.Backend))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Network {
	case "localnet", "testnet", "mainnet":
	default:
		return fmt.Errorf("invalid LFS_NETWORK %q (must be localnet, testnet, or mainnet)", c.Network)
	}
	switch c.State.Backend {
	case "memory":
	case "redis":
		if c.State.RedisURL == "" {
			return fmt.Errorf("LFS_REDIS_URL is required for the redis state backend")
		}
	default:
		return fmt.Errorf("invalid LFS_STATE_BACKEND %q (must be memory or redis)", c.State.Backend)
	}
	if c.IsProd() && c.Vault.RegistryAdmin == "" {
		return fmt.Errorf("LFS_VAULT_REGISTRY_ADMIN is required in prod")
	}
	if c.Vault.RegistryAdmin != "" {
		if _, err := account.ParseAddress(c.Vault.RegistryAdmin); err != nil {
			return fmt.Errorf("LFS_VAULT_REGISTRY_ADMIN: %w", err)
		}
	}
	if _, err := c.VaultParams(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// VaultParams builds the vault parameters. Testnet drops the cooldown floor.
func (c *Config) VaultParams() (vault.Params, error) {
	p := vault.DefaultParams()
	p.ProgramID = addressOrLabel(c.Vault.ProgramID)
	p.RoleRegistryID = addressOrLabel(c.Vault.RoleRegistryID)
	p.BaseAsset = c.Vault.BaseAsset
	p.ShareAsset = c.Vault.ShareAsset
	p.MinShares = c.Vault.MinShares
	p.MinInitialDeposit = c.Vault.MinInitialDeposit
	p.MaxDeposit = c.Vault.MaxDeposit
	p.VestingPeriod = c.Vault.VestingPeriod
	if c.Network == "testnet" {
		p.MinCooldown = vault.TestnetMinCooldownDuration
	}
	if len(c.Vault.CollateralAssets) > 0 {
		p.Collateral = append([]string(nil), c.Vault.CollateralAssets...)
		p.Fund = addressOrLabel(c.Vault.Fund)
	}
	if c.Vault.BootstrapAdmin != "" {
		admin, err := account.ParseAddress(c.Vault.BootstrapAdmin)
		if err != nil {
			return vault.Params{}, fmt.Errorf("LFS_VAULT_BOOTSTRAP_ADMIN: %w", err)
		}
		p.BootstrapAdmin = admin
	}
	if err := p.Validate(); err != nil {
		return vault.Params{}, fmt.Errorf("vault params: %w", err)
	}
	return p, nil
}

// RegistryAdminAddress is the role registry and deny-list admin. In dev an
// unset admin falls back to the bootstrap admin, then to a derived address.
func (c *Config) RegistryAdminAddress() account.Address {
	for _, s := range []string{c.Vault.RegistryAdmin, c.Vault.BootstrapAdmin} {
		if a, err := account.ParseAddress(s); err == nil {
			return a
		}
	}
	return account.ProgramAddress("leafsii-registry-admin")
}

// splitList splits a comma separated value and drops empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// addressOrLabel parses s as a hex address, otherwise derives one from s.
func addressOrLabel(s string) account.Address {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") {
		if a, err := account.ParseAddress(s); err == nil {
			return a
		}
	}
	return account.ProgramAddress(s)
}
