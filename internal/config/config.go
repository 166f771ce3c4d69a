// Package config merges CLI-supplied, file-supplied, and default settings
// into one effective deployment configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

// =============================================================================
// Config Errors
// =============================================================================

var (
	// ErrMissingField is returned when a required field has no effective value.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidValue is returned when a field value is outside its domain.
	ErrInvalidValue = errors.New("invalid field value")

	// ErrMalformedFile is returned when the config file cannot be parsed.
	ErrMalformedFile = errors.New("malformed config file")

	// ErrLengthMismatch is returned when modules_path and addresses_name
	// have different lengths.
	ErrLengthMismatch = errors.New("modules_path and addresses_name must have the same length")
)

// ConfigError wraps a configuration failure with the field it concerns.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func newError(field, message string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: err}
}

// =============================================================================
// Config Types
// =============================================================================

// Config is the effective configuration for one deployment run. Every field
// has exactly one value after merging: CLI flags win over the file, the file
// wins over the documented defaults.
type Config struct {
	// PrivateKey is the deployer's signing key, hex encoded. Optional on
	// networks with a faucet; required everywhere else.
	PrivateKey string `mapstructure:"private_key"`

	// ModuleType selects the publication mode. Default: object.
	ModuleType domain.ModuleType `mapstructure:"module_type"`

	// Network is the target chain environment. Default: devnet.
	Network domain.Network `mapstructure:"network"`

	// ModulesPath lists the package directories to deploy, in declaration
	// order. Required, at least one.
	ModulesPath []string `mapstructure:"modules_path"`

	// AddressesName lists the symbolic address name for each package, same
	// length and order as ModulesPath. Required.
	AddressesName []string `mapstructure:"addresses_name"`

	// DeployedAddresses pre-binds symbolic names to addresses deployed in
	// earlier runs, e.g. lib_addr = "0x42". Default: empty.
	DeployedAddresses map[string]string `mapstructure:"deployed_addresses"`

	// RestURL overrides the network's built-in REST endpoint. Required for
	// local networks, which have no built-in endpoint.
	RestURL string `mapstructure:"rest_url"`

	// FaucetURL overrides the network's built-in faucet endpoint.
	FaucetURL string `mapstructure:"faucet_url"`

	// PublishCode stores the package source on chain alongside the
	// bytecode. Default: false.
	PublishCode bool `mapstructure:"publish_code"`

	// OutputJSON is the report path. Default: deploy-report.json.
	OutputJSON string `mapstructure:"output_json"`

	// FailurePolicy decides what happens after the first failed module.
	// Default: abort.
	FailurePolicy domain.FailurePolicy `mapstructure:"failure_policy"`

	// MaxAttempts bounds submission retries per module. Default: 5.
	MaxAttempts int `mapstructure:"max_attempts"`

	// Concurrency bounds parallel submissions. Default: 4.
	Concurrency int `mapstructure:"concurrency"`

	// Timeout bounds the whole run. Default: 10m.
	Timeout time.Duration `mapstructure:"timeout"`

	// RegistryPath points at the local deployment registry database. Empty
	// disables the registry. Default: empty.
	RegistryPath string `mapstructure:"registry_path"`

	// AssumeYes skips interactive confirmation. Default: false.
	AssumeYes bool `mapstructure:"assume_yes"`

	// Log configures the run logger.
	Log LogConfig `mapstructure:"log"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Overrides carries the CLI-supplied values. A nil field means the flag was
// not set and the file value (or default) applies.
type Overrides struct {
	PrivateKey        *string
	ModuleType        *string
	Network           *string
	ModulesPath       []string
	AddressesName     []string
	DeployedAddresses map[string]string
	RestURL           *string
	FaucetURL         *string
	PublishCode       *bool
	OutputJSON        *string
	FailurePolicy     *string
	MaxAttempts       *int
	Concurrency       *int
	Timeout           *time.Duration
	RegistryPath      *string
	AssumeYes         *bool
}

// =============================================================================
// Config Loading
// =============================================================================

// Load builds the effective configuration: documented defaults, then the
// optional TOML file, then JAYCE_* environment variables, then CLI overrides
// on top. Validation runs on the merged result.
func Load(configPath string, ov Overrides) (*Config, error) {
	v := viper.New()

	// Defaults. Every fallback value is set here, never inferred later.
	v.SetDefault("private_key", "")
	v.SetDefault("module_type", string(domain.ModuleTypeObject))
	v.SetDefault("network", string(domain.NetworkDevnet))
	v.SetDefault("modules_path", []string{})
	v.SetDefault("addresses_name", []string{})
	v.SetDefault("deployed_addresses", map[string]string{})
	v.SetDefault("rest_url", "")
	v.SetDefault("faucet_url", "")
	v.SetDefault("publish_code", false)
	v.SetDefault("output_json", "deploy-report.json")
	v.SetDefault("failure_policy", string(domain.PolicyAbort))
	v.SetDefault("max_attempts", 5)
	v.SetDefault("concurrency", 4)
	v.SetDefault("timeout", "10m")
	v.SetDefault("registry_path", "")
	v.SetDefault("assume_yes", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, newError("", err.Error(), ErrMalformedFile)
			}
			return nil, newError("", fmt.Sprintf("cannot read %s: %v", configPath, err), ErrMalformedFile)
		}
	}

	// Environment variable overrides, e.g. JAYCE_PRIVATE_KEY.
	v.SetEnvPrefix("JAYCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, newError("", fmt.Sprintf("cannot decode config: %v", err), ErrMalformedFile)
	}

	applyOverrides(&cfg, ov)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyOverrides copies every CLI-supplied value over the merged file and
// default values. Only explicitly set flags reach this point.
func applyOverrides(cfg *Config, ov Overrides) {
	if ov.PrivateKey != nil {
		cfg.PrivateKey = *ov.PrivateKey
	}
	if ov.ModuleType != nil {
		cfg.ModuleType = domain.ModuleType(*ov.ModuleType)
	}
	if ov.Network != nil {
		cfg.Network = domain.Network(*ov.Network)
	}
	if ov.ModulesPath != nil {
		cfg.ModulesPath = ov.ModulesPath
	}
	if ov.AddressesName != nil {
		cfg.AddressesName = ov.AddressesName
	}
	if ov.DeployedAddresses != nil {
		cfg.DeployedAddresses = ov.DeployedAddresses
	}
	if ov.RestURL != nil {
		cfg.RestURL = *ov.RestURL
	}
	if ov.FaucetURL != nil {
		cfg.FaucetURL = *ov.FaucetURL
	}
	if ov.PublishCode != nil {
		cfg.PublishCode = *ov.PublishCode
	}
	if ov.OutputJSON != nil {
		cfg.OutputJSON = *ov.OutputJSON
	}
	if ov.FailurePolicy != nil {
		cfg.FailurePolicy = domain.FailurePolicy(*ov.FailurePolicy)
	}
	if ov.MaxAttempts != nil {
		cfg.MaxAttempts = *ov.MaxAttempts
	}
	if ov.Concurrency != nil {
		cfg.Concurrency = *ov.Concurrency
	}
	if ov.Timeout != nil {
		cfg.Timeout = *ov.Timeout
	}
	if ov.RegistryPath != nil {
		cfg.RegistryPath = *ov.RegistryPath
	}
	if ov.AssumeYes != nil {
		cfg.AssumeYes = *ov.AssumeYes
	}
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the merged configuration. The module type is validated
// explicitly against the closed variant set; it is never inferred from the
// presence of address names.
func (c *Config) Validate() error {
	if err := c.ModuleType.Validate(); err != nil {
		return newError("module_type", err.Error(), ErrInvalidValue)
	}
	if err := c.Network.Validate(); err != nil {
		return newError("network", err.Error(), ErrInvalidValue)
	}
	if err := c.FailurePolicy.Validate(); err != nil {
		return newError("failure_policy", err.Error(), ErrInvalidValue)
	}
	if len(c.ModulesPath) == 0 {
		return newError("modules_path", "at least one package directory is required", ErrMissingField)
	}
	if len(c.ModulesPath) != len(c.AddressesName) {
		return newError("addresses_name",
			fmt.Sprintf("%d paths but %d address names", len(c.ModulesPath), len(c.AddressesName)),
			ErrLengthMismatch)
	}
	seen := make(map[string]bool, len(c.AddressesName))
	for _, name := range c.AddressesName {
		if name == "" {
			return newError("addresses_name", "address names must not be empty", ErrInvalidValue)
		}
		if seen[name] {
			return newError("addresses_name", fmt.Sprintf("duplicate address name %q", name), ErrInvalidValue)
		}
		seen[name] = true
	}
	for name, literal := range c.DeployedAddresses {
		if _, err := domain.ParseAddress(literal); err != nil {
			return newError("deployed_addresses", fmt.Sprintf("%s: %v", name, err), ErrInvalidValue)
		}
	}
	if c.EffectiveRestURL() == "" {
		return newError("rest_url", fmt.Sprintf("network %s has no built-in endpoint, set rest_url", c.Network), ErrMissingField)
	}
	if c.PrivateKey == "" && c.EffectiveFaucetURL() == "" {
		return newError("private_key",
			fmt.Sprintf("required on %s: no faucet available to fund a fresh account", c.Network),
			ErrMissingField)
	}
	if c.MaxAttempts < 1 {
		return newError("max_attempts", "must be at least 1", ErrInvalidValue)
	}
	if c.Concurrency < 1 {
		return newError("concurrency", "must be at least 1", ErrInvalidValue)
	}
	if c.Timeout <= 0 {
		return newError("timeout", "must be positive", ErrInvalidValue)
	}
	if c.OutputJSON == "" {
		return newError("output_json", "report path must not be empty", ErrMissingField)
	}
	return nil
}

// EffectiveRestURL returns the configured REST endpoint, falling back to the
// network's built-in one.
func (c *Config) EffectiveRestURL() string {
	if c.RestURL != "" {
		return c.RestURL
	}
	return c.Network.RestURL()
}

// EffectiveFaucetURL returns the configured faucet endpoint, falling back to
// the network's built-in one.
func (c *Config) EffectiveFaucetURL() string {
	if c.FaucetURL != "" {
		return c.FaucetURL
	}
	return c.Network.FaucetURL()
}

// PreBound parses deployed_addresses into concrete addresses. Validate must
// have succeeded first.
func (c *Config) PreBound() (map[string]domain.Address, error) {
	out := make(map[string]domain.Address, len(c.DeployedAddresses))
	for name, literal := range c.DeployedAddresses {
		addr, err := domain.ParseAddress(literal)
		if err != nil {
			return nil, newError("deployed_addresses", fmt.Sprintf("%s: %v", name, err), ErrInvalidValue)
		}
		out[name] = addr
	}
	return out, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
