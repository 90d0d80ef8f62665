// Package config provides configuration types for rolegate.
//
// Configuration comes from rolegate.yaml and ROLEGATE_* environment
// variables. Roles and memberships listed here are seeded into the rule
// store at start; the admin API changes them afterwards and state.json
// keeps those changes.
package config

import (
	"github.com/spf13/viper"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

// Config is the top-level rolegate configuration.
type Config struct {
	// Server configures the HTTP listener for the admin API and metrics.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Modifier identifies the avatar the roles guard.
	Modifier ModifierConfig `yaml:"modifier" mapstructure:"modifier"`

	// Admin configures access to the admin API from non-local clients.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// RPC configures forwarding of approved transactions. When URL is
	// empty, approved transactions are logged and not forwarded.
	RPC RPCConfig `yaml:"rpc" mapstructure:"rpc"`

	// RateLimit throttles executions per module and admin requests per IP.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Events configures the on-disk log of rule changes and decisions.
	Events EventsConfig `yaml:"events" mapstructure:"events"`

	// Roles are seeded at start. A role already present in state.json is
	// left as stored.
	Roles []RoleConfig `yaml:"roles" mapstructure:"roles" validate:"omitempty,dive"`

	// Members are seeded at start.
	Members []MemberConfig `yaml:"members" mapstructure:"members" validate:"omitempty,dive"`

	// DevMode forces debug logging and allows admin access without a key
	// from any address.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the listen address. Defaults to "127.0.0.1:8545".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel is one of "debug", "info", "warn", "error". Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins lists browser origins allowed to call the admin API.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,url"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file" validate:"required_with=TLSKeyFile"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file" validate:"required_with=TLSCertFile"`
}

// ModifierConfig identifies the accounts the roles modifier sits between.
type ModifierConfig struct {
	// Avatar is the account that executes approved transactions.
	Avatar string `yaml:"avatar" mapstructure:"avatar" validate:"omitempty,eth_addr"`

	// Target is the account calls are sent to. Defaults to Avatar.
	Target string `yaml:"target" mapstructure:"target" validate:"omitempty,eth_addr"`

	// Multisend is the batching contract whose calls are checked per
	// sub-call. Empty disables batch expansion.
	Multisend string `yaml:"multisend" mapstructure:"multisend" validate:"omitempty,eth_addr"`

	// MaxMultisendDepth is how many nested batches are expanded. Defaults
	// to 1, which rejects a batch inside a batch.
	MaxMultisendDepth int `yaml:"max_multisend_depth" mapstructure:"max_multisend_depth" validate:"gte=0,lte=8"`
}

// AdminConfig configures admin API authentication.
type AdminConfig struct {
	// KeyHash is the argon2id hash of the admin bearer key, as printed by
	// `rolegate hash-key`. Without it, only localhost may call the API.
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"omitempty,startswith=$argon2id$"`
}

// RPCConfig configures the JSON-RPC forwarder.
type RPCConfig struct {
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// ModuleAddress is the address forwarded calls are made from; the
	// avatar must have it enabled as a module.
	ModuleAddress string `yaml:"module_address" mapstructure:"module_address" validate:"required_with=URL,omitempty,eth_addr"`

	// Timeout bounds each forwarded call (e.g. "15s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
}

// RateLimitConfig configures GCRA throttling.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// ExecRate is executions per minute per module.
	ExecRate int `yaml:"exec_rate" mapstructure:"exec_rate" validate:"gte=0"`

	// ExecBurst is how many executions a module may make at once.
	ExecBurst int `yaml:"exec_burst" mapstructure:"exec_burst" validate:"gte=0"`

	// AdminIPRate is admin API requests per minute per client IP.
	AdminIPRate int `yaml:"admin_ip_rate" mapstructure:"admin_ip_rate" validate:"gte=0"`

	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	MaxTTL          string `yaml:"max_ttl" mapstructure:"max_ttl"`
}

// EventsConfig configures the event log.
type EventsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Output is "file" for daily JSON Lines files under Dir, or "stdout".
	Output string `yaml:"output" mapstructure:"output" validate:"omitempty,oneof=file stdout"`

	// Dir holds the daily event files. Empty means an "events" directory
	// next to state.json.
	Dir string `yaml:"dir" mapstructure:"dir"`

	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"gte=0,lte=3650"`
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"gte=0,lte=1024"`

	// CacheSize is how many recent events the admin API can list.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"gte=0,lte=100000"`
}

// RoleConfig is a role definition seeded from YAML.
type RoleConfig struct {
	ID      uint16         `yaml:"id" mapstructure:"id"`
	Targets []TargetConfig `yaml:"targets" mapstructure:"targets" validate:"omitempty,dive"`
}

// TargetConfig configures one target of a seeded role.
type TargetConfig struct {
	Address string `yaml:"address" mapstructure:"address" validate:"required,eth_addr"`

	// Clearance is "none", "target" or "function".
	Clearance string `yaml:"clearance" mapstructure:"clearance" validate:"required,oneof=none target function"`

	// Options applies to target clearance.
	Options string `yaml:"options" mapstructure:"options" validate:"omitempty,oneof=none send delegatecall both"`

	// Functions are allowed on a function-cleared target.
	Functions []FunctionConfig `yaml:"functions" mapstructure:"functions" validate:"omitempty,dive"`
}

// FunctionConfig allows one function of a target. Exactly one of Selector
// and Signature is set.
type FunctionConfig struct {
	// Selector is the 0x-prefixed 4-byte selector.
	Selector string `yaml:"selector" mapstructure:"selector" validate:"omitempty,selector"`

	// Signature is a canonical signature such as
	// "transfer(address,uint256)"; its selector is derived.
	Signature string `yaml:"signature" mapstructure:"signature" validate:"omitempty,contains=("`

	Options    string            `yaml:"options" mapstructure:"options" validate:"omitempty,oneof=none send delegatecall both"`
	Parameters []ParameterConfig `yaml:"parameters" mapstructure:"parameters" validate:"omitempty,dive"`
}

// ParameterConfig scopes one parameter of a seeded function.
type ParameterConfig struct {
	Index      int    `yaml:"index" mapstructure:"index" validate:"gte=0,lt=48"`
	Type       string `yaml:"type" mapstructure:"type" validate:"required,oneof=static dynamic dynamic32"`
	Comparison string `yaml:"comparison" mapstructure:"comparison" validate:"required,oneof=eq gt lt oneof"`

	// Values are 0x-prefixed hex. Static values are left-padded to 32 bytes.
	Values []string `yaml:"values" mapstructure:"values" validate:"required,min=1,dive,hexadecimal"`
}

// MemberConfig grants roles to a module address.
type MemberConfig struct {
	Module      string   `yaml:"module" mapstructure:"module" validate:"required,eth_addr"`
	Roles       []uint16 `yaml:"roles" mapstructure:"roles"`
	DefaultRole *uint16  `yaml:"default_role" mapstructure:"default_role"`
}

// SetDevDefaults applies development-mode settings.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	// Bind to localhost only; network access needs an explicit http_addr.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8545"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Modifier.Target == "" {
		c.Modifier.Target = c.Modifier.Avatar
	}
	if c.Modifier.MaxMultisendDepth == 0 {
		c.Modifier.MaxMultisendDepth = roles.DefaultMaxMultisendDepth
	}

	if c.RPC.Timeout == "" {
		c.RPC.Timeout = "15s"
	}

	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.ExecRate == 0 {
		c.RateLimit.ExecRate = 60
	}
	if c.RateLimit.ExecBurst == 0 {
		c.RateLimit.ExecBurst = 10
	}
	if c.RateLimit.AdminIPRate == 0 {
		c.RateLimit.AdminIPRate = 300
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	if !viper.IsSet("events.enabled") {
		c.Events.Enabled = true
	}
	if c.Events.Output == "" {
		c.Events.Output = "file"
	}
	if c.Events.RetentionDays == 0 {
		c.Events.RetentionDays = 30
	}
	if c.Events.MaxFileSizeMB == 0 {
		c.Events.MaxFileSizeMB = 50
	}
	if c.Events.CacheSize == 0 {
		c.Events.CacheSize = 1000
	}
}
