package config

import (
	"strings"
	"testing"
)

const (
	testAvatar = "0x000000000000000000000000000000000000a7a7"
	testTarget = "0x00000000000000000000000000000000000000a1"
	testModule = "0x0000000000000000000000000000000000001111"
)

// minimalValidConfig returns a configuration with one scoped role and one
// member that passes validation.
func minimalValidConfig() *Config {
	defaultRole := uint16(1)
	cfg := &Config{
		Modifier: ModifierConfig{Avatar: testAvatar},
		Roles: []RoleConfig{{
			ID: 1,
			Targets: []TargetConfig{{
				Address:   testTarget,
				Clearance: "function",
				Functions: []FunctionConfig{{
					Signature: "transfer(address,uint256)",
					Parameters: []ParameterConfig{{
						Index:      1,
						Type:       "static",
						Comparison: "lt",
						Values:     []string{"0x64"},
					}},
				}},
			}},
		}},
		Members: []MemberConfig{{Module: testModule, Roles: []uint16{1}, DefaultRole: &defaultRole}},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_MinimalValidConfig(t *testing.T) {
	t.Parallel()

	if err := minimalValidConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_EmptyConfigWithDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad avatar",
			mutate:  func(c *Config) { c.Modifier.Avatar = "0x1234" },
			wantErr: "Avatar must be a 0x-prefixed 20-byte address",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "LogLevel must be one of",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "not an address" },
			wantErr: "HTTPAddr must be a valid host:port",
		},
		{
			name:    "multisend depth too deep",
			mutate:  func(c *Config) { c.Modifier.MaxMultisendDepth = 9 },
			wantErr: "MaxMultisendDepth is out of range",
		},
		{
			name:    "admin key not argon2id",
			mutate:  func(c *Config) { c.Admin.KeyHash = "$2a$10$abcdef" },
			wantErr: "KeyHash must start with",
		},
		{
			name:    "rpc url without module",
			mutate:  func(c *Config) { c.RPC.URL = "http://localhost:8545" },
			wantErr: "ModuleAddress is required",
		},
		{
			name:    "bad selector",
			mutate:  func(c *Config) { c.Roles[0].Targets[0].Functions[0] = FunctionConfig{Selector: "a9059cbb"} },
			wantErr: "Selector must be a 0x-prefixed 4-byte selector",
		},
		{
			name:    "short selector",
			mutate:  func(c *Config) { c.Roles[0].Targets[0].Functions[0] = FunctionConfig{Selector: "0xa905"} },
			wantErr: "Selector must be a 0x-prefixed 4-byte selector",
		},
		{
			name: "selector and signature",
			mutate: func(c *Config) {
				c.Roles[0].Targets[0].Functions[0].Selector = "0xa9059cbb"
			},
			wantErr: "exactly one of selector or signature",
		},
		{
			name:    "neither selector nor signature",
			mutate:  func(c *Config) { c.Roles[0].Targets[0].Functions[0].Signature = "" },
			wantErr: "exactly one of selector or signature",
		},
		{
			name:    "unknown clearance",
			mutate:  func(c *Config) { c.Roles[0].Targets[0].Clearance = "all" },
			wantErr: "Clearance must be one of",
		},
		{
			name:    "functions on target clearance",
			mutate:  func(c *Config) { c.Roles[0].Targets[0].Clearance = "target" },
			wantErr: `functions require clearance "function"`,
		},
		{
			name: "duplicate role id",
			mutate: func(c *Config) {
				c.Roles = append(c.Roles, RoleConfig{ID: 1})
			},
			wantErr: "duplicate role id 1",
		},
		{
			name: "duplicate target ignores case",
			mutate: func(c *Config) {
				c.Roles[0].Targets = append(c.Roles[0].Targets, TargetConfig{
					Address:   "0x00000000000000000000000000000000000000A1",
					Clearance: "target",
				})
			},
			wantErr: "duplicate target",
		},
		{
			name:    "parameter index out of range",
			mutate:  func(c *Config) { c.Roles[0].Targets[0].Functions[0].Parameters[0].Index = 48 },
			wantErr: "Index is out of range",
		},
		{
			name: "duplicate parameter index",
			mutate: func(c *Config) {
				fn := &c.Roles[0].Targets[0].Functions[0]
				fn.Parameters = append(fn.Parameters, fn.Parameters[0])
			},
			wantErr: "duplicate parameter index 1",
		},
		{
			name: "ordering on dynamic",
			mutate: func(c *Config) {
				c.Roles[0].Targets[0].Functions[0].Parameters[0].Type = "dynamic"
			},
			wantErr: `comparison "lt" requires type static`,
		},
		{
			name: "eq with two values",
			mutate: func(c *Config) {
				p := &c.Roles[0].Targets[0].Functions[0].Parameters[0]
				p.Comparison = "eq"
				p.Values = []string{"0x01", "0x02"}
			},
			wantErr: "takes exactly one value",
		},
		{
			name: "no values",
			mutate: func(c *Config) {
				c.Roles[0].Targets[0].Functions[0].Parameters[0].Values = nil
			},
			wantErr: "Values is required",
		},
		{
			name: "value not hex",
			mutate: func(c *Config) {
				c.Roles[0].Targets[0].Functions[0].Parameters[0].Values = []string{"0xzz"}
			},
			wantErr: "must be hex encoded",
		},
		{
			name:    "bad member module",
			mutate:  func(c *Config) { c.Members[0].Module = "module" },
			wantErr: "Module must be a 0x-prefixed 20-byte address",
		},
		{
			name: "duplicate member",
			mutate: func(c *Config) {
				c.Members = append(c.Members, MemberConfig{Module: testModule})
			},
			wantErr: "duplicate module",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := minimalValidConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_OneOfTakesManyValues(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	p := &cfg.Roles[0].Targets[0].Functions[0].Parameters[0]
	p.Comparison = "oneof"
	p.Values = []string{"0x01", "0x02", "0x03"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
