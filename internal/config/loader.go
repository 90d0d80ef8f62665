package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper points viper at configFile, or at the first rolegate.yaml/.yml
// found in the standard locations, and enables ROLEGATE_* environment
// overrides.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No file anywhere: ReadInConfig reports ConfigFileNotFoundError,
		// which LoadConfig tolerates.
		viper.SetConfigName("rolegate")
		viper.SetConfigType("yaml")
	}

	// ROLEGATE_SERVER_HTTP_ADDR overrides server.http_addr.
	viper.SetEnvPrefix("ROLEGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches ".", ~/.rolegate and the system config directory
// for rolegate.yaml or rolegate.yml. The explicit extension keeps viper
// from matching the rolegate binary itself.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".rolegate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "rolegate"))
		}
	} else {
		paths = append(paths, "/etc/rolegate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first rolegate.yaml or rolegate.yml in
// paths, or "".
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "rolegate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the scalar keys for environment overrides.
// Roles and members are lists and only come from the file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.tls_cert_file")
	_ = viper.BindEnv("server.tls_key_file")

	_ = viper.BindEnv("modifier.avatar")
	_ = viper.BindEnv("modifier.target")
	_ = viper.BindEnv("modifier.multisend")
	_ = viper.BindEnv("modifier.max_multisend_depth")

	_ = viper.BindEnv("admin.key_hash")

	_ = viper.BindEnv("rpc.url")
	_ = viper.BindEnv("rpc.module_address")
	_ = viper.BindEnv("rpc.timeout")

	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.exec_rate")
	_ = viper.BindEnv("rate_limit.exec_burst")
	_ = viper.BindEnv("rate_limit.admin_ip_rate")
	_ = viper.BindEnv("rate_limit.cleanup_interval")
	_ = viper.BindEnv("rate_limit.max_ttl")

	_ = viper.BindEnv("events.enabled")
	_ = viper.BindEnv("events.output")
	_ = viper.BindEnv("events.dir")
	_ = viper.BindEnv("events.retention_days")
	_ = viper.BindEnv("events.max_file_size_mb")
	_ = viper.BindEnv("events.cache_size")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration, applies defaults and dev defaults,
// and validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration and applies defaults without dev
// defaults or validation, so CLI flags can still change DevMode.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or ""
// when running from environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
