package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
// Every external service identity is configuration; nothing about a
// particular network is compiled in.
type Config struct {
	Network          string
	RPCURL           string
	ProgramID        string
	RestakingProgram string
	RestakingPool    string
	RestakingMint    string
	AVSProgram       string

	Store     string
	StateFile string
	PGDSN     string
	Journal   string
	Keypair   string

	Conversion      string
	ConversionNum   uint64
	ConversionDen   uint64
	MaxRetries      int
	RetryBackoff    time.Duration
	LogLevel        string
	KnownAVSTargets []string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LRTPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("network", "local")
	v.SetDefault("store", "memory")
	v.SetDefault("state-file", "./data/state.json")
	v.SetDefault("journal", "./data/operations.jsonl")
	v.SetDefault("conversion", "identity")
	v.SetDefault("conversion-num", uint64(1))
	v.SetDefault("conversion-den", uint64(1))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Network:          v.GetString("network"),
		RPCURL:           v.GetString("rpc"),
		ProgramID:        v.GetString("program-id"),
		RestakingProgram: v.GetString("restaking-program"),
		RestakingPool:    v.GetString("restaking-pool"),
		RestakingMint:    v.GetString("restaking-mint"),
		AVSProgram:       v.GetString("avs-program"),
		Store:            v.GetString("store"),
		StateFile:        v.GetString("state-file"),
		PGDSN:            v.GetString("pg-dsn"),
		Journal:          v.GetString("journal"),
		Keypair:          v.GetString("keypair"),
		Conversion:       v.GetString("conversion"),
		ConversionNum:    v.GetUint64("conversion-num"),
		ConversionDen:    v.GetUint64("conversion-den"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		LogLevel:         v.GetString("log-level"),
		KnownAVSTargets:  getStringSlice(v, "avs-target"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that do not depend on the command being run.
func (c Config) Validate() error {
	switch c.Store {
	case "memory":
	case "postgres":
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.ProgramID == "" {
		return fmt.Errorf("program-id is required")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
