package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"chainScope/internal/stacks"
)

// Environment gates destructive operations.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	PGHost     string
	PGPort     uint16
	PGDatabase string
	PGUser     string
	PGPassword string
	PGSchema   string

	NodeEnv Environment
	Chain   stacks.Chain

	Source            string
	Checkpoint        string
	CheckpointEnabled bool
	DecodeErrors      string
	MaxRetries        int
	RetryBackoff      time.Duration
	SubscriberBuffer  int
	MigrationsDir     string
	LogLevel          string
}

// Environment variables recognized alongside the flag names.
var envBindings = map[string]string{
	"pg-host":     "PG_HOST",
	"pg-port":     "PG_PORT",
	"pg-database": "PG_DATABASE",
	"pg-user":     "PG_USER",
	"pg-password": "PG_PASSWORD",
	"pg-schema":   "PG_SCHEMA",
	"node-env":    "NODE_ENV",
	"chain-id":    "CHAIN_ID",
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIDECAR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	v.SetDefault("pg-host", "localhost")
	v.SetDefault("pg-port", 5432)
	v.SetDefault("pg-database", "postgres")
	v.SetDefault("pg-user", "postgres")
	v.SetDefault("pg-schema", "public")
	v.SetDefault("node-env", string(EnvDevelopment))
	v.SetDefault("chain-id", string(stacks.ChainMainnet))
	v.SetDefault("source", "-")
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("decode-errors", "./data/decode_errors.jsonl")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("subscriber-buffer", 256)
	v.SetDefault("migrations-dir", "./migrations")
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

	nodeEnv, err := parseEnvironment(v.GetString("node-env"))
	if err != nil {
		return Config{}, err
	}
	chain, err := stacks.ParseChain(v.GetString("chain-id"))
	if err != nil {
		return Config{}, err
	}

	port := v.GetUint32("pg-port")
	if port == 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid pg port: %d", port)
	}

	cfg := Config{
		PGHost:            v.GetString("pg-host"),
		PGPort:            uint16(port),
		PGDatabase:        v.GetString("pg-database"),
		PGUser:            v.GetString("pg-user"),
		PGPassword:        v.GetString("pg-password"),
		PGSchema:          v.GetString("pg-schema"),
		NodeEnv:           nodeEnv,
		Chain:             chain,
		Source:            v.GetString("source"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		DecodeErrors:      v.GetString("decode-errors"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		SubscriberBuffer:  v.GetInt("subscriber-buffer"),
		MigrationsDir:     v.GetString("migrations-dir"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

func parseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvProduction, EnvDevelopment, EnvTest:
		return Environment(s), nil
	default:
		return "", fmt.Errorf("unknown node env: %q", s)
	}
}

// IsProduction reports whether destructive operations must stay gated.
func (c Config) IsProduction() bool {
	return c.NodeEnv == EnvProduction
}

// DSN renders the Postgres connection string, including the search path.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PGHost, c.PGPort),
		Path:   "/" + c.PGDatabase,
	}
	if c.PGPassword != "" {
		u.User = url.UserPassword(c.PGUser, c.PGPassword)
	} else if c.PGUser != "" {
		u.User = url.User(c.PGUser)
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	if c.PGSchema != "" {
		q.Set("search_path", c.PGSchema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
