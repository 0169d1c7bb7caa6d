// Package config layers application settings from defaults, an optional
// YAML file, environment variables and command-line flags, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel string `yaml:"embedModel" envconfig:"EMBED_MODEL"`
	Dim        int    `yaml:"embedDim" envconfig:"EMBED_DIM"`

	Backend   string `yaml:"backend"`
	Database  string `yaml:"database" envconfig:"DB_URL"`
	StorePath string `yaml:"storePath" split_words:"true"`

	CorpusRoot   string `yaml:"corpusRoot" split_words:"true"`
	ChunkSize    int    `yaml:"chunkSize" split_words:"true"`
	ChunkOverlap int    `yaml:"chunkOverlap" split_words:"true"`

	LogLevel string            `yaml:"logLevel" split_words:"true"`
	Port     int               `yaml:"port" split_words:"true"`
	Auth     AuthSpecification `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type AuthSpecification struct {
	Enabled   bool   `yaml:"enabled"`
	JwtSecret string `yaml:"jwtSecret" split_words:"true"`
}

const envPrefix = "DOCRAG"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/docrag.yaml",
				"./docrag.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	// Minimal sanity
	if strings.EqualFold(cfg.Backend, "pgvector") && strings.TrimSpace(cfg.Database) == "" {
		return Specification{}, fmt.Errorf("DOCRAG_DB_URL is required for the pgvector backend (env/file/flag)")
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Embedding provider (stub, gemini, openai)")
	fs.String("provider-api-key", c.APIKey, "Embedding provider API key")
	fs.String("embed-model", c.EmbedModel, "Embedding model name")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")

	fs.String("backend", c.Backend, "Vector store backend (sqlite, pgvector)")
	fs.String("db-url", c.Database, "Database URL for the pgvector backend")
	fs.String("store-path", c.StorePath, "Database file for the sqlite backend")

	fs.String("corpus-root", c.CorpusRoot, "Root directory of the document corpus")
	fs.Int("chunk-size", c.ChunkSize, "Target chunk length in characters")
	fs.Int("chunk-overlap", c.ChunkOverlap, "Characters shared between consecutive chunks")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require bearer tokens on API endpoints")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")

	// Used later for usage/help
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}

	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("embed-model", &c.EmbedModel)
	setInt("embed-dim", &c.Dim)

	setStr("backend", &c.Backend)
	setStr("db-url", &c.Database)
	setStr("store-path", &c.StorePath)

	setStr("corpus-root", &c.CorpusRoot)
	setInt("chunk-size", &c.ChunkSize)
	setInt("chunk-overlap", &c.ChunkOverlap)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)

	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
}

func setDefaults(c *Specification) {
	c.Provider = "stub"
	c.Dim = 0
	c.Backend = "sqlite"
	c.StorePath = "docrag.db"
	c.CorpusRoot = "./resources"
	c.ChunkSize = 1500
	c.ChunkOverlap = 200
	c.LogLevel = "info"
	c.Port = 8080
	c.Auth.Enabled = false
}
