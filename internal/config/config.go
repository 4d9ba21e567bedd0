package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"github.com/Shopify/ejson"
	"github.com/caarlos0/env/v6"
	"github.com/ghodss/yaml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	// ConfigEnvVar may hold the whole YAML config inline.
	ConfigEnvVar = "TALLYSYNC_CONFIG"

	// EJSONKeyFileEnvVar points to a file holding the ejson private key.
	EJSONKeyFileEnvVar = "TALLYSYNC_EJSON_KEY_FILE"

	defaultEJSONKeyDir = "/opt/ejson/keys"
)

// Options locates the configuration sources. Every field is optional.
type Options struct {
	ConfigFile  string
	SecretsFile string
	DotEnvFile  string
	EJSONKeyDir string
}

// Load reads .env, YAML config, environment overrides and secrets. Missing
// files are skipped; malformed ones are errors.
func Load(opts Options, log zerolog.Logger) (*Config, *Secrets, error) {
	if opts.DotEnvFile != "" {
		if err := godotenv.Load(opts.DotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("Load: reading %s: %w", opts.DotEnvFile, err)
		}
	}

	cfg, err := readConfig(opts.ConfigFile, log)
	if err != nil {
		return nil, nil, err
	}

	secrets, err := readSecrets(opts, log)
	if err != nil {
		return nil, nil, err
	}

	return cfg, secrets, nil
}

func readConfig(filename string, log zerolog.Logger) (*Config, error) {
	cfg := Config{}

	var raw []byte
	if rawEnv := os.Getenv(ConfigEnvVar); rawEnv != "" {
		log.Debug().Str("env", ConfigEnvVar).Msg("Reading config from environment variable")
		raw = []byte(rawEnv)
	} else if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Debug().Str("file", filename).Msg("Config file not found, using defaults")
		case err != nil:
			return nil, fmt.Errorf("readConfig: %w", err)
		default:
			raw = data
		}
	}

	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("readConfig: parsing yaml: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("readConfig: parsing env: %w", err)
	}

	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("readConfig: applying defaults: %w", err)
	}

	return &cfg, nil
}

// readSecrets merges ejson secrets under environment secrets. Either source
// may be absent.
func readSecrets(opts Options, log zerolog.Logger) (*Secrets, error) {
	envSecrets := &Secrets{}
	if err := env.Parse(envSecrets); err != nil {
		return nil, fmt.Errorf("readSecrets: parsing env: %w", err)
	}

	if opts.SecretsFile == "" {
		return envSecrets, nil
	}

	ejsonSecrets, err := readEjsonSecrets(opts.SecretsFile, opts.EJSONKeyDir)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("file", opts.SecretsFile).Msg("Secrets file not found, using environment only")
		return envSecrets, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("file", opts.SecretsFile).Msg("Failed to decrypt ejson secrets, using environment only")
		return envSecrets, nil
	}

	if err := mergo.Merge(envSecrets, *ejsonSecrets); err != nil {
		return nil, fmt.Errorf("readSecrets: merging secrets: %w", err)
	}
	return envSecrets, nil
}

func readEjsonSecrets(filename, keyDir string) (*Secrets, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, err
	}

	if keyDir == "" {
		keyDir = defaultEJSONKeyDir
	}

	var privateKey string
	if keyFile := os.Getenv(EJSONKeyFileEnvVar); keyFile != "" {
		key, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("readEjsonSecrets: reading key file: %w", err)
		}
		privateKey = strings.TrimSpace(string(key))
	}

	raw, err := ejson.DecryptFile(filename, keyDir, privateKey)
	if err != nil {
		return nil, fmt.Errorf("readEjsonSecrets: %w", err)
	}

	secrets := &Secrets{}
	if err := json.Unmarshal(raw, secrets); err != nil {
		return nil, fmt.Errorf("readEjsonSecrets: %w", err)
	}
	return secrets, nil
}
