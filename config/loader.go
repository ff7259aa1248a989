package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileSystem is the file access the loader needs. Tests swap it out.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// OSFileSystem reads the real filesystem. LoadEnv never overrides variables
// already set in the environment.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) LoadEnv(path string) error { return godotenv.Load(path) }

// LoaderConfig collects the LoaderOptions.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
	// Aliases maps flat keys, as derived from env var names, onto nested keys.
	Aliases map[string]string
	// EnvPrefixes limits env binding to these prefixes plus alias names.
	// Empty binds every variable.
	EnvPrefixes []string
}

type LoaderOption func(*LoaderConfig)

func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile names the YAML file. A named file must exist.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile names the dotenv file. A named file must exist.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

func WithAliases(aliases map[string]string) LoaderOption {
	return func(lc *LoaderConfig) { lc.Aliases = aliases }
}

func WithEnvPrefixes(prefixes ...string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvPrefixes = prefixes }
}

// source is a config or env file: either named by the caller or the first
// existing search candidate.
type source struct {
	path     string
	explicit bool
}

func findSource(fs FileSystem, explicit string, candidates ...string) source {
	if explicit != "" {
		return source{path: explicit, explicit: true}
	}
	for _, c := range candidates {
		if fs.Exists(c) {
			return source{path: c}
		}
	}
	return source{}
}

var errMissing = errors.New("not found")

// usable reports whether the source should be read. A missing explicit
// file is an error; a missing searched file is skipped.
func (s source) usable(fs FileSystem) (bool, error) {
	switch {
	case s.path == "":
		return false, nil
	case fs.Exists(s.path):
		return true, nil
	case s.explicit:
		return false, fmt.Errorf("%s %w", s.path, errMissing)
	default:
		return false, nil
	}
}

func configCandidates(service string) []string {
	return []string{
		"./cmd/" + service + "/config.yml",
		"./config/config.yml",
		"./config.yml",
		"/etc/" + service + "/config.yml",
	}
}

func envCandidates(service string) []string {
	return []string{".env." + service, ".env"}
}

// LoadConfig fills cfg from, in rising precedence: the YAML config file,
// then environment variables, including those a dotenv file adds.
// Env names map onto keys by lower-casing and trying every split of
// underscores into dots, so MODEL_BEAM_SIZE can set model.beam_size.
func LoadConfig(serviceName string, cfg any, opts ...LoaderOption) error {
	lc := LoaderConfig{FileSystem: OSFileSystem{}}
	for _, opt := range opts {
		opt(&lc)
	}
	fs := lc.FileSystem

	v := viper.New()
	for alias, key := range lc.Aliases {
		v.RegisterAlias(alias, key)
	}

	cfgFile := findSource(fs, lc.ConfigFile, configCandidates(serviceName)...)
	if ok, err := cfgFile.usable(fs); err != nil {
		return fmt.Errorf("config file %w", err)
	} else if ok {
		v.SetConfigFile(cfgFile.path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", cfgFile.path, err)
		}
	}

	envFile := findSource(fs, lc.EnvFile, envCandidates(serviceName)...)
	if ok, err := envFile.usable(fs); err != nil {
		return fmt.Errorf("env file %w", err)
	} else if ok {
		if err := fs.LoadEnv(envFile.path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile.path, err)
		}
	}

	v.AutomaticEnv()
	bindEnv(v, os.Environ(), lc)

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for service %s: %w", serviceName, err)
	}
	return nil
}

func bindEnv(v *viper.Viper, environ []string, lc LoaderConfig) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !shouldBind(name, lc) {
			continue
		}
		for _, key := range envKeyVariants(name) {
			v.Set(key, value)
		}
	}
}

func shouldBind(name string, lc LoaderConfig) bool {
	if len(lc.EnvPrefixes) == 0 {
		return true
	}
	if _, ok := lc.Aliases[strings.ToLower(name)]; ok {
		return true
	}
	return slices.ContainsFunc(lc.EnvPrefixes, func(p string) bool {
		return strings.HasPrefix(name, p)
	})
}

// envKeyVariants lists the keys an env var name may address:
//
//	MODEL_BEAM_SIZE -> model_beam_size, model.beam.size, model.beam_size
func envKeyVariants(name string) []string {
	flat := strings.ToLower(name)
	parts := strings.Split(flat, "_")
	variants := []string{flat}
	if len(parts) == 1 {
		return variants
	}
	variants = append(variants, strings.Join(parts, "."))
	for i := 1; i < len(parts)-1; i++ {
		variants = append(variants, strings.Join(parts[:i], ".")+"."+strings.Join(parts[i:], "_"))
	}
	return variants
}
