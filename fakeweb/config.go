package fakeweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the configuration file looked up when
// LoadConfig is given a directory. fakeweb.yaml and fakeweb.yml are tried
// next.
const ConfigFileName = "fakeweb.json"

// Config is the on-disk schema of an interceptor configuration.
type Config struct {
	// AllowNetConnect defaults to true.
	AllowNetConnect *bool `json:"allow_net_connect,omitempty" yaml:"allow_net_connect,omitempty"`
	// MaxRedirects defaults to Unbounded.
	MaxRedirects *int `json:"max_redirects,omitempty" yaml:"max_redirects,omitempty"`
	// MatchMethod makes registrations method-sensitive.
	MatchMethod bool `json:"match_method,omitempty" yaml:"match_method,omitempty"`
	// Fixtures lists HAR files to register, relative to Root.
	Fixtures []string `json:"fixtures,omitempty" yaml:"fixtures,omitempty"`

	// Root is the directory of the configuration file.
	Root string `json:"-" yaml:"-"`
}

// LoadConfig reads the configuration at path. If path is a directory the
// configuration file is looked up inside it.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, fmt.Errorf("empty config path")
	}
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return Config{}, fmt.Errorf("stat %s: %w", clean, err)
	}
	if info.IsDir() {
		clean, err = findConfig(clean)
		if err != nil {
			return Config{}, err
		}
	}

	f, err := os.Open(clean)
	if err != nil {
		return Config{}, fmt.Errorf("open %s: %w", clean, err)
	}
	defer f.Close()

	var cfg Config
	switch strings.ToLower(filepath.Ext(clean)) {
	case ".yaml", ".yml":
		cfg, err = decodeYAML[Config](f)
	default:
		cfg, err = decodeJSON[Config](f)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", clean, err)
	}
	cfg.Root = filepath.Dir(clean)
	return cfg, nil
}

// Options returns the interceptor options described by cfg.
func (cfg Config) Options() []Option {
	var opts []Option
	if cfg.AllowNetConnect != nil {
		opts = append(opts, WithAllowNetConnect(*cfg.AllowNetConnect))
	}
	if cfg.MaxRedirects != nil {
		opts = append(opts, WithMaxRedirects(*cfg.MaxRedirects))
	}
	if cfg.MatchMethod {
		opts = append(opts, WithMethodMatching())
	}
	return opts
}

// NewFromConfig creates an interceptor from cfg and registers its fixtures.
// opts are applied after the options of cfg.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Interceptor, error) {
	i := New(append(cfg.Options(), opts...)...)
	for _, fixture := range cfg.Fixtures {
		path := fixture
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Root, path)
		}
		if err := i.LoadHAR(ctx, path); err != nil {
			return nil, err
		}
	}
	return i, nil
}

func findConfig(dir string) (string, error) {
	for _, name := range []string{ConfigFileName, "fakeweb.yaml", "fakeweb.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s in %s: %w", ConfigFileName, dir, os.ErrNotExist)
}

func decodeJSON[Body any](r io.Reader) (Body, error) {
	var zero Body

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	var body Body
	if err := decoder.Decode(&body); err != nil {
		return zero, err
	}
	var extra json.RawMessage
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return zero, fmt.Errorf("unexpected extra JSON content")
	}
	return body, nil
}

func decodeYAML[Body any](r io.Reader) (Body, error) {
	var zero Body

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var body Body
	if err := decoder.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return zero, err
	}
	return body, nil
}
