// Package config loads the raw configuration tree consumed by
// core.CfgxConfigProvider. Layers merge in this order, last wins: YAML file,
// then TENDLC_ environment variables. An optional .env file is applied to the
// process environment before the env layer is read.
//
// Env keys map by stripping the prefix, lowercasing and turning "__" into a
// path separator: TENDLC_REGISTRY__BASE_URL sets registry.base_url.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"

	"github.com/goliatone/go-tendlc/core"
)

const DefaultEnvPrefix = "TENDLC_"

// numericSuffixes marks env keys whose values are decoded as integers.
var numericSuffixes = []string{"_seconds", "_millis", "_minutes", "_attempts", "_bytes", "_size"}

type Option func(*KoanfLoader)

// WithFile reads a YAML file. A missing file is an error unless optional.
func WithFile(path string, optional bool) Option {
	return func(l *KoanfLoader) {
		l.filePath = strings.TrimSpace(path)
		l.fileOptional = optional
	}
}

// WithDotEnv loads a .env file into the process environment when present.
func WithDotEnv(path string) Option {
	return func(l *KoanfLoader) {
		l.dotEnvPath = strings.TrimSpace(path)
	}
}

func WithEnvPrefix(prefix string) Option {
	return func(l *KoanfLoader) {
		l.envPrefix = prefix
	}
}

type KoanfLoader struct {
	filePath     string
	fileOptional bool
	dotEnvPath   string
	envPrefix    string
}

func NewKoanfLoader(opts ...Option) *KoanfLoader {
	l := &KoanfLoader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *KoanfLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil {
		return map[string]any{}, nil
	}
	if l.dotEnvPath != "" {
		if err := godotenv.Load(l.dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", l.dotEnvPath, err)
		}
	}

	k := koanf.New(".")
	if l.filePath != "" {
		if _, err := os.Stat(l.filePath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || !l.fileOptional {
				return nil, fmt.Errorf("config: read %s: %w", l.filePath, err)
			}
		} else if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", l.filePath, err)
		}
	}

	if l.envPrefix != "" {
		prefix := l.envPrefix
		if err := k.Load(env.ProviderWithValue(prefix, ".", func(key string, value string) (string, any) {
			return envKey(prefix, key), envValue(key, value)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: env overlay: %w", err)
		}
	}
	return k.Raw(), nil
}

// Provider wraps the loader for core.WithConfigProvider.
func (l *KoanfLoader) Provider() *core.CfgxConfigProvider {
	return core.NewCfgxConfigProvider(l)
}

func envKey(prefix string, key string) string {
	key = strings.TrimPrefix(key, prefix)
	return strings.ToLower(strings.ReplaceAll(key, "__", "."))
}

func envValue(key string, value string) any {
	trimmed := strings.TrimSpace(value)
	lowerKey := strings.ToLower(key)
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	for _, suffix := range numericSuffixes {
		if strings.HasSuffix(lowerKey, suffix) {
			if n, err := strconv.Atoi(trimmed); err == nil {
				return n
			}
		}
	}
	return value
}

var _ core.RawConfigLoader = (*KoanfLoader)(nil)
