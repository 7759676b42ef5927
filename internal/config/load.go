package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"certagent/internal/errors"
)

// FileName is the config file looked up in the home directory.
const FileName = "config.yaml"

func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CERTAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads <home>/config.yaml if present, applies CERTAGENT_* environment
// overrides and validates the result. A missing config file is not an error.
func Load(ctx context.Context, home string) (*Config, error) {
	path := ""
	if home != "" {
		path = filepath.Join(home, FileName)
	}
	cfg, err := LoadFromFile(ctx, path)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().
		Str("component", "config").
		Str("replica.url", cfg.Replica.URL).
		Str("storage.backend", cfg.Storage.Backend).
		Str("polling.profile", cfg.Polling.Profile).
		Msg("configuration loaded")
	return cfg, nil
}

// LoadFromFile loads configuration from path. An empty or missing path
// yields defaults plus environment overrides.
func LoadFromFile(_ context.Context, path string) (*Config, error) {
	v := newViperInstance()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound) || stderrors.Is(err, os.ErrNotExist)
}

func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}
