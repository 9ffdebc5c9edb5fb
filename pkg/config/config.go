package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "EQUALIZE_"

type Config struct {
	Workers  int    `koanf:"workers"   validate:"min=1,max=256"`
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogJSON  bool   `koanf:"log_json"`
	Report   string `koanf:"report"`
	Redis    Redis  `koanf:"redis"`
}

type Redis struct {
	Addr          string        `koanf:"addr"           validate:"required,hostname_port"`
	Stream        string        `koanf:"stream"         validate:"required"`
	Group         string        `koanf:"group"          validate:"required"`
	BlockTimeout  time.Duration `koanf:"block_timeout"  validate:"gt=0"`
	ClaimIdle     time.Duration `koanf:"claim_idle"     validate:"gt=0"`
	ConsumerCount int           `koanf:"consumer_count" validate:"min=1,max=256"`
}

func Default() *Config {
	return &Config{
		Workers:  1,
		LogLevel: "warn",
		Redis: Redis{
			Addr:          "localhost:6379",
			Stream:        "equalize:jobs",
			Group:         "equalizers",
			BlockTimeout:  5 * time.Second,
			ClaimIdle:     30 * time.Second,
			ConsumerCount: 4,
		},
	}
}

// envKey maps EQUALIZE_REDIS_BLOCK_TIMEOUT to redis.block_timeout and
// EQUALIZE_LOG_LEVEL to log_level.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "redis_"); ok {
		return "redis." + rest
	}
	return key
}

// Load builds the configuration from defaults, then EQUALIZE_* environment
// variables, then overrides (flat koanf keys such as "redis.addr").
func Load(overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKey(key), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	cfg := &Config{}
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
