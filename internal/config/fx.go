package config

import (
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(provide),
	fx.Provide(func(cfg Config) *CoreConfig { return cfg.Core }),
)

func provide() (Config, error) {
	v, err := newViper()
	if err != nil {
		return Config{}, err
	}
	cfg, err := fromViper(v)
	if err != nil {
		return Config{}, err
	}

	if v.ConfigFileUsed() != "" {
		Watch(v, cfg.Core, nil)
	}
	return cfg, nil
}
