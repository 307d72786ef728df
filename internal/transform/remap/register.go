package remap

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"firestige.xyz/otus/internal/transform"
	"firestige.xyz/otus/internal/topology"
)

func init() {
	topology.RegisterTransform("remap", factory)
}

func factory(raw map[string]any) (transform.Transform, error) {
	var cfg Config
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return transform.Transform{}, fmt.Errorf("remap: decode config: %w", err)
	}
	ops, err := BuildOps(cfg)
	if err != nil {
		return transform.Transform{}, err
	}
	return transform.NewFunction(New(ops...)), nil
}
