package kafka

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"firestige.xyz/otus/internal/source"
	"firestige.xyz/otus/internal/topology"
)

func init() {
	topology.RegisterSource("kafka", factory)
}

func factory(raw map[string]any) (source.Source, error) {
	var cfg Config
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("kafka source: decode config: %w", err)
	}
	return New(cfg)
}
