package kafka

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"firestige.xyz/otus/internal/sink"
	"firestige.xyz/otus/internal/topology"
)

func init() {
	topology.RegisterSink("kafka", factory)
}

func factory(raw map[string]any) (sink.Sink, error) {
	var cfg Config
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("kafka sink: decode config: %w", err)
	}
	return New(cfg)
}
