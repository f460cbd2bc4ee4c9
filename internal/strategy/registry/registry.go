// Package registry loads strategy registrations from a YAML file.
package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/strategy/momentum"
	"gopkg.in/yaml.v3"
)

// File is the strategies.yaml document
type File struct {
	Strategies []Entry `yaml:"strategies"`
}

// Entry is one strategy registration
type Entry struct {
	Name             string    `yaml:"name"`
	Type             string    `yaml:"type"`
	IntervalSeconds  int       `yaml:"interval_seconds"`
	MaxPositions     int       `yaml:"max_positions"`
	OrderQty         int64     `yaml:"order_qty"`
	Enabled          *bool     `yaml:"enabled"`
	ForceExitOnClose bool      `yaml:"force_exit_on_close"`
	Params           yaml.Node `yaml:"params"`
}

// Deps are the shared collaborators handed to strategy constructors
type Deps struct {
	Quotes strategy.QuoteFetcher
}

// Factory builds a strategy from its decoded registration
type Factory func(name string, params *yaml.Node, deps Deps) (strategy.Strategy, error)

var factories = map[string]Factory{
	"momentum": func(name string, params *yaml.Node, deps Deps) (strategy.Strategy, error) {
		var p momentum.Params
		if params.Kind != 0 {
			if err := params.Decode(&p); err != nil {
				return nil, fmt.Errorf("decode params: %w", err)
			}
		}
		return momentum.New(name, p, deps.Quotes)
	},
}

// LoadFile reads and builds every registration in path
func LoadFile(path string, deps Deps) ([]strategy.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategies file: %w", err)
	}
	return Parse(data, deps)
}

// Parse builds strategy configs from a YAML document
func Parse(data []byte, deps Deps) ([]strategy.Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}

	configs := make([]strategy.Config, 0, len(f.Strategies))
	for i, e := range f.Strategies {
		if e.Name == "" {
			return nil, fmt.Errorf("strategies[%d]: name is required", i)
		}
		factory, ok := factories[e.Type]
		if !ok {
			return nil, fmt.Errorf("strategy %s: unknown type %q", e.Name, e.Type)
		}

		s, err := factory(e.Name, &e.Params, deps)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", e.Name, err)
		}

		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}

		configs = append(configs, strategy.Config{
			Strategy:         s,
			Interval:         time.Duration(e.IntervalSeconds) * time.Second,
			MaxPositions:     e.MaxPositions,
			OrderQty:         e.OrderQty,
			Enabled:          enabled,
			ForceExitOnClose: e.ForceExitOnClose,
		})
	}
	return configs, nil
}
