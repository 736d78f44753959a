package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"exchange-core/internal/precise"
)

// Decimal reads a YAML scalar into a precise.Decimal. An empty or absent value
// stays unknown.
type Decimal struct {
	precise.Decimal
}

func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("decimal must be a scalar")
	}
	if value.Value == "" || value.Tag == "!!null" {
		d.Decimal = precise.Unknown
		return nil
	}
	dec, err := precise.Parse(value.Value)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", value.Value, err)
	}
	d.Decimal = dec
	return nil
}

func (d Decimal) MarshalYAML() (interface{}, error) {
	if !d.Known() {
		return nil, nil
	}
	return d.String(), nil
}
