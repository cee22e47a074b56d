package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// VehicleParams are the physical parameters of a vehicle model.
type VehicleParams struct {
	Length float64 `yaml:"length"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`

	// Optional, informational.
	FrontEdgeToCenter float64 `yaml:"front_edge_to_center,omitempty"`
	BackEdgeToCenter  float64 `yaml:"back_edge_to_center,omitempty"`
	MaxSteerAngle     float64 `yaml:"max_steer_angle,omitempty"`
}

// VehicleRegistry maps vehicle model names to their parameters.
type VehicleRegistry struct {
	models map[string]VehicleParams
}

var builtinVehicles = map[string]VehicleParams{
	"lincoln_mkz": {
		Length:            4.933,
		Width:             2.11,
		Height:            1.48,
		FrontEdgeToCenter: 3.89,
		BackEdgeToCenter:  1.043,
		MaxSteerAngle:     8.20304748437,
	},
}

// NewVehicleRegistry returns a registry seeded with the built-in models.
func NewVehicleRegistry() *VehicleRegistry {
	r := &VehicleRegistry{models: make(map[string]VehicleParams, len(builtinVehicles))}
	for name, p := range builtinVehicles {
		r.models[name] = p
	}
	return r
}

// LoadYAML adds or replaces models from a YAML file of the form
//
//	vehicles:
//	  my_car: {length: 4.5, width: 1.9, height: 1.5}
func (r *VehicleRegistry) LoadYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read vehicle params: %w", err)
	}
	var doc struct {
		Vehicles map[string]VehicleParams `yaml:"vehicles"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse vehicle params %s: %w", path, err)
	}
	for name, p := range doc.Vehicles {
		if p.Length <= 0 || p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("vehicle %q: length, width and height must be positive", name)
		}
		r.models[name] = p
	}
	return nil
}

// Lookup returns the parameters for model.
func (r *VehicleRegistry) Lookup(model string) (VehicleParams, error) {
	p, ok := r.models[model]
	if !ok {
		return VehicleParams{}, fmt.Errorf("unknown vehicle model %q (known: %v)", model, r.Models())
	}
	return p, nil
}

// Models returns the known model names, sorted.
func (r *VehicleRegistry) Models() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveVehicle looks up the configured vehicle, loading the optional
// parameter file first.
func (c *ServiceConfig) ResolveVehicle() (VehicleParams, error) {
	reg := NewVehicleRegistry()
	if path := c.GetVehicleParamsPath(); path != "" {
		if err := reg.LoadYAML(path); err != nil {
			return VehicleParams{}, err
		}
	}
	return reg.Lookup(c.GetVehicleModel())
}
