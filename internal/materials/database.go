package materials

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed materials.yaml
var embeddedDatabase []byte

// Properties holds the resolved physical constants for one material.
type Properties struct {
	Name           string  `yaml:"-"`
	Density        float64 `yaml:"density"`
	Friction       float64 `yaml:"friction"`
	Restitution    float64 `yaml:"restitution"`
	LinearDamping  float64 `yaml:"linear_damping"`
	AngularDamping float64 `yaml:"angular_damping"`
	CollisionShape string  `yaml:"collision_shape"`
}

// FluidProperties holds constants for fluid-type materials.
type FluidProperties struct {
	Name                    string  `yaml:"-"`
	Density                 float64 `yaml:"density"`
	Viscosity               float64 `yaml:"viscosity"`
	TemperatureDifferential float64 `yaml:"temperature_differential"`
}

// MatchKind describes how a material name was resolved.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchFuzzy    MatchKind = "fuzzy"
	MatchFallback MatchKind = "fallback"
)

// Database is an immutable materials lookup table.
type Database struct {
	materials map[string]Properties
	fluids    map[string]FluidProperties
	fallback  Properties
}

type databaseFile struct {
	Materials map[string]Properties      `yaml:"materials"`
	Fluids    map[string]FluidProperties `yaml:"fluids"`
	Default   Properties                 `yaml:"default"`
}

// Embedded loads the database compiled into the binary.
func Embedded() (*Database, error) {
	return parse(embeddedDatabase)
}

// Load reads a database from a YAML file, falling back to the embedded
// database when path is empty.
func Load(path string) (*Database, error) {
	if strings.TrimSpace(path) == "" {
		return Embedded()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read materials database: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Database, error) {
	var file databaseFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse materials database: %w", err)
	}
	if len(file.Materials) == 0 {
		return nil, errors.New("materials database has no materials section")
	}
	if file.Default.Density <= 0 {
		return nil, errors.New("materials database has no usable default material")
	}

	db := &Database{
		materials: make(map[string]Properties, len(file.Materials)),
		fluids:    make(map[string]FluidProperties, len(file.Fluids)),
		fallback:  file.Default,
	}
	db.fallback.Name = "default"
	for name, props := range file.Materials {
		props.Name = name
		db.materials[name] = props
	}
	for name, props := range file.Fluids {
		props.Name = name
		db.fluids[name] = props
	}
	return db, nil
}

// Resolve maps a requested material name to properties. Unknown names return
// the fallback default with MatchFallback, never an error.
func (d *Database) Resolve(name string) (Properties, MatchKind) {
	normalized := Normalize(name)
	if props, ok := d.materials[normalized]; ok {
		return props, MatchExact
	}

	// Fuzzy: "wood" matches "wood_pine", "steel" matches "metal_steel".
	// Iterate sorted keys so resolution is deterministic.
	if normalized != "" {
		for _, key := range d.Names() {
			if strings.Contains(key, normalized) || strings.Contains(normalized, key) {
				return d.materials[key], MatchFuzzy
			}
		}
	}

	return d.fallback, MatchFallback
}

// ResolveFluid looks up a fluid material by normalized name.
func (d *Database) ResolveFluid(name string) (FluidProperties, bool) {
	props, ok := d.fluids[Normalize(name)]
	return props, ok
}

// Fallback returns the documented default material.
func (d *Database) Fallback() Properties {
	return d.fallback
}

// Names returns all material names in sorted order.
func (d *Database) Names() []string {
	names := make([]string, 0, len(d.materials))
	for name := range d.materials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FluidNames returns all fluid material names in sorted order.
func (d *Database) FluidNames() []string {
	names := make([]string, 0, len(d.fluids))
	for name := range d.fluids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many solid materials the database holds.
func (d *Database) Len() int {
	return len(d.materials)
}

// Get returns the properties for an exact material name.
func (d *Database) Get(name string) (Properties, bool) {
	props, ok := d.materials[Normalize(name)]
	return props, ok
}

// Categories groups material names by their leading family token for
// presentation purposes.
func (d *Database) Categories() map[string][]string {
	groups := make(map[string][]string)
	for _, name := range d.Names() {
		family := name
		if idx := strings.IndexByte(name, '_'); idx > 0 {
			family = name[:idx]
		}
		groups[family] = append(groups[family], name)
	}
	return groups
}

// Normalize lowercases a material name and joins words with underscores so
// "Pine Wood" and "pine_wood" resolve identically.
func Normalize(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "_")
}
