// Package catalog holds the static world catalog — territories, cities,
// starting-unit budgets, DEFCON timings, and hacking-network topology —
// loaded once at server startup from a versioned configuration document.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/world"
)

// TerritoryDef is the catalog entry for one selectable territory.
type TerritoryDef struct {
	ID                string             `yaml:"id"`
	Name              string             `yaml:"name"`
	BoundaryPolygon   []geodesy.GeoPoint `yaml:"boundary_polygon"`
	Cities            []CityDef          `yaml:"cities"`
	StartingPositions []geodesy.GeoPoint `yaml:"starting_positions"`
}

// CityDef is the catalog entry for one city within a territory.
type CityDef struct {
	ID         string           `yaml:"id"`
	GeoPos     geodesy.GeoPoint `yaml:"geo_position"`
	Population int64            `yaml:"population"`
}

// HackingNodeDef and HackingLinkDef describe the static hacking topology.
type HackingNodeDef struct {
	ID     string           `yaml:"id"`
	GeoPos geodesy.GeoPoint `yaml:"geo_position"`
}

type HackingLinkDef struct {
	NodeA string `yaml:"node_a"`
	NodeB string `yaml:"node_b"`
}

// Document is the full versioned configuration document: the static
// catalog plus the tunable ruleset (world.Config).
type Document struct {
	Version      int                              `yaml:"version"`
	Territories  []TerritoryDef                   `yaml:"territories"`
	HackingNodes []HackingNodeDef                 `yaml:"hacking_nodes"`
	HackingLinks []HackingLinkDef                 `yaml:"hacking_links"`
	HackTypes    map[world.HackType]world.HackTypeParams `yaml:"hack_types"`
	Rules        world.Config                     `yaml:"rules"`
}

// ResolvedRules returns Rules with HackTypes merged in, since the ruleset
// struct excludes that map from its own YAML decoding (yaml:"-") to avoid
// bookkeeping the same data under two document sections.
func (d *Document) ResolvedRules() world.Config {
	rules := d.Rules
	rules.HackTypeParams = d.HackTypes
	return rules
}

// Load reads and parses a catalog document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: invalid %s: %w", path, err)
	}
	return &doc, nil
}

// Validate checks the structural invariants a session builder relies on:
// every city belongs to exactly one territory, territory and city ids are
// unique, and every hacking link references a declared node. Hacking node
// ids are not checked for duplicates.
func (d *Document) Validate() error {
	seenTerritories := make(map[string]bool)
	seenCities := make(map[string]bool)
	for _, t := range d.Territories {
		if t.ID == "" {
			return fmt.Errorf("territory with empty id")
		}
		if seenTerritories[t.ID] {
			return fmt.Errorf("duplicate territory id %q", t.ID)
		}
		seenTerritories[t.ID] = true
		for _, c := range t.Cities {
			if seenCities[c.ID] {
				return fmt.Errorf("duplicate city id %q", c.ID)
			}
			seenCities[c.ID] = true
		}
	}
	seenNodes := make(map[string]bool)
	for _, n := range d.HackingNodes {
		seenNodes[n.ID] = true
	}
	for _, l := range d.HackingLinks {
		if !seenNodes[l.NodeA] || !seenNodes[l.NodeB] {
			return fmt.Errorf("hacking link references unknown node (%s, %s)", l.NodeA, l.NodeB)
		}
	}
	return nil
}

// AvailableTerritories returns the catalog territories not yet claimed by
// any lobby member. Availability is derived, never stored.
func (d *Document) AvailableTerritories(taken map[string]bool) []TerritoryDef {
	var out []TerritoryDef
	for _, t := range d.Territories {
		if !taken[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// Territory looks up a single territory definition by id.
func (d *Document) Territory(id string) (TerritoryDef, bool) {
	for _, t := range d.Territories {
		if t.ID == id {
			return t, true
		}
	}
	return TerritoryDef{}, false
}
