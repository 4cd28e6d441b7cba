package catalog

import (
	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/world"
)

// Default returns a small built-in catalog document so the server can run
// without an operator-supplied configuration file, mirroring the source's
// hardcoded planet table (game.InitPlanets) but expressed as territories,
// cities, and a hacking network instead of a single-galaxy planet list.
func Default() *Document {
	return &Document{
		Version: 1,
		Territories: []TerritoryDef{
			{
				ID:   "north-atlantic",
				Name: "North Atlantic Alliance",
				BoundaryPolygon: []geodesy.GeoPoint{
					{LatDeg: 30, LonDeg: -90}, {LatDeg: 60, LonDeg: -90},
					{LatDeg: 60, LonDeg: 10}, {LatDeg: 30, LonDeg: 10},
				},
				Cities: []CityDef{
					{ID: "new-york", GeoPos: geodesy.GeoPoint{LatDeg: 40.71, LonDeg: -74.0}, Population: 8_400_000},
					{ID: "washington", GeoPos: geodesy.GeoPoint{LatDeg: 38.9, LonDeg: -77.0}, Population: 700_000},
					{ID: "london", GeoPos: geodesy.GeoPoint{LatDeg: 51.5, LonDeg: -0.1}, Population: 9_000_000},
				},
				StartingPositions: []geodesy.GeoPoint{
					{LatDeg: 39, LonDeg: -95}, {LatDeg: 41, LonDeg: -87},
				},
			},
			{
				ID:   "eurasia",
				Name: "Eurasian Pact",
				BoundaryPolygon: []geodesy.GeoPoint{
					{LatDeg: 40, LonDeg: 20}, {LatDeg: 70, LonDeg: 20},
					{LatDeg: 70, LonDeg: 140}, {LatDeg: 40, LonDeg: 140},
				},
				Cities: []CityDef{
					{ID: "moscow", GeoPos: geodesy.GeoPoint{LatDeg: 55.75, LonDeg: 37.6}, Population: 12_500_000},
					{ID: "beijing", GeoPos: geodesy.GeoPoint{LatDeg: 39.9, LonDeg: 116.4}, Population: 21_500_000},
					{ID: "novosibirsk", GeoPos: geodesy.GeoPoint{LatDeg: 55.0, LonDeg: 82.9}, Population: 1_600_000},
				},
				StartingPositions: []geodesy.GeoPoint{
					{LatDeg: 56, LonDeg: 38}, {LatDeg: 60, LonDeg: 90},
				},
			},
			{
				ID:   "asia-pacific",
				Name: "Asia-Pacific Coalition",
				BoundaryPolygon: []geodesy.GeoPoint{
					{LatDeg: -10, LonDeg: 95}, {LatDeg: 45, LonDeg: 95},
					{LatDeg: 45, LonDeg: 150}, {LatDeg: -10, LonDeg: 150},
				},
				Cities: []CityDef{
					{ID: "tokyo", GeoPos: geodesy.GeoPoint{LatDeg: 35.7, LonDeg: 139.7}, Population: 14_000_000},
					{ID: "seoul", GeoPos: geodesy.GeoPoint{LatDeg: 37.6, LonDeg: 127.0}, Population: 9_700_000},
					{ID: "sydney", GeoPos: geodesy.GeoPoint{LatDeg: -33.9, LonDeg: 151.2}, Population: 5_300_000},
				},
				StartingPositions: []geodesy.GeoPoint{
					{LatDeg: 36, LonDeg: 138}, {LatDeg: 38, LonDeg: 127},
				},
			},
			{
				ID:   "south-america",
				Name: "Southern Cone Union",
				BoundaryPolygon: []geodesy.GeoPoint{
					{LatDeg: -35, LonDeg: -75}, {LatDeg: 5, LonDeg: -75},
					{LatDeg: 5, LonDeg: -35}, {LatDeg: -35, LonDeg: -35},
				},
				Cities: []CityDef{
					{ID: "sao-paulo", GeoPos: geodesy.GeoPoint{LatDeg: -23.5, LonDeg: -46.6}, Population: 12_300_000},
					{ID: "buenos-aires", GeoPos: geodesy.GeoPoint{LatDeg: -34.6, LonDeg: -58.4}, Population: 3_000_000},
				},
				StartingPositions: []geodesy.GeoPoint{
					{LatDeg: -15, LonDeg: -47},
				},
			},
		},
		HackingNodes: []HackingNodeDef{
			{ID: "node-nyc", GeoPos: geodesy.GeoPoint{LatDeg: 40.7, LonDeg: -74.0}},
			{ID: "node-london", GeoPos: geodesy.GeoPoint{LatDeg: 51.5, LonDeg: -0.1}},
			{ID: "node-moscow", GeoPos: geodesy.GeoPoint{LatDeg: 55.75, LonDeg: 37.6}},
			{ID: "node-tokyo", GeoPos: geodesy.GeoPoint{LatDeg: 35.7, LonDeg: 139.7}},
			{ID: "node-saopaulo", GeoPos: geodesy.GeoPoint{LatDeg: -23.5, LonDeg: -46.6}},
			{ID: "node-singapore", GeoPos: geodesy.GeoPoint{LatDeg: 1.35, LonDeg: 103.8}},
		},
		HackingLinks: []HackingLinkDef{
			{NodeA: "node-nyc", NodeB: "node-london"},
			{NodeA: "node-london", NodeB: "node-moscow"},
			{NodeA: "node-london", NodeB: "node-singapore"},
			{NodeA: "node-singapore", NodeB: "node-tokyo"},
			{NodeA: "node-singapore", NodeB: "node-saopaulo"},
			{NodeA: "node-moscow", NodeB: "node-tokyo"},
			{NodeA: "node-nyc", NodeB: "node-saopaulo"},
		},
		HackTypes: map[world.HackType]world.HackTypeParams{
			world.HackBlindRadar:    {ProgressPerTick: 0.02, TraceBaseline: 0.01, TracePerHop: 0.004, EffectTTLMs: 20_000},
			world.HackDelaySilo:     {ProgressPerTick: 0.015, TraceBaseline: 0.012, TracePerHop: 0.005, EffectTTLMs: 15_000},
			world.HackRevealTargets: {ProgressPerTick: 0.03, TraceBaseline: 0.008, TracePerHop: 0.003, EffectTTLMs: 30_000},
		},
		Rules: world.Config{
			TickRateHz:              10,
			MaxSilosPerPlayer:       6,
			StartingMissileAmmo:     10,
			StartingInterceptorAmmo: 10,
			MissileSpeedKmPerSec:    7.0,
			MinFlightDurationMs:     8_000,
			BlastRadiusKm:           180,
			DamageCoeff:             0.9,
			DefconDurationsMs: map[int]int64{
				5: 60_000,
				4: 45_000,
				3: 45_000,
				2: 30_000,
				1: 180_000,
			},
			IdleLobbyReapMs: 10 * 60_000,
		},
	}
}
