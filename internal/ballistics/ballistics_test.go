package ballistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/world"
)

func newTestSession() *world.GameSession {
	cfg := world.Config{
		MissileSpeedKmPerSec: 7,
		MinFlightDurationMs:  8_000,
		BlastRadiusKm:        180,
		DamageCoeff:          0.9,
		DefconDurationsMs:    map[int]int64{5: 1, 4: 1, 3: 1, 2: 1, 1: 1},
	}
	gs := world.NewGameSession("s1", cfg)
	gs.DefconLevel = 1
	gs.Players["attacker"] = &world.Player{ID: "attacker"}
	gs.Players["defender"] = &world.Player{ID: "defender", PopulationRemaining: 1_000_000}
	gs.Territories["t2"] = &world.Territory{ID: "t2", OwnerID: "defender"}
	return gs
}

func TestLaunchICBMRequiresDefcon1(t *testing.T) {
	gs := newTestSession()
	gs.DefconLevel = 3
	gs.Buildings["silo1"] = &world.Building{ID: "silo1", OwnerID: "attacker", Type: world.BuildingSilo,
		Silo: &world.SiloData{Mode: world.SiloAttack, MissileAmmo: 2}}
	sim := New(gs, 1)

	_, _, err := sim.LaunchICBM("attacker", "silo1", geodesy.GeoPoint{LatDeg: 1, LonDeg: 1}, 0)
	assert.Error(t, err)
}

func TestLaunchICBMDecrementsAmmoAndFloorsDuration(t *testing.T) {
	gs := newTestSession()
	gs.Buildings["silo1"] = &world.Building{ID: "silo1", OwnerID: "attacker", Type: world.BuildingSilo,
		GeoPosition: geodesy.GeoPoint{LatDeg: 0, LonDeg: 0},
		Silo:        &world.SiloData{Mode: world.SiloAttack, MissileAmmo: 1}}
	sim := New(gs, 1)

	m, evt, err := sim.LaunchICBM("attacker", "silo1", geodesy.GeoPoint{LatDeg: 0.001, LonDeg: 0.001}, 0)
	require.NoError(t, err)
	require.NotNil(t, evt)
	assert.Equal(t, 0, gs.Buildings["silo1"].Silo.MissileAmmo)
	assert.Equal(t, int64(8_000), m.FlightDurationMs)
}

func TestLaunchICBMRefusesWithoutOwnership(t *testing.T) {
	gs := newTestSession()
	gs.Buildings["silo1"] = &world.Building{ID: "silo1", OwnerID: "attacker", Type: world.BuildingSilo,
		Silo: &world.SiloData{Mode: world.SiloAttack, MissileAmmo: 1}}
	sim := New(gs, 1)

	_, _, err := sim.LaunchICBM("defender", "silo1", geodesy.GeoPoint{}, 0)
	assert.Error(t, err)
	assert.Equal(t, 1, gs.Buildings["silo1"].Silo.MissileAmmo)
}

func TestLaunchICBMRefusesExhaustedAmmo(t *testing.T) {
	gs := newTestSession()
	gs.Buildings["silo1"] = &world.Building{ID: "silo1", OwnerID: "attacker", Type: world.BuildingSilo,
		Silo: &world.SiloData{Mode: world.SiloAttack, MissileAmmo: 0}}
	sim := New(gs, 1)

	_, _, err := sim.LaunchICBM("attacker", "silo1", geodesy.GeoPoint{}, 0)
	assert.Error(t, err)
}

func TestAdvanceMissilesDetonatesAtProgressOne(t *testing.T) {
	gs := newTestSession()
	m := &world.Missile{ID: "m1", Kind: world.MissileICBM, FlightDurationMs: 1000,
		LaunchGeo: geodesy.GeoPoint{}, TargetGeo: geodesy.GeoPoint{LatDeg: 1, LonDeg: 1}}
	gs.Missiles["m1"] = m
	sim := New(gs, 1)

	sim.AdvanceMissiles(1200)
	assert.True(t, m.Detonated)
	assert.Equal(t, 1.0, m.Progress)
}

func TestRemoveResolvedMissiles(t *testing.T) {
	gs := newTestSession()
	gs.Missiles["live"] = &world.Missile{ID: "live"}
	gs.Missiles["dead"] = &world.Missile{ID: "dead", Detonated: true}
	sim := New(gs, 1)

	removed := sim.RemoveResolvedMissiles()
	assert.ElementsMatch(t, []string{"dead"}, removed)
	_, stillThere := gs.Missiles["live"]
	assert.True(t, stillThere)
}

func TestFindInterceptPointWithinSearchBounds(t *testing.T) {
	icbm := &world.Missile{
		LaunchGeo:        geodesy.GeoPoint{LatDeg: 0, LonDeg: 0},
		TargetGeo:        geodesy.GeoPoint{LatDeg: 10, LonDeg: 10},
		FlightDurationMs: 600_000,
		Progress:         0.0,
		ApexAltitudeKm:   300,
	}
	point, ok := FindInterceptPoint(icbm, geodesy.GeoPoint{LatDeg: 0, LonDeg: 0}, InterceptorSpeedKmPerSec, 600)
	require.True(t, ok)
	assert.GreaterOrEqual(t, point.Progress, 0.15)
	assert.LessOrEqual(t, point.Progress, 0.85)
}

func TestFindInterceptPointFailsWhenTooCloseToEnd(t *testing.T) {
	icbm := &world.Missile{
		LaunchGeo:        geodesy.GeoPoint{LatDeg: 0, LonDeg: 0},
		TargetGeo:        geodesy.GeoPoint{LatDeg: 10, LonDeg: 10},
		FlightDurationMs: 600_000,
		Progress:         0.9, // already past the search window
		ApexAltitudeKm:   300,
	}
	_, ok := FindInterceptPoint(icbm, geodesy.GeoPoint{LatDeg: 0, LonDeg: 0}, InterceptorSpeedKmPerSec, 600)
	assert.False(t, ok)
}

func TestResolveDetonationAppliesFalloffDamage(t *testing.T) {
	gs := newTestSession()
	gs.Cities["c1"] = &world.City{ID: "c1", TerritoryID: "t2", Population: 1_000_000, MaxPopulation: 1_000_000,
		GeoPosition: geodesy.GeoPoint{LatDeg: 0, LonDeg: 0}}
	sim := New(gs, 1)

	m := &world.Missile{OwnerID: "attacker", CurrentGeo: geodesy.GeoPoint{LatDeg: 0, LonDeg: 0}}
	events := sim.ResolveDetonation(m)

	require.NotEmpty(t, events)
	assert.Less(t, gs.Cities["c1"].Population, int64(1_000_000))
	assert.Less(t, gs.Players["defender"].PopulationRemaining, int64(1_000_000))
}

func TestLaunchInterceptorAtSatelliteDecrementsAmmo(t *testing.T) {
	gs := newTestSession()
	gs.Buildings["silo1"] = &world.Building{ID: "silo1", OwnerID: "attacker", Type: world.BuildingSilo,
		GeoPosition: geodesy.GeoPoint{LatDeg: 0, LonDeg: 0},
		Silo:        &world.SiloData{Mode: world.SiloDefend, InterceptorAmmo: 1}}
	gs.Satellites["sat1"] = &world.Satellite{ID: "sat1", OwnerID: "defender", Health: 100,
		GroundPosition: geodesy.GeoPoint{LatDeg: 1, LonDeg: 1}, OrbitalAltitudeKm: 550}
	sim := New(gs, 1)

	m, _, err := sim.LaunchInterceptorAtSatellite("attacker", "silo1", "sat1", 0)
	require.NoError(t, err)
	assert.Equal(t, "sat1", m.Interceptor.TargetSatelliteID)
	assert.Equal(t, 0, gs.Buildings["silo1"].Silo.InterceptorAmmo)
}

func TestLaunchInterceptorAtSatelliteRefusesOwnSatellite(t *testing.T) {
	gs := newTestSession()
	gs.Buildings["silo1"] = &world.Building{ID: "silo1", OwnerID: "attacker", Type: world.BuildingSilo,
		Silo: &world.SiloData{Mode: world.SiloDefend, InterceptorAmmo: 1}}
	gs.Satellites["sat1"] = &world.Satellite{ID: "sat1", OwnerID: "attacker", Health: 100}
	sim := New(gs, 1)

	_, _, err := sim.LaunchInterceptorAtSatellite("attacker", "silo1", "sat1", 0)
	assert.Error(t, err)
}

func TestResolveSatelliteRailEndAppliesDamageOnHit(t *testing.T) {
	gs := newTestSession()
	sat := &world.Satellite{ID: "sat1", OwnerID: "defender", Health: 100}
	gs.Satellites["sat1"] = sat
	sim := New(gs, 2) // seed 2's first Float64() is ~0.167, below satelliteHitProbability: a hit
	interceptor := &world.Missile{ID: "i1", Interceptor: &world.InterceptorData{
		TargetSatelliteID: "sat1", Status: world.InterceptorActive,
	}}

	evt := sim.ResolveSatelliteRailEnd(interceptor, sat)
	if interceptor.Interceptor.Status == world.InterceptorHit {
		// One hit leaves the satellite at 60 health, so no satellite_destroyed event.
		assert.Nil(t, evt)
		assert.Less(t, sat.Health, 100)
	} else {
		assert.Equal(t, world.InterceptorMissed, interceptor.Interceptor.Status)
		assert.Nil(t, evt)
	}
}

func TestResolveDetonationSkipsCitiesOutsideRadius(t *testing.T) {
	gs := newTestSession()
	gs.Cities["far"] = &world.City{ID: "far", TerritoryID: "t2", Population: 500_000,
		GeoPosition: geodesy.GeoPoint{LatDeg: 80, LonDeg: 80}}
	sim := New(gs, 1)

	m := &world.Missile{OwnerID: "attacker", CurrentGeo: geodesy.GeoPoint{LatDeg: 0, LonDeg: 0}}
	sim.ResolveDetonation(m)
	assert.Equal(t, int64(500_000), gs.Cities["far"].Population)
}
