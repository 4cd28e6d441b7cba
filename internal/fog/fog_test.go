package fog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/world"
)

func newFogSession() *world.GameSession {
	gs := world.NewGameSession("s1", world.Config{})
	gs.Buildings["own-silo"] = &world.Building{ID: "own-silo", OwnerID: "p1", Type: world.BuildingSilo,
		GeoPosition: geodesy.GeoPoint{LatDeg: 0, LonDeg: 0}, Silo: &world.SiloData{}}
	gs.Buildings["enemy-silo"] = &world.Building{ID: "enemy-silo", OwnerID: "p2", Type: world.BuildingSilo,
		GeoPosition: geodesy.GeoPoint{LatDeg: 5, LonDeg: 5}, Silo: &world.SiloData{}}
	return gs
}

func TestOwnBuildingsAlwaysVisible(t *testing.T) {
	gs := newFogSession()
	vis := Derive(gs, "p1")
	assert.True(t, vis.BuildingIDs["own-silo"])
}

func TestEnemyBuildingHiddenWithoutRadar(t *testing.T) {
	gs := newFogSession()
	vis := Derive(gs, "p1")
	assert.False(t, vis.BuildingIDs["enemy-silo"])
}

func TestEnemyBuildingVisibleWithCoveringRadar(t *testing.T) {
	gs := newFogSession()
	gs.Buildings["radar1"] = &world.Building{ID: "radar1", OwnerID: "p1", Type: world.BuildingRadar,
		GeoPosition: geodesy.GeoPoint{LatDeg: 0, LonDeg: 0}, Radar: &world.RadarData{RangeKm: 2000, Active: true}}
	vis := Derive(gs, "p1")
	assert.True(t, vis.BuildingIDs["enemy-silo"])
}

func TestEnemyBuildingHiddenWithOutOfRangeRadar(t *testing.T) {
	gs := newFogSession()
	gs.Buildings["radar1"] = &world.Building{ID: "radar1", OwnerID: "p1", Type: world.BuildingRadar,
		GeoPosition: geodesy.GeoPoint{LatDeg: 0, LonDeg: 0}, Radar: &world.RadarData{RangeKm: 1, Active: true}}
	vis := Derive(gs, "p1")
	assert.False(t, vis.BuildingIDs["enemy-silo"])
}

func TestRevealTargetsHackExposesTargetOwnersBuildings(t *testing.T) {
	gs := newFogSession()
	gs.Buildings["enemy-radar"] = &world.Building{ID: "enemy-radar", OwnerID: "p2", Type: world.BuildingRadar,
		GeoPosition: geodesy.GeoPoint{LatDeg: 6, LonDeg: 6}, Radar: &world.RadarData{RangeKm: 100, Active: true}}
	gs.HackingTraces["trace1"] = &world.HackingTrace{
		ID: "trace1", AttackerPlayerID: "p1", TargetBuildingID: "enemy-silo",
		HackType: world.HackRevealTargets, Status: world.HackComplete, CompromiseExpiresMs: 10_000,
	}
	gs.TimestampMs = 5_000

	vis := Derive(gs, "p1")
	assert.True(t, vis.BuildingIDs["enemy-silo"])
	assert.True(t, vis.BuildingIDs["enemy-radar"])
}

func TestExpiredRevealTargetsHackStopsExposingBuildings(t *testing.T) {
	gs := newFogSession()
	gs.HackingTraces["trace1"] = &world.HackingTrace{
		ID: "trace1", AttackerPlayerID: "p1", TargetBuildingID: "enemy-silo",
		HackType: world.HackRevealTargets, Status: world.HackComplete, CompromiseExpiresMs: 1_000,
	}
	gs.TimestampMs = 5_000

	vis := Derive(gs, "p1")
	assert.False(t, vis.BuildingIDs["enemy-silo"])
}
