package sim

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

func TestHandlePlaceBuildingEnforcesSiloCap(t *testing.T) {
	s, _ := newTestSession()
	s.GS.DefconLevel = 5
	s.GS.Config.MaxSilosPerPlayer = 1
	// newTestSession already placed "silo1" owned by attacker.

	data, _ := json.Marshal(protocol.PlaceBuildingData{Type: string(world.BuildingSilo), Position: protocol.PositionData{LatDeg: 2, LonDeg: 2}})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypePlaceBuilding, Data: data})
	s.drainCommands()

	assert.Equal(t, 1, s.siloCountFor("attacker"))
}

func TestHandlePlaceBuildingAllowsUnderCap(t *testing.T) {
	s, _ := newTestSession()
	s.GS.DefconLevel = 5
	s.GS.Config.MaxSilosPerPlayer = 2

	data, _ := json.Marshal(protocol.PlaceBuildingData{Type: string(world.BuildingSilo), Position: protocol.PositionData{LatDeg: 2, LonDeg: 2}})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypePlaceBuilding, Data: data})
	s.drainCommands()

	assert.Equal(t, 2, s.siloCountFor("attacker"))
}

func TestHandleEnableAIClaimsUnclaimedTerritory(t *testing.T) {
	s, _ := newTestSession()
	s.GS.Territories["green"] = &world.Territory{ID: "green", Name: "Green Zone"}
	s.GS.Cities["c2"] = &world.City{ID: "c2", TerritoryID: "green", Population: 250}
	s.GS.Territories["green"].CityIDs = []string{"c2"}

	data, _ := json.Marshal(protocol.EnableAIData{Region: "green"})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypeEnableAI, Data: data})
	s.drainCommands()

	require.NotEmpty(t, s.GS.Territories["green"].OwnerID)
	aiPlayer, ok := s.GS.Players[s.GS.Territories["green"].OwnerID]
	require.True(t, ok)
	assert.True(t, aiPlayer.IsAI)
	assert.Equal(t, int64(250), aiPlayer.PopulationRemaining)
}

func TestHandleEnableAIRejectsClaimedTerritory(t *testing.T) {
	s, _ := newTestSession()
	s.GS.Territories["red"] = &world.Territory{ID: "red", OwnerID: "attacker"}

	data, _ := json.Marshal(protocol.EnableAIData{Region: "red"})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypeEnableAI, Data: data})
	s.drainCommands()

	assert.Equal(t, "attacker", s.GS.Territories["red"].OwnerID)
}

func TestHandleDisableAIRemovesAIPlayer(t *testing.T) {
	s, _ := newTestSession()
	s.GS.Territories["green"] = &world.Territory{ID: "green"}
	s.GS.Players["ai1"] = &world.Player{ID: "ai1", IsAI: true, TerritoryID: "green"}
	s.GS.Territories["green"].OwnerID = "ai1"

	data, _ := json.Marshal(protocol.EnableAIData{Region: "green"})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypeDisableAI, Data: data})
	s.drainCommands()

	_, stillThere := s.GS.Players["ai1"]
	assert.False(t, stillThere)
	assert.Empty(t, s.GS.Territories["green"].OwnerID)
}

func TestHandleRequestInterceptInfoReportsSilos(t *testing.T) {
	s, out := newTestSession()
	s.GS.Buildings["silo1"].Silo.Mode = world.SiloDefend
	s.GS.Buildings["silo1"].Silo.InterceptorAmmo = 1
	target := &world.Missile{
		ID: "icbm1", OwnerID: "attacker", Kind: world.MissileICBM,
		LaunchGeo: geodesy.GeoPoint{LatDeg: 0, LonDeg: 0}, TargetGeo: geodesy.GeoPoint{LatDeg: 10, LonDeg: 10},
		FlightDurationMs: 600_000, ApexAltitudeKm: 300,
	}
	s.GS.Missiles[target.ID] = target

	data, _ := json.Marshal(protocol.RequestInterceptInfoData{TargetMissileID: "icbm1"})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypeRequestIntercept, Data: data})
	s.drainCommands()

	// silo1 is the requester's only silo with interceptor ammo, so the
	// report lists exactly that silo.
	select {
	case frame := <-out:
		require.Equal(t, protocol.TypeInterceptInfo, frame.Message.Type)
		payload := frame.Message.Data.(map[string]any)
		silos := payload["silos"].([]map[string]any)
		require.Len(t, silos, 1)
		assert.Equal(t, "silo1", silos[0]["siloId"])
	default:
		t.Fatal("expected an intercept_info frame")
	}
}

func TestHandleSatelliteInterceptorLaunchRoutesToSatelliteTarget(t *testing.T) {
	s, _ := newTestSession()
	s.GS.Buildings["silo1"].Silo.Mode = world.SiloDefend
	s.GS.Buildings["silo1"].Silo.InterceptorAmmo = 1
	s.GS.Satellites["sat1"] = &world.Satellite{ID: "sat1", OwnerID: "defender", Health: 100,
		GroundPosition: geodesy.GeoPoint{LatDeg: 1, LonDeg: 1}, OrbitalAltitudeKm: 550}

	data, _ := json.Marshal(protocol.LaunchMissileData{SiloID: "silo1", TargetSatelliteID: "sat1"})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypeLaunchMissile, Data: data})
	s.drainCommands()

	assert.Equal(t, 0, s.GS.Buildings["silo1"].Silo.InterceptorAmmo)
	var found bool
	for _, m := range s.GS.Missiles {
		if m.Interceptor != nil && m.Interceptor.TargetSatelliteID == "sat1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestHandleDebugSetDefcon(t *testing.T) {
	s, _ := newTestSession()
	s.GS.DefconLevel = 5

	data, _ := json.Marshal(protocol.DebugData{Command: "set_defcon", Value: 3})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypeDebug, Data: data})
	s.drainCommands()

	assert.Equal(t, 3, s.GS.DefconLevel)
}

func TestHandleDebugAddMissilesRefillsAmmo(t *testing.T) {
	s, _ := newTestSession()
	s.GS.Buildings["silo1"].Silo.MissileAmmo = 0
	s.GS.Buildings["silo1"].Silo.InterceptorAmmo = 0

	data, _ := json.Marshal(protocol.DebugData{Command: "add_missiles", Value: 3})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypeDebug, Data: data})
	s.drainCommands()

	assert.Equal(t, 3, s.GS.Buildings["silo1"].Silo.MissileAmmo)
	assert.Equal(t, 3, s.GS.Buildings["silo1"].Silo.InterceptorAmmo)
}

func TestHandleDebugLaunchTestMissilesSpawnsICBMs(t *testing.T) {
	s, _ := newTestSession()
	s.GS.Territories["red"] = &world.Territory{ID: "red", CityIDs: []string{"target-city"}}
	s.GS.Cities["target-city"] = &world.City{ID: "target-city", TerritoryID: "red", Population: 100,
		GeoPosition: geodesy.GeoPoint{LatDeg: 5, LonDeg: 5}}

	before := len(s.GS.Missiles)
	data, _ := json.Marshal(protocol.DebugData{Command: "launch_test_missiles", Value: 2})
	s.Enqueue(Command{PlayerID: "attacker", Type: protocol.TypeDebug, Data: data})
	s.drainCommands()

	assert.Equal(t, before+2, len(s.GS.Missiles))
}
