package satellites

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/world"
)

func newSessionWithFacility() (*world.GameSession, string) {
	gs := world.NewGameSession("s1", world.Config{})
	gs.DefconLevel = 4
	gs.Buildings["fac1"] = &world.Building{
		ID: "fac1", OwnerID: "p1", Type: world.BuildingSatelliteFacility,
		GeoPosition:       geodesy.GeoPoint{LatDeg: 10, LonDeg: 20},
		SatelliteFacility: &world.SatelliteFacilityData{SatelliteStock: 2, LaunchCooldownMs: 5000},
	}
	return gs, "fac1"
}

func TestLaunchClampsInclination(t *testing.T) {
	gs, facID := newSessionWithFacility()
	sat, evt, err := Launch(gs, "p1", facID, 999, 0)
	require.NoError(t, err)
	require.NotNil(t, evt)
	assert.Equal(t, 90.0, sat.InclinationDeg)
}

func TestLaunchRefusesDuringPlacement(t *testing.T) {
	gs, facID := newSessionWithFacility()
	gs.DefconLevel = 5
	_, _, err := Launch(gs, "p1", facID, 10, 0)
	assert.Error(t, err)
}

func TestLaunchRefusesDuringCooldown(t *testing.T) {
	gs, facID := newSessionWithFacility()
	_, _, err := Launch(gs, "p1", facID, 10, 0)
	require.NoError(t, err)
	_, _, err = Launch(gs, "p1", facID, 10, 1000)
	assert.Error(t, err)
}

func TestLaunchDecrementsStock(t *testing.T) {
	gs, facID := newSessionWithFacility()
	_, _, err := Launch(gs, "p1", facID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, gs.Buildings[facID].SatelliteFacility.SatelliteStock)
}

func TestGroundTrackProgressWrapsWithinPeriod(t *testing.T) {
	sat := &world.Satellite{OrbitalPeriodMs: 1000, LaunchEpochMs: 0, InclinationDeg: 45}
	p1, _ := GroundTrack(sat, 1500)
	assert.InDelta(t, 0.5, p1, 1e-9)
}

func TestGroundTrackLatitudeBoundedByInclination(t *testing.T) {
	sat := &world.Satellite{OrbitalPeriodMs: 1000, LaunchEpochMs: 0, InclinationDeg: 45}
	for ms := int64(0); ms < 1000; ms += 50 {
		_, pos := GroundTrack(sat, ms)
		assert.LessOrEqual(t, pos.LatDeg, 45.01)
		assert.GreaterOrEqual(t, pos.LatDeg, -45.01)
	}
}
