// Package satellites implements Keplerian-lite orbit launch and ground
// track derivation.
package satellites

import (
	"math"

	"github.com/google/uuid"

	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

// clampInclination restricts an inclination to [0°, 90°].
func clampInclination(deg float64) float64 {
	if deg < 0 {
		return 0
	}
	if deg > 90 {
		return 90
	}
	return deg
}

// Launch validates and executes a satellite launch from a facility: the
// facility must have stock, its cooldown must have expired, and the
// session must be past DEFCON 5.
func Launch(gs *world.GameSession, callerPlayerID, facilityID string, inclinationDeg float64, nowMs int64) (*world.Satellite, *protocol.Event, error) {
	facility, ok := gs.Buildings[facilityID]
	if !ok || facility.Destroyed || facility.Type != world.BuildingSatelliteFacility {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "facility %s not found", facilityID)
	}
	if facility.OwnerID != callerPlayerID {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "facility %s not owned by caller", facilityID)
	}
	if gs.DefconLevel == 5 {
		return nil, nil, protocol.New(protocol.ErrNotPermittedAtDefcon, "satellites unavailable during placement")
	}
	data := facility.SatelliteFacility
	if data.SatelliteStock <= 0 {
		return nil, nil, protocol.New(protocol.ErrAmmoExhausted, "facility %s has no satellites remaining", facilityID)
	}
	launchedBefore := false
	for _, s := range gs.Satellites {
		if s.SourceFacilityID == facilityID {
			launchedBefore = true
			break
		}
	}
	if launchedBefore && nowMs-data.LastLaunchTimeMs < data.LaunchCooldownMs {
		return nil, nil, protocol.New(protocol.ErrCooldownActive, "facility %s still cooling down", facilityID)
	}

	data.SatelliteStock--
	data.LastLaunchTimeMs = nowMs

	const defaultPeriodMs = 90 * 60 * 1000 // 90-minute low-orbit period
	const defaultAltitudeKm = 550.0

	sat := &world.Satellite{
		ID:                   uuid.NewString(),
		OwnerID:              callerPlayerID,
		SourceFacilityID:     facilityID,
		LaunchEpochMs:        nowMs,
		OrbitalPeriodMs:      defaultPeriodMs,
		OrbitalAltitudeKm:    defaultAltitudeKm,
		InclinationDeg:       clampInclination(inclinationDeg),
		StartingLongitudeDeg: facility.GeoPosition.LonDeg,
		Health:               100,
	}
	gs.Satellites[sat.ID] = sat

	evt := &protocol.Event{Type: protocol.EventSatelliteLaunch, Data: map[string]any{
		"satelliteId": sat.ID, "ownerId": callerPlayerID,
	}}
	return sat, evt, nil
}

// Advance updates every non-destroyed satellite's orbital progress and
// ground position for the current simulated time.
func Advance(gs *world.GameSession, nowMs int64) {
	for _, sat := range gs.Satellites {
		if sat.Destroyed {
			continue
		}
		sat.Progress, sat.GroundPosition = GroundTrack(sat, nowMs)
	}
}

// GroundTrack computes a satellite's orbital progress and current ground
// position using a simple rotating-orbit formula: the satellite sweeps
// longitude linearly with progress while its latitude oscillates between
// ±inclination, approximating a circular inclined orbit's ground track.
func GroundTrack(sat *world.Satellite, nowMs int64) (progress float64, pos geodesy.GeoPoint) {
	if sat.OrbitalPeriodMs <= 0 {
		return 0, geodesy.GeoPoint{LatDeg: 0, LonDeg: sat.StartingLongitudeDeg}
	}
	elapsed := nowMs - sat.LaunchEpochMs
	progress = math.Mod(float64(elapsed), float64(sat.OrbitalPeriodMs)) / float64(sat.OrbitalPeriodMs)
	if progress < 0 {
		progress += 1
	}

	angle := progress * 2 * math.Pi
	lat := sat.InclinationDeg * math.Sin(angle)
	lonDrift := progress * 360.0
	lon := geodesy.NormalizeAngle((sat.StartingLongitudeDeg+lonDrift)*math.Pi/180) * 180 / math.Pi
	if lon > 180 {
		lon -= 360
	}
	return progress, geodesy.GeoPoint{LatDeg: lat, LonDeg: lon}
}
