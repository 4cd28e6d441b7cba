package ballistics

import (
	"github.com/google/uuid"

	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

// Search bounds for where along an ICBM's path an interceptor may engage
// it: never at the very start or end of the flight.
const (
	minInterceptProgress = 0.15
	maxInterceptProgress = 0.85
	railSearchSteps       = 128

	closeProximityRadiusKm = 25.0
	trackingLossGraceMs    = 2_000

	hitProbBoost     = 0.40
	hitProbMidcourse = 0.70
	hitProbReentry   = 0.45
	maxRadarBonus      = 0.15
	perRadarBonus      = 0.05
	lowFuelThreshold   = 0.25
	lowFuelPenalty     = 0.10
	hitProbVariance    = 0.05
	minHitProb         = 0.05
	maxHitProb         = 0.95
)

// InterceptorSpeedKmPerSec is the fixed interceptor airspeed used for rail
// search and fuel-budget math.
const InterceptorSpeedKmPerSec = 9.0

// LaunchInterceptor validates and executes a defensive missile launch
// targeting a specific in-flight ICBM, computing its fixed rail via
// FindInterceptPoint. Returns a typed error (ErrNoInterceptPoint) and
// refuses the launch if no reachable engagement point exists.
func (s *Sim) LaunchInterceptor(callerPlayerID, siloID, targetMissileID string, trackingRadars []*world.Building, fuelSeconds float64, nowTick int64) (*world.Missile, *protocol.Event, error) {
	gs := s.session
	silo, ok := gs.Buildings[siloID]
	if !ok || silo.Destroyed || silo.Type != world.BuildingSilo {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "silo %s not found", siloID)
	}
	if silo.OwnerID != callerPlayerID {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "silo %s not owned by caller", siloID)
	}
	if silo.Silo.InterceptorAmmo <= 0 {
		return nil, nil, protocol.New(protocol.ErrAmmoExhausted, "silo %s has no interceptors remaining", siloID)
	}
	target, ok := gs.Missiles[targetMissileID]
	if !ok || target.Kind != world.MissileICBM || target.Detonated || target.Intercepted {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "target missile %s not available", targetMissileID)
	}

	point, ok := FindInterceptPoint(target, silo.GeoPosition, InterceptorSpeedKmPerSec, fuelSeconds)
	if !ok {
		return nil, nil, protocol.New(protocol.ErrNoInterceptPoint, "no reachable intercept point for %s", targetMissileID)
	}

	silo.Silo.InterceptorAmmo--

	radarIDs := make([]string, 0, len(trackingRadars))
	for _, r := range trackingRadars {
		radarIDs = append(radarIDs, r.ID)
	}

	flightMs := int64(point.InterceptorTravelTimeSec * 1000)
	m := &world.Missile{
		ID:               uuid.NewString(),
		OwnerID:          callerPlayerID,
		Kind:             world.MissileInterceptor,
		LaunchGeo:        silo.GeoPosition,
		TargetGeo:        point.Geo,
		CurrentGeo:       silo.GeoPosition,
		LaunchTick:       nowTick,
		FlightDurationMs: flightMs,
		ApexAltitudeKm:   geodesy.ApexAltitudeKm(geodesy.AngularDistance(silo.GeoPosition, point.Geo)),
		Interceptor: &world.InterceptorData{
			SourceSiloID:     siloID,
			TargetMissileID:  targetMissileID,
			RailStartGeo:     silo.GeoPosition,
			RailEndGeo:       point.Geo,
			RailEndAltitude:  point.AltitudeKm,
			FuelSeconds:      fuelSeconds,
			TrackingRadarIDs: radarIDs,
			HasGuidance:      len(radarIDs) > 0,
			Status:           world.InterceptorActive,
		},
	}
	gs.Missiles[m.ID] = m

	return m, nil, nil
}

// satelliteInterceptFuelMarginSec is added to the ballistic flight time
// to a satellite's current ground track to give the rail a fuel budget.
const satelliteInterceptFuelMarginSec = 30.0

// LaunchInterceptorAtSatellite launches an interceptor railed at an enemy
// satellite's current ground track position rather than at an in-flight
// ICBM, the only way a satellite can take damage.
func (s *Sim) LaunchInterceptorAtSatellite(callerPlayerID, siloID, targetSatelliteID string, nowTick int64) (*world.Missile, *protocol.Event, error) {
	gs := s.session
	silo, ok := gs.Buildings[siloID]
	if !ok || silo.Destroyed || silo.Type != world.BuildingSilo {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "silo %s not found", siloID)
	}
	if silo.OwnerID != callerPlayerID {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "silo %s not owned by caller", siloID)
	}
	if silo.Silo.InterceptorAmmo <= 0 {
		return nil, nil, protocol.New(protocol.ErrAmmoExhausted, "silo %s has no interceptors remaining", siloID)
	}
	sat, ok := gs.Satellites[targetSatelliteID]
	if !ok || sat.Destroyed || sat.OwnerID == callerPlayerID {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "target satellite %s not available", targetSatelliteID)
	}

	silo.Silo.InterceptorAmmo--

	distKm := geodesy.Distance(silo.GeoPosition, sat.GroundPosition)
	flightMs := int64(distKm / InterceptorSpeedKmPerSec * 1000)

	m := &world.Missile{
		ID:               uuid.NewString(),
		OwnerID:          callerPlayerID,
		Kind:             world.MissileInterceptor,
		LaunchGeo:        silo.GeoPosition,
		TargetGeo:        sat.GroundPosition,
		CurrentGeo:       silo.GeoPosition,
		LaunchTick:       nowTick,
		FlightDurationMs: flightMs,
		ApexAltitudeKm:   sat.OrbitalAltitudeKm,
		Interceptor: &world.InterceptorData{
			SourceSiloID:      siloID,
			TargetSatelliteID: targetSatelliteID,
			RailStartGeo:      silo.GeoPosition,
			RailEndGeo:        sat.GroundPosition,
			RailEndAltitude:   sat.OrbitalAltitudeKm,
			FuelSeconds:       float64(flightMs)/1000.0 + satelliteInterceptFuelMarginSec,
			Status:            world.InterceptorActive,
		},
	}
	gs.Missiles[m.ID] = m

	return m, nil, nil
}

// InterceptPoint is where a rail search determined an interceptor can
// engage a target ICBM.
type InterceptPoint struct {
	Progress                  float64
	Geo                       geodesy.GeoPoint
	AltitudeKm                float64
	InterceptorTravelTimeSec  float64
	ICBMTimeToArrivalSec      float64
}

// FindInterceptPoint searches the earliest point along icbm's remaining
// path (progress strictly ahead of its current progress, within
// [0.15,0.85] of the full flight) where an interceptor launched from
// launchPos at interceptorSpeedKmPerSec can arrive no later than the ICBM
// itself, and where the ICBM's time-to-arrival fits the interceptor's fuel
// budget. This generalizes the source's InterceptDirection quadratic
// 2D-velocity solver (server/intercept.go) to a 1D progress search along a
// fixed great-circle arc, since the "target" here moves along a
// predetermined path rather than a free velocity vector.
func FindInterceptPoint(icbm *world.Missile, launchPos geodesy.GeoPoint, interceptorSpeedKmPerSec, fuelSeconds float64) (InterceptPoint, bool) {
	lo := icbm.Progress
	if lo < minInterceptProgress {
		lo = minInterceptProgress
	}
	hi := maxInterceptProgress
	if lo >= hi {
		return InterceptPoint{}, false
	}

	boostFrac, reentryFrac := geodesy.PhaseFractions(float64(icbm.FlightDurationMs))

	for step := 0; step <= railSearchSteps; step++ {
		progress := lo + (hi-lo)*float64(step)/float64(railSearchSteps)
		if progress <= icbm.Progress {
			continue
		}

		candidate := geodesy.Position(icbm.LaunchGeo, icbm.TargetGeo, progress)
		icbmRemainingFrac := progress - icbm.Progress
		icbmTimeToArrival := icbmRemainingFrac * float64(icbm.FlightDurationMs) / 1000.0

		distKm := geodesy.Distance(launchPos, candidate)
		interceptorTravelTime := distKm / interceptorSpeedKmPerSec

		if interceptorTravelTime <= icbmTimeToArrival && icbmTimeToArrival <= fuelSeconds {
			alt := geodesy.Altitude(progress, boostFrac, reentryFrac, icbm.ApexAltitudeKm)
			return InterceptPoint{
				Progress:                 progress,
				Geo:                      candidate,
				AltitudeKm:               alt,
				InterceptorTravelTimeSec: interceptorTravelTime,
				ICBMTimeToArrivalSec:     icbmTimeToArrival,
			}, true
		}
	}
	return InterceptPoint{}, false
}

// UpdateGuidance recomputes an interceptor's tracking radar set from the
// radars currently covering its target ICBM's position. Losing all
// tracking radars starts a grace period, whose expiry clears HasGuidance.
func UpdateGuidance(interceptor, target *world.Missile, coveringRadarIDs []string, nowMs int64) {
	id := interceptor.Interceptor
	id.TrackingRadarIDs = coveringRadarIDs
	if len(coveringRadarIDs) > 0 {
		id.GraceExpiresMs = 0
		id.HasGuidance = true
		return
	}
	if id.GraceExpiresMs == 0 {
		id.GraceExpiresMs = nowMs + trackingLossGraceMs
		return
	}
	if nowMs >= id.GraceExpiresMs {
		id.HasGuidance = false
	}
}

// ResolveRailEnd resolves an interceptor that has reached the end of its
// rail (progress>=1), resolution table. It mutates both
// missiles' status/flags and returns an interception event on a hit.
func (s *Sim) ResolveRailEnd(interceptor, target *world.Missile) *protocol.Event {
	id := interceptor.Interceptor
	if id.Status != world.InterceptorActive {
		return nil
	}

	if target.Detonated || target.Intercepted {
		id.Status = world.InterceptorMissed
		return nil
	}
	if !id.HasGuidance {
		id.Status = world.InterceptorMissed
		return nil
	}

	distKm := geodesy.Distance(interceptor.CurrentGeo, target.CurrentGeo)
	if distKm > closeProximityRadiusKm {
		id.Status = world.InterceptorMissed
		return nil
	}

	prob := s.hitProbability(interceptor, target)
	if s.rng.Float64() < prob {
		interceptor.Intercepted = true
		target.Intercepted = true
		id.Status = world.InterceptorHit
		return &protocol.Event{Type: protocol.EventInterception, Data: map[string]any{
			"interceptorId": interceptor.ID, "targetMissileId": target.ID,
		}}
	}
	id.Status = world.InterceptorMissed
	return nil
}

// satelliteHitProbability is the fixed chance a satellite-railed
// interceptor connects; satellites don't maneuver, so there is no
// flight-phase or radar-coverage term to weigh.
const satelliteHitProbability = 0.6

// ResolveSatelliteRailEnd resolves an interceptor railed at a satellite
// once it reaches the end of its rail, applying damage via DamageSatellite
// on a hit.
func (s *Sim) ResolveSatelliteRailEnd(interceptor *world.Missile, sat *world.Satellite) *protocol.Event {
	id := interceptor.Interceptor
	if id.Status != world.InterceptorActive {
		return nil
	}
	if sat.Destroyed {
		id.Status = world.InterceptorMissed
		return nil
	}
	if s.rng.Float64() >= satelliteHitProbability {
		id.Status = world.InterceptorMissed
		return nil
	}
	id.Status = world.InterceptorHit
	return DamageSatellite(sat, satelliteInterceptorDamage)
}

// hitProbability implements probability formula: a flight-phase
// base, plus a capped per-radar bonus, minus a low-fuel penalty, plus
// random variance, clamped to [0.05, 0.95].
func (s *Sim) hitProbability(interceptor, target *world.Missile) float64 {
	id := interceptor.Interceptor

	boostFrac, reentryFrac := geodesy.PhaseFractions(float64(target.FlightDurationMs))
	var base float64
	switch {
	case target.Progress < boostFrac:
		base = hitProbBoost
	case target.Progress > 1-reentryFrac:
		base = hitProbReentry
	default:
		base = hitProbMidcourse
	}

	extraRadars := len(id.TrackingRadarIDs) - 1
	if extraRadars < 0 {
		extraRadars = 0
	}
	radarBonus := float64(extraRadars) * perRadarBonus
	if radarBonus > maxRadarBonus {
		radarBonus = maxRadarBonus
	}

	penalty := 0.0
	timeUsedFrac := 0.0
	if id.FuelSeconds > 0 {
		timeUsedFrac = (id.FuelSeconds - remainingFuel(interceptor)) / id.FuelSeconds
	}
	if timeUsedFrac > 0 && (1-timeUsedFrac) < lowFuelThreshold {
		penalty = lowFuelPenalty
	}

	variance := (s.rng.Float64()*2 - 1) * hitProbVariance

	prob := base + radarBonus - penalty + variance
	if prob < minHitProb {
		prob = minHitProb
	}
	if prob > maxHitProb {
		prob = maxHitProb
	}
	return prob
}

// remainingFuel estimates the interceptor's remaining fuel seconds at rail
// end, derived from its flight duration versus its fuel budget.
func remainingFuel(interceptor *world.Missile) float64 {
	used := float64(interceptor.FlightDurationMs) / 1000.0
	remaining := interceptor.Interceptor.FuelSeconds - used
	if remaining < 0 {
		return 0
	}
	return remaining
}
