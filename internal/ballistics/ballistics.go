// Package ballistics implements ICBM flight, interceptor rails, hit/miss
// resolution, and blast damage. The rail-intercept search is
// grounded on the source's intercept.go (InterceptDirection's quadratic
// 2D-velocity solver), adapted from planar shooter/target velocity
// intercept to a 1D search over an ICBM's fixed great-circle progress.
package ballistics

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

// Sim runs the ballistics subsystem for one session. It holds a seeded RNG
// so replays with identical seeds and command sequences are deterministic,
// unlike the source's bot logic which draws from the unseeded global
// math/rand.
type Sim struct {
	session *world.GameSession
	rng     *rand.Rand
}

// New creates a ballistics subsystem bound to session, seeded with seed.
func New(session *world.GameSession, seed int64) *Sim {
	return &Sim{session: session, rng: rand.New(rand.NewSource(seed))}
}

// LaunchICBM validates launch authorization (owned silo in attack mode,
// DEFCON 1, ammo remaining) and executes an offensive missile launch.
// Returns the new missile and a missile_launch event, or a typed error.
func (s *Sim) LaunchICBM(callerPlayerID, siloID string, target geodesy.GeoPoint, nowTick int64) (*world.Missile, *protocol.Event, error) {
	gs := s.session
	silo, ok := gs.Buildings[siloID]
	if !ok || silo.Destroyed || silo.Type != world.BuildingSilo {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "silo %s not found", siloID)
	}
	if silo.OwnerID != callerPlayerID {
		return nil, nil, protocol.New(protocol.ErrUnauthorized, "silo %s not owned by caller", siloID)
	}
	if silo.Silo.Mode != world.SiloAttack {
		return nil, nil, protocol.New(protocol.ErrNotPermittedAtDefcon, "silo %s not in attack mode", siloID)
	}
	if gs.DefconLevel != 1 {
		return nil, nil, protocol.New(protocol.ErrNotPermittedAtDefcon, "offensive launches require DEFCON 1")
	}
	if silo.Silo.MissileAmmo <= 0 {
		return nil, nil, protocol.New(protocol.ErrAmmoExhausted, "silo %s has no missiles remaining", siloID)
	}
	if gs.TimestampMs < silo.Silo.DelayedUntilMs {
		return nil, nil, protocol.New(protocol.ErrCooldownActive, "silo %s delayed by a hacking compromise", siloID)
	}

	silo.Silo.MissileAmmo--
	silo.Silo.LastFireTimeMs = gs.TimestampMs

	flightMs := s.flightDurationMs(silo.GeoPosition, target)
	angularDist := geodesy.AngularDistance(silo.GeoPosition, target)
	apex := geodesy.ApexAltitudeKm(angularDist)

	m := &world.Missile{
		ID:               uuid.NewString(),
		OwnerID:          callerPlayerID,
		Kind:             world.MissileICBM,
		LaunchGeo:        silo.GeoPosition,
		TargetGeo:        target,
		CurrentGeo:       silo.GeoPosition,
		LaunchTick:       nowTick,
		FlightDurationMs: flightMs,
		ApexAltitudeKm:   apex,
		ICBM:             &world.ICBMData{SourceSiloID: siloID},
	}
	gs.Missiles[m.ID] = m

	evt := &protocol.Event{Type: protocol.EventMissileLaunch, Data: map[string]any{
		"missileId": m.ID, "ownerId": callerPlayerID, "siloId": siloID,
	}}
	return m, evt, nil
}

// SpawnTestICBM creates an in-flight ICBM from launch to target without
// consuming silo ammo or checking launch authorization, backing the
// debug "launch_test_missiles" command used to exercise defenses without
// playing out a full escalation.
func (s *Sim) SpawnTestICBM(attackerPlayerID string, launch, target geodesy.GeoPoint, nowTick int64) *world.Missile {
	gs := s.session
	flightMs := s.flightDurationMs(launch, target)
	apex := geodesy.ApexAltitudeKm(geodesy.AngularDistance(launch, target))
	m := &world.Missile{
		ID:               uuid.NewString(),
		OwnerID:          attackerPlayerID,
		Kind:             world.MissileICBM,
		LaunchGeo:        launch,
		TargetGeo:        target,
		CurrentGeo:       launch,
		LaunchTick:       nowTick,
		FlightDurationMs: flightMs,
		ApexAltitudeKm:   apex,
		ICBM:             &world.ICBMData{SourceSiloID: ""},
	}
	gs.Missiles[m.ID] = m
	return m
}

// flightDurationMs computes flight time from great-circle distance at the
// configured missile speed, floored so nearby launches remain visible
// for at least a minimum reaction window.
func (s *Sim) flightDurationMs(launch, target geodesy.GeoPoint) int64 {
	distKm := geodesy.Distance(launch, target)
	speed := s.session.Config.MissileSpeedKmPerSec
	if speed <= 0 {
		speed = 7.0
	}
	ms := int64(distKm / speed * 1000)
	floor := s.session.Config.MinFlightDurationMs
	if floor <= 0 {
		floor = 8_000
	}
	if ms < floor {
		ms = floor
	}
	return ms
}

// AdvanceMissiles advances every in-flight missile's progress by dtMs of
// simulated time (dt already scaled by game speed by the caller) and
// updates CurrentGeo. Missiles that reach progress>=1 are flagged
// Detonated for the damage resolver to process and remove.
func (s *Sim) AdvanceMissiles(dtMs int64) {
	gs := s.session
	for _, m := range gs.Missiles {
		if m.Detonated || m.Intercepted {
			continue
		}
		if m.FlightDurationMs <= 0 {
			continue
		}
		m.Progress += float64(dtMs) / float64(m.FlightDurationMs)
		if m.Progress >= 1 {
			m.Progress = 1
			if m.Kind == world.MissileICBM {
				m.Detonated = true
			}
		}
		m.CurrentGeo = geodesy.Position(m.LaunchGeo, m.TargetGeo, m.Progress)
	}
}

// RemoveResolvedMissiles deletes missiles flagged detonated or intercepted,
// enforcing "removed within the tick in which the flag is set".
// Returns the ids removed, for the delta builder's removedMissileIds.
func (s *Sim) RemoveResolvedMissiles() []string {
	var removed []string
	for id, m := range s.session.Missiles {
		if m.Detonated || m.Intercepted {
			removed = append(removed, id)
			delete(s.session.Missiles, id)
		}
	}
	return removed
}

// TimeToArrivalMs returns the simulated milliseconds remaining until m
// reaches progress 1, given its current progress and flight duration.
func TimeToArrivalMs(m *world.Missile) int64 {
	remaining := 1 - m.Progress
	if remaining < 0 {
		remaining = 0
	}
	return int64(remaining * float64(m.FlightDurationMs))
}
