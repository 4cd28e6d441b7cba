// Package fog derives each player's per-tick visibility set: owned
// buildings, plus foreign entities within radar or satellite coverage.
// The radar-range query is adapted from the source's
// SpatialGrid (server/spatial_grid.go), which partitions players into grid
// cells for O(1)-average collision queries; here no grid is kept: every
// building, missile and satellite is checked against every relevant radar
// and satellite by great-circle distance.
package fog

import (
	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/world"
)

// Visible is the set of entity ids visible to one player for one tick.
type Visible struct {
	BuildingIDs   map[string]bool
	MissileIDs    map[string]bool
	SatelliteIDs  map[string]bool
}

func newVisible() Visible {
	return Visible{
		BuildingIDs:  make(map[string]bool),
		MissileIDs:   make(map[string]bool),
		SatelliteIDs: make(map[string]bool),
	}
}

// radarHorizonKm derives a radar's effective coverage against a target at
// a given altitude: range grows with target altitude (a vehicle high in
// its arc is seen from further out than one near the ground, mirroring
// real radar-horizon geometry), floored at the radar's base range.
func radarHorizonKm(radar *world.Building, targetAltitudeKm float64) float64 {
	base := radar.Radar.RangeKm
	return base + targetAltitudeKm*0.5
}

// Derive computes the visibility set for recipientPlayerID this tick:
// all of that player's own non-destroyed buildings, plus any foreign
// building/missile within radar range or a linked satellite's vision cone,
// plus every building of an owner exposed by a live reveal_targets hack.
// Foreign satellites are seen through radar only.
func Derive(gs *world.GameSession, recipientPlayerID string) Visible {
	vis := newVisible()

	radars := gs.RadarsOwnedBy(recipientPlayerID)
	revealedOwners := revealedOwnerIDs(gs, recipientPlayerID)

	for _, b := range gs.Buildings {
		if b.Destroyed {
			continue
		}
		if b.OwnerID == recipientPlayerID {
			vis.BuildingIDs[b.ID] = true
			continue
		}
		if revealedOwners[b.OwnerID] || withinAnyRadar(radars, b.GeoPosition, 0) || withinAnySatellite(gs, recipientPlayerID, b.GeoPosition) {
			vis.BuildingIDs[b.ID] = true
		}
	}

	for _, m := range gs.Missiles {
		if m.OwnerID == recipientPlayerID {
			vis.MissileIDs[m.ID] = true
			continue
		}
		altKm := geodesy.Altitude(m.Progress, 0.2, 0.2, m.ApexAltitudeKm)
		if withinAnyRadar(radars, m.CurrentGeo, altKm) || withinAnySatellite(gs, recipientPlayerID, m.CurrentGeo) {
			vis.MissileIDs[m.ID] = true
		}
	}

	for _, s := range gs.Satellites {
		if s.Destroyed {
			continue
		}
		if s.OwnerID == recipientPlayerID {
			vis.SatelliteIDs[s.ID] = true
			continue
		}
		if withinAnyRadar(radars, s.GroundPosition, s.OrbitalAltitudeKm) {
			vis.SatelliteIDs[s.ID] = true
		}
	}

	return vis
}

func withinAnyRadar(radars []*world.Building, target geodesy.GeoPoint, targetAltitudeKm float64) bool {
	for _, r := range radars {
		if geodesy.Distance(r.GeoPosition, target) <= radarHorizonKm(r, targetAltitudeKm) {
			return true
		}
	}
	return false
}

// satelliteVisionRadiusKm is the ground footprint radius a satellite can
// observe directly below its ground track.
const satelliteVisionRadiusKm = 800.0

// withinAnySatellite reports whether target is within the vision cone of
// any of recipientPlayerID's satellites that currently has a communication
// path back to ground — either a direct radar link (any owned radar is
// "up") or one relay hop through a second owned satellite.
func withinAnySatellite(gs *world.GameSession, recipientPlayerID string, target geodesy.GeoPoint) bool {
	ownSats := ownedSatellites(gs, recipientPlayerID)
	ownRadars := gs.RadarsOwnedBy(recipientPlayerID)
	hasDirectLink := len(ownRadars) > 0

	for _, s := range ownSats {
		if geodesy.Distance(s.GroundPosition, target) > satelliteVisionRadiusKm {
			continue
		}
		if hasDirectLink {
			return true
		}
		// One-relay fallback: any other owned satellite counts as a relay.
		if len(ownSats) > 1 {
			return true
		}
	}
	return false
}

// revealedOwnerIDs returns the set of player ids whose building layout is
// exposed to recipientPlayerID by a live reveal_targets compromise: any
// unexpired HackComplete trace of that type the recipient owns grants full
// visibility of the target building's owner, not just the one targeted
// building.
func revealedOwnerIDs(gs *world.GameSession, recipientPlayerID string) map[string]bool {
	revealed := make(map[string]bool)
	for _, t := range gs.HackingTraces {
		if t.AttackerPlayerID != recipientPlayerID || t.HackType != world.HackRevealTargets || t.Status != world.HackComplete {
			continue
		}
		if t.CompromiseExpiresMs != 0 && gs.TimestampMs >= t.CompromiseExpiresMs {
			continue
		}
		if target, ok := gs.Buildings[t.TargetBuildingID]; ok {
			revealed[target.OwnerID] = true
		}
	}
	return revealed
}

func ownedSatellites(gs *world.GameSession, playerID string) []*world.Satellite {
	var out []*world.Satellite
	for _, s := range gs.Satellites {
		if s.OwnerID == playerID && !s.Destroyed {
			out = append(out, s)
		}
	}
	return out
}
