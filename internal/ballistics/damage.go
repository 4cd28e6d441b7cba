package ballistics

import (
	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

// ResolveDetonation applies blast damage for a detonated ICBM to every
// city within the configured blast radius, attributing kills/score to the
// launching owner and losses to each affected territory's owner. Returns
// the events generated (city_hit, and building_destroyed for any
// co-located destroyed buildings).
func (s *Sim) ResolveDetonation(missile *world.Missile) []protocol.Event {
	gs := s.session
	var events []protocol.Event

	radiusKm := gs.Config.BlastRadiusKm
	if radiusKm <= 0 {
		radiusKm = 180
	}
	coeff := gs.Config.DamageCoeff
	if coeff <= 0 {
		coeff = 0.9
	}

	var totalKilled int64
	for _, city := range gs.Cities {
		if city.Destroyed {
			continue
		}
		distKm := geodesy.Distance(missile.CurrentGeo, city.GeoPosition)
		if distKm >= radiusKm {
			continue
		}
		falloff := 1 - distKm/radiusKm
		loss := int64(float64(city.Population) * falloff * coeff)
		if loss <= 0 {
			continue
		}
		applied := city.ApplyDamage(loss)
		if applied <= 0 {
			continue
		}
		totalKilled += applied

		if owner, ok := gs.Players[missile.OwnerID]; ok {
			owner.EnemyKills += int(applied / 1_000_000)
			owner.Score += applied / 100
		}
		if territory, ok := gs.Territories[city.TerritoryID]; ok {
			if victim, ok := gs.Players[territory.OwnerID]; ok {
				victim.PopulationRemaining -= applied
				victim.PopulationLost += applied
				if victim.PopulationRemaining < 0 {
					victim.PopulationRemaining = 0
				}
			}
		}

		events = append(events, protocol.Event{Type: protocol.EventCityHit, Data: map[string]any{
			"cityId": city.ID, "populationLost": applied, "destroyed": city.Destroyed,
		}})

		for _, b := range gs.Buildings {
			if b.Destroyed {
				continue
			}
			if geodesy.Distance(missile.CurrentGeo, b.GeoPosition) < radiusKm*0.3 {
				b.Destroyed = true
				events = append(events, protocol.Event{Type: protocol.EventBuildingDestroyed, Data: map[string]any{
					"buildingId": b.ID, "ownerId": b.OwnerID,
				}})
			}
		}
	}

	return events
}

// satelliteInterceptorDamage is the health an interceptor hit removes from
// a satellite; three hits destroy one outright.
const satelliteInterceptorDamage = 40

// DamageSatellite applies interceptor-sourced damage to a satellite.
func DamageSatellite(sat *world.Satellite, amount int) *protocol.Event {
	if sat.Destroyed {
		return nil
	}
	sat.Health -= amount
	if sat.Health <= 0 {
		sat.Health = 0
		sat.Destroyed = true
		return &protocol.Event{Type: protocol.EventSatelliteDestroyed, Data: map[string]any{"satelliteId": sat.ID}}
	}
	return nil
}
