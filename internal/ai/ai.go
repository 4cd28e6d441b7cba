// Package ai implements the scripted adversary: placement
// during DEFCON 5, posture changes during escalation, and jittered-interval
// salvo launches at DEFCON 1. Grounded on the source's bot subsystem
// (server/bots.go, bot_helpers.go, bot_jitter.go) — the same
// random-selection-among-weighted-options style and a jittered firing
// interval — generalized from ship-to-ship dogfighting to territory-level
// silo placement and population-weighted target selection.
package ai

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/lab1702/defcon-server/internal/ballistics"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

// Controller drives every AI-controlled player in a session. It owns a
// seeded RNG for the same determinism reason as ballistics.Sim.
type Controller struct {
	rng *rand.Rand

	// nextSalvoTickMs, per AI player id, gates how often a player fires —
	// jittered within [minSalvoIntervalMs, maxSalvoIntervalMs].
	nextSalvoTickMs map[string]int64
}

const (
	minSalvoIntervalMs = 12_000
	maxSalvoIntervalMs = 30_000
	topCitiesPerSalvo  = 3
)

// New creates an AI controller seeded from seed, matching ballistics.Sim's
// per-session determinism.
func New(seed int64) *Controller {
	return &Controller{
		rng:             rand.New(rand.NewSource(seed)),
		nextSalvoTickMs: make(map[string]int64),
	}
}

// Step runs one tick of AI behavior for every AI-controlled player in the
// session, returning any events generated (missile_launch via the
// ballistics sim).
func (c *Controller) Step(gs *world.GameSession, ballisticsSim *ballistics.Sim, nowMs int64) []protocol.Event {
	var events []protocol.Event

	for _, p := range gs.Players {
		if !p.IsAI || p.TerritoryID == "" {
			continue
		}
		switch {
		case gs.DefconLevel == 5:
			c.placeBuildings(gs, p)
		case gs.DefconLevel <= 3 && gs.DefconLevel > 1:
			c.postureSilos(gs, p)
		case gs.DefconLevel == 1:
			if evt := c.maybeSalvo(gs, ballisticsSim, p, nowMs); evt != nil {
				events = append(events, evt...)
			}
		}
	}
	return events
}

// placeBuildings places a silo and a radar at the AI's predeclared
// starting positions, once per position, mirroring the source's one-shot
// bot initialization in AddBot (server/bots.go).
func (c *Controller) placeBuildings(gs *world.GameSession, p *world.Player) {
	territory, ok := gs.Territories[p.TerritoryID]
	if !ok {
		return
	}
	existing := gs.SilosOwnedBy(p.ID)
	if len(existing) >= len(territory.StartingPositions) {
		return
	}

	pos := territory.StartingPositions[len(existing)]
	siloID := uuid.NewString()
	gs.Buildings[siloID] = &world.Building{
		ID: siloID, OwnerID: p.ID, Type: world.BuildingSilo, GeoPosition: pos,
		Silo: &world.SiloData{
			Mode:            world.SiloDefend,
			MissileAmmo:     gs.Config.StartingMissileAmmo,
			InterceptorAmmo: gs.Config.StartingInterceptorAmmo,
		},
	}

	radarID := uuid.NewString()
	gs.Buildings[radarID] = &world.Building{
		ID: radarID, OwnerID: p.ID, Type: world.BuildingRadar, GeoPosition: pos,
		Radar: &world.RadarData{RangeKm: 1500, Active: true},
	}
}

// postureSilos flips roughly half of an AI's silos to attack mode as
// escalation proceeds, keeping the rest on defense.
func (c *Controller) postureSilos(gs *world.GameSession, p *world.Player) {
	silos := gs.SilosOwnedBy(p.ID)
	for i, b := range silos {
		if i%2 == 0 {
			b.Silo.Mode = world.SiloAttack
		}
	}
}

// maybeSalvo fires a population-weighted salvo at a random enemy's
// top cities, once per jittered interval.
func (c *Controller) maybeSalvo(gs *world.GameSession, sim *ballistics.Sim, p *world.Player, nowMs int64) []protocol.Event {
	if nowMs < c.nextSalvoTickMs[p.ID] {
		return nil
	}
	jitter := minSalvoIntervalMs + c.rng.Int63n(maxSalvoIntervalMs-minSalvoIntervalMs)
	c.nextSalvoTickMs[p.ID] = nowMs + jitter

	enemy := c.pickRandomEnemy(gs, p.ID)
	if enemy == nil {
		return nil
	}
	targets := c.topCities(gs, enemy.TerritoryID, topCitiesPerSalvo)
	if len(targets) == 0 {
		return nil
	}

	attackSilos := attackModeSilos(gs, p.ID)
	if len(attackSilos) == 0 {
		return nil
	}

	var events []protocol.Event
	for i, silo := range attackSilos {
		if i >= len(targets) {
			break
		}
		if silo.Silo.MissileAmmo <= 0 {
			continue
		}
		_, evt, err := sim.LaunchICBM(p.ID, silo.ID, targets[i%len(targets)].GeoPosition, gs.Tick)
		if err == nil && evt != nil {
			events = append(events, *evt)
		}
	}
	return events
}

func (c *Controller) pickRandomEnemy(gs *world.GameSession, selfID string) *world.Player {
	var enemies []*world.Player
	for _, p := range gs.Players {
		if p.ID != selfID && p.PopulationRemaining > 0 {
			enemies = append(enemies, p)
		}
	}
	if len(enemies) == 0 {
		return nil
	}
	sort.Slice(enemies, func(i, j int) bool { return enemies[i].ID < enemies[j].ID })
	return enemies[c.rng.Intn(len(enemies))]
}

// topCities returns the n most populous non-destroyed cities of
// territoryID, population-weighted selection picking the largest first.
func (c *Controller) topCities(gs *world.GameSession, territoryID string, n int) []*world.City {
	var cities []*world.City
	for _, city := range gs.Cities {
		if city.TerritoryID == territoryID && !city.Destroyed {
			cities = append(cities, city)
		}
	}
	sort.Slice(cities, func(i, j int) bool { return cities[i].Population > cities[j].Population })
	if len(cities) > n {
		cities = cities[:n]
	}
	return cities
}

func attackModeSilos(gs *world.GameSession, ownerID string) []*world.Building {
	var out []*world.Building
	for _, b := range gs.SilosOwnedBy(ownerID) {
		if b.Silo.Mode == world.SiloAttack {
			out = append(out, b)
		}
	}
	return out
}
