// Package sim owns a single session's tick loop, command dispatch, and
// per-recipient delta construction. It is the orchestration layer that
// wires together defcon, ballistics, satellites,
// hacking, fog, and ai into one fixed-rate simulation step, grounded on
// the source's Server.gameLoop/updateGame pair (server/websocket.go):
// the same ticker-driven "drain commands, advance physics, broadcast"
// shape, generalized from a free-flight starfield to a phased escalation
// sim. One tick goroutine, supervised by an errgroup, drains the command
// queue at the start of every step.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lab1702/defcon-server/internal/ai"
	"github.com/lab1702/defcon-server/internal/ballistics"
	"github.com/lab1702/defcon-server/internal/defcon"
	"github.com/lab1702/defcon-server/internal/fog"
	"github.com/lab1702/defcon-server/internal/hacking"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/satellites"
	"github.com/lab1702/defcon-server/internal/world"
)

// TickInterval is the canonical 10 Hz simulation rate.
const TickInterval = 100 * time.Millisecond

// Session drives one GameSession's tick loop end to end.
type Session struct {
	GS *world.GameSession

	defconMachine *defcon.Machine
	ballisticsSim *ballistics.Sim
	hackGraph     *hacking.Graph
	aiController  *ai.Controller

	commands chan Command
	out      chan<- Outbound

	log *logrus.Entry

	prevSnapshots map[string]recipientSnapshot
}

// recipientSnapshot is the last tick's serialized entity set sent to one
// recipient, kept to diff against for the next game_delta.
type recipientSnapshot struct {
	buildings  map[string]string
	missiles   map[string]string
	satellites map[string]string
}

func newRecipientSnapshot() recipientSnapshot {
	return recipientSnapshot{
		buildings:  make(map[string]string),
		missiles:   make(map[string]string),
		satellites: make(map[string]string),
	}
}

// New builds a Session ready to run. seed drives every deterministic RNG
// consumer (ballistics hit-probability rolls, AI jitter/targeting) so two sessions
// built from the same seed and fed the same command sequence resolve
// identically.
func New(gs *world.GameSession, hackGraph *hacking.Graph, seed int64, out chan<- Outbound, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.WithField("session", gs.ID)
	}
	return &Session{
		GS:            gs,
		defconMachine: defcon.New(gs),
		ballisticsSim: ballistics.New(gs, seed),
		hackGraph:     hackGraph,
		aiController:  ai.New(seed),
		commands:      make(chan Command, 256),
		out:           out,
		log:           log.WithField("sessionId", gs.ID),
		prevSnapshots: make(map[string]recipientSnapshot),
	}
}

// Enqueue posts a validated command for processing at the next tick
// boundary. It never blocks the caller past the queue's capacity; a full
// queue drops the command and logs it, mirroring the source's
// full-send-buffer skip in Server.Run's broadcast case.
func (s *Session) Enqueue(cmd Command) {
	select {
	case s.commands <- cmd:
	default:
		s.log.WithField("type", cmd.Type).Warn("command queue full, dropping command")
	}
}

// Run drives the session until ctx is cancelled or an end condition is
// reached, at which point it returns after emitting game_end. The tick
// loop and command drain run as one supervised unit; an errgroup is used
// even though inbound commands are only drained inside the ticker branch,
// so that a future split of command intake into its own goroutine (e.g.
// an admin/debug channel) joins the same cancellation and error
// propagation the ticker already has.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.tickLoop(ctx)
	})
	return g.Wait()
}

func (s *Session) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ended := s.Step(TickInterval.Milliseconds()); ended {
				return nil
			}
		}
	}
}

// Step advances the session by one tick of dtMs simulated milliseconds,
// publishing deltas and returning true once an end condition fires.
func (s *Session) Step(dtMs int64) bool {
	gs := s.GS
	gs.Tick++
	gs.TimestampMs += dtMs * int64(gs.GameSpeed)

	s.drainCommands()

	var events []protocol.Event
	if evt := s.defconMachine.Advance(dtMs); evt != nil {
		events = append(events, *evt)
	}

	s.ballisticsSim.AdvanceMissiles(dtMs * int64(gs.GameSpeed))
	events = append(events, s.resolveInterceptors()...)
	satellites.Advance(gs, gs.TimestampMs)
	events = append(events, hacking.Advance(gs, gs.TimestampMs)...)
	events = append(events, s.resolveDetonations()...)

	if s.aiController != nil {
		events = append(events, s.aiController.Step(gs, s.ballisticsSim, gs.TimestampMs)...)
	}

	removedMissiles := s.ballisticsSim.RemoveResolvedMissiles()

	s.publish(events, removedMissiles)

	if endEvt, ended := s.checkEndConditions(); ended {
		s.publishGameEnd(endEvt)
		return true
	}
	return false
}

// missCoastDurationMs is how long a missed interceptor keeps coasting
// (status "missed", still visible and simulated) before it crashes and
// is swept by RemoveResolvedMissiles.
const missCoastDurationMs = 1500

// resolveInterceptors checks every in-flight interceptor for guidance
// updates and rail-end resolution, recomputing tracking coverage each
// tick, resolving hit/miss once the interceptor reaches its rail end, and
// carrying a miss through its coast period before crashing it.
func (s *Session) resolveInterceptors() []protocol.Event {
	var events []protocol.Event
	gs := s.GS
	for _, m := range gs.Missiles {
		if m.Kind != world.MissileInterceptor || m.Intercepted || m.Detonated {
			continue
		}
		id := m.Interceptor

		if id.Status == world.InterceptorMissed {
			if gs.TimestampMs >= id.MissBehaviorMs {
				id.Status = world.InterceptorCrashed
				m.Detonated = true
			}
			continue
		}

		if id.TargetSatelliteID != "" {
			events = append(events, s.resolveSatelliteInterceptor(m, id)...)
			continue
		}

		target, ok := gs.Missiles[id.TargetMissileID]
		if !ok {
			id.Status = world.InterceptorMissed
			id.MissBehaviorMs = gs.TimestampMs + missCoastDurationMs
			continue
		}

		var covering []string
		for _, radarID := range id.TrackingRadarIDs {
			if r, ok := gs.Buildings[radarID]; ok && !r.Destroyed && r.Radar != nil && r.Radar.Active {
				covering = append(covering, radarID)
			}
		}
		ballistics.UpdateGuidance(m, target, covering, gs.TimestampMs)

		if m.Progress >= 1 {
			if evt := s.ballisticsSim.ResolveRailEnd(m, target); evt != nil {
				events = append(events, *evt)
			}
			if id.Status == world.InterceptorMissed {
				id.MissBehaviorMs = gs.TimestampMs + missCoastDurationMs
			} else {
				// A hit retires the interceptor immediately;
				// RemoveResolvedMissiles sweeps it next.
				m.Detonated = true
			}
		}
	}
	return events
}

// resolveSatelliteInterceptor resolves one tick of an interceptor railed
// at a satellite rather than an ICBM: once its rail ends it applies
// DamageSatellite on a hit and always retires immediately afterward,
// since a satellite's fixed ground track needs no guidance tracking.
func (s *Session) resolveSatelliteInterceptor(m *world.Missile, id *world.InterceptorData) []protocol.Event {
	if m.Progress < 1 {
		return nil
	}
	sat, ok := s.GS.Satellites[id.TargetSatelliteID]
	if !ok {
		id.Status = world.InterceptorMissed
		m.Detonated = true
		return nil
	}
	evt := s.ballisticsSim.ResolveSatelliteRailEnd(m, sat)
	m.Detonated = true
	if evt == nil {
		return nil
	}
	return []protocol.Event{*evt}
}

// resolveDetonations applies blast damage for every ICBM that detonated
// this tick.
func (s *Session) resolveDetonations() []protocol.Event {
	var events []protocol.Event
	for _, m := range s.GS.Missiles {
		if m.Kind == world.MissileICBM && m.Detonated && !m.Intercepted {
			events = append(events, s.ballisticsSim.ResolveDetonation(m)...)
		}
	}
	return events
}

// checkEndConditions reports whether the session has ended: only one
// player has population remaining, or the DEFCON 1 timer expired.
func (s *Session) checkEndConditions() (protocol.GameEndData, bool) {
	gs := s.GS
	survivors := gs.SurvivingPlayers()

	expired := gs.DefconLevel == 1 && gs.DefconMsRemaining <= 0
	if len(survivors) > 1 && !expired {
		return protocol.GameEndData{}, false
	}

	scores := make(map[string]int64, len(gs.Players))
	var best *world.Player
	tie := false
	for _, p := range gs.Players {
		scores[p.ID] = p.Score
		if best == nil || p.Score > best.Score {
			best = p
			tie = false
		} else if p.Score == best.Score {
			tie = true
		}
	}

	result := protocol.GameEndData{FinalScores: scores}
	switch {
	case len(survivors) == 1:
		result.WinnerPlayerID = survivors[0].ID
		result.Reason = "last_survivor"
	case tie || best == nil:
		result.Draw = true
		result.Reason = "score_tie"
	default:
		result.WinnerPlayerID = best.ID
		result.Reason = "defcon1_timer_expired"
	}
	return result, true
}

// publish builds and sends one game_delta per recipient, diffed against
// that recipient's previous snapshot.
func (s *Session) publish(events []protocol.Event, removedMissileIDs []string) {
	gs := s.GS
	for _, p := range gs.Players {
		vis := fog.Derive(gs, p.ID)
		prev, ok := s.prevSnapshots[p.ID]
		if !ok {
			prev = newRecipientSnapshot()
		}
		next := newRecipientSnapshot()

		delta := protocol.GameDeltaData{Tick: gs.Tick, DefconLevel: gs.DefconLevel, Events: events}

		for id := range vis.BuildingIDs {
			b := gs.Buildings[id]
			encoded := mustEncode(b)
			next.buildings[id] = encoded
			if prev.buildings[id] != encoded {
				delta.UpdatedBuildings = append(delta.UpdatedBuildings, toMap(b))
			}
		}
		for id := range vis.MissileIDs {
			m := gs.Missiles[id]
			encoded := mustEncode(m)
			next.missiles[id] = encoded
			if prev.missiles[id] != encoded {
				delta.UpdatedMissiles = append(delta.UpdatedMissiles, toMap(m))
			}
		}
		for _, id := range removedMissileIDs {
			if _, wasVisible := prev.missiles[id]; wasVisible {
				delta.RemovedMissileIDs = append(delta.RemovedMissileIDs, id)
			}
		}
		for id := range vis.SatelliteIDs {
			sat := gs.Satellites[id]
			encoded := mustEncode(sat)
			next.satellites[id] = encoded
			if prev.satellites[id] != encoded {
				delta.UpdatedSatellites = append(delta.UpdatedSatellites, toMap(sat))
			}
		}
		for id := range prev.satellites {
			if _, stillVisible := next.satellites[id]; !stillVisible {
				delta.RemovedSatelliteIDs = append(delta.RemovedSatelliteIDs, id)
			}
		}

		s.prevSnapshots[p.ID] = next
		s.send(p.ID, protocol.ServerMessage{Type: protocol.TypeGameDelta, Data: delta})
	}
}

func (s *Session) publishGameEnd(data protocol.GameEndData) {
	for _, p := range s.GS.Players {
		s.send(p.ID, protocol.ServerMessage{Type: protocol.TypeGameEnd, Data: data})
	}
	s.log.WithField("winner", data.WinnerPlayerID).Info("session ended")
}

// Snapshot builds the full game_state frame for a late joiner, who
// receives a complete state dump rather than an incremental delta.
func (s *Session) Snapshot(recipientPlayerID string) protocol.GameStateData {
	gs := s.GS
	vis := fog.Derive(gs, recipientPlayerID)

	data := protocol.GameStateData{Tick: gs.Tick, DefconLevel: gs.DefconLevel, Phase: string(gs.Phase)}
	for id := range vis.BuildingIDs {
		data.Buildings = append(data.Buildings, toMap(gs.Buildings[id]))
	}
	for id := range vis.MissileIDs {
		data.Missiles = append(data.Missiles, toMap(gs.Missiles[id]))
	}
	for id := range vis.SatelliteIDs {
		data.Satellites = append(data.Satellites, toMap(gs.Satellites[id]))
	}
	for _, c := range gs.Cities {
		data.Cities = append(data.Cities, toMap(c))
	}
	for _, p := range gs.Players {
		data.Players = append(data.Players, toMap(p))
	}
	return data
}

func (s *Session) send(playerID string, msg protocol.ServerMessage) {
	if s.out == nil {
		return
	}
	select {
	case s.out <- Outbound{PlayerID: playerID, Message: msg}:
	default:
		s.log.WithField("playerId", playerID).Warn("outbound queue full, dropping frame")
	}
}

func mustEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}
