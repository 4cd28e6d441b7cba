package hacking

import (
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

// Advance steps every active trace forward by one tick, adding each
// type's configured per-tick progress to t.Progress and a route-length
// dependent amount to t.TraceProgress. Returns the events generated this
// tick, and mutates each trace's status for completed/traced hacks.
func Advance(gs *world.GameSession, nowMs int64) []protocol.Event {
	var events []protocol.Event

	for id, t := range gs.HackingTraces {
		switch t.Status {
		case world.HackRouting:
			t.Status = world.HackActive
			continue
		case world.HackActive:
			params := gs.Config.HackTypeParams[t.HackType]
			t.Progress += params.ProgressPerTick
			t.TraceProgress += params.TraceBaseline + params.TracePerHop*float64(len(t.RouteNodeIDs))

			if t.TraceProgress > 0 {
				events = append(events, protocol.Event{Type: protocol.EventLaunchDetected, Data: map[string]any{
					"traceId": id, "kind": "intrusion_alert", "targetBuildingId": t.TargetBuildingID,
				}})
			}

			if t.Progress >= 1 {
				t.Progress = 1
				t.Status = world.HackComplete
				t.CompromiseExpiresMs = nowMs + params.EffectTTLMs
				applyCompromise(gs, t)
				events = append(events, protocol.Event{Type: "hack_complete", Data: map[string]any{
					"traceId": id, "targetBuildingId": t.TargetBuildingID, "hackType": t.HackType,
				}})
			} else if t.TraceProgress >= 1 {
				t.TraceProgress = 1
				t.Status = world.HackTraced
				events = append(events, protocol.Event{Type: "hack_traced", Data: map[string]any{
					"traceId": id, "attackerPlayerId": t.AttackerPlayerID,
				}})
			}
		case world.HackComplete:
			if nowMs >= t.CompromiseExpiresMs {
				revertCompromise(gs, t)
				delete(gs.HackingTraces, id)
			}
		case world.HackTraced, world.HackFailed:
			delete(gs.HackingTraces, id)
		}
	}

	return events
}

// applyCompromise applies a completed hack's effect to its target
// building (blind radar, delay silo, reveal targets) — each effect is
// intentionally reversible by revertCompromise once the TTL elapses.
func applyCompromise(gs *world.GameSession, t *world.HackingTrace) {
	b, ok := gs.Buildings[t.TargetBuildingID]
	if !ok {
		return
	}
	switch t.HackType {
	case world.HackBlindRadar:
		if b.Radar != nil {
			b.Radar.Active = false
		}
	case world.HackDelaySilo:
		if b.Silo != nil {
			b.Silo.DelayedUntilMs = t.CompromiseExpiresMs
		}
	case world.HackRevealTargets:
		// Reveal effects are read by the fog-of-war filter directly off
		// the active HackComplete trace; no building mutation required.
	}
}

func revertCompromise(gs *world.GameSession, t *world.HackingTrace) {
	b, ok := gs.Buildings[t.TargetBuildingID]
	if !ok {
		return
	}
	switch t.HackType {
	case world.HackBlindRadar:
		if b.Radar != nil {
			b.Radar.Active = true
		}
	case world.HackDelaySilo:
		if b.Silo != nil {
			b.Silo.DelayedUntilMs = 0
		}
	}
}
