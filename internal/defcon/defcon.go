// Package defcon implements the escalation-phase state machine: lobby →
// placement(5) → escalation(4..2) → launch(1) → ended, counting down a
// per-level timer grounded on the source's tournament countdown
// (server.checkTournamentMode's T_remain field in server/tournament.go),
// generalized from a single 30-minute countdown to a per-DEFCON-level
// timer table.
package defcon

import (
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

// Machine wraps a GameSession's DEFCON fields with the transition logic.
// It holds no state of its own; the session is the single source of truth
// so the tick loop can snapshot/restore it freely for tests.
type Machine struct {
	session *world.GameSession
}

// New wraps a session for DEFCON advancement.
func New(session *world.GameSession) *Machine {
	return &Machine{session: session}
}

// Advance subtracts dtMs*gameSpeed from the remaining timer and, if it
// reaches zero while above DEFCON 1, decrements the level and resets the
// timer from config. Returns the defcon_change event if a transition
// occurred, or nil otherwise.
func (m *Machine) Advance(dtMs int64) *protocol.Event {
	gs := m.session
	if gs.Phase == world.PhaseEnded || gs.DefconLevel <= 1 {
		return nil
	}

	elapsed := dtMs * int64(gs.GameSpeed)
	gs.DefconMsRemaining -= elapsed
	if gs.DefconMsRemaining > 0 {
		return nil
	}

	newLevel := gs.DefconLevel - 1
	gs.DefconLevel = newLevel
	gs.DefconMsRemaining = gs.Config.DefconDurationsMs[newLevel]
	gs.Phase = phaseForLevel(newLevel)

	return &protocol.Event{
		Type: protocol.EventDefconChange,
		Data: map[string]any{"newLevel": newLevel},
	}
}

// ForceLevel jumps the machine directly to a level via the authorized
// debug command.
// It refuses to move backward — DEFCON is monotonically non-increasing
// within a session (invariant).
func (m *Machine) ForceLevel(level int) bool {
	gs := m.session
	if level < 1 || level > 5 || level >= gs.DefconLevel {
		return false
	}
	gs.DefconLevel = level
	gs.DefconMsRemaining = gs.Config.DefconDurationsMs[level]
	gs.Phase = phaseForLevel(level)
	return true
}

// SkipTimer zeroes the remaining timer so the next Advance call forces an
// immediate transition, backing the debug "skip_timer" command.
func (m *Machine) SkipTimer() {
	m.session.DefconMsRemaining = 0
}

func phaseForLevel(level int) world.Phase {
	switch {
	case level == 5:
		return world.PhasePlacement
	case level == 1:
		return world.PhaseLaunch
	default:
		return world.PhaseEscalation
	}
}

// CanPlaceBuildings reports whether building placement is currently
// authorized (DEFCON 5 only).
func (m *Machine) CanPlaceBuildings() bool { return m.session.DefconLevel == 5 }

// CanLaunchOffensive reports whether offensive missile launches are
// currently authorized (DEFCON 1 only).
func (m *Machine) CanLaunchOffensive() bool { return m.session.DefconLevel == 1 }

// CanLaunchSatellites reports whether satellite launches are authorized —
// from DEFCON 4 downward.
func (m *Machine) CanLaunchSatellites() bool { return m.session.DefconLevel <= 4 }

// HackingVisibilityLevel returns how many enemy buildings a scan may
// reveal at the current DEFCON level: scans widen at lower (more
// escalated) levels.
func (m *Machine) HackingVisibilityLevel() int {
	switch m.session.DefconLevel {
	case 5:
		return 1
	case 4:
		return 2
	case 3:
		return 3
	case 2:
		return 4
	default:
		return 5
	}
}
