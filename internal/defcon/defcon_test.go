package defcon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab1702/defcon-server/internal/world"
)

func newTestSession() *world.GameSession {
	cfg := world.Config{
		DefconDurationsMs: map[int]int64{5: 1000, 4: 1000, 3: 1000, 2: 1000, 1: 1000},
	}
	return world.NewGameSession("s1", cfg)
}

func TestAdvanceDoesNothingBeforeExpiry(t *testing.T) {
	gs := newTestSession()
	m := New(gs)
	evt := m.Advance(500)
	assert.Nil(t, evt)
	assert.Equal(t, 5, gs.DefconLevel)
}

func TestAdvanceTransitionsOnExpiry(t *testing.T) {
	gs := newTestSession()
	m := New(gs)
	evt := m.Advance(1000)
	require.NotNil(t, evt)
	assert.Equal(t, "defcon_change", evt.Type)
	assert.Equal(t, 4, gs.DefconLevel)
	assert.Equal(t, world.PhaseEscalation, gs.Phase)
}

func TestAdvanceStopsAtDefcon1(t *testing.T) {
	gs := newTestSession()
	gs.DefconLevel = 1
	gs.DefconMsRemaining = 0
	m := New(gs)
	evt := m.Advance(1000)
	assert.Nil(t, evt)
	assert.Equal(t, 1, gs.DefconLevel)
}

func TestDefconMonotonicAcrossManyAdvances(t *testing.T) {
	gs := newTestSession()
	m := New(gs)
	prev := gs.DefconLevel
	for i := 0; i < 10_000; i++ {
		m.Advance(100)
		require.LessOrEqual(t, gs.DefconLevel, prev)
		prev = gs.DefconLevel
	}
}

func TestForceLevelRefusesBackward(t *testing.T) {
	gs := newTestSession()
	gs.DefconLevel = 3
	m := New(gs)
	assert.False(t, m.ForceLevel(4))
	assert.True(t, m.ForceLevel(2))
	assert.Equal(t, 2, gs.DefconLevel)
}

func TestPermissionGatesByLevel(t *testing.T) {
	gs := newTestSession()
	m := New(gs)
	assert.True(t, m.CanPlaceBuildings())
	assert.False(t, m.CanLaunchOffensive())

	gs.DefconLevel = 1
	assert.False(t, m.CanPlaceBuildings())
	assert.True(t, m.CanLaunchOffensive())
}
