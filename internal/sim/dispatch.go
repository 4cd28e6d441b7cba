package sim

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/lab1702/defcon-server/internal/ballistics"
	"github.com/lab1702/defcon-server/internal/geodesy"
	"github.com/lab1702/defcon-server/internal/hacking"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/satellites"
	"github.com/lab1702/defcon-server/internal/world"
)

// drainCommands processes every command queued since the last tick, in
// arrival order, preserving per-connection ordering. Authorization
// failures and malformed payloads are reported back to the issuing
// player only; they never abort the tick.
func (s *Session) drainCommands() {
	for {
		select {
		case cmd := <-s.commands:
			s.dispatch(cmd)
		default:
			return
		}
	}
}

func (s *Session) dispatch(cmd Command) {
	switch cmd.Type {
	case protocol.TypePlaceBuilding:
		s.handlePlaceBuilding(cmd)
	case protocol.TypeLaunchMissile:
		s.handleLaunchMissile(cmd)
	case protocol.TypeSetSiloMode:
		s.handleSetSiloMode(cmd)
	case protocol.TypeLaunchSatellite:
		s.handleLaunchSatellite(cmd)
	case protocol.TypeSetGameSpeed:
		s.handleSetGameSpeed(cmd)
	case protocol.TypeHackScan:
		s.handleHackScan(cmd)
	case protocol.TypeHackStart:
		s.handleHackStart(cmd)
	case protocol.TypeHackDisconnect:
		s.handleHackDisconnect(cmd)
	case protocol.TypeHackPurge:
		s.handleHackPurge(cmd)
	case protocol.TypeHackTrace:
		s.handleHackTrace(cmd)
	case protocol.TypeManualIntercept:
		s.handleManualIntercept(cmd)
	case protocol.TypeRequestIntercept:
		s.handleRequestInterceptInfo(cmd)
	case protocol.TypeEnableAI:
		s.handleEnableAI(cmd)
	case protocol.TypeDisableAI:
		s.handleDisableAI(cmd)
	case protocol.TypeDebug:
		s.handleDebug(cmd)
	case protocol.TypePing:
		s.handlePing(cmd)
	default:
		s.log.WithField("type", cmd.Type).Debug("unrecognized command type")
	}
}

func (s *Session) fail(playerID string, err error) {
	perr, ok := err.(*protocol.Error)
	if !ok {
		perr = protocol.New(protocol.ErrInvalidMessage, "%v", err)
	}
	s.send(playerID, protocol.ServerMessage{Type: protocol.TypeError, Data: perr})
}

// handlePlaceBuilding validates placement authorization: only permitted
// at DEFCON 5, and only for a caller with an assigned territory.
func (s *Session) handlePlaceBuilding(cmd Command) {
	if !s.defconMachine.CanPlaceBuildings() {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrNotPermittedAtDefcon, "placement only permitted at DEFCON 5"))
		return
	}
	var data protocol.PlaceBuildingData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed place_building payload"))
		return
	}
	player, ok := s.GS.Players[cmd.PlayerID]
	if !ok || player.TerritoryID == "" {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrUnauthorized, "caller has no assigned territory"))
		return
	}
	if world.BuildingType(data.Type) == world.BuildingSilo && s.siloCountFor(cmd.PlayerID) >= s.GS.Config.MaxSilosPerPlayer {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrCapacityReached, "silo limit of %d reached", s.GS.Config.MaxSilosPerPlayer))
		return
	}

	b := &world.Building{
		ID:          uuid.NewString(),
		OwnerID:     cmd.PlayerID,
		Type:        world.BuildingType(data.Type),
		GeoPosition: geoFromPayload(data.Position),
	}
	switch b.Type {
	case world.BuildingSilo:
		b.Silo = &world.SiloData{Mode: world.SiloDefend, MissileAmmo: s.GS.Config.StartingMissileAmmo, InterceptorAmmo: s.GS.Config.StartingInterceptorAmmo}
	case world.BuildingRadar:
		b.Radar = &world.RadarData{RangeKm: 1500, Active: true}
	case world.BuildingAirfield:
		b.Airfield = &world.AirfieldData{FighterAmmo: 4, BomberAmmo: 2}
	case world.BuildingSatelliteFacility:
		b.SatelliteFacility = &world.SatelliteFacilityData{SatelliteStock: 2, LaunchCooldownMs: 30_000}
	default:
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "unknown building type %q", data.Type))
		return
	}
	s.GS.Buildings[b.ID] = b
}

// siloCountFor counts playerID's non-destroyed silos, for enforcing
// Config.MaxSilosPerPlayer.
func (s *Session) siloCountFor(playerID string) int {
	n := 0
	for _, b := range s.GS.Buildings {
		if b.OwnerID == playerID && b.Type == world.BuildingSilo && !b.Destroyed {
			n++
		}
	}
	return n
}

func (s *Session) handleLaunchMissile(cmd Command) {
	var data protocol.LaunchMissileData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed launch_missile payload"))
		return
	}
	if data.TargetSatelliteID != "" {
		s.handleSatelliteInterceptorLaunch(cmd.PlayerID, data)
		return
	}
	if data.TargetID != "" {
		s.handleInterceptorLaunch(cmd.PlayerID, data)
		return
	}
	target := geoFromPayload(data.TargetPosition)
	_, evt, err := s.ballisticsSim.LaunchICBM(cmd.PlayerID, data.SiloID, target, s.GS.Tick)
	if err != nil {
		s.fail(cmd.PlayerID, err)
		return
	}
	if evt != nil {
		s.publishSingle(*evt)
	}
}

func (s *Session) handleInterceptorLaunch(playerID string, data protocol.LaunchMissileData) {
	target, ok := s.GS.Missiles[data.TargetID]
	if !ok {
		s.fail(playerID, protocol.New(protocol.ErrUnauthorized, "target missile %s not found", data.TargetID))
		return
	}
	radars := s.GS.RadarsOwnedBy(playerID)
	_, _, err := s.ballisticsSim.LaunchInterceptor(playerID, data.SiloID, target.ID, radars, 120, s.GS.Tick)
	if err != nil {
		s.fail(playerID, err)
	}
}

func (s *Session) handleSatelliteInterceptorLaunch(playerID string, data protocol.LaunchMissileData) {
	_, _, err := s.ballisticsSim.LaunchInterceptorAtSatellite(playerID, data.SiloID, data.TargetSatelliteID, s.GS.Tick)
	if err != nil {
		s.fail(playerID, err)
	}
}

// handleRequestInterceptInfo reports, per owned silo with interceptor
// ammo, whether a rail search currently finds a reachable engagement
// point against the requested target ICBM — a preview so a client can
// choose a silo before committing ammo to manual_intercept.
func (s *Session) handleRequestInterceptInfo(cmd Command) {
	var data protocol.RequestInterceptInfoData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed request_intercept_info payload"))
		return
	}
	target, ok := s.GS.Missiles[data.TargetMissileID]
	if !ok || target.Kind != world.MissileICBM {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrUnauthorized, "target missile %s not found", data.TargetMissileID))
		return
	}

	silos := s.GS.SilosOwnedBy(cmd.PlayerID)
	options := make([]map[string]any, 0, len(silos))
	for _, silo := range silos {
		if silo.Silo.InterceptorAmmo <= 0 {
			continue
		}
		point, reachable := ballistics.FindInterceptPoint(target, silo.GeoPosition, ballistics.InterceptorSpeedKmPerSec, 120)
		options = append(options, map[string]any{
			"siloId": silo.ID, "reachable": reachable,
			"interceptProgress": point.Progress, "travelTimeSec": point.InterceptorTravelTimeSec,
		})
	}
	s.send(cmd.PlayerID, protocol.ServerMessage{Type: protocol.TypeInterceptInfo, Data: map[string]any{
		"targetMissileId": data.TargetMissileID, "silos": options,
	}})
}

// handleEnableAI hands an unclaimed territory to a scripted AI player,
// making it visible to ai.Controller.Step the next tick.
func (s *Session) handleEnableAI(cmd Command) {
	var data protocol.EnableAIData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed enable_ai payload"))
		return
	}
	territory, ok := s.GS.Territories[data.Region]
	if !ok {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrUnauthorized, "territory %s not found", data.Region))
		return
	}
	if territory.OwnerID != "" {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrUnauthorized, "territory %s is already claimed", data.Region))
		return
	}

	var startingPopulation int64
	for _, cityID := range territory.CityIDs {
		if city, ok := s.GS.Cities[cityID]; ok {
			startingPopulation += city.Population
		}
	}
	aiID := uuid.NewString()
	s.GS.Players[aiID] = &world.Player{
		ID: aiID, Name: "AI " + territory.Name, TerritoryID: territory.ID,
		IsAI: true, Ready: true, PopulationRemaining: startingPopulation,
	}
	territory.OwnerID = aiID
}

// handleDisableAI removes the AI player controlling a territory, freeing
// it for a human to claim in a future lobby.
func (s *Session) handleDisableAI(cmd Command) {
	var data protocol.EnableAIData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed disable_ai payload"))
		return
	}
	territory, ok := s.GS.Territories[data.Region]
	if !ok {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrUnauthorized, "territory %s not found", data.Region))
		return
	}
	player, ok := s.GS.Players[territory.OwnerID]
	if !ok || !player.IsAI {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrUnauthorized, "territory %s has no AI player", data.Region))
		return
	}
	delete(s.GS.Players, player.ID)
	territory.OwnerID = ""
}

func (s *Session) handleManualIntercept(cmd Command) {
	var data protocol.ManualInterceptData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed manual_intercept payload"))
		return
	}
	radars := s.GS.RadarsOwnedBy(cmd.PlayerID)
	for _, siloID := range data.SiloIDs {
		if _, _, err := s.ballisticsSim.LaunchInterceptor(cmd.PlayerID, siloID, data.TargetMissileID, radars, 120, s.GS.Tick); err != nil {
			s.fail(cmd.PlayerID, err)
			return
		}
	}
}

func (s *Session) handleSetSiloMode(cmd Command) {
	var data protocol.SetSiloModeData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed set_silo_mode payload"))
		return
	}
	b, ok := s.GS.Buildings[data.SiloID]
	if !ok || b.OwnerID != cmd.PlayerID || b.Type != world.BuildingSilo {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrUnauthorized, "silo %s not owned by caller", data.SiloID))
		return
	}
	if s.GS.DefconLevel == 5 {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrNotPermittedAtDefcon, "mode changes unavailable during placement"))
		return
	}
	b.Silo.Mode = world.SiloMode(data.Mode)
}

func (s *Session) handleLaunchSatellite(cmd Command) {
	var data protocol.LaunchSatelliteData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed launch_satellite payload"))
		return
	}
	if !s.defconMachine.CanLaunchSatellites() {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrNotPermittedAtDefcon, "satellites unavailable at DEFCON 5"))
		return
	}
	_, evt, err := satellites.Launch(s.GS, cmd.PlayerID, data.FacilityID, data.InclinationDeg, s.GS.TimestampMs)
	if err != nil {
		s.fail(cmd.PlayerID, err)
		return
	}
	if evt != nil {
		s.publishSingle(*evt)
	}
}

func (s *Session) handleSetGameSpeed(cmd Command) {
	var data protocol.SetGameSpeedData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed set_game_speed payload"))
		return
	}
	if data.Speed != 1 && data.Speed != 2 && data.Speed != 5 {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "game speed must be one of 1, 2, 5"))
		return
	}
	s.GS.GameSpeed = data.Speed
}

func (s *Session) handleHackScan(cmd Command) {
	result := hacking.Scan(s.GS, cmd.PlayerID, s.defconMachine.HackingVisibilityLevel())
	s.send(cmd.PlayerID, protocol.ServerMessage{Type: protocol.TypeHackScanResult, Data: result})
}

func (s *Session) handleHackStart(cmd Command) {
	var data protocol.HackStartData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed hack_start payload"))
		return
	}
	target, ok := s.GS.Buildings[data.TargetBuildingID]
	if !ok {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrUnauthorized, "target building %s not found", data.TargetBuildingID))
		return
	}
	player, ok := s.GS.Players[cmd.PlayerID]
	if !ok || player.TerritoryID == "" {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrUnauthorized, "caller has no assigned territory"))
		return
	}
	sourceNode := s.hackGraph.NearestNode(player.TerritoryID, allNodeIDs(s.GS))
	nearestToTarget := s.hackGraph.NearestNode(sourceNode, allNodeIDs(s.GS))
	_, err := hacking.Start(s.GS, s.hackGraph, cmd.PlayerID, target.ID, world.HackType(data.HackType), sourceNode, nearestToTarget, data.RouteNodeIDs)
	if err != nil {
		s.fail(cmd.PlayerID, err)
	}
}

func allNodeIDs(gs *world.GameSession) []string {
	ids := make([]string, 0, len(gs.HackingNodes))
	for id := range gs.HackingNodes {
		ids = append(ids, id)
	}
	return ids
}

func (s *Session) handleHackDisconnect(cmd Command) {
	var data protocol.HackDisconnectData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed hack_disconnect payload"))
		return
	}
	if err := hacking.Disconnect(s.GS, cmd.PlayerID, data.HackID); err != nil {
		s.fail(cmd.PlayerID, err)
	}
}

func (s *Session) handleHackPurge(cmd Command) {
	var data protocol.HackPurgeData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed hack_purge payload"))
		return
	}
	if err := hacking.Purge(s.GS, cmd.PlayerID, data.TargetBuildingID); err != nil {
		s.fail(cmd.PlayerID, err)
	}
}

func (s *Session) handleHackTrace(cmd Command) {
	traces := hacking.TracesAgainst(s.GS, cmd.PlayerID)
	s.send(cmd.PlayerID, protocol.ServerMessage{Type: protocol.TypeIntrusionStatus, Data: traces})
}

func (s *Session) handleDebug(cmd Command) {
	var data protocol.DebugData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "malformed debug payload"))
		return
	}
	switch data.Command {
	case "set_defcon":
		if !s.defconMachine.ForceLevel(int(data.Value)) {
			s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "cannot set defcon to %v", data.Value))
		}
	case "advance_defcon":
		s.defconMachine.SkipTimer()
		if evt := s.defconMachine.Advance(0); evt != nil {
			s.publishSingle(*evt)
		}
	case "skip_timer":
		s.defconMachine.SkipTimer()
	case "add_missiles":
		s.handleDebugAddMissiles(cmd.PlayerID, data)
	case "launch_test_missiles":
		s.handleDebugLaunchTestMissiles(cmd.PlayerID, data)
	default:
		s.fail(cmd.PlayerID, protocol.New(protocol.ErrInvalidMessage, "unknown debug command %q", data.Command))
	}
}

// handleDebugAddMissiles refills missile and interceptor ammo across every
// silo the caller owns, by Value each (defaulting to 1 when Value<=0).
func (s *Session) handleDebugAddMissiles(playerID string, data protocol.DebugData) {
	n := int(data.Value)
	if n <= 0 {
		n = 1
	}
	for _, silo := range s.GS.SilosOwnedBy(playerID) {
		silo.Silo.MissileAmmo += n
		silo.Silo.InterceptorAmmo += n
	}
}

// handleDebugLaunchTestMissiles spawns n ICBMs (Value, default 1) targeting
// cities in the caller's own territory, launched from the antipodal point
// of each target so the flight is long enough to exercise defenses.
func (s *Session) handleDebugLaunchTestMissiles(playerID string, data protocol.DebugData) {
	n := int(data.Value)
	if n <= 0 {
		n = 1
	}
	player, ok := s.GS.Players[playerID]
	if !ok {
		s.fail(playerID, protocol.New(protocol.ErrUnauthorized, "caller has no player record"))
		return
	}
	territory, ok := s.GS.Territories[player.TerritoryID]
	if !ok {
		s.fail(playerID, protocol.New(protocol.ErrUnauthorized, "caller has no assigned territory"))
		return
	}
	var targets []*world.City
	for _, cityID := range territory.CityIDs {
		if city, ok := s.GS.Cities[cityID]; ok && !city.Destroyed {
			targets = append(targets, city)
		}
	}
	if len(targets) == 0 {
		s.fail(playerID, protocol.New(protocol.ErrUnauthorized, "caller's territory has no cities to target"))
		return
	}
	for i := 0; i < n; i++ {
		city := targets[i%len(targets)]
		launch := antipode(city.GeoPosition)
		m := s.ballisticsSim.SpawnTestICBM(playerID, launch, city.GeoPosition, s.GS.Tick)
		s.publishSingle(protocol.Event{Type: protocol.EventMissileLaunch, Data: map[string]any{
			"missileId": m.ID, "ownerId": playerID, "siloId": "",
		}})
	}
}

// antipode returns the point on the opposite side of the globe from p, used
// to manufacture a long-flight test launch point for a given target.
func antipode(p geodesy.GeoPoint) geodesy.GeoPoint {
	lon := p.LonDeg + 180
	if lon > 180 {
		lon -= 360
	}
	return geodesy.GeoPoint{LatDeg: -p.LatDeg, LonDeg: lon}
}

func (s *Session) handlePing(cmd Command) {
	var data protocol.PingData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		return
	}
	s.send(cmd.PlayerID, protocol.ServerMessage{Type: protocol.TypePong, Data: protocol.PongData{
		ClientTime: data.ClientTime, ServerTime: s.GS.TimestampMs,
	}})
}

// publishSingle sends an immediate single-event notice to every player in
// the session, used for events that should not wait for the next tick's
// delta (launch acknowledgements). No visibility filter is applied to it.
func (s *Session) publishSingle(evt protocol.Event) {
	for _, p := range s.GS.Players {
		s.send(p.ID, protocol.ServerMessage{Type: protocol.TypeGameDelta, Data: protocol.GameDeltaData{
			Tick: s.GS.Tick, DefconLevel: s.GS.DefconLevel, Events: []protocol.Event{evt},
		}})
	}
}

func geoFromPayload(p protocol.PositionData) geodesy.GeoPoint {
	return geodesy.GeoPoint{LatDeg: p.LatDeg, LonDeg: p.LonDeg}
}
