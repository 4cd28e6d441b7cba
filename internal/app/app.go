// Package app wires the connection manager, lobby registry, and running
// sessions into one addressable unit, grounded on the source's Server
// struct (server/websocket.go) — the same "one object owns the
// connection table, the game state, and the HTTP handlers" shape — split
// here across lobby.Registry (pre-game) and sim.Session (in-game) since a
// DEFCON match, unlike a single shared netrek galaxy, runs many
// concurrent independent sessions.
package app

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lab1702/defcon-server/internal/catalog"
	"github.com/lab1702/defcon-server/internal/hacking"
	"github.com/lab1702/defcon-server/internal/lobby"
	"github.com/lab1702/defcon-server/internal/netconn"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/sim"
	"github.com/lab1702/defcon-server/internal/world"
)

// App is the process-wide server: one connection manager, one lobby
// registry, and a supervised set of running sessions.
type App struct {
	log      *logrus.Entry
	doc      *catalog.Document
	lobbies  *lobby.Registry
	conns    *netconn.Manager

	mu       sync.RWMutex
	sessions map[string]*sim.Session
	cancels  map[string]context.CancelFunc
}

// New builds an App bound to doc. log defaults to the standard logger
// when nil, matching the source's package-level log.Printf convention but
// routed through structured logging per the ambient stack.
func New(doc *catalog.Document, log *logrus.Entry) *App {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	a := &App{
		log:      log,
		doc:      doc,
		lobbies:  lobby.NewRegistry(doc, log.WithField("component", "lobby")),
		sessions: make(map[string]*sim.Session),
		cancels:  make(map[string]context.CancelFunc),
	}
	a.conns = netconn.New(a.handleMessage, a.handleClose, a.handleConnect, log.WithField("component", "netconn"))
	return a
}

// ServeWebSocket upgrades and registers a new connection.
func (a *App) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	a.conns.Upgrade(w, r)
}

// ServeHealth reports process liveness for a load balancer or operator,
// grounded on the source's inline /health handler (main.go).
func (a *App) ServeHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ServeSessionStats reports per-session player counts and scores,
// grounded on the source's HandleTeamStats (server/websocket.go), adapted
// from a single galaxy's per-team roster to this server's per-session
// roster since there is no fixed team roster here.
func (a *App) ServeSessionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	a.mu.RLock()
	defer a.mu.RUnlock()

	type sessionSummary struct {
		SessionID   string           `json:"sessionId"`
		DefconLevel int              `json:"defconLevel"`
		Players     int              `json:"players"`
		Scores      map[string]int64 `json:"scores"`
	}
	summaries := make([]sessionSummary, 0, len(a.sessions))
	for id, s := range a.sessions {
		scores := make(map[string]int64, len(s.GS.Players))
		for _, p := range s.GS.Players {
			scores[p.Name] = p.Score
		}
		summaries = append(summaries, sessionSummary{
			SessionID: id, DefconLevel: s.GS.DefconLevel, Players: len(s.GS.Players), Scores: scores,
		})
	}
	json.NewEncoder(w).Encode(map[string]any{"sessions": summaries})
}

// handleMessage routes one inbound frame to either the lobby registry or
// a running session's command queue, depending on the connection's
// current attachment.
func (a *App) handleMessage(connID string, msg protocol.ClientMessage) {
	playerID, lobbyID, gameID, ok := a.conns.Lookup(connID)
	if !ok {
		return
	}

	switch msg.Type {
	case protocol.TypeCreateLobby:
		a.handleCreateLobby(connID, msg)
		return
	case protocol.TypeJoinLobby:
		a.handleJoinLobby(connID, msg)
		return
	}

	if gameID != "" {
		if s := a.session(gameID); s != nil {
			s.Enqueue(sim.Command{PlayerID: playerID, Type: msg.Type, Data: msg.Data})
		}
		return
	}
	if lobbyID != "" {
		a.handleLobbyCommand(connID, lobbyID, msg)
	}
}

func (a *App) handleCreateLobby(connID string, msg protocol.ClientMessage) {
	var data protocol.CreateLobbyData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		a.conns.Send(connID, protocol.ServerMessage{Type: protocol.TypeError, Data: protocol.New(protocol.ErrInvalidMessage, "malformed create_lobby payload")})
		return
	}
	l := a.lobbies.Create(connID, data.PlayerName, data.LobbyName)
	a.conns.Attach(connID, l.Members[0].PlayerID, l.ID, "")
	a.conns.Send(connID, protocol.ServerMessage{Type: protocol.TypeLobbyUpdate, Data: l})
}

func (a *App) handleJoinLobby(connID string, msg protocol.ClientMessage) {
	var data protocol.JoinLobbyData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		a.conns.Send(connID, protocol.ServerMessage{Type: protocol.TypeError, Data: protocol.New(protocol.ErrInvalidMessage, "malformed join_lobby payload")})
		return
	}
	member, err := a.lobbies.Join(data.LobbyID, connID, data.PlayerName)
	if err != nil {
		a.conns.Send(connID, protocol.ServerMessage{Type: protocol.TypeLobbyError, Data: err})
		return
	}
	a.conns.Attach(connID, member.PlayerID, data.LobbyID, "")
	a.broadcastLobby(data.LobbyID)
}

func (a *App) handleLobbyCommand(connID, lobbyID string, msg protocol.ClientMessage) {
	var err error
	switch msg.Type {
	case protocol.TypeLeaveLobby:
		a.lobbies.Leave(lobbyID, connID)
		a.conns.Attach(connID, "", "", "")
		a.broadcastLobby(lobbyID)
		return
	case protocol.TypeSelectTerritory:
		var data protocol.SelectTerritoryData
		if jerr := json.Unmarshal(msg.Data, &data); jerr == nil {
			err = a.lobbies.SelectTerritory(lobbyID, connID, data.TerritoryID)
		}
	case protocol.TypeSetReady:
		var data protocol.SetReadyData
		if jerr := json.Unmarshal(msg.Data, &data); jerr == nil {
			err = a.lobbies.SetReady(lobbyID, connID, data.Ready)
		}
	case protocol.TypeStartGame:
		a.handleStartGame(connID, lobbyID)
		return
	default:
		return
	}
	if err != nil {
		a.conns.Send(connID, protocol.ServerMessage{Type: protocol.TypeLobbyError, Data: err})
		return
	}
	a.broadcastLobby(lobbyID)
}

func (a *App) broadcastLobby(lobbyID string) {
	l, ok := a.lobbies.Get(lobbyID)
	if !ok {
		return
	}
	connIDs := make([]string, 0, len(l.Members))
	for _, m := range l.Members {
		connIDs = append(connIDs, m.ConnectionID)
	}
	a.conns.Broadcast(protocol.ServerMessage{Type: protocol.TypeLobbyUpdate, Data: l}, connIDs)
}

func (a *App) handleStartGame(connID, lobbyID string) {
	l, ok := a.lobbies.Get(lobbyID)
	if !ok {
		a.conns.Send(connID, protocol.ServerMessage{Type: protocol.TypeLobbyError, Data: protocol.New(protocol.ErrLobbyNotFound, "lobby not found")})
		return
	}
	members := append([]*lobby.Member{}, l.Members...)

	gs, err := a.lobbies.Start(lobbyID, connID)
	if err != nil {
		a.conns.Send(connID, protocol.ServerMessage{Type: protocol.TypeLobbyError, Data: err})
		return
	}

	s := a.startSession(gs)

	for _, m := range members {
		a.conns.Attach(m.ConnectionID, m.PlayerID, "", gs.ID)
		a.conns.Send(m.ConnectionID, protocol.ServerMessage{Type: protocol.TypeGameStart, Data: s.Snapshot(m.PlayerID)})
	}
}

// startSession builds the hacking topology graph for gs, registers a
// Session under a cancellable context, and launches its tick loop and
// outbound pump as independent goroutines.
func (a *App) startSession(gs *world.GameSession) *sim.Session {
	graph := hacking.NewGraph(gs.HackingNodes, gs.HackingConnections)
	out := make(chan sim.Outbound, 1024)
	s := sim.New(gs, graph, seedFromSessionID(gs.ID), out, a.log.WithField("component", "sim"))

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.sessions[gs.ID] = s
	a.cancels[gs.ID] = cancel
	a.mu.Unlock()

	go a.pumpOutbound(gs.ID, out)
	go func() {
		_ = s.Run(ctx)
		a.mu.Lock()
		delete(a.sessions, gs.ID)
		delete(a.cancels, gs.ID)
		a.mu.Unlock()
	}()
	return s
}

// pumpOutbound forwards a session's addressed frames to their owning
// connections, resolving playerID -> connID through the connection
// manager's routing table.
func (a *App) pumpOutbound(sessionID string, out <-chan sim.Outbound) {
	for frame := range out {
		if connID, ok := a.conns.ConnForPlayer(frame.PlayerID); ok {
			a.conns.Send(connID, frame.Message)
		}
	}
}

func (a *App) session(gameID string) *sim.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessions[gameID]
}

// Shutdown cancels every running session's tick loop, mirroring the
// source's Server.Shutdown signaling its background goroutines to stop
// before the HTTP server itself is torn down.
func (a *App) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cancel := range a.cancels {
		cancel()
	}
}

// handleConnect sends the current lobby list to a newly registered
// connection, so a client can render the join screen before creating or
// joining anything.
func (a *App) handleConnect(connID string) {
	a.conns.Send(connID, protocol.ServerMessage{Type: protocol.TypeLobbyList, Data: a.lobbies.List()})
}

func (a *App) handleClose(connID string) {
	_, lobbyID, _, ok := a.conns.Lookup(connID)
	if ok && lobbyID != "" {
		a.lobbies.Leave(lobbyID, connID)
		a.broadcastLobby(lobbyID)
	}
}

// seedFromSessionID derives a deterministic RNG seed from a session id's
// bytes so two servers given the same session id and command sequence
// resolve identically.
func seedFromSessionID(id string) int64 {
	var seed int64
	for _, r := range id {
		seed = seed*31 + int64(r)
	}
	return seed
}
