// Package lobby implements pre-game matchmaking: creating and
// joining a lobby, selecting a territory, readying up, and starting a
// session. Grounded on the source's Server.clients/register/unregister
// pattern (server/websocket.go) — a mutex-guarded map mutated only through
// narrow methods — generalized from a single global connection table to
// many independent lobby rooms, each with its own membership list.
package lobby

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lab1702/defcon-server/internal/catalog"
	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

// Member is one connection's seat in a lobby.
type Member struct {
	ConnectionID string `json:"connectionId"`
	PlayerID     string `json:"playerId"`
	Name         string `json:"name"`
	Ready        bool   `json:"ready"`
	TerritoryID  string `json:"territoryId,omitempty"`
}

// Lobby is one pre-game room.
type Lobby struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	HostID   string    `json:"hostId"`
	Config   world.Config `json:"-"`
	Members  []*Member `json:"members"`
}

// minMembersToStart is the minimum roster size Start requires.
const minMembersToStart = 2

// Registry owns every active lobby, the catalog it builds sessions from,
// and logging, grounded on the source's Server struct's single
// mutex-guarded clients map.
type Registry struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
	doc     *catalog.Document
	log     *logrus.Entry
}

// NewRegistry builds an empty registry bound to a catalog document.
func NewRegistry(doc *catalog.Document, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{lobbies: make(map[string]*Lobby), doc: doc, log: log}
}

// Create allocates a new lobby with hostConnectionID as its first member
// and host.
func (r *Registry) Create(hostConnectionID, hostName, lobbyName string) *Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := &Lobby{
		ID:     uuid.NewString(),
		Name:   protocol.SanitizeLobbyName(lobbyName),
		HostID: hostConnectionID,
		Config: r.doc.ResolvedRules(),
	}
	member := &Member{ConnectionID: hostConnectionID, PlayerID: uuid.NewString(), Name: protocol.SanitizeName(hostName)}
	l.Members = append(l.Members, member)
	r.lobbies[l.ID] = l
	r.log.WithFields(logrus.Fields{"lobbyId": l.ID, "host": member.Name}).Info("lobby created")
	return l
}

// List returns every open lobby, for the initial lobby_list broadcast on
// connection.
func (r *Registry) List() []*Lobby {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		out = append(out, l)
	}
	return out
}

// Get returns a lobby by id.
func (r *Registry) Get(lobbyID string) (*Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lobbies[lobbyID]
	return l, ok
}

// Join appends a new member to lobbyID if capacity remains. Capacity is
// bounded by the catalog's total territory count, since every member
// ultimately needs one.
func (r *Registry) Join(lobbyID, connectionID, name string) (*Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return nil, protocol.New(protocol.ErrLobbyNotFound, "lobby %s not found", lobbyID)
	}
	if len(l.Members) >= len(r.doc.Territories) {
		return nil, protocol.New(protocol.ErrLobbyFull, "lobby %s is full", lobbyID)
	}
	member := &Member{ConnectionID: connectionID, PlayerID: uuid.NewString(), Name: protocol.SanitizeName(name)}
	l.Members = append(l.Members, member)
	return member, nil
}

// Leave removes a connection's member from its lobby, transferring host
// if the host left and dissolving the lobby if it becomes empty.
func (r *Registry) Leave(lobbyID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return
	}
	for i, m := range l.Members {
		if m.ConnectionID == connectionID {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			break
		}
	}
	if len(l.Members) == 0 {
		delete(r.lobbies, lobbyID)
		return
	}
	if l.HostID == connectionID {
		l.HostID = l.Members[0].ConnectionID
	}
}

// SelectTerritory assigns a territory to a member, rejecting the call if
// another member already holds it.
func (r *Registry) SelectTerritory(lobbyID, connectionID, territoryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return protocol.New(protocol.ErrLobbyNotFound, "lobby %s not found", lobbyID)
	}
	for _, m := range l.Members {
		if m.TerritoryID == territoryID && m.ConnectionID != connectionID {
			return protocol.New(protocol.ErrTerritoryTaken, "territory %s already selected", territoryID)
		}
	}
	for _, m := range l.Members {
		if m.ConnectionID == connectionID {
			m.TerritoryID = territoryID
			return nil
		}
	}
	return protocol.New(protocol.ErrUnauthorized, "caller is not a member of lobby %s", lobbyID)
}

// SetReady toggles a member's ready flag.
func (r *Registry) SetReady(lobbyID, connectionID string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return protocol.New(protocol.ErrLobbyNotFound, "lobby %s not found", lobbyID)
	}
	for _, m := range l.Members {
		if m.ConnectionID == connectionID {
			m.Ready = ready
			return nil
		}
	}
	return protocol.New(protocol.ErrUnauthorized, "caller is not a member of lobby %s", lobbyID)
}

// AvailableTerritories returns the catalog territories not yet claimed by
// any member; availability is derived on the fly rather than stored.
func (r *Registry) AvailableTerritories(lobbyID string) ([]catalog.TerritoryDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return nil, protocol.New(protocol.ErrLobbyNotFound, "lobby %s not found", lobbyID)
	}
	taken := make(map[string]bool, len(l.Members))
	for _, m := range l.Members {
		if m.TerritoryID != "" {
			taken[m.TerritoryID] = true
		}
	}
	return r.doc.AvailableTerritories(taken), nil
}

// Start validates start preconditions (host-only, at least
// minMembersToStart members, all ready with a territory) and builds the
// GameSession for lobbyID. The lobby is removed from the registry on
// success since every member transitions to the new session.
func (r *Registry) Start(lobbyID, callerConnectionID string) (*world.GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return nil, protocol.New(protocol.ErrLobbyNotFound, "lobby %s not found", lobbyID)
	}
	if l.HostID != callerConnectionID {
		return nil, protocol.New(protocol.ErrUnauthorized, "only the host may start the session")
	}
	if len(l.Members) < minMembersToStart {
		return nil, protocol.New(protocol.ErrStartPreconditions, "at least %d members are required", minMembersToStart)
	}
	for _, m := range l.Members {
		if !m.Ready || m.TerritoryID == "" {
			return nil, protocol.New(protocol.ErrStartPreconditions, "member %s is not ready or has no territory", m.Name)
		}
	}

	gs := world.NewGameSession(uuid.NewString(), l.Config)
	for _, territoryDef := range r.doc.Territories {
		cityIDs := make([]string, 0, len(territoryDef.Cities))
		for _, cityDef := range territoryDef.Cities {
			cityIDs = append(cityIDs, cityDef.ID)
			gs.Cities[cityDef.ID] = &world.City{
				ID: cityDef.ID, TerritoryID: territoryDef.ID, GeoPosition: cityDef.GeoPos,
				Population: cityDef.Population, MaxPopulation: cityDef.Population,
			}
		}
		gs.Territories[territoryDef.ID] = &world.Territory{
			ID: territoryDef.ID, Name: territoryDef.Name,
			BoundaryPolygon: territoryDef.BoundaryPolygon, CityIDs: cityIDs,
			StartingPositions: territoryDef.StartingPositions,
		}
	}
	for _, m := range l.Members {
		var startingPopulation int64
		if territory, ok := gs.Territories[m.TerritoryID]; ok {
			territory.OwnerID = m.PlayerID
			for _, cityID := range territory.CityIDs {
				if city, ok := gs.Cities[cityID]; ok {
					startingPopulation += city.Population
				}
			}
		}
		gs.Players[m.PlayerID] = &world.Player{
			ID: m.PlayerID, Name: m.Name, TerritoryID: m.TerritoryID, Ready: true,
			PopulationRemaining: startingPopulation,
		}
	}
	for _, nodeDef := range r.doc.HackingNodes {
		gs.HackingNodes[nodeDef.ID] = &world.HackingNode{ID: nodeDef.ID, GeoPos: nodeDef.GeoPos, Up: true}
	}
	for _, linkDef := range r.doc.HackingLinks {
		id := fmt.Sprintf("%s-%s", linkDef.NodeA, linkDef.NodeB)
		gs.HackingConnections[id] = &world.HackingConnection{ID: id, NodeA: linkDef.NodeA, NodeB: linkDef.NodeB, Up: true}
	}

	delete(r.lobbies, lobbyID)
	r.log.WithField("sessionId", gs.ID).Info("session started from lobby")
	return gs, nil
}
