// Package hacking implements the cyber-warfare subsystem:
// network topology, route finding, hack progress/trace advancement, and
// compromise effects. The source repo has no direct analogue (netrek has
// no hacking mechanic); route finding is implemented as a plain
// breadth-first search over the static node graph, justified in DESIGN.md
// as a small, self-contained graph algorithm with no natural third-party
// library home in the example pack.
package hacking

import (
	"github.com/google/uuid"

	"github.com/lab1702/defcon-server/internal/protocol"
	"github.com/lab1702/defcon-server/internal/world"
)

// Graph is the static hacking network topology shared by every session
// derived from the same catalog document.
type Graph struct {
	nodes map[string]*world.HackingNode
	adj   map[string][]string
}

// NewGraph builds a Graph from catalog nodes and connections.
func NewGraph(nodes map[string]*world.HackingNode, conns map[string]*world.HackingConnection) *Graph {
	g := &Graph{nodes: nodes, adj: make(map[string][]string)}
	for _, c := range conns {
		if !c.Up {
			continue
		}
		g.adj[c.NodeA] = append(g.adj[c.NodeA], c.NodeB)
		g.adj[c.NodeB] = append(g.adj[c.NodeB], c.NodeA)
	}
	return g
}

// ShortestPath returns the node id sequence from start to end via a
// breadth-first search over up links, or nil if no path exists.
func (g *Graph) ShortestPath(start, end string) []string {
	if start == end {
		return []string{start}
	}
	visited := map[string]bool{start: true}
	prev := map[string]string{}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.adj[cur] {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = cur
			if next == end {
				return reconstructPath(prev, start, end)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func reconstructPath(prev map[string]string, start, end string) []string {
	path := []string{end}
	for cur := end; cur != start; {
		cur = prev[cur]
		path = append([]string{cur}, path...)
	}
	return path
}

// NearestNode returns the id of the hacking node closest (by BFS hop
// count from start) among candidates, used to anchor a hack's route to
// the node nearest the defender's building.
func (g *Graph) NearestNode(from string, candidates []string) string {
	best := ""
	bestHops := -1
	for _, c := range candidates {
		path := g.ShortestPath(from, c)
		if path == nil {
			continue
		}
		if bestHops == -1 || len(path) < bestHops {
			bestHops = len(path)
			best = c
		}
	}
	return best
}

// Start validates and begins a new hack. The route defaults to the
// shortest path from the attacker's source node to the node nearest the
// target, and is rejected if the attacker already runs an overlapping
// hack against the same target.
func Start(gs *world.GameSession, graph *Graph, attackerPlayerID, targetBuildingID string, hackType world.HackType, sourceNodeID, nearestToTargetNodeID string, explicitRoute []string) (*world.HackingTrace, error) {
	for _, t := range gs.HackingTraces {
		if t.AttackerPlayerID == attackerPlayerID && t.TargetBuildingID == targetBuildingID && t.HackType == hackType &&
			(t.Status == world.HackRouting || t.Status == world.HackActive) {
			return nil, protocol.New(protocol.ErrUnauthorized, "overlapping hack already in progress against %s", targetBuildingID)
		}
	}

	route := explicitRoute
	if len(route) == 0 {
		route = graph.ShortestPath(sourceNodeID, nearestToTargetNodeID)
		if route == nil {
			return nil, protocol.New(protocol.ErrUnauthorized, "no route from %s to %s", sourceNodeID, nearestToTargetNodeID)
		}
	}

	trace := &world.HackingTrace{
		ID:               uuid.NewString(),
		AttackerPlayerID: attackerPlayerID,
		TargetBuildingID: targetBuildingID,
		HackType:         hackType,
		Status:           world.HackRouting,
		RouteNodeIDs:     route,
	}
	gs.HackingTraces[trace.ID] = trace
	return trace, nil
}

// Disconnect aborts an attacker-initiated hack with no compromise applied.
func Disconnect(gs *world.GameSession, callerPlayerID, hackID string) error {
	trace, ok := gs.HackingTraces[hackID]
	if !ok {
		return protocol.New(protocol.ErrUnauthorized, "hack %s not found", hackID)
	}
	if trace.AttackerPlayerID != callerPlayerID {
		return protocol.New(protocol.ErrUnauthorized, "hack %s not owned by caller", hackID)
	}
	delete(gs.HackingTraces, hackID)
	return nil
}

// Purge removes a compromise from a defender-owned building.
func Purge(gs *world.GameSession, callerPlayerID, targetBuildingID string) error {
	b, ok := gs.Buildings[targetBuildingID]
	if !ok || b.OwnerID != callerPlayerID {
		return protocol.New(protocol.ErrUnauthorized, "building %s not owned by caller", targetBuildingID)
	}
	for id, t := range gs.HackingTraces {
		if t.TargetBuildingID == targetBuildingID && t.Status == world.HackComplete {
			revertCompromise(gs, t)
			delete(gs.HackingTraces, id)
		}
	}
	return nil
}

// TracesAgainst returns every trace currently targeting a building owned
// by playerID, for a defender's incoming-trace report.
func TracesAgainst(gs *world.GameSession, playerID string) []*world.HackingTrace {
	var out []*world.HackingTrace
	for _, t := range gs.HackingTraces {
		if b, ok := gs.Buildings[t.TargetBuildingID]; ok && b.OwnerID == playerID {
			out = append(out, t)
		}
	}
	return out
}

// ScanResult is the subset of enemy buildings revealed by a scan at the
// current DEFCON visibility level.
type ScanResult struct {
	BuildingIDs []string
}

// Scan reveals up to visibilityLevel enemy buildings to the requester,
// delivered to the requester only.
func Scan(gs *world.GameSession, callerPlayerID string, visibilityLevel int) ScanResult {
	var revealed []string
	for _, b := range gs.Buildings {
		if b.OwnerID == callerPlayerID || b.Destroyed {
			continue
		}
		revealed = append(revealed, b.ID)
		if len(revealed) >= visibilityLevel {
			break
		}
	}
	return ScanResult{BuildingIDs: revealed}
}
