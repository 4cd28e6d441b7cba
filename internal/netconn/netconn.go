// Package netconn implements the connection manager: a table
// of WebSocket connections, per-connection read/write pumps, and rate
// limiting on inbound frames. Grounded directly on the source's
// Client/readPump/writePump trio (server/websocket.go) — the same
// 60s read deadline with pong-driven reset,
// and 54s ping ticker on the write side — generalized from a single
// global Server to many independently addressable connections that route
// into whichever lobby or session they're currently attached to.
package netconn

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/lab1702/defcon-server/internal/protocol"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
	sendBuffer    = 256

	// inboundRateLimit caps a single connection's command rate, well
	// above the 10 Hz tick so normal play is unaffected. A frame over the
	// limit is answered with an error and discarded; the connection stays
	// open (unlike a full outbound buffer, which drops the connection).
	inboundRateLimit = rate.Limit(30)
	inboundBurst     = 60
)

var upgrader = websocket.Upgrader{
	EnableCompression: true,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

// Handler receives every validated inbound command, keyed by the
// connection id that produced it. It is supplied by whatever owns
// lobby/session routing (app.App's handleMessage).
type Handler func(connID string, msg protocol.ClientMessage)

// CloseHandler is invoked once a connection's read pump exits, so the
// owner can detach it from its lobby/session.
type CloseHandler func(connID string)

// ConnectHandler is invoked once a connection is registered and its pumps
// are running, so the owner can push any initial state (the lobby list)
// before the client sends its first command.
type ConnectHandler func(connID string)

// Conn is one registered WebSocket connection.
type Conn struct {
	ID       string
	PlayerID string
	LobbyID  string
	GameID   string

	ws      *websocket.Conn
	send    chan protocol.ServerMessage
	limiter *rate.Limiter
	log     *logrus.Entry
}

// Manager owns the connection table. Mutations are guarded by a coarse
// lock with short critical sections; broadcast iterates over a snapshot
// taken under read lock.
type Manager struct {
	mu        sync.RWMutex
	conns     map[string]*Conn
	onClose   CloseHandler
	onMsg     Handler
	onConnect ConnectHandler
	log       *logrus.Entry
}

// New builds a connection manager. onMsg is called for every inbound
// frame (already envelope-parsed); onClose is called once a connection
// detaches; onConnect is called once a new connection is registered and
// its pumps are running.
func New(onMsg Handler, onClose CloseHandler, onConnect ConnectHandler, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{conns: make(map[string]*Conn), onMsg: onMsg, onClose: onClose, onConnect: onConnect, log: log}
}

// Upgrade accepts a WebSocket handshake and registers the resulting
// connection, starting its read and write pumps, mirroring the source's
// HandleWebSocket.
func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	c := &Conn{
		ID:      connID,
		ws:      ws,
		send:    make(chan protocol.ServerMessage, sendBuffer),
		limiter: rate.NewLimiter(inboundRateLimit, inboundBurst),
		log:     m.log.WithField("connId", connID),
	}

	m.mu.Lock()
	m.conns[c.ID] = c
	m.mu.Unlock()
	c.log.Info("connection registered")

	go m.writePump(c)
	go m.readPump(c)

	if m.onConnect != nil {
		m.onConnect(c.ID)
	}
}

func (m *Manager) readPump(c *Conn) {
	defer func() {
		m.mu.Lock()
		delete(m.conns, c.ID)
		m.mu.Unlock()
		c.ws.Close()
		if m.onClose != nil {
			m.onClose(c.ID)
		}
		c.log.Info("connection closed")
	}()

	c.ws.SetReadDeadline(time.Now().Add(readDeadline))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		var raw json.RawMessage
		if err := c.ws.ReadJSON(&raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("unexpected websocket close")
			}
			return
		}
		if !c.limiter.Allow() {
			m.Send(c.ID, protocol.ServerMessage{Type: protocol.TypeError, Data: protocol.New(protocol.ErrInvalidMessage, "rate limit exceeded")})
			continue
		}
		var msg protocol.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			m.Send(c.ID, protocol.ServerMessage{Type: protocol.TypeError, Data: protocol.New(protocol.ErrInvalidMessage, "malformed frame")})
			continue
		}
		if m.onMsg != nil {
			m.onMsg(c.ID, msg)
		}
	}
}

func (m *Manager) writePump(c *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send delivers msg to one connection. A full send buffer drops the
// connection rather than blocking the caller.
func (m *Manager) Send(connID string, msg protocol.ServerMessage) {
	m.mu.RLock()
	c, ok := m.conns[connID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn("send buffer full, dropping connection")
		m.Drop(connID)
	}
}

// Broadcast delivers msg to every connection in connIDs (or every
// registered connection if connIDs is nil), iterating over a snapshot
// taken under read lock so no broadcast write holds the table lock.
func (m *Manager) Broadcast(msg protocol.ServerMessage, connIDs []string) {
	m.mu.RLock()
	var targets []*Conn
	if connIDs == nil {
		targets = make([]*Conn, 0, len(m.conns))
		for _, c := range m.conns {
			targets = append(targets, c)
		}
	} else {
		for _, id := range connIDs {
			if c, ok := m.conns[id]; ok {
				targets = append(targets, c)
			}
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			c.log.Warn("send buffer full during broadcast, dropping connection")
			m.Drop(c.ID)
		}
	}
}

// Drop forcibly closes and deregisters a connection.
func (m *Manager) Drop(connID string) {
	m.mu.Lock()
	c, ok := m.conns[connID]
	if ok {
		delete(m.conns, connID)
	}
	m.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// Attach records which lobby or game a connection currently belongs to,
// so a later close event knows what to detach.
func (m *Manager) Attach(connID, playerID, lobbyID, gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[connID]; ok {
		c.PlayerID = playerID
		c.LobbyID = lobbyID
		c.GameID = gameID
	}
}

// ConnForPlayer finds the connection currently attached to playerID, for
// routing an addressed session frame back to its owning socket.
func (m *Manager) ConnForPlayer(playerID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conns {
		if c.PlayerID == playerID {
			return c.ID, true
		}
	}
	return "", false
}

// Lookup returns a connection's current routing info.
func (m *Manager) Lookup(connID string) (playerID, lobbyID, gameID string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, found := m.conns[connID]
	if !found {
		return "", "", "", false
	}
	return c.PlayerID, c.LobbyID, c.GameID, true
}
