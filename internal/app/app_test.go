package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lab1702/defcon-server/internal/catalog"
	"github.com/lab1702/defcon-server/internal/protocol"
)

func newTestApp(t *testing.T) (*App, *httptest.Server) {
	a := New(catalog.Default(), nil)
	srv := httptest.NewServer(http.HandlerFunc(a.ServeWebSocket))
	t.Cleanup(srv.Close)
	return a, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.ClientMessage{Type: typ, Data: raw}))
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) protocol.ServerMessage {
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg protocol.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestConnectReceivesLobbyList(t *testing.T) {
	_, srv := newTestApp(t)

	host := dial(t, srv)
	send(t, host, protocol.TypeCreateLobby, protocol.CreateLobbyData{PlayerName: "Alice", LobbyName: "Test Game"})
	readUntil(t, host, protocol.TypeLobbyUpdate)

	guest := dial(t, srv)
	list := readUntil(t, guest, protocol.TypeLobbyList)
	lobbies, ok := list.Data.([]any)
	require.True(t, ok)
	require.Len(t, lobbies, 1)
}

func TestCreateLobbyAndJoinFlow(t *testing.T) {
	_, srv := newTestApp(t)

	host := dial(t, srv)
	send(t, host, protocol.TypeCreateLobby, protocol.CreateLobbyData{PlayerName: "Alice", LobbyName: "Test Game"})
	update := readUntil(t, host, protocol.TypeLobbyUpdate)
	require.NotNil(t, update.Data)

	guest := dial(t, srv)
	lobbyID := update.Data.(map[string]any)["id"].(string)
	send(t, guest, protocol.TypeJoinLobby, protocol.JoinLobbyData{LobbyID: lobbyID, PlayerName: "Bob"})
	readUntil(t, guest, protocol.TypeLobbyUpdate)
	readUntil(t, host, protocol.TypeLobbyUpdate)
}

func TestStartGameBroadcastsGameStart(t *testing.T) {
	_, srv := newTestApp(t)

	host := dial(t, srv)
	send(t, host, protocol.TypeCreateLobby, protocol.CreateLobbyData{PlayerName: "Alice", LobbyName: "Test Game"})
	update := readUntil(t, host, protocol.TypeLobbyUpdate)
	lobbyID := update.Data.(map[string]any)["id"].(string)

	guest := dial(t, srv)
	send(t, guest, protocol.TypeJoinLobby, protocol.JoinLobbyData{LobbyID: lobbyID, PlayerName: "Bob"})
	readUntil(t, guest, protocol.TypeLobbyUpdate)
	readUntil(t, host, protocol.TypeLobbyUpdate)

	send(t, host, protocol.TypeSelectTerritory, protocol.SelectTerritoryData{TerritoryID: "north-atlantic"})
	readUntil(t, host, protocol.TypeLobbyUpdate)
	readUntil(t, guest, protocol.TypeLobbyUpdate)
	send(t, guest, protocol.TypeSelectTerritory, protocol.SelectTerritoryData{TerritoryID: "eurasia"})
	readUntil(t, host, protocol.TypeLobbyUpdate)
	readUntil(t, guest, protocol.TypeLobbyUpdate)

	send(t, host, protocol.TypeSetReady, protocol.SetReadyData{Ready: true})
	readUntil(t, host, protocol.TypeLobbyUpdate)
	readUntil(t, guest, protocol.TypeLobbyUpdate)
	send(t, guest, protocol.TypeSetReady, protocol.SetReadyData{Ready: true})
	readUntil(t, host, protocol.TypeLobbyUpdate)
	readUntil(t, guest, protocol.TypeLobbyUpdate)

	send(t, host, protocol.TypeStartGame, map[string]any{})
	readUntil(t, host, protocol.TypeGameStart)
	readUntil(t, guest, protocol.TypeGameStart)
}

func TestHealthAndStatsEndpoints(t *testing.T) {
	a, srv := newTestApp(t)
	_ = srv

	w := httptest.NewRecorder()
	a.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	a.ServeSessionStats(w2, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	require.Equal(t, http.StatusOK, w2.Code)
}
