/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/dragonseeker/internal/game"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	ds     *dragonServer
	client *http.Client
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()

	cfg := validConfig()
	cfg.secret = "test-secret"
	cfg.wordPairs = []game.WordPair{{Villager: "Castle", Knight: "Fortress"}}
	for _, fn := range mutate {
		fn(cfg)
	}

	ds, err := newDragonServer(cfg)
	require.NoError(t, err)

	errs := make(chan error, 64)
	go func() {
		for range errs {
		}
	}()

	srv := httptest.NewServer(newHandler(cfg, ds, errs))

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		srv.Close()
		ds.close()
	})

	return &testServer{
		t:      t,
		srv:    srv,
		ds:     ds,
		client: &http.Client{Jar: jar},
	}
}

func (ts *testServer) do(method, path string, body any, out any) int {
	ts.t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, r)
	require.NoError(ts.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.client.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func (ts *testServer) create() string {
	ts.t.Helper()

	var created map[string]string
	require.Equal(ts.t, http.StatusCreated, ts.do(http.MethodPost, "/api/games", nil, &created))
	require.Len(ts.t, created["game_id"], 8)

	return created["game_id"]
}

func (ts *testServer) join(gameID, nickname string) string {
	ts.t.Helper()

	var joined map[string]string
	require.Equal(ts.t, http.StatusCreated, ts.do(http.MethodPost, "/api/games/"+gameID+"/join", map[string]string{"nickname": nickname}, &joined))

	return joined["player_id"]
}

func (ts *testServer) command(gameID, playerID, action string, body any) (int, game.View) {
	ts.t.Helper()

	var v game.View
	status := ts.do(http.MethodPost, "/api/games/"+gameID+"/players/"+playerID+action, body, &v)

	return status, v
}

func (ts *testServer) state(gameID, playerID string) game.View {
	ts.t.Helper()

	var v game.View
	require.Equal(ts.t, http.StatusOK, ts.do(http.MethodGet, "/api/games/"+gameID+"/players/"+playerID+"/state", nil, &v))

	return v
}

func (ts *testServer) dial(gameID, playerID string) *websocket.Conn {
	ts.t.Helper()

	u, err := url.Parse(ts.srv.URL)
	require.NoError(ts.t, err)

	header := http.Header{}
	for _, c := range ts.client.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/" + gameID + "/" + playerID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// await reads pushed views until one satisfies ok.
func await(t *testing.T, conn *websocket.Conn, ok func(game.View) bool) game.View {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg StateMessage
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "state_update", msg.Type)

		if ok(msg.Data) {
			return msg.Data
		}
	}
}

func newGameWithPlayers(ts *testServer, n int) (string, []string) {
	gameID := ts.create()

	ids := make([]string, 0, n)
	for i := range n {
		ids = append(ids, ts.join(gameID, []string{"Ann", "Bob", "Cat", "Dan", "Eve"}[i]))
	}

	return gameID, ids
}

func TestCreateAndJoin(t *testing.T) {
	ts := newTestServer(t)

	gameID := ts.create()
	host := ts.join(gameID, "Ann")
	guest := ts.join(gameID, "Bob")

	v := ts.state(gameID, host)
	assert.Equal(t, game.PhaseLobby, v.Phase)
	assert.True(t, v.IsHost)
	assert.Equal(t, 2, v.PlayerCount)

	assert.False(t, ts.state(gameID, guest).IsHost)

	var body errorBody
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/games/"+gameID+"/join", map[string]string{"nickname": "ann"}, &body))
	assert.Equal(t, string(game.CodeDuplicateNickname), body.Error)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/games/"+gameID+"/join", map[string]string{"nickname": "   "}, &body))
	assert.Equal(t, string(game.CodeInvalidNickname), body.Error)
}

func TestJoinWithForm(t *testing.T) {
	ts := newTestServer(t)
	gameID := ts.create()

	resp, err := ts.client.PostForm(ts.srv.URL+"/api/games/"+gameID+"/join", url.Values{"nickname": {"Ann"}})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("HX-Redirect"), "/game/"+gameID+"?player_id=")
}

func TestUnknownGame(t *testing.T) {
	ts := newTestServer(t)

	var body errorBody
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/api/games/nope/join", map[string]string{"nickname": "Ann"}, &body))
	assert.Equal(t, string(game.CodeSessionNotFound), body.Error)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/game/nope", nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/game/nope/qr", nil, nil))
}

func TestCommandsRequireToken(t *testing.T) {
	ts := newTestServer(t)
	gameID, ids := newGameWithPlayers(ts, 3)

	anon := &http.Client{}
	resp, err := anon.Post(ts.srv.URL+"/api/games/"+gameID+"/players/"+ids[0]+"/start", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = anon.Get(ts.srv.URL + "/api/games/" + gameID + "/players/" + ids[0] + "/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, game.PhaseLobby, ts.state(gameID, ids[0]).Phase)
}

func TestStartRequiresHost(t *testing.T) {
	ts := newTestServer(t)
	gameID, ids := newGameWithPlayers(ts, 3)

	status, _ := ts.command(gameID, ids[1], "/start", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, v := ts.command(gameID, ids[0], "/start", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, game.PhasePlaying, v.Phase)
	assert.NotEmpty(t, v.Role)
	assert.NotEmpty(t, v.Word)
	assert.Len(t, v.SpeakingOrder, 3)
}

func TestStartTooFewPlayers(t *testing.T) {
	ts := newTestServer(t)
	gameID, ids := newGameWithPlayers(ts, 2)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/games/"+gameID+"/players/"+ids[0]+"/start", nil, &body))
	assert.Equal(t, string(game.CodeInvalidPlayerCount), body.Error)
}

func TestVotingTimerCommand(t *testing.T) {
	ts := newTestServer(t)
	gameID, ids := newGameWithPlayers(ts, 3)

	status, v := ts.command(gameID, ids[0], "/timer", map[string]int{"seconds": 90})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 90, v.VotingTimerSeconds)

	status, _ = ts.command(gameID, ids[0], "/timer", map[string]int{"seconds": 10})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.command(gameID, ids[1], "/timer", map[string]int{"seconds": 60})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestFullGameOverHTTP(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.historyDB = filepath.Join(t.TempDir(), "history.db")
	})
	gameID, ids := newGameWithPlayers(ts, 3)

	status, _ := ts.command(gameID, ids[0], "/start", nil)
	require.Equal(t, http.StatusOK, status)

	var dragon string
	for _, id := range ids {
		v := ts.state(gameID, id)
		if v.Role == game.RoleDragon {
			dragon = id
			assert.Equal(t, game.UnknownWord, v.Word)
		} else {
			assert.Equal(t, "Castle", v.Word)
		}
	}
	require.NotEmpty(t, dragon)

	status, _ = ts.command(gameID, ids[0], "/voting", nil)
	require.Equal(t, http.StatusOK, status)

	for _, id := range ids {
		target := dragon
		if id == dragon {
			for _, other := range ids {
				if other != dragon {
					target = other
					break
				}
			}
		}

		status, _ := ts.command(gameID, id, "/vote", map[string]string{"target_id": target})
		require.Equal(t, http.StatusOK, status)
	}

	v := ts.state(gameID, dragon)
	require.Equal(t, game.PhaseDragonGuess, v.Phase)
	assert.True(t, v.ShowGuess)
	require.NotNil(t, v.LastElimination)
	assert.Equal(t, dragon, v.LastElimination.PlayerID)

	for _, id := range ids {
		if id != dragon {
			status, _ := ts.command(gameID, id, "/guess", map[string]string{"guess": "Castle"})
			assert.Equal(t, http.StatusForbidden, status)
			break
		}
	}

	status, v = ts.command(gameID, dragon, "/guess", map[string]string{"guess": "  castle "})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, game.PhaseFinished, v.Phase)
	require.NotNil(t, v.Reveal)
	assert.Equal(t, game.OutcomeDragonWin, v.Reveal.Winner)
	assert.True(t, v.Reveal.GuessCorrect)

	var health healthBody
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", nil, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.TotalGames)
	assert.Equal(t, 0, health.ActiveGames)
	require.NotNil(t, health.History)
	assert.Equal(t, 1, health.History.Games)
	assert.Equal(t, 1, health.History.DragonWins)
	require.NotNil(t, health.LastDay)
	assert.Equal(t, 1, *health.LastDay)
}

func TestPushOverWebsocket(t *testing.T) {
	ts := newTestServer(t)
	gameID, ids := newGameWithPlayers(ts, 3)

	conn := ts.dial(gameID, ids[1])

	first := await(t, conn, func(game.View) bool { return true })
	assert.Equal(t, game.PhaseLobby, first.Phase)
	assert.Equal(t, ids[1], first.YourID)

	status, _ := ts.command(gameID, ids[0], "/timer", map[string]int{"seconds": 60})
	require.Equal(t, http.StatusOK, status)
	v := await(t, conn, func(v game.View) bool { return v.VotingTimerSeconds == 60 })
	assert.Nil(t, v.VotingSecondsRemaining)

	status, _ = ts.command(gameID, ids[0], "/start", nil)
	require.Equal(t, http.StatusOK, status)

	v = await(t, conn, func(v game.View) bool { return v.Phase == game.PhasePlaying })
	assert.Greater(t, v.Version, first.Version)
	assert.NotEmpty(t, v.Word)

	status, _ = ts.command(gameID, ids[0], "/voting", nil)
	require.Equal(t, http.StatusOK, status)

	v = await(t, conn, func(v game.View) bool { return v.Phase == game.PhaseVoting })
	assert.True(t, v.CanVote)
	require.NotNil(t, v.VotingSecondsRemaining)
	assert.LessOrEqual(t, *v.VotingSecondsRemaining, 60)
}

func TestWebsocketPingPong(t *testing.T) {
	ts := newTestServer(t)
	gameID, ids := newGameWithPlayers(ts, 1)

	conn := ts.dial(gameID, ids[0])
	await(t, conn, func(game.View) bool { return true })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))
}

func TestWebsocketRejectsOtherPlayersToken(t *testing.T) {
	ts := newTestServer(t)
	gameID := ts.create()
	ts.join(gameID, "Ann")

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/" + gameID + "/someone-else"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSweepClosesSockets(t *testing.T) {
	ts := newTestServer(t)
	gameID, ids := newGameWithPlayers(ts, 1)

	conn := ts.dial(gameID, ids[0])
	await(t, conn, func(game.View) bool { return true })

	require.Equal(t, 1, ts.ds.games.SweepExpired(time.Now().Add(2*time.Hour)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var closed ClosedMessage
	require.NoError(t, conn.ReadJSON(&closed))
	assert.Equal(t, "game_closed", closed.Type)

	_, err := ts.ds.games.Get(gameID)
	assert.ErrorIs(t, err, game.ErrSessionNotFound)
	assert.Nil(t, ts.ds.hub(gameID))
}

func TestStaticRoutes(t *testing.T) {
	ts := newTestServer(t)
	gameID := ts.create()

	for _, path := range []string{"/", "/game/" + gameID, "/assets/dragon/app.js", "/favicons/favicon.svg", "/robots.txt", "/version"} {
		resp, err := ts.client.Get(ts.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"), path)
	}

	resp, err := ts.client.Get(ts.srv.URL + "/game/" + gameID + "/qr")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(game.CodeSessionNotFound))
	assert.Equal(t, http.StatusNotFound, statusFor(game.CodeUnknownPlayer))
	assert.Equal(t, http.StatusForbidden, statusFor(game.CodePermissionDenied))
	assert.Equal(t, http.StatusConflict, statusFor(game.CodeInvalidPhaseTransition))
	assert.Equal(t, http.StatusConflict, statusFor(game.CodeNoValidVotes))
	assert.Equal(t, http.StatusBadRequest, statusFor(game.CodeInvalidTarget))
	assert.Equal(t, http.StatusInternalServerError, statusFor(""))
}

func TestConcurrentCreateOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	ids := make(chan string, 40)
	done := make(chan struct{})
	for range 4 {
		go func() {
			defer func() { done <- struct{}{} }()

			for range 10 {
				resp, err := ts.client.Post(ts.srv.URL+"/api/games", "application/json", nil)
				if !assert.NoError(t, err) {
					return
				}

				var created map[string]string
				assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
				resp.Body.Close()

				ids <- created["game_id"]
			}
		}()
	}
	for range 4 {
		<-done
	}
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
		assert.NotNil(t, ts.ds.hub(id), id)
	}
	assert.Len(t, seen, 40)
}

func TestErrorPageUsesPrefix(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.prefix = "/play"
	})

	resp, err := ts.client.Get(ts.srv.URL + "/play/game/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `href="/play/assets/dragon/app.css"`)
	assert.Contains(t, string(body), `href="/play/favicons/favicon.svg"`)
	assert.Contains(t, string(body), `href="/play/"`)

	resp, err = ts.client.Get(ts.srv.URL + "/play/assets/dragon/app.css")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewPageEscapes(t *testing.T) {
	page := newPage(&Config{}, "Oops", "<script>")

	assert.Contains(t, page, `href="/assets/dragon/app.css"`)
	assert.Contains(t, page, `<h1>Oops</h1>`)
	assert.Contains(t, page, "&lt;script&gt;")
	assert.NotContains(t, page, "<script>")
}

func TestShutdownClosesSockets(t *testing.T) {
	ts := newTestServer(t)
	gameID, ids := newGameWithPlayers(ts, 1)

	conn := ts.dial(gameID, ids[0])
	await(t, conn, func(game.View) bool { return true })

	ts.ds.games.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var closed ClosedMessage
	require.NoError(t, conn.ReadJSON(&closed))
	assert.Equal(t, "game_closed", closed.Type)

	assert.Equal(t, 0, ts.ds.games.Stats().TotalGames)
	assert.Nil(t, ts.ds.hub(gameID))
}
