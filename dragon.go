/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Dragonseeker
//
// Every player but one gets a secret word. Villagers share one word, Knights
// get a similar one, and the Dragon gets nothing and has to bluff. Players
// take turns describing their word, then vote someone out. If the Dragon is
// voted out it gets one guess at the villagers' word to steal the win.
//
// Transport:
// - Commands are plain HTTP POSTs under /api/games/:gameid/players/:playerid
// - State is pushed per player over /ws/:gameid/:playerid
// - Players are identified by a signed cookie issued on join
// - Each push connection has its own buffered queue; a slow socket is
//   dropped rather than stalling the game
// - In-browser QR button to share the join link, backed by go-qrcode

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/dragonseeker/internal/game"
	"github.com/Seednode/dragonseeker/internal/history"
	"github.com/Seednode/dragonseeker/internal/registry"
	"github.com/awesome-cap/hashmap"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	maxMessageSize = 1024
	maxBodySize    = 4096
	sendQueueSize  = 16
	readIdle       = 5 * time.Minute
	writeWait      = 10 * time.Second
	pingPeriod     = 50 * time.Second
)

// StateMessage is pushed to a player whenever the game changes.
type StateMessage struct {
	Type string    `json:"type"` // "state_update"
	Data game.View `json:"data"`
}

// ClosedMessage tells clients their game is gone.
type ClosedMessage struct {
	Type    string `json:"type"` // "game_closed"
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

// Hub fans views out to the push connections of one game. It implements
// game.Sink.
type Hub struct {
	id      string
	mu      sync.Mutex
	clients map[*Client]bool
}

func newHub(gameID string) *Hub {
	return &Hub{
		id:      gameID,
		clients: make(map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// enqueue never blocks; a client whose queue is full is disconnected.
func (h *Hub) enqueue(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.enqueueLocked(c, msg)
}

func (h *Hub) enqueueLocked(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		h.dropLocked(c)
	}
}

// Deliver queues v for every connection belonging to playerID.
func (h *Hub) Deliver(playerID string, v game.View) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := StateMessage{Type: "state_update", Data: v}
	for c := range h.clients {
		if c.playerID == playerID {
			h.enqueueLocked(c, msg)
		}
	}
}

// closeAll disconnects all clients of this hub (used by the sweeper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- ClosedMessage{Type: "game_closed", Message: "This game has ended and was closed."}:
		default:
		}
		h.dropLocked(c)
	}
}

// dragonServer owns the registry and everything shared across games.
type dragonServer struct {
	cfg     *Config
	games   *registry.Registry
	hubsMu  sync.RWMutex
	hubs    *hashmap.HashMap
	tokens  *tokenSigner
	history *history.Store
}

func newDragonServer(cfg *Config) (*dragonServer, error) {
	tokens, generated, err := newTokenSigner(cfg.secret)
	if err != nil {
		return nil, err
	}
	if generated {
		logf(cfg, "START: No --secret set, player tokens will not survive a restart")
	}

	ds := &dragonServer{
		cfg:    cfg,
		hubs:   hashmap.New(),
		tokens: tokens,
	}

	if cfg.historyDB != "" {
		ds.history, err = history.Open(cfg.historyDB)
		if err != nil {
			return nil, err
		}
		logf(cfg, "START: Recording finished games to %s", cfg.historyDB)
	}

	ds.games = registry.New(cfg.gameConfig(),
		registry.WithSessionOptions(func(id string) []game.Option {
			h := newHub(id)

			ds.hubsMu.Lock()
			ds.hubs.Set(id, h)
			ds.hubsMu.Unlock()

			return []game.Option{
				game.WithSink(h),
				game.WithFinishHook(ds.recordFinished),
			}
		}),
		registry.WithEvictHook(func(s *game.Session) {
			if h := ds.dropHub(s.ID()); h != nil {
				h.closeAll()
			}
			logf(cfg, "GAMES: Closed %s", s.ID())
		}),
	)

	return ds, nil
}

func (ds *dragonServer) close() {
	ds.games.Close()

	if ds.history != nil {
		if err := ds.history.Close(); err != nil {
			errorf("close history: %v", err)
		}
	}
}

func (ds *dragonServer) hub(gameID string) *Hub {
	ds.hubsMu.RLock()
	defer ds.hubsMu.RUnlock()

	if v, ok := ds.hubs.Get(gameID); ok {
		return v.(*Hub)
	}
	return nil
}

func (ds *dragonServer) dropHub(gameID string) *Hub {
	ds.hubsMu.Lock()
	defer ds.hubsMu.Unlock()

	v, ok := ds.hubs.Get(gameID)
	if !ok {
		return nil
	}
	ds.hubs.Del(gameID)

	return v.(*Hub)
}

func (ds *dragonServer) recordFinished(sum game.Summary) {
	logf(ds.cfg, "GAMES: %s finished after %d round(s), winner: %s", sum.GameID, sum.Rounds, sum.Winner)

	if ds.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ds.history.Record(ctx, sum); err != nil {
		errorf("%v", err)
	}
}

// commandBody accepts every command's fields; each handler reads its own.
type commandBody struct {
	Nickname string `json:"nickname"`
	Seconds  int    `json:"seconds"`
	TargetID string `json:"target_id"`
	Guess    string `json:"guess"`
}

func decodeBody(w http.ResponseWriter, r *http.Request) (commandBody, error) {
	var body commandBody

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return body, err
		}
		return body, nil
	}

	if err := r.ParseForm(); err != nil {
		return body, err
	}

	body.Nickname = r.PostForm.Get("nickname")
	body.TargetID = r.PostForm.Get("target_id")
	body.Guess = r.PostForm.Get("guess")
	if s := r.PostForm.Get("seconds"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return body, err
		}
		body.Seconds = n
	}

	return body, nil
}

func statusFor(code game.Code) int {
	switch code {
	case game.CodeSessionNotFound, game.CodeUnknownPlayer:
		return http.StatusNotFound
	case game.CodePermissionDenied:
		return http.StatusForbidden
	case game.CodeInvalidPhaseTransition, game.CodeDuplicateNickname, game.CodeNoValidVotes:
		return http.StatusConflict
	case game.CodeInvalidPlayerCount, game.CodeInvalidNickname, game.CodeInvalidTarget, game.CodeInvalidTimer:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeGameError(cfg *Config, w http.ResponseWriter, err error) {
	securityHeaders(cfg, w)

	code := game.CodeOf(err)
	if code == "" {
		errorf("%v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "INTERNAL", Message: "An error has occurred. Please try again."})
		return
	}

	writeJSON(w, statusFor(code), errorBody{Error: string(code), Message: err.Error()})
}

func writeBadRequest(cfg *Config, w http.ResponseWriter, msg string) {
	securityHeaders(cfg, w)
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "BAD_REQUEST", Message: msg})
}

func writeUnauthorized(cfg *Config, w http.ResponseWriter) {
	securityHeaders(cfg, w)
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHORIZED", Message: errInvalidToken.Error()})
}

func serveCreateGame(cfg *Config, ds *dragonServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s := ds.games.Create()
		logf(cfg, "GAMES: Created %s for %s", s.ID(), realIP(r))

		url := cfg.prefix + "/game/" + s.ID()
		w.Header().Set("HX-Redirect", url)
		securityHeaders(cfg, w)
		writeJSON(w, http.StatusCreated, map[string]string{
			"status":  "created",
			"game_id": s.ID(),
			"url":     url,
		})
	}
}

func serveGamePage(cfg *Config, ds *dragonServer, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, err := ds.games.Get(ps.ByName("gameid")); err != nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, newPage(cfg, "Game not found", "That game does not exist or has already ended."))
			return
		}

		writePage(cfg, w, "game.html", errs)
	}
}

func serveJoin(cfg *Config, ds *dragonServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")

		s, err := ds.games.Get(gameID)
		if err != nil {
			writeGameError(cfg, w, err)
			return
		}

		body, err := decodeBody(w, r)
		if err != nil {
			writeBadRequest(cfg, w, "malformed request body")
			return
		}

		p, err := s.AddPlayer(body.Nickname)
		if err != nil {
			writeGameError(cfg, w, err)
			return
		}

		token, err := ds.tokens.issue(gameID, p.ID)
		if err != nil {
			writeGameError(cfg, w, err)
			return
		}
		ds.tokens.setCookie(cfg, w, token, p.ID)

		logf(cfg, "GAMES: Player %q joined %s", p.Nickname, gameID)

		url := cfg.prefix + "/game/" + gameID + "?player_id=" + p.ID
		w.Header().Set("HX-Redirect", url)
		securityHeaders(cfg, w)
		writeJSON(w, http.StatusCreated, map[string]string{
			"status":    "joined",
			"player_id": p.ID,
			"nickname":  p.Nickname,
		})
	}
}

// command wraps an authenticated player action. On success the caller gets
// its own fresh view back; everyone else gets theirs over the push channel.
func command(cfg *Config, ds *dragonServer, name string, fn func(s *game.Session, playerID string, body commandBody) error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID, playerID := ps.ByName("gameid"), ps.ByName("playerid")

		s, err := ds.games.Get(gameID)
		if err != nil {
			writeGameError(cfg, w, err)
			return
		}

		if err := ds.tokens.authorize(r, gameID, playerID); err != nil {
			writeUnauthorized(cfg, w)
			return
		}

		body, err := decodeBody(w, r)
		if err != nil {
			writeBadRequest(cfg, w, "malformed request body")
			return
		}

		if err := fn(s, playerID, body); err != nil {
			logf(cfg, "GAMES: %s by %s in %s rejected: %v", name, playerID, gameID, err)
			writeGameError(cfg, w, err)
			return
		}

		v, err := s.View(playerID)
		if err != nil {
			writeGameError(cfg, w, err)
			return
		}

		logf(cfg, "GAMES: %s by %s in %s, now %s", name, playerID, gameID, v.Phase)

		securityHeaders(cfg, w)
		writeJSON(w, http.StatusOK, v)
	}
}

func serveState(cfg *Config, ds *dragonServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID, playerID := ps.ByName("gameid"), ps.ByName("playerid")

		s, err := ds.games.Get(gameID)
		if err != nil {
			writeGameError(cfg, w, err)
			return
		}

		if err := ds.tokens.authorize(r, gameID, playerID); err != nil {
			writeUnauthorized(cfg, w)
			return
		}

		v, err := s.View(playerID)
		if err != nil {
			writeGameError(cfg, w, err)
			return
		}

		securityHeaders(cfg, w)
		writeJSON(w, http.StatusOK, v)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(cfg *Config, ds *dragonServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID, playerID := ps.ByName("gameid"), ps.ByName("playerid")

		s, err := ds.games.Get(gameID)
		if err != nil {
			writeGameError(cfg, w, err)
			return
		}

		if err := ds.tokens.authorize(r, gameID, playerID); err != nil {
			writeUnauthorized(cfg, w)
			return
		}

		h := ds.hub(gameID)
		if h == nil {
			writeGameError(cfg, w, game.ErrSessionNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SERVE: Upgrade error for %s: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, sendQueueSize),
			playerID: playerID,
		}

		// Register before connecting so no push between the two is lost.
		h.register(client)

		v, err := s.Connect(playerID)
		if err != nil {
			h.unregister(client)
			_ = conn.Close()
			return
		}
		h.enqueue(client, StateMessage{Type: "state_update", Data: v})

		logf(cfg, "SERVE: Player %s connected to %s from %s", playerID, gameID, realIP(r))

		go client.writePump()
		client.readPump(cfg, h, s)
	}
}

func (c *Client) readPump(cfg *Config, h *Hub, s *game.Session) {
	defer func() {
		s.Disconnect(c.playerID)
		h.unregister(c)
		_ = c.conn.Close()
		logf(cfg, "SERVE: Player %s disconnected from %s", c.playerID, h.id)
	}()

	// Oversized messages make ReadMessage fail and close with 1009.
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(readIdle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readIdle))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readIdle))

		if string(data) == "ping" {
			h.enqueue(c, "pong")
		}
	}
}

// writePump drains the send queue. Views can be queued out of order by
// concurrent commands, so anything older than what was already written is
// skipped.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	var written uint64

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			var err error
			switch m := msg.(type) {
			case string:
				err = c.conn.WriteMessage(websocket.TextMessage, []byte(m))
			case StateMessage:
				if m.Data.Version < written {
					continue
				}
				written = m.Data.Version
				err = c.conn.WriteJSON(m)
			default:
				err = c.conn.WriteJSON(m)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// qrHandler generates a PNG QR code for the game's join URL using go-qrcode.
func qrHandler(cfg *Config, ds *dragonServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if _, err := ds.games.Get(gameID); err != nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// registerDragonGame sets up routes so that:
//   - POST /api/games                                → new game
//   - /game/:gameid                                  → HTML client
//   - /game/:gameid/qr                               → PNG QR code for that game URL
//   - POST /api/games/:gameid/join                   → join with a nickname
//   - /api/games/:gameid/players/:playerid/...       → player commands
//   - /ws/:gameid/:playerid                          → push channel for that player
func registerDragonGame(cfg *Config, ds *dragonServer, mux *httprouter.Router, errs chan<- error) {
	api := cfg.prefix + "/api/games"
	player := api + "/:gameid/players/:playerid"

	mux.POST(api, serveCreateGame(cfg, ds))
	mux.POST(api+"/:gameid/join", serveJoin(cfg, ds))

	mux.GET(cfg.prefix+"/game/:gameid", serveGamePage(cfg, ds, errs))
	mux.GET(cfg.prefix+"/game/:gameid/qr", qrHandler(cfg, ds))

	mux.GET(player+"/state", serveState(cfg, ds))

	mux.POST(player+"/timer", command(cfg, ds, "timer", func(s *game.Session, id string, b commandBody) error {
		return s.SetVotingTimer(id, b.Seconds)
	}))
	mux.POST(player+"/start", command(cfg, ds, "start", func(s *game.Session, id string, _ commandBody) error {
		return s.Start(id)
	}))
	mux.POST(player+"/voting", command(cfg, ds, "begin voting", func(s *game.Session, id string, _ commandBody) error {
		return s.BeginVoting(id)
	}))
	mux.POST(player+"/voting/close", command(cfg, ds, "close voting", func(s *game.Session, id string, _ commandBody) error {
		return s.CloseVoting(id)
	}))
	mux.POST(player+"/vote", command(cfg, ds, "vote", func(s *game.Session, id string, b commandBody) error {
		return s.CastVote(id, b.TargetID)
	}))
	mux.POST(player+"/guess", command(cfg, ds, "guess", func(s *game.Session, id string, b commandBody) error {
		return s.GuessWord(id, b.Guess)
	}))

	mux.GET(cfg.prefix+"/ws/:gameid/:playerid", serveWS(cfg, ds))
}
