/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"embed"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/dragonseeker/internal/history"
	"github.com/julienschmidt/httprouter"
)

//go:embed assets/*
var assets embed.FS

func writePage(cfg *Config, w http.ResponseWriter, name string, errs chan<- error) {
	data, err := assets.ReadFile("assets/dragon/" + name)
	if err != nil {
		errs <- err

		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	securityHeaders(cfg, w)

	if _, err := w.Write(data); err != nil {
		errs <- err
	}
}

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writePage(cfg, w, "index.html", errs)
	}
}

type healthBody struct {
	Status       string          `json:"status"`
	TotalGames   int             `json:"total_games"`
	ActiveGames  int             `json:"active_games"`
	TotalPlayers int             `json:"total_players"`
	History      *history.Totals `json:"history,omitempty"`
	LastDay      *int            `json:"games_last_24h,omitempty"`
}

func serveHealthCheck(cfg *Config, ds *dragonServer, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		stats := ds.games.Stats()

		body := healthBody{
			Status:       "healthy",
			TotalGames:   stats.TotalGames,
			ActiveGames:  stats.ActiveGames,
			TotalPlayers: stats.TotalPlayers,
		}

		if ds.history != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			totals, err := ds.history.Totals(ctx)
			if err != nil {
				errs <- err
			} else {
				body.History = &totals
			}

			recent, err := ds.history.Since(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				errs <- err
			} else {
				n := len(recent)
				body.LastDay = &n
			}
		}

		securityHeaders(cfg, w)
		writeJSON(w, http.StatusOK, body)
	}
}

func serveAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := "assets" + path.Clean("/"+p.ByName("asset"))

		data, err := assets.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		switch strings.ToLower(path.Ext(fname)) {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		case ".html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /game/
Disallow: /api/
Disallow: /ws/

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
