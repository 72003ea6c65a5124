/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package registry keeps the process's live game sessions and reaps the
// ones that have outlived their TTL.
package registry

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/Seednode/dragonseeker/internal/game"
	"github.com/awesome-cap/hashmap"
)

const (
	idLength  = 8
	idLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Stats summarizes the registry for health checks.
type Stats struct {
	TotalGames   int `json:"total_games"`
	ActiveGames  int `json:"active_games"`
	TotalPlayers int `json:"total_players"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithSessionOptions supplies per-session options, such as the push sink,
// for every session the registry creates.
func WithSessionOptions(fn func(id string) []game.Option) Option {
	return func(r *Registry) { r.sessionOpts = fn }
}

// WithEvictHook is called for every session removed by Remove or
// SweepExpired, after it has been dropped from the registry.
func WithEvictHook(fn func(s *game.Session)) Option {
	return func(r *Registry) { r.onEvict = fn }
}

// Registry maps game ids to sessions. mu guards only the map itself; each
// session serializes its own mutations.
type Registry struct {
	cfg         game.Config
	mu          sync.RWMutex
	sessions    *hashmap.HashMap
	sessionOpts func(id string) []game.Option
	onEvict     func(s *game.Session)
}

// New returns an empty registry creating sessions with cfg.
func New(cfg game.Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg,
		sessions: hashmap.New(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Create makes a new LOBBY session under a fresh random id. The id check,
// session options, and insert happen under one write lock so a colliding id
// never reaches the option factory.
func (r *Registry) Create() *game.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := newID()
	for {
		if _, taken := r.sessions.Get(id); !taken {
			break
		}
		id = newID()
	}

	var opts []game.Option
	if r.sessionOpts != nil {
		opts = r.sessionOpts(id)
	}

	s := game.NewSession(id, r.cfg, opts...)
	r.sessions.Set(id, s)

	return s
}

// newID generates a crypto-random id.
func newID() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	out := make([]byte, idLength)
	for i := range out {
		out[i] = idLetters[int(buf[i])%len(idLetters)]
	}

	return string(out)
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*game.Session, error) {
	r.mu.RLock()
	v, ok := r.sessions.Get(id)
	r.mu.RUnlock()

	if !ok {
		return nil, game.ErrSessionNotFound
	}

	return v.(*game.Session), nil
}

// Remove drops a session and stops its timers.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	v, ok := r.sessions.Get(id)
	if ok {
		r.sessions.Del(id)
	}
	r.mu.Unlock()

	if ok {
		r.evict(v.(*game.Session))
	}
}

// Close removes every session, firing the evict hook for each.
func (r *Registry) Close() {
	for _, s := range r.snapshot() {
		r.Remove(s.ID())
	}
}

// snapshot copies the live sessions so callers can inspect them without
// holding mu while taking session locks.
func (r *Registry) snapshot() []*game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*game.Session
	r.sessions.Foreach(func(e *hashmap.Entry) {
		out = append(out, e.Value().(*game.Session))
	})

	return out
}

func (r *Registry) evict(s *game.Session) {
	s.Close()

	if r.onEvict != nil {
		r.onEvict(s)
	}
}

// Expired reports whether a session in state l should be reaped at now.
// Lobbies expire by age, finished games by time since finish, and games in
// progress by time since their last successful command.
func (r *Registry) Expired(l game.Lifecycle, now time.Time) bool {
	switch l.Phase {
	case game.PhaseLobby:
		return now.Sub(l.CreatedAt) > r.cfg.SessionTTL
	case game.PhaseFinished:
		return now.Sub(l.FinishedAt) > r.cfg.FinishedTTL
	default:
		return now.Sub(l.LastActive) > r.cfg.SessionTTL
	}
}

// SweepExpired removes every expired session and returns how many went.
func (r *Registry) SweepExpired(now time.Time) int {
	removed := 0

	for _, s := range r.snapshot() {
		if !r.Expired(s.Lifecycle(), now) {
			continue
		}

		r.mu.Lock()
		deleted := r.sessions.Del(s.ID())
		r.mu.Unlock()

		if deleted {
			r.evict(s)
			removed++
		}
	}

	return removed
}

// Stats counts sessions and players.
func (r *Registry) Stats() Stats {
	var st Stats

	for _, s := range r.snapshot() {
		l := s.Lifecycle()

		st.TotalGames++
		st.TotalPlayers += l.Players
		if l.Phase != game.PhaseFinished {
			st.ActiveGames++
		}
	}

	return st
}

// Run sweeps every interval until stop is closed.
func (r *Registry) Run(interval time.Duration, stop <-chan struct{}, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if n := r.SweepExpired(now); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}
