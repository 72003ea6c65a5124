/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package game implements the Dragonseeker session engine: role assignment,
// vote tallying, win evaluation, and the per-room state machine that ties
// them together and produces a redacted view for every connected player.
package game

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Phase is the session's state machine state.
type Phase string

const (
	PhaseLobby       Phase = "lobby"
	PhasePlaying     Phase = "playing"
	PhaseVoting      Phase = "voting"
	PhaseDragonGuess Phase = "dragon_guess"
	PhaseFinished    Phase = "finished"
)

// Player is owned by exactly one session.
type Player struct {
	ID       string
	Nickname string
	Role     Role
	Alive    bool
	Host     bool
}

// EliminationRecord is appended every time a round eliminates someone.
type EliminationRecord struct {
	Round    int
	PlayerID string
	Role     Role
	WasTie   bool
	Counts   map[string]int
}

// Sink receives the views produced after every successful mutation.
// Deliver is called outside the session lock and must not block.
type Sink interface {
	Deliver(playerID string, v View)
}

// Summary describes a finished game.
type Summary struct {
	GameID       string
	Winner       Outcome
	Players      int
	Rounds       int
	VillagerWord string
	KnightWord   string
	DragonGuess  string
	GuessCorrect bool
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Lifecycle is the snapshot the registry uses to decide expiry.
type Lifecycle struct {
	Phase      Phase
	Players    int
	CreatedAt  time.Time
	LastActive time.Time
	FinishedAt time.Time
}

type dragonGuess struct {
	text    string
	correct bool
}

// Option configures a Session.
type Option func(*Session)

// WithRand replaces the session's random source.
func WithRand(r Rand) Option {
	return func(s *Session) { s.rng = r }
}

// WithSink sets where views are pushed after each mutation.
func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithFinishHook registers fn to be called once, outside the lock, when the
// game reaches FINISHED.
func WithFinishHook(fn func(Summary)) Option {
	return func(s *Session) { s.onFinish = fn }
}

// Session is one room. All mutating operations are serialized on mu; views
// are built while still holding it and handed to the sink after release.
type Session struct {
	mu sync.Mutex

	id       string
	cfg      Config
	rng      Rand
	sink     Sink
	now      func() time.Time
	onFinish func(Summary)

	players       map[string]*Player
	order         []string
	connected     map[string]int
	phase         Phase
	words         *WordPair
	speakingOrder []string
	votes         map[string]string
	round         int
	votingTimer   time.Duration
	votingStarted time.Time
	timer         *time.Timer
	eliminations  []EliminationRecord
	guess         *dragonGuess
	winner        Outcome
	reported      bool
	version       uint64

	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	lastActive time.Time
}

// NewSession creates an empty session in LOBBY.
func NewSession(id string, cfg Config, opts ...Option) *Session {
	s := &Session{
		id:        id,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		players:   make(map[string]*Player),
		connected: make(map[string]int),
		votes:     make(map[string]string),
		phase:     PhaseLobby,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rng == nil {
		s.rng = NewRand()
	}

	s.createdAt = s.now()
	s.lastActive = s.createdAt

	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase
}

// Lifecycle returns the timestamps the registry sweeps on.
func (s *Session) Lifecycle() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Lifecycle{
		Phase:      s.phase,
		Players:    len(s.players),
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
		FinishedAt: s.finishedAt,
	}
}

// Close stops any pending voting timer. The session must not be used after.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
}

var errStale = errors.New("stale")

// mutate runs fn under the lock. On success the views for every connected
// player are rebuilt before unlocking and delivered after.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()

	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.lastActive = s.now()
	s.version++
	views := s.connectedViewsLocked()

	var summary *Summary
	if s.phase == PhaseFinished && !s.reported {
		s.reported = true
		sum := s.summaryLocked()
		summary = &sum
	}

	s.mu.Unlock()

	if s.sink != nil {
		for id, v := range views {
			s.sink.Deliver(id, v)
		}
	}

	if summary != nil && s.onFinish != nil {
		s.onFinish(*summary)
	}

	return nil
}

// AddPlayer joins a new player to the lobby. The first player becomes host.
func (s *Session) AddPlayer(nickname string) (Player, error) {
	var added Player

	err := s.mutate(func() error {
		if s.phase != PhaseLobby {
			return errorf(CodeInvalidPhaseTransition, "game has already started")
		}
		if len(s.players) >= s.cfg.MaxPlayers {
			return errorf(CodeInvalidPlayerCount, "game is full (%d players)", s.cfg.MaxPlayers)
		}

		name, err := normalizeNickname(nickname)
		if err != nil {
			return err
		}
		for _, p := range s.players {
			if strings.EqualFold(p.Nickname, name) {
				return errorf(CodeDuplicateNickname, "nickname %q is already taken", name)
			}
		}

		p := &Player{
			ID:       uuid.NewString(),
			Nickname: name,
			Alive:    true,
			Host:     len(s.players) == 0,
		}
		s.players[p.ID] = p
		s.order = append(s.order, p.ID)

		added = *p

		return nil
	})

	return added, err
}

func normalizeNickname(nickname string) (string, error) {
	name := strings.TrimSpace(nickname)
	if name == "" || utf8.RuneCountInString(name) > MaxNicknameLength {
		return "", errorf(CodeInvalidNickname, "nickname must be 1-%d characters", MaxNicknameLength)
	}

	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || strings.ContainsRune(".,!?'-_", r) {
			continue
		}

		return "", errorf(CodeInvalidNickname, "nickname contains invalid characters")
	}

	return name, nil
}

// SetVotingTimer sets the per-round voting timer. Zero disables it.
func (s *Session) SetVotingTimer(actorID string, seconds int) error {
	return s.mutate(func() error {
		if s.phase != PhaseLobby {
			return errorf(CodeInvalidPhaseTransition, "timer can only be set in the lobby")
		}
		if _, err := s.hostLocked(actorID); err != nil {
			return err
		}

		d := time.Duration(seconds) * time.Second
		if seconds != 0 && (d < MinVotingTimer || d > MaxVotingTimer) {
			return errorf(CodeInvalidTimer, "timer must be between %d and %d seconds",
				int(MinVotingTimer.Seconds()), int(MaxVotingTimer.Seconds()))
		}
		s.votingTimer = d

		return nil
	})
}

// Start assigns roles, draws the word pair, and moves to PLAYING.
func (s *Session) Start(actorID string) error {
	return s.mutate(func() error {
		if s.phase != PhaseLobby {
			return errorf(CodeInvalidPhaseTransition, "game has already started")
		}
		if _, err := s.hostLocked(actorID); err != nil {
			return err
		}
		if n := len(s.players); n < s.cfg.MinPlayers || n > s.cfg.MaxPlayers {
			return errorf(CodeInvalidPlayerCount, "need between %d and %d players, have %d", s.cfg.MinPlayers, s.cfg.MaxPlayers, n)
		}

		roles, err := AssignRoles(s.order, s.rng)
		if err != nil {
			return err
		}

		pair := s.cfg.WordPairs[s.rng.IntN(len(s.cfg.WordPairs))]

		speaking := make([]string, len(s.order))
		copy(speaking, s.order)
		s.rng.Shuffle(len(speaking), func(i, j int) {
			speaking[i], speaking[j] = speaking[j], speaking[i]
		})

		for id, role := range roles {
			s.players[id].Role = role
		}
		s.words = &pair
		s.speakingOrder = speaking
		s.phase = PhasePlaying
		s.startedAt = s.now()

		return nil
	})
}

// BeginVoting opens a new voting round.
func (s *Session) BeginVoting(actorID string) error {
	return s.mutate(func() error {
		if s.phase != PhasePlaying {
			return errorf(CodeInvalidPhaseTransition, "voting can only begin while playing")
		}
		if _, err := s.hostLocked(actorID); err != nil {
			return err
		}

		clear(s.votes)
		s.round++
		s.phase = PhaseVoting
		s.votingStarted = s.now()

		if s.votingTimer > 0 {
			round := s.round
			s.timer = time.AfterFunc(s.votingTimer, func() {
				s.expireRound(round)
			})
		}

		return nil
	})
}

// CastVote records or replaces actor's vote. When every living player has
// voted the round closes immediately.
func (s *Session) CastVote(actorID, targetID string) error {
	return s.mutate(func() error {
		if s.phase != PhaseVoting {
			return errorf(CodeInvalidPhaseTransition, "not in voting phase")
		}

		voter, ok := s.players[actorID]
		if !ok {
			return errorf(CodeUnknownPlayer, "unknown player %q", actorID)
		}
		if !voter.Alive {
			return errorf(CodePermissionDenied, "eliminated players cannot vote")
		}

		target, ok := s.players[targetID]
		if !ok {
			return errorf(CodeUnknownPlayer, "unknown player %q", targetID)
		}
		if !target.Alive {
			return errorf(CodeInvalidTarget, "cannot vote for an eliminated player")
		}

		s.votes[actorID] = targetID

		for id, p := range s.players {
			if p.Alive {
				if _, voted := s.votes[id]; !voted {
					return nil
				}
			}
		}

		if err := s.closeRoundLocked(false); err != nil {
			panic("game: auto-close with a full ballot failed: " + err.Error())
		}

		return nil
	})
}

// CloseVoting ends the round early on the host's request.
func (s *Session) CloseVoting(actorID string) error {
	return s.mutate(func() error {
		if s.phase != PhaseVoting {
			return errorf(CodeInvalidPhaseTransition, "not in voting phase")
		}
		if _, err := s.hostLocked(actorID); err != nil {
			return err
		}

		return s.closeRoundLocked(false)
	})
}

func (s *Session) expireRound(round int) {
	_ = s.mutate(func() error {
		if s.phase != PhaseVoting || s.round != round {
			return errStale
		}

		return s.closeRoundLocked(true)
	})
}

// closeRoundLocked tallies the round. With no valid votes an explicit close
// fails and leaves the round open; an expired timer ends the round without
// an elimination.
func (s *Session) closeRoundLocked(expired bool) error {
	alive := make(map[string]bool, len(s.players))
	for id, p := range s.players {
		if p.Alive {
			alive[id] = true
		}
	}
	if len(alive) == 0 {
		panic("game: closing a round with no living players")
	}

	res, err := Tally(s.votes, alive, s.rng)
	if err != nil {
		if !expired {
			return err
		}

		s.endRoundLocked()
		s.phase = PhasePlaying

		return nil
	}

	eliminated, ok := s.players[res.Eliminated]
	if !ok {
		panic("game: tally eliminated unknown player " + res.Eliminated)
	}
	eliminated.Alive = false

	s.eliminations = append(s.eliminations, EliminationRecord{
		Round:    s.round,
		PlayerID: eliminated.ID,
		Role:     eliminated.Role,
		WasTie:   res.WasTie,
		Counts:   res.Counts,
	})
	s.endRoundLocked()

	switch outcome := Evaluate(s.alivePlayersLocked(), eliminated, nil); {
	case outcome == OutcomeAwaitingGuess:
		s.phase = PhaseDragonGuess
	case outcome.Terminal():
		s.finishLocked(outcome)
	default:
		s.phase = PhasePlaying
	}

	return nil
}

func (s *Session) endRoundLocked() {
	clear(s.votes)
	s.votingStarted = time.Time{}
	s.stopTimerLocked()
}

// GuessWord resolves the eliminated Dragon's last chance.
func (s *Session) GuessWord(actorID, guess string) error {
	return s.mutate(func() error {
		if s.phase != PhaseDragonGuess {
			return errorf(CodeInvalidPhaseTransition, "not waiting for a dragon guess")
		}

		actor, ok := s.players[actorID]
		if !ok {
			return errorf(CodeUnknownPlayer, "unknown player %q", actorID)
		}

		last := s.lastEliminationLocked()
		if actor.Role != RoleDragon || last == nil || last.PlayerID != actorID {
			return errorf(CodePermissionDenied, "only the eliminated dragon may guess")
		}

		correct := GuessMatches(guess, s.words.Villager)
		s.guess = &dragonGuess{
			text:    strings.TrimSpace(guess),
			correct: correct,
		}

		outcome := Evaluate(s.alivePlayersLocked(), actor, &correct)
		if !outcome.Terminal() {
			panic("game: resolved dragon guess did not end the game")
		}
		s.finishLocked(outcome)

		return nil
	})
}

func (s *Session) finishLocked(winner Outcome) {
	s.phase = PhaseFinished
	s.winner = winner
	s.finishedAt = s.now()
	s.stopTimerLocked()
}

// Connect registers a push connection for playerID and returns its view.
func (s *Session) Connect(playerID string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return View{}, errorf(CodeUnknownPlayer, "unknown player %q", playerID)
	}

	s.connected[playerID]++
	s.lastActive = s.now()

	return s.buildViewLocked(p), nil
}

// Disconnect drops one push connection for playerID.
func (s *Session) Disconnect(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected[playerID] <= 1 {
		delete(s.connected, playerID)
		return
	}

	s.connected[playerID]--
}

// View returns playerID's current view without mutating anything.
func (s *Session) View(playerID string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return View{}, errorf(CodeUnknownPlayer, "unknown player %q", playerID)
	}

	return s.buildViewLocked(p), nil
}

func (s *Session) hostLocked(actorID string) (*Player, error) {
	p, ok := s.players[actorID]
	if !ok {
		return nil, errorf(CodeUnknownPlayer, "unknown player %q", actorID)
	}
	if !p.Host {
		return nil, errorf(CodePermissionDenied, "only the host can do that")
	}

	return p, nil
}

func (s *Session) alivePlayersLocked() []*Player {
	alive := make([]*Player, 0, len(s.players))
	for _, id := range s.order {
		if p := s.players[id]; p.Alive {
			alive = append(alive, p)
		}
	}

	return alive
}

func (s *Session) lastEliminationLocked() *EliminationRecord {
	if len(s.eliminations) == 0 {
		return nil
	}

	return &s.eliminations[len(s.eliminations)-1]
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) connectedViewsLocked() map[string]View {
	views := make(map[string]View, len(s.connected))
	for id := range s.connected {
		if p, ok := s.players[id]; ok {
			views[id] = s.buildViewLocked(p)
		}
	}

	return views
}

func (s *Session) summaryLocked() Summary {
	sum := Summary{
		GameID:     s.id,
		Winner:     s.winner,
		Players:    len(s.players),
		Rounds:     s.round,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
	if s.words != nil {
		sum.VillagerWord = s.words.Villager
		sum.KnightWord = s.words.Knight
	}
	if s.guess != nil {
		sum.DragonGuess = s.guess.text
		sum.GuessCorrect = s.guess.correct
	}

	return sum
}
