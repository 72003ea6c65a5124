/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import "time"

// PlayerView is one roster entry. Role is only filled in once the player is
// eliminated or the game is over.
type PlayerView struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Alive    bool   `json:"alive"`
	Host     bool   `json:"host"`
	Role     Role   `json:"role,omitempty"`
}

// EliminationView describes the most recent elimination.
type EliminationView struct {
	Round    int            `json:"round"`
	PlayerID string         `json:"player_id"`
	Nickname string         `json:"nickname"`
	Role     Role           `json:"role"`
	WasTie   bool           `json:"was_tie"`
	Votes    map[string]int `json:"votes"`
}

// Reveal is attached once the game is over.
type Reveal struct {
	Winner       Outcome `json:"winner"`
	VillagerWord string  `json:"villager_word"`
	KnightWord   string  `json:"knight_word"`
	DragonGuess  string  `json:"dragon_guess,omitempty"`
	GuessCorrect bool    `json:"guess_correct"`
}

// View is what one player is allowed to see. The UI flags are already
// resolved from phase, role, and alive status.
type View struct {
	GameID   string `json:"game_id"`
	Version  uint64 `json:"version"`
	Phase    Phase  `json:"phase"`
	YourID   string `json:"your_id"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role,omitempty"`
	Word     string `json:"word,omitempty"`
	IsHost   bool   `json:"is_host"`
	IsAlive  bool   `json:"is_alive"`

	Players        []PlayerView `json:"players"`
	PlayerCount    int          `json:"player_count"`
	AliveCount     int          `json:"alive_count"`
	MinPlayers     int          `json:"min_players"`
	MaxPlayers     int          `json:"max_players"`
	SpeakingOrder  []string     `json:"speaking_order,omitempty"`
	Round          int          `json:"round"`
	VotesSubmitted int          `json:"votes_submitted"`
	HasVoted       bool         `json:"has_voted"`
	VotedFor       string       `json:"voted_for,omitempty"`

	VotingTimerSeconds     int  `json:"voting_timer_seconds"`
	VotingSecondsRemaining *int `json:"voting_seconds_remaining,omitempty"`

	LastElimination *EliminationView `json:"last_elimination,omitempty"`
	Reveal          *Reveal          `json:"reveal,omitempty"`

	CanStart       bool `json:"can_start"`
	CanSetTimer    bool `json:"can_set_timer"`
	CanBeginVoting bool `json:"can_begin_voting"`
	CanCloseVoting bool `json:"can_close_voting"`
	ShowVoting     bool `json:"show_voting"`
	CanVote        bool `json:"can_vote"`
	ShowGuess      bool `json:"show_guess"`
	AwaitingGuess  bool `json:"awaiting_guess"`
}

// wordFor returns the word viewer is allowed to see. Absent before start.
func (s *Session) wordFor(viewer *Player) string {
	if s.words == nil {
		return ""
	}

	switch viewer.Role {
	case RoleDragon:
		return UnknownWord
	case RoleKnight:
		return s.words.Knight
	case RoleVillager:
		return s.words.Villager
	default:
		return ""
	}
}

func (s *Session) buildViewLocked(viewer *Player) View {
	finished := s.phase == PhaseFinished

	v := View{
		GameID:         s.id,
		Version:        s.version,
		Phase:          s.phase,
		YourID:         viewer.ID,
		Nickname:       viewer.Nickname,
		Role:           viewer.Role,
		Word:           s.wordFor(viewer),
		IsHost:         viewer.Host,
		IsAlive:        viewer.Alive,
		Players:        make([]PlayerView, 0, len(s.order)),
		PlayerCount:    len(s.players),
		MinPlayers:     s.cfg.MinPlayers,
		MaxPlayers:     s.cfg.MaxPlayers,
		Round:          s.round,
		VotesSubmitted: len(s.votes),
	}

	for _, id := range s.order {
		p := s.players[id]
		pv := PlayerView{
			ID:       p.ID,
			Nickname: p.Nickname,
			Alive:    p.Alive,
			Host:     p.Host,
		}
		if !p.Alive || finished {
			pv.Role = p.Role
		}
		if p.Alive {
			v.AliveCount++
		}
		v.Players = append(v.Players, pv)
	}

	for _, id := range s.speakingOrder {
		v.SpeakingOrder = append(v.SpeakingOrder, s.players[id].Nickname)
	}

	if target, ok := s.votes[viewer.ID]; ok {
		v.HasVoted = true
		v.VotedFor = target
	}

	v.VotingTimerSeconds = int(s.votingTimer / time.Second)
	if s.phase == PhaseVoting && s.votingTimer > 0 {
		remaining := max(0, int((s.votingTimer - s.now().Sub(s.votingStarted)) / time.Second))
		v.VotingSecondsRemaining = &remaining
	}

	if last := s.lastEliminationLocked(); last != nil {
		v.LastElimination = &EliminationView{
			Round:    last.Round,
			PlayerID: last.PlayerID,
			Nickname: s.players[last.PlayerID].Nickname,
			Role:     last.Role,
			WasTie:   last.WasTie,
			Votes:    last.Counts,
		}
	}

	if finished {
		v.Reveal = &Reveal{Winner: s.winner}
		if s.words != nil {
			v.Reveal.VillagerWord = s.words.Villager
			v.Reveal.KnightWord = s.words.Knight
		}
		if s.guess != nil {
			v.Reveal.DragonGuess = s.guess.text
			v.Reveal.GuessCorrect = s.guess.correct
		}
	}

	isEliminatedDragon := viewer.Role == RoleDragon && !viewer.Alive

	v.CanStart = viewer.Host && s.phase == PhaseLobby &&
		len(s.players) >= s.cfg.MinPlayers && len(s.players) <= s.cfg.MaxPlayers
	v.CanSetTimer = viewer.Host && s.phase == PhaseLobby
	v.CanBeginVoting = viewer.Host && s.phase == PhasePlaying
	v.CanCloseVoting = viewer.Host && s.phase == PhaseVoting
	v.ShowVoting = s.phase == PhaseVoting
	v.CanVote = s.phase == PhaseVoting && viewer.Alive
	v.ShowGuess = s.phase == PhaseDragonGuess && isEliminatedDragon
	v.AwaitingGuess = s.phase == PhaseDragonGuess && !isEliminatedDragon

	return v
}
