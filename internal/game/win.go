/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

// Outcome is what the win evaluator decides after an elimination or guess.
type Outcome string

const (
	OutcomeContinue      Outcome = ""
	OutcomeAwaitingGuess Outcome = "awaiting_guess"
	OutcomeVillagersWin  Outcome = "villagers"
	OutcomeDragonWin     Outcome = "dragon"
)

// Terminal reports whether the game is over.
func (o Outcome) Terminal() bool {
	return o == OutcomeVillagersWin || o == OutcomeDragonWin
}

// Evaluate applies the win rules in order:
//  1. Dragon just eliminated and its guess resolved: the guess decides.
//  2. Dragon just eliminated, no guess yet: the Dragon must guess first.
//  3. Two or fewer players alive with the Dragon among them: Dragon wins.
//  4. Otherwise the game continues.
//
// guessCorrect is nil while no guess has been made.
func Evaluate(alive []*Player, lastEliminated *Player, guessCorrect *bool) Outcome {
	if lastEliminated != nil && lastEliminated.Role == RoleDragon {
		if guessCorrect == nil {
			return OutcomeAwaitingGuess
		}
		if *guessCorrect {
			return OutcomeDragonWin
		}

		return OutcomeVillagersWin
	}

	dragonAlive := false
	for _, p := range alive {
		if p.Role == RoleDragon {
			dragonAlive = true
			break
		}
	}

	if dragonAlive && len(alive) <= 2 {
		return OutcomeDragonWin
	}

	return OutcomeContinue
}
