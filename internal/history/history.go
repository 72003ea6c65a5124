/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package history archives the outcome of finished games in SQLite. It is
// write-only from the game's point of view; sessions are never restored
// from it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Seednode/dragonseeker/internal/game"

	_ "modernc.org/sqlite"
)

// Totals aggregates every archived game.
type Totals struct {
	Games        int `json:"games"`
	DragonWins   int `json:"dragon_wins"`
	VillagerWins int `json:"villager_wins"`
	CorrectGuess int `json:"correct_guesses"`
}

// Store is an open archive.
type Store struct {
	db *sql.DB
}

// Open prepares a SQLite database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			winner TEXT NOT NULL,
			players INTEGER NOT NULL,
			rounds INTEGER NOT NULL,
			villager_word TEXT NOT NULL,
			knight_word TEXT NOT NULL,
			dragon_guess TEXT NOT NULL DEFAULT '',
			guess_correct INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_games_finished_at ON games(finished_at);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record archives a finished game. Recording the same game twice keeps the
// first row.
func (s *Store) Record(ctx context.Context, sum game.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO games
			(id, winner, players, rounds, villager_word, knight_word, dragon_guess, guess_correct, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.GameID,
		string(sum.Winner),
		sum.Players,
		sum.Rounds,
		sum.VillagerWord,
		sum.KnightWord,
		sum.DragonGuess,
		sum.GuessCorrect,
		sum.StartedAt.UTC(),
		sum.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record game %s: %w", sum.GameID, err)
	}

	return nil
}

// Totals returns win counts across the archive.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals

	err := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN winner = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN winner = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(guess_correct), 0)
		FROM games`,
		string(game.OutcomeDragonWin),
		string(game.OutcomeVillagersWin),
	).Scan(&t.Games, &t.DragonWins, &t.VillagerWins, &t.CorrectGuess)
	if err != nil {
		return Totals{}, fmt.Errorf("query totals: %w", err)
	}

	return t, nil
}

// Since returns games finished at or after t, newest first.
func (s *Store) Since(ctx context.Context, t time.Time) ([]game.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, winner, players, rounds, villager_word, knight_word, dragon_guess, guess_correct, started_at, finished_at
		FROM games WHERE finished_at >= ? ORDER BY finished_at DESC`,
		t.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var out []game.Summary
	for rows.Next() {
		var (
			sum    game.Summary
			winner string
		)
		if err := rows.Scan(&sum.GameID, &winner, &sum.Players, &sum.Rounds, &sum.VillagerWord,
			&sum.KnightWord, &sum.DragonGuess, &sum.GuessCorrect, &sum.StartedAt, &sum.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		sum.Winner = game.Outcome(winner)
		out = append(out, sum)
	}

	return out, rows.Err()
}
