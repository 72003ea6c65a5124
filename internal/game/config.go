/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"time"
)

const (
	MinPlayers = 3
	MaxPlayers = 12

	MinVotingTimer = 30 * time.Second
	MaxVotingTimer = 180 * time.Second

	MaxNicknameLength = 20
)

// WordPair is the secret drawn at start. Knights get a word close to the
// villagers' one; the Dragon gets neither.
type WordPair struct {
	Villager string `json:"villager" mapstructure:"villager"`
	Knight   string `json:"knight" mapstructure:"knight"`
}

// Config is fixed when a session is created.
type Config struct {
	MinPlayers  int
	MaxPlayers  int
	WordPairs   []WordPair
	SessionTTL  time.Duration
	FinishedTTL time.Duration
}

// DefaultConfig returns the stock player limits, word list, and TTLs.
func DefaultConfig() Config {
	return Config{
		MinPlayers:  MinPlayers,
		MaxPlayers:  MaxPlayers,
		WordPairs:   DefaultWordPairs(),
		SessionTTL:  time.Hour,
		FinishedTTL: 30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.MinPlayers < MinPlayers {
		c.MinPlayers = MinPlayers
	}
	if c.MaxPlayers <= 0 || c.MaxPlayers > MaxPlayers {
		c.MaxPlayers = MaxPlayers
	}
	if len(c.WordPairs) == 0 {
		c.WordPairs = DefaultWordPairs()
	}

	return c
}

// Rand is the randomness a session consumes. *rand.Rand from math/rand/v2
// satisfies it; tests pass a seeded one.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// NewRand returns a PCG source seeded from crypto/rand.
func NewRand() *rand.Rand {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:])))
}
