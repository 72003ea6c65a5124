/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/dragonseeker/internal/game"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind          string
	finishedTTL   time.Duration
	historyDB     string
	maxPlayers    int
	minPlayers    int
	port          int
	prefix        string
	profile       bool
	rateLimit     bool
	secret        string
	sessionTTL    time.Duration
	sweepInterval time.Duration
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool
	words         string

	wordPairs []game.WordPair
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minPlayers < game.MinPlayers || c.maxPlayers > game.MaxPlayers || c.minPlayers > c.maxPlayers {
		return fmt.Errorf("invalid player limits (must satisfy %d <= min <= max <= %d): %d-%d",
			game.MinPlayers, game.MaxPlayers, c.minPlayers, c.maxPlayers)
	}
	if c.sessionTTL <= 0 || c.finishedTTL <= 0 || c.sweepInterval <= 0 {
		return errors.New("--session-ttl, --finished-ttl, and --sweep-interval must be positive")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) gameConfig() game.Config {
	return game.Config{
		MinPlayers:  c.minPlayers,
		MaxPlayers:  c.maxPlayers,
		WordPairs:   c.wordPairs,
		SessionTTL:  c.sessionTTL,
		FinishedTTL: c.finishedTTL,
	}
}

// loadWordPairs reads a list of pairs under the "pairs" key from any format
// viper understands (yaml, json, toml, ...).
func loadWordPairs(path string) ([]game.WordPair, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read word list %s: %w", path, err)
	}

	var pairs []game.WordPair
	if err := v.UnmarshalKey("pairs", &pairs); err != nil {
		return nil, fmt.Errorf("parse word list %s: %w", path, err)
	}

	for i, p := range pairs {
		if strings.TrimSpace(p.Villager) == "" || strings.TrimSpace(p.Knight) == "" {
			return nil, fmt.Errorf("word list %s: pair %d is missing a word", path, i+1)
		}
		if strings.EqualFold(strings.TrimSpace(p.Villager), strings.TrimSpace(p.Knight)) {
			return nil, fmt.Errorf("word list %s: pair %d uses the same word twice", path, i+1)
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("word list %s contains no pairs", path)
	}

	return pairs, nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DRAGONSEEKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "dragonseeker",
		Short:         "A social deduction party game: find the Dragon before it finds the word.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			if cfg.words != "" {
				pairs, err := loadWordPairs(cfg.words)
				if err != nil {
					return err
				}
				cfg.wordPairs = pairs
			}

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: DRAGONSEEKER_BIND)")
	fs.DurationVar(&cfg.finishedTTL, "finished-ttl", 30*time.Minute, "time finished games are kept around (env: DRAGONSEEKER_FINISHED_TTL)")
	fs.StringVar(&cfg.historyDB, "history-db", "", "path to sqlite database for finished game results (env: DRAGONSEEKER_HISTORY_DB)")
	fs.IntVar(&cfg.maxPlayers, "max-players", game.MaxPlayers, "maximum players per game (env: DRAGONSEEKER_MAX_PLAYERS)")
	fs.IntVar(&cfg.minPlayers, "min-players", game.MinPlayers, "minimum players to start a game (env: DRAGONSEEKER_MIN_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: DRAGONSEEKER_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: DRAGONSEEKER_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: DRAGONSEEKER_PROFILE)")
	fs.BoolVar(&cfg.rateLimit, "rate-limit", true, "limit requests per client IP (env: DRAGONSEEKER_RATE_LIMIT)")
	fs.StringVar(&cfg.secret, "secret", "", "key used to sign player tokens, random if unset (env: DRAGONSEEKER_SECRET)")
	fs.DurationVar(&cfg.sessionTTL, "session-ttl", time.Hour, "time before lobbies and idle games are ended (env: DRAGONSEEKER_SESSION_TTL)")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", time.Minute, "how often expired games are reaped (env: DRAGONSEEKER_SWEEP_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: DRAGONSEEKER_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: DRAGONSEEKER_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: DRAGONSEEKER_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: DRAGONSEEKER_VERSION)")
	fs.StringVar(&cfg.words, "words", "", "path to a yaml/json/toml file of word pairs (env: DRAGONSEEKER_WORDS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("dragonseeker v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
