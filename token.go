/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenCookiePrefix = "player_token_"
	tokenIssuer       = "dragonseeker"
	tokenLifetime     = 24 * time.Hour
)

var errInvalidToken = errors.New("invalid or expired player token")

type playerClaims struct {
	jwt.RegisteredClaims
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
}

// tokenSigner issues and checks the per-player tokens that stand in for
// identity. A token only proves "this browser joined game X as player Y".
type tokenSigner struct {
	key []byte
	now func() time.Time
}

func newTokenSigner(secret string) (*tokenSigner, bool, error) {
	if secret != "" {
		return &tokenSigner{key: []byte(secret), now: time.Now}, false, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, false, fmt.Errorf("generate token secret: %w", err)
	}

	return &tokenSigner{key: []byte(hex.EncodeToString(buf)), now: time.Now}, true, nil
}

func (t *tokenSigner) issue(gameID, playerID string) (string, error) {
	now := t.now()

	claims := playerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
		GameID:   gameID,
		PlayerID: playerID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign player token: %w", err)
	}

	return signed, nil
}

// verify checks signature, expiry, and that the token belongs to the given
// game and player.
func (t *tokenSigner) verify(token, gameID, playerID string) error {
	if token == "" {
		return errInvalidToken
	}

	var parsed playerClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return errInvalidToken
	}

	if parsed.GameID != gameID || parsed.PlayerID != playerID {
		return errInvalidToken
	}

	return nil
}

func tokenCookieName(playerID string) string {
	return tokenCookiePrefix + playerID
}

func (t *tokenSigner) setCookie(cfg *Config, w http.ResponseWriter, token, playerID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName(playerID),
		Value:    token,
		Path:     cfg.prefix + "/",
		MaxAge:   int(tokenLifetime.Seconds()),
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// authorize checks the request's cookie for playerID in gameID.
func (t *tokenSigner) authorize(r *http.Request, gameID, playerID string) error {
	c, err := r.Cookie(tokenCookieName(playerID))
	if err != nil {
		return errInvalidToken
	}

	return t.verify(c.Value, gameID, playerID)
}
