/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInvalidPlayerCount     Code = "INVALID_PLAYER_COUNT"
	CodeInvalidPhaseTransition Code = "INVALID_PHASE_TRANSITION"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeNoValidVotes           Code = "NO_VALID_VOTES"
	CodeUnknownPlayer          Code = "UNKNOWN_PLAYER"
	CodeDuplicateNickname      Code = "DUPLICATE_NICKNAME"
	CodeInvalidNickname        Code = "INVALID_NICKNAME"
	CodeInvalidTarget          Code = "INVALID_TARGET"
	CodeInvalidTimer           Code = "INVALID_TIMER"
	CodeSessionNotFound        Code = "SESSION_NOT_FOUND"
)

// Error is a validation failure reported to the caller of a session
// operation. A failed operation never leaves a partial mutation behind.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error carrying the same code, so wrapped messages still
// satisfy errors.Is against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Code == e.Code
}

var (
	ErrInvalidPlayerCount     = &Error{Code: CodeInvalidPlayerCount, Message: "invalid player count"}
	ErrInvalidPhaseTransition = &Error{Code: CodeInvalidPhaseTransition, Message: "operation not allowed in this phase"}
	ErrPermissionDenied       = &Error{Code: CodePermissionDenied, Message: "permission denied"}
	ErrNoValidVotes           = &Error{Code: CodeNoValidVotes, Message: "no valid votes"}
	ErrUnknownPlayer          = &Error{Code: CodeUnknownPlayer, Message: "unknown player"}
	ErrDuplicateNickname      = &Error{Code: CodeDuplicateNickname, Message: "nickname already taken"}
	ErrInvalidNickname        = &Error{Code: CodeInvalidNickname, Message: "invalid nickname"}
	ErrInvalidTarget          = &Error{Code: CodeInvalidTarget, Message: "invalid vote target"}
	ErrInvalidTimer           = &Error{Code: CodeInvalidTimer, Message: "invalid voting timer"}
	ErrSessionNotFound        = &Error{Code: CodeSessionNotFound, Message: "game not found"}
)

func errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code carried by err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ""
}
