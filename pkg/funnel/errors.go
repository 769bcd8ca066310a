package funnel

import "errors"

var (
	ErrSessionNotFound = errors.New("signup session not found")
	ErrNoSessions      = errors.New("no sessions recorded")
	ErrUnknownStage    = errors.New("unknown funnel stage")
)
