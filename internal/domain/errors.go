package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session exists for a code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMatchNotFound is returned when no duel match exists for an id.
	ErrMatchNotFound = errors.New("match not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrNotHost is returned when a host-only operation comes from a connection
	// other than the recorded host connection.
	ErrNotHost = errors.New("not authorized: host only")
	// ErrInvalidState is returned for operations illegal in the current lifecycle state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrSessionClosed is returned when joining a completed or cancelled session.
	ErrSessionClosed = errors.New("session already ended")
	// ErrLateJoinDisabled is returned when joining an active session that forbids late joins.
	ErrLateJoinDisabled = errors.New("late join is disabled for this session")
	// ErrSessionFull is returned when the active participant count is at the limit.
	ErrSessionFull = errors.New("session is full")
	// ErrWrongQuestion is returned when an answer targets a question index
	// other than the submitter's current one.
	ErrWrongQuestion = errors.New("answer does not match current question")
	// ErrAlreadyAnswered is returned on a duplicate answer for the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrVersionConflict is the store-level signal that an aggregate changed
	// between read and save. Callers retry; it never reaches clients directly.
	ErrVersionConflict = errors.New("aggregate version conflict")
	// ErrConcurrentUpdate is surfaced after optimistic retries are exhausted.
	ErrConcurrentUpdate = errors.New("concurrent update, please retry")
	// ErrAlreadyExists faults an insert of an aggregate under a taken key.
	ErrAlreadyExists = errors.New("aggregate already exists")
	// ErrCodeSpaceExhausted is returned when code generation hits its retry ceiling.
	ErrCodeSpaceExhausted = errors.New("could not generate a unique code")
	// ErrMatchExpired is returned when acting on a match past its expiry.
	ErrMatchExpired = errors.New("match expired")
)
