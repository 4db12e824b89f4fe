package domain

import "errors"

var (
	// ErrNetworkUnavailable means the remote fetch failed and no offline
	// fallback applies. The session cannot start.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrEmptyCache means offline fallback was allowed but no cached payload
	// exists for the source URL.
	ErrEmptyCache = errors.New("no cached question set")
	// ErrEmptyResult means the resolved question set contains no questions.
	ErrEmptyResult = errors.New("question set is empty")
	// ErrStorage means the local persistence layer failed on a read that the
	// resolution depended on.
	ErrStorage = errors.New("storage failure")

	// ErrQuizNotFound indicates an unknown catalog quiz ID.
	ErrQuizNotFound = errors.New("quiz not found")

	// ErrInvalidMode is returned when a session start names an unknown mode.
	ErrInvalidMode = errors.New("unknown session mode")
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFinished is returned on interaction with a finished session.
	ErrSessionFinished = errors.New("session already finished")
	// ErrAnswerLocked is returned when a training answer is resubmitted.
	ErrAnswerLocked = errors.New("answer already locked in")
	// ErrAnswerRequired is returned when training tries to advance before the
	// current question is answered.
	ErrAnswerRequired = errors.New("answer required before advancing")

	// ErrRoomNotFound means no duel room exists under the given code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotWaiting means the room already started or ended.
	ErrRoomNotWaiting = errors.New("room is not waiting for players")
	// ErrRoomFull means the room already has a guest.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomExists is returned by create-if-absent on a code collision.
	ErrRoomExists = errors.New("room code already taken")

	// ErrProfileNotFound indicates an unknown user.
	ErrProfileNotFound = errors.New("profile not found")
)
