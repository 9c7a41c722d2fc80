package engine

import (
	"errors"

	"github.com/veil/chat-app/internal/chat"
	"github.com/veil/chat-app/internal/matching"
)

// Precondition violations. All are user-visible, non-fatal, and reported
// to the immediate caller; none leaves shared state inconsistent.
var (
	// ErrNotAgreed is returned when a user issues a command before
	// accepting the terms of use.
	ErrNotAgreed = errors.New("engine: terms not accepted")

	// ErrBanned is returned for any command from a banned user.
	ErrBanned = errors.New("engine: user is banned")

	// ErrAlreadyWaiting is returned by StartSearch when the user is
	// already in the waiting pool.
	ErrAlreadyWaiting = matching.ErrAlreadyWaiting

	// ErrAlreadyInChat is returned by StartSearch when the user is
	// bound to an active chat.
	ErrAlreadyInChat = errors.New("engine: user already in a chat")

	// ErrNotInChat is returned by relay, handshake, report and end-chat
	// operations when the user has no active chat.
	ErrNotInChat = errors.New("engine: user is not in a chat")

	// ErrMutedSender is returned by relay operations when the sender is
	// muted. The payload is dropped and a notice is echoed back.
	ErrMutedSender = errors.New("engine: sender is muted")

	// ErrConflictingState is surfaced when a pairing would violate the
	// one-chat-per-user invariant.
	ErrConflictingState = chat.ErrConflictingState

	// ErrValidation is returned for malformed operation input, such as
	// an admin command with an invalid target id. The operation is
	// aborted with no partial mutation.
	ErrValidation = errors.New("engine: invalid input")
)
