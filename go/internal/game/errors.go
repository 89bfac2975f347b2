package game

import "errors"

// Kind classifies an engine error for reporting.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindStateConflict
	KindNotAuthorized
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindNotAuthorized:
		return "not_authorized"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is an engine error that is safe to show to the originating client.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidIdentity   = &Error{Kind: KindValidation, Code: "invalid_identity", Message: "name must be 1-40 printable characters"}
	ErrInvalidInvestment = &Error{Kind: KindValidation, Code: "invalid_investment", Message: "investment must be a number"}
	ErrNotInGame         = &Error{Kind: KindValidation, Code: "not_in_game", Message: "join the game first"}
	ErrIdentityTaken     = &Error{Kind: KindValidation, Code: "identity_taken", Message: "that name is already registered"}
	ErrUnknownTeam       = &Error{Kind: KindValidation, Code: "unknown_team", Message: "team is not registered"}
	ErrMalformedMessage  = &Error{Kind: KindValidation, Code: "malformed_message", Message: "could not read message"}

	ErrNotAcceptingSubmissions = &Error{Kind: KindStateConflict, Code: "not_accepting_submissions", Message: "the round is not accepting investments"}
	ErrNoPlayers               = &Error{Kind: KindStateConflict, Code: "no_players", Message: "no players are connected"}
	ErrAlreadyRunning          = &Error{Kind: KindStateConflict, Code: "already_running", Message: "the game has already started"}

	ErrNotAuthorized = &Error{Kind: KindNotAuthorized, Code: "not_authorized", Message: "only the instructor can do that"}

	ErrInternal = &Error{Kind: KindInternal, Code: "internal_error", Message: "something went wrong, please try again"}
)

// AsError extracts the engine error from err. Anything that is not an engine
// error is reported as ErrInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
