package domain

import "errors"

// Domain errors. Every one of them is recoverable and returned to the immediate
// caller; the API layer maps them to HTTP status codes.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDuplicateRequest   = errors.New("a pending charge request already exists between these accounts")
	ErrUnauthorized       = errors.New("actor is not allowed to perform this action")
	ErrNotFound           = errors.New("charge request not found")
	ErrSameActor          = errors.New("requester and target must differ")
	ErrInvalidAccount     = errors.New("invalid account identity")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNoSession          = errors.New("no open pay session")
	ErrInvalidStep        = errors.New("pay session is not at this step")
)
