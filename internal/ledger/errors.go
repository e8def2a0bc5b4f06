package ledger

import "errors"

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrDuplicateEmail      = errors.New("account with this email already exists")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAccountNotFound     = errors.New("account not found")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrImageNotFound       = errors.New("image not found")
	ErrInvalidDecision     = errors.New("decision must be approved or rejected")
)
