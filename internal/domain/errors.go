package domain

import "errors"

// Every failure the engine surfaces wraps one of these, so callers can
// branch with errors.Is and apply the matching fallback.
var (
	ErrValidation         = errors.New("validation error")
	ErrNoEligibleStrategy = errors.New("no eligible strategy")
	ErrOverConstrained    = errors.New("allocation over-constrained")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrTimeout            = errors.New("timeout")
	ErrPriceUnavailable   = errors.New("price unavailable")
)
