package auth

import (
	"errors"
	"fmt"
)

// ErrInvalidToken is the umbrella error for every token verification failure.
// The wrapped variants below distinguish the cause for logging; API handlers
// must match on ErrInvalidToken only so all failures map to the same 401.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrBadSignature   = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrWrongTokenType = fmt.Errorf("%w: wrong token type", ErrInvalidToken)
)

// ErrTenantMismatch is returned when a caller addresses a tenant other than
// their own without the superadmin role. Mapped to 403, never 404, so the
// response does not reveal whether the addressed tenant exists.
var ErrTenantMismatch = errors.New("access to this tenant is not allowed")

// ErrPermissionDenied is returned when the caller's resolved permission set
// does not contain the required permission or the wildcard.
var ErrPermissionDenied = errors.New("insufficient permissions")
