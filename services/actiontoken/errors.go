package actiontoken

import "smallbiznis-rewards/pkg/errutil"

var (
	ErrInvalidSignature = errutil.Unauthorized("action token cannot be verified", nil, errutil.WithReason("TOKEN_INVALID_SIGNATURE"))
	ErrExpired          = errutil.Unauthorized("action token is expired", nil, errutil.WithReason("TOKEN_EXPIRED"))
	ErrPurposeMismatch  = errutil.Forbidden("action token was issued for another purpose", nil, errutil.WithReason("TOKEN_PURPOSE_MISMATCH"))
	ErrScopeMismatch    = errutil.Forbidden("action token was issued for another merchant", nil, errutil.WithReason("TOKEN_SCOPE_MISMATCH"))
	ErrAlreadyConsumed  = errutil.Conflict("action token already consumed", nil, errutil.WithReason("TOKEN_ALREADY_CONSUMED"))
	ErrInvalidRequest   = errutil.BadRequest("subject, merchant and purpose are required", nil, errutil.WithReason("TOKEN_INVALID_REQUEST"))
	ErrTTLTooLong       = errutil.BadRequest("requested ttl exceeds the allowed maximum", nil, errutil.WithReason("TOKEN_TTL_TOO_LONG"))
)
