package loyalty

import "smallbiznis-rewards/pkg/errutil"

var (
	ErrMerchantRequired = errutil.BadRequest("caller identity carries no merchant", nil, errutil.WithReason("MERCHANT_REQUIRED"))
	ErrInvalidBody      = errutil.BadRequest("invalid request body", nil, errutil.WithReason("INVALID_BODY"))
)
