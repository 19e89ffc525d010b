package point

import "smallbiznis-rewards/pkg/errutil"

var (
	ErrInvalidArgument  = errutil.BadRequest("user and collection are required", nil, errutil.WithReason("POINT_INVALID_ARGUMENT"))
	ErrInvalidAmount    = errutil.BadRequest("point amount must be positive", nil, errutil.WithReason("POINT_INVALID_AMOUNT"))
	ErrAlreadyConverted = errutil.Conflict("collection was already converted", nil, errutil.WithReason("POINT_ALREADY_CONVERTED"))
	ErrNothingToConvert = errutil.Conflict("collection has no stamps to convert", nil, errutil.WithReason("POINT_NOTHING_TO_CONVERT"))
)
