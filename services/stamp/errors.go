package stamp

import "smallbiznis-rewards/pkg/errutil"

var (
	ErrInvalidArgument     = errutil.BadRequest("user and merchant are required", nil, errutil.WithReason("STAMP_INVALID_ARGUMENT"))
	ErrGoalAlreadyExceeded = errutil.Conflict("collection already reached its goal", nil, errutil.WithReason("STAMP_GOAL_ALREADY_EXCEEDED"))
	ErrCollectionNotFound  = errutil.NotFound("collection not found", nil, errutil.WithReason("COLLECTION_NOT_FOUND"))
	ErrForbidden           = errutil.Forbidden("collection belongs to another user", nil, errutil.WithReason("COLLECTION_FORBIDDEN"))
	ErrCollectionNotActive = errutil.Conflict("collection is not active", nil, errutil.WithReason("COLLECTION_NOT_ACTIVE"))
	ErrAlreadyExtended     = errutil.Conflict("collection was already extended", nil, errutil.WithReason("COLLECTION_ALREADY_EXTENDED"))
	ErrTokenAlreadyStamped = errutil.Conflict("action token already granted a stamp", nil, errutil.WithReason("STAMP_TOKEN_ALREADY_USED"))
)
