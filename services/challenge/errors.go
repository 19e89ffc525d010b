package challenge

import "smallbiznis-rewards/pkg/errutil"

var (
	ErrInvalidArgument    = errutil.BadRequest("user and challenge are required", nil, errutil.WithReason("CHALLENGE_INVALID_ARGUMENT"))
	ErrInvalidProgress    = errutil.BadRequest("progress must be positive", nil, errutil.WithReason("CHALLENGE_INVALID_PROGRESS"))
	ErrChallengeNotFound  = errutil.NotFound("challenge not found", nil, errutil.WithReason("CHALLENGE_NOT_FOUND"))
	ErrChallengeNotActive = errutil.Conflict("challenge is not active", nil, errutil.WithReason("CHALLENGE_NOT_ACTIVE"))
	ErrNoParticipation    = errutil.NotFound("user has not joined this challenge", nil, errutil.WithReason("CHALLENGE_NO_PARTICIPATION"))
	ErrAlreadyCompleted   = errutil.Conflict("challenge already completed", nil, errutil.WithReason("CHALLENGE_ALREADY_COMPLETED"))
)
