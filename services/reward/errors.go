package reward

import "smallbiznis-rewards/pkg/errutil"

var (
	ErrNoEligibleRewardPolicy = errutil.UnprocessableEntity("no eligible reward policy for this merchant", nil, errutil.WithReason("REWARD_NO_ELIGIBLE_POLICY"))
	ErrTemplateUnavailable    = errutil.UnprocessableEntity("coupon template is not available", nil, errutil.WithReason("REWARD_TEMPLATE_UNAVAILABLE"))
	ErrCouponNotFound         = errutil.NotFound("coupon not found", nil, errutil.WithReason("COUPON_NOT_FOUND"))
	ErrForbidden              = errutil.Forbidden("coupon belongs to another user", nil, errutil.WithReason("COUPON_FORBIDDEN"))
	ErrCouponNotActive        = errutil.Conflict("coupon is no longer active", nil, errutil.WithReason("COUPON_NOT_ACTIVE"))
	ErrInvalidArgument        = errutil.BadRequest("user and coupon are required", nil, errutil.WithReason("COUPON_INVALID_ARGUMENT"))
)
