package notification

import (
	"context"
	"encoding/json"

	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Channels (push, email) live outside this service; the worker records the
// delivery hand-off.

func HandleRewardIssued(ctx context.Context, t *asynq.Task) error {
	var payload RewardIssuedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid reward notification payload", zap.Error(err))
		return asynq.SkipRetry
	}

	zap.L().Info("reward issued notification",
		zap.String("task_type", t.Type()),
		zap.String("user_id", payload.UserID),
		zap.String("merchant_id", payload.MerchantID),
		zap.String("coupon_id", payload.CouponID),
		zap.String("trace_id", payload.TraceID),
	)
	return nil
}

func HandleMilestoneGranted(ctx context.Context, t *asynq.Task) error {
	var payload MilestoneGrantedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid milestone notification payload", zap.Error(err))
		return asynq.SkipRetry
	}

	zap.L().Info("milestone granted notification",
		zap.String("task_type", t.Type()),
		zap.String("user_id", payload.UserID),
		zap.String("challenge_id", payload.ChallengeID),
		zap.Int64("completed_count", payload.CompletedCount),
		zap.Int64("points", payload.Points),
		zap.String("trace_id", payload.TraceID),
	)
	return nil
}

func registerHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.NotificationRewardIssued, HandleRewardIssued)
	mux.HandleFunc(taskname.NotificationMilestoneGranted, HandleMilestoneGranted)
}
