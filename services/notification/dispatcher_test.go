package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"smallbiznis-rewards/pkg/taskname"
	"smallbiznis-rewards/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRewardIssuedEnqueues(t *testing.T) {
	enqueuer := &testutil.Enqueuer{}
	d := NewDispatcher(Params{Enqueuer: enqueuer})

	d.RewardIssued(context.Background(), RewardIssuedPayload{UserID: "u1", MerchantID: "m1", CouponID: "c1", CouponCode: "CPN-m1-0001"})
	d.MilestoneGranted(context.Background(), MilestoneGrantedPayload{UserID: "u1", ChallengeID: "ch1", CompletedCount: 3, Points: 50})

	require.Equal(t, []string{taskname.NotificationRewardIssued, taskname.NotificationMilestoneGranted}, enqueuer.Types())

	var got RewardIssuedPayload
	require.NoError(t, json.Unmarshal(enqueuer.Tasks[0].Payload(), &got))
	require.Equal(t, "c1", got.CouponID)
	require.Equal(t, "CPN-m1-0001", got.CouponCode)
	require.Empty(t, got.TraceID)
}

func TestEnqueueFailureIsSwallowed(t *testing.T) {
	enqueuer := &testutil.Enqueuer{Err: errors.New("redis down")}
	d := NewDispatcher(Params{Enqueuer: enqueuer})

	require.NotPanics(t, func() {
		d.RewardIssued(context.Background(), RewardIssuedPayload{UserID: "u1", CouponID: "c1"})
	})
	require.Empty(t, enqueuer.Types())

	require.NotPanics(t, func() {
		NewDispatcher(Params{}).MilestoneGranted(context.Background(), MilestoneGrantedPayload{UserID: "u1"})
	})
}

func TestHandlers(t *testing.T) {
	body, err := json.Marshal(MilestoneGrantedPayload{UserID: "u1", ChallengeID: "ch1", CompletedCount: 3})
	require.NoError(t, err)
	require.NoError(t, HandleMilestoneGranted(context.Background(), asynq.NewTask(taskname.NotificationMilestoneGranted, body)))

	err = HandleRewardIssued(context.Background(), asynq.NewTask(taskname.NotificationRewardIssued, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
