package expiry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/taskname"
	"smallbiznis-rewards/services/actiontoken"
	"smallbiznis-rewards/services/reward"
	"smallbiznis-rewards/services/stamp"
	"smallbiznis-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db      *gorm.DB
	sweeper *Sweeper
	clock   *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t,
		&Run{}, &reward.CouponTemplate{}, &reward.UserCoupon{},
		&stamp.Collection{}, &actiontoken.ConsumedToken{},
	)
	clock := testutil.NewClock(time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC))

	sweeper := NewSweeper(Params{DB: db, Node: testutil.NewNode(t), Purger: actiontoken.NewDBLedger(db)})
	sweeper.SetClock(clock.Now)

	return &fixture{db: db, sweeper: sweeper, clock: clock}
}

func (f *fixture) coupon(t *testing.T, id, templateID string, expiredAt *time.Time, status reward.CouponStatus) {
	t.Helper()
	require.NoError(t, f.db.Create(&reward.UserCoupon{
		ID:              id,
		UserID:          "u1",
		TemplateID:      templateID,
		MerchantID:      "m1",
		Code:            "CODE-" + id,
		AcquisitionType: reward.AcquisitionStamp,
		Status:          status,
		IssuedAt:        f.clock.Now().AddDate(0, 0, -10),
		ExpiredAt:       expiredAt,
	}).Error)
}

func (f *fixture) status(t *testing.T, id string) reward.CouponStatus {
	t.Helper()
	var c reward.UserCoupon
	require.NoError(t, f.db.First(&c, "id = ?", id).Error)
	return c.Status
}

func ptr(t time.Time) *time.Time { return &t }

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	require.NoError(t, f.db.Create(&reward.CouponTemplate{ID: "tpl-open", MerchantID: "m1", Purpose: reward.PurposeStamp, IsActive: true}).Error)
	require.NoError(t, f.db.Create(&reward.CouponTemplate{ID: "tpl-ended", MerchantID: "m1", Purpose: reward.PurposeStamp, IsActive: true, ExpiredAt: ptr(now.Add(-time.Hour))}).Error)

	f.coupon(t, "lapsed", "tpl-open", ptr(now.Add(-time.Minute)), reward.CouponActive)
	f.coupon(t, "boundary", "tpl-open", ptr(now), reward.CouponActive)
	f.coupon(t, "valid", "tpl-open", ptr(now.Add(time.Hour)), reward.CouponActive)
	f.coupon(t, "no-expiry", "tpl-open", nil, reward.CouponActive)
	f.coupon(t, "template-ended", "tpl-ended", nil, reward.CouponActive)
	f.coupon(t, "used", "tpl-open", ptr(now.Add(-time.Minute)), reward.CouponUsed)

	lapsed := stamp.NewCollection("c-lapsed", "u1", "m1", 1, &stamp.Program{GoalCount: 10, ValidDays: 1}, now.AddDate(0, 0, -2))
	fresh := stamp.NewCollection("c-fresh", "u2", "m1", 1, &stamp.Program{GoalCount: 10, ValidDays: 30}, now)
	require.NoError(t, f.db.Create(lapsed).Error)
	require.NoError(t, f.db.Create(fresh).Error)

	require.NoError(t, f.db.Create(&actiontoken.ConsumedToken{JTI: "jti-old", ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)}).Error)
	require.NoError(t, f.db.Create(&actiontoken.ConsumedToken{JTI: "jti-new", ExpiresAt: now.Add(time.Hour), CreatedAt: now}).Error)

	first, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), first.ExpiredCount)
	require.Equal(t, int64(1), first.ExpiredCollections)
	require.Equal(t, int64(1), first.PurgedTokens)
	require.Zero(t, first.Failures)

	require.Equal(t, reward.CouponExpired, f.status(t, "lapsed"))
	require.Equal(t, reward.CouponExpired, f.status(t, "boundary"))
	require.Equal(t, reward.CouponExpired, f.status(t, "template-ended"))
	require.Equal(t, reward.CouponActive, f.status(t, "valid"))
	require.Equal(t, reward.CouponActive, f.status(t, "no-expiry"))
	require.Equal(t, reward.CouponUsed, f.status(t, "used"))

	var col stamp.Collection
	require.NoError(t, f.db.First(&col, "id = ?", "c-lapsed").Error)
	require.Equal(t, stamp.StatusExpired, col.Status)
	require.Nil(t, col.ActiveSlot)

	second, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, second.ExpiredCount)
	require.Zero(t, second.ExpiredCollections)
	require.Zero(t, second.PurgedTokens)

	var runs []Run
	require.NoError(t, f.db.Order("started_at asc, id asc").Find(&runs).Error)
	require.Len(t, runs, 2)
	require.Equal(t, RunSuccess, runs[0].Status)
	require.Equal(t, int64(3), runs[0].ExpiredCoupons)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestSweepLosesToRedemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	require.NoError(t, f.db.Create(&reward.CouponTemplate{ID: "tpl", MerchantID: "m1", Purpose: reward.PurposePromotion, IsActive: true}).Error)
	f.coupon(t, "c1", "tpl", ptr(now.Add(-time.Second)), reward.CouponActive)

	// redemption committed first
	require.NoError(t, f.db.Model(&reward.UserCoupon{}).Where("id = ? AND status = ?", "c1", reward.CouponActive).
		Updates(map[string]any{"status": reward.CouponUsed, "used_at": now}).Error)

	res, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, res.ExpiredCount)
	require.Equal(t, reward.CouponUsed, f.status(t, "c1"))
}

type failingPurger struct{}

func (failingPurger) Purge(context.Context, time.Time) (int64, error) {
	return 0, errors.New("ledger offline")
}

func TestSweepCountsPhaseFailures(t *testing.T) {
	f := newFixture(t)
	f.sweeper.purger = failingPurger{}

	require.NoError(t, f.db.Create(&reward.CouponTemplate{ID: "tpl", MerchantID: "m1", Purpose: reward.PurposePromotion, IsActive: true}).Error)
	f.coupon(t, "c1", "tpl", ptr(f.clock.Now().Add(-time.Hour)), reward.CouponActive)

	res, err := f.sweeper.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, res.Failures)
	require.Equal(t, []string{"tokens"}, res.FailedPhases)
	require.Equal(t, int64(1), res.ExpiredCount)

	var run Run
	require.NoError(t, f.db.First(&run, "id = ?", res.RunID).Error)
	require.Equal(t, RunFailed, run.Status)
	require.Contains(t, run.ErrorMsg, "ledger offline")
	require.Equal(t, 1, run.Failures)
}

func TestHandleExpiryTask(t *testing.T) {
	f := newFixture(t)
	f.sweeper.purger = failingPurger{}

	payload, err := json.Marshal(taskPayload{RunDate: "2026-09-01"})
	require.NoError(t, err)

	// failures are recorded on the run instead of retried
	require.NoError(t, f.sweeper.HandleExpiryTask(context.Background(), asynq.NewTask(taskname.ExpirySweepRun, payload)))

	err = f.sweeper.HandleExpiryTask(context.Background(), asynq.NewTask(taskname.ExpirySweepRun, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNextRunTime(t *testing.T) {
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 9, 1, 0, 30, 0, 0, time.UTC), time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC)},
		{time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC), time.Date(2026, 9, 2, 1, 0, 0, 0, time.UTC)},
		{time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC), time.Date(2026, 9, 2, 1, 0, 0, 0, time.UTC)},
		{time.Date(2026, 12, 31, 2, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 1, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.now.Format(time.RFC3339), func(t *testing.T) {
			require.Equal(t, tc.want, nextRunTime(tc.now, 1, 0))
		})
	}
}

func TestSchedulerEnqueue(t *testing.T) {
	cfg := &config.Config{}
	cfg.Expiry.Queue = "low"

	enqueuer := &testutil.Enqueuer{}
	s := NewScheduler(SchedulerParams{Config: cfg, Enqueuer: enqueuer})

	at := time.Date(2026, 9, 2, 1, 0, 0, 0, time.UTC)
	require.NoError(t, s.Enqueue(context.Background(), at))
	require.Equal(t, []string{taskname.ExpirySweepRun}, enqueuer.Types())

	var payload taskPayload
	require.NoError(t, json.Unmarshal(enqueuer.Tasks[0].Payload(), &payload))
	require.Equal(t, "2026-09-02", payload.RunDate)

	enqueuer.Err = fmt.Errorf("failed to enqueue task: %w", asynq.ErrTaskIDConflict)
	require.NoError(t, s.Enqueue(context.Background(), at))

	enqueuer.Err = errors.New("redis down")
	require.Error(t, s.Enqueue(context.Background(), at))
}
