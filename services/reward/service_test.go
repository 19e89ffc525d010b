package reward

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db/pagination"
	"smallbiznis-rewards/services/stamp"
	"smallbiznis-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db     *gorm.DB
	issuer *Issuer
	ledger *stamp.Ledger
	codes  *testutil.CodeGenerator
	clock  *testutil.Clock
}

func newFixture(t *testing.T, goal int) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &stamp.Collection{}, &stamp.Event{}, &stamp.Program{}, &CouponTemplate{}, &UserCoupon{})
	node := testutil.NewNode(t)
	clock := testutil.NewClock(time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC))

	cfg := &config.Config{}
	cfg.Loyalty.DefaultGoal = goal
	cfg.Loyalty.ValidDays = 90
	programs := stamp.NewProgramResolver(cfg, db)

	codes := &testutil.CodeGenerator{}
	issuer := NewIssuer(Params{DB: db, Node: node, Codes: codes, Programs: programs})
	issuer.SetClock(clock.Now)

	ledger := stamp.NewLedger(stamp.Params{DB: db, Node: node, Programs: programs, Handler: issuer})
	ledger.SetClock(clock.Now)

	return &fixture{db: db, issuer: issuer, ledger: ledger, codes: codes, clock: clock}
}

func (f *fixture) template(t *testing.T, tpl CouponTemplate) *CouponTemplate {
	t.Helper()
	if tpl.MerchantID == "" {
		tpl.MerchantID = "m1"
	}
	if tpl.Purpose == "" {
		tpl.Purpose = PurposeStamp
	}
	tpl.IsActive = true
	require.NoError(t, f.db.Create(&tpl).Error)
	return &tpl
}

func (f *fixture) stamps(t *testing.T, n int) *stamp.AddStampResult {
	t.Helper()
	var res *stamp.AddStampResult
	for i := 0; i < n; i++ {
		var err error
		res, err = f.ledger.AddStamp(context.Background(), stamp.AddStampParams{UserID: "u1", MerchantID: "m1"})
		require.NoError(t, err)
	}
	return res
}

func TestCompletionIssuesCouponAndOpensNextCycle(t *testing.T) {
	f := newFixture(t, 3)
	tpl := f.template(t, CouponTemplate{ID: "tpl-1", Name: "free coffee", DiscountType: DiscountFreeItem, ValidDays: 30})

	res := f.stamps(t, 3)
	require.True(t, res.IsCompleted)
	require.NotNil(t, res.Reward)
	require.Equal(t, tpl.ID, res.Reward.TemplateID)
	require.NotEmpty(t, res.Reward.NextCollectionID)

	var coupon UserCoupon
	require.NoError(t, f.db.First(&coupon, "id = ?", res.Reward.CouponID).Error)
	require.Equal(t, "u1", coupon.UserID)
	require.Equal(t, AcquisitionStamp, coupon.AcquisitionType)
	require.Equal(t, CouponActive, coupon.Status)
	require.NotNil(t, coupon.SourceCollectionID)
	require.Equal(t, res.CollectionID, *coupon.SourceCollectionID)
	require.Equal(t, "CPN-0001", coupon.Code)
	require.NotNil(t, coupon.ExpiredAt)
	require.Equal(t, f.clock.Now().AddDate(0, 0, 30), coupon.ExpiredAt.UTC())

	var next stamp.Collection
	require.NoError(t, f.db.First(&next, "id = ?", res.Reward.NextCollectionID).Error)
	require.Equal(t, 2, next.Round)
	require.Equal(t, 0, next.CurrentCount)
	require.Equal(t, stamp.StatusActive, next.Status)
}

func TestCompletionWithoutPolicyAborts(t *testing.T) {
	f := newFixture(t, 2)
	f.stamps(t, 1)

	_, err := f.ledger.AddStamp(context.Background(), stamp.AddStampParams{UserID: "u1", MerchantID: "m1"})
	require.ErrorIs(t, err, ErrNoEligibleRewardPolicy)

	var cols []stamp.Collection
	require.NoError(t, f.db.Find(&cols).Error)
	require.Len(t, cols, 1)
	require.Equal(t, 1, cols[0].CurrentCount)
	require.Equal(t, stamp.StatusActive, cols[0].Status)

	var coupons int64
	require.NoError(t, f.db.Model(&UserCoupon{}).Count(&coupons).Error)
	require.Zero(t, coupons)
}

func TestCompletionCodeFailureRollsBack(t *testing.T) {
	f := newFixture(t, 1)
	f.template(t, CouponTemplate{ID: "tpl-1"})
	f.codes.Err = errors.New("redis down")

	_, err := f.ledger.AddStamp(context.Background(), stamp.AddStampParams{UserID: "u1", MerchantID: "m1"})
	require.Error(t, err)

	var events int64
	require.NoError(t, f.db.Model(&stamp.Event{}).Count(&events).Error)
	require.Zero(t, events)
}

func TestTemplateSelection(t *testing.T) {
	f := newFixture(t, 1)
	ended := f.clock.Now().Add(-time.Hour)
	later := f.clock.Now().AddDate(0, 0, 10)

	f.template(t, CouponTemplate{ID: "tpl-ended", ExpiredAt: &ended, CreatedAt: f.clock.Now().Add(-time.Minute)})
	f.template(t, CouponTemplate{ID: "tpl-other-merchant", MerchantID: "m2"})
	f.template(t, CouponTemplate{ID: "tpl-round-two", Eligibility: "round >= 2", CreatedAt: f.clock.Now().Add(-2 * time.Minute)})
	f.template(t, CouponTemplate{ID: "tpl-capped", ValidDays: 30, ExpiredAt: &later, CreatedAt: f.clock.Now().Add(-3 * time.Minute)})

	// round 1 skips the round-two template and falls through to the oldest one
	res := f.stamps(t, 1)
	require.Equal(t, "tpl-capped", res.Reward.TemplateID)
	require.Equal(t, later, res.Reward.CouponExpiredAt.UTC())

	res = f.stamps(t, 1)
	require.Equal(t, "tpl-round-two", res.Reward.TemplateID)
	require.Nil(t, res.Reward.CouponExpiredAt)
}

func TestIssueFromTemplate(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tpl := f.template(t, CouponTemplate{ID: "tpl-promo", Purpose: PurposePromotion, ValidDays: 7})

	coupon, err := f.issuer.IssueFromTemplate(ctx, f.db, IssueParams{UserID: "u1", TemplateID: tpl.ID})
	require.NoError(t, err)
	require.Equal(t, AcquisitionPromotion, coupon.AcquisitionType)
	require.Nil(t, coupon.SourceCollectionID)

	_, err = f.issuer.IssueFromTemplate(ctx, f.db, IssueParams{UserID: "u1", TemplateID: "missing"})
	require.ErrorIs(t, err, ErrTemplateUnavailable)

	_, err = f.issuer.IssueFromTemplate(ctx, f.db, IssueParams{UserID: "u1"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRedeem(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tpl := f.template(t, CouponTemplate{ID: "tpl-promo", Purpose: PurposePromotion, ValidDays: 7})

	coupon, err := f.issuer.IssueFromTemplate(ctx, f.db, IssueParams{UserID: "u1", TemplateID: tpl.ID})
	require.NoError(t, err)

	_, err = f.issuer.Redeem(ctx, "u2", coupon.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.issuer.Redeem(ctx, "u1", "missing")
	require.ErrorIs(t, err, ErrCouponNotFound)

	used, err := f.issuer.Redeem(ctx, "u1", coupon.ID)
	require.NoError(t, err)
	require.Equal(t, CouponUsed, used.Status)
	require.NotNil(t, used.UsedAt)

	_, err = f.issuer.Redeem(ctx, "u1", coupon.ID)
	require.ErrorIs(t, err, ErrCouponNotActive)
}

func TestRedeemAfterExpiry(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	short := f.template(t, CouponTemplate{ID: "tpl-short", Purpose: PurposePromotion, ValidDays: 1})
	coupon, err := f.issuer.IssueFromTemplate(ctx, f.db, IssueParams{UserID: "u1", TemplateID: short.ID})
	require.NoError(t, err)

	open := f.template(t, CouponTemplate{ID: "tpl-open", Purpose: PurposePromotion})
	other, err := f.issuer.IssueFromTemplate(ctx, f.db, IssueParams{UserID: "u1", TemplateID: open.ID})
	require.NoError(t, err)
	require.Nil(t, other.ExpiredAt)
	require.NoError(t, f.db.Model(&CouponTemplate{}).Where("id = ?", open.ID).
		Update("expired_at", f.clock.Now().Add(time.Hour)).Error)

	f.clock.Advance(25 * time.Hour)

	_, err = f.issuer.Redeem(ctx, "u1", coupon.ID)
	require.ErrorIs(t, err, ErrCouponNotActive)

	// the template ended even though the coupon row is still active
	_, err = f.issuer.Redeem(ctx, "u1", other.ID)
	require.ErrorIs(t, err, ErrCouponNotActive)
}

func TestListCoupons(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tpl := f.template(t, CouponTemplate{ID: "tpl-promo", Purpose: PurposePromotion})

	for i := 0; i < 3; i++ {
		_, err := f.issuer.IssueFromTemplate(ctx, f.db, IssueParams{UserID: "u1", TemplateID: tpl.ID})
		require.NoError(t, err)
	}

	page, info, err := f.issuer.ListCoupons(ctx, ListCouponsParams{UserID: "u1", Pagination: pagination.Pagination{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	rest, info, err := f.issuer.ListCoupons(ctx, ListCouponsParams{UserID: "u1", Pagination: pagination.Pagination{Limit: 2, Cursor: info.NextCursor}})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, info.HasMore)
	require.NotContains(t, []string{page[0].ID, page[1].ID}, rest[0].ID)

	_, _, err = f.issuer.ListCoupons(ctx, ListCouponsParams{UserID: "u1", Pagination: pagination.Pagination{Cursor: "%%%"}})
	require.Error(t, err)
}
