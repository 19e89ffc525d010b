package reward

import (
	"context"
	"strings"
	"time"

	"smallbiznis-rewards/pkg/celengine"
	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/db/pagination"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/pkg/sequence"
	"smallbiznis-rewards/services/stamp"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Issuer turns completed collections and milestones into user coupons.
type Issuer struct {
	db       *gorm.DB
	node     *snowflake.Node
	codes    sequence.Generator
	programs *stamp.ProgramResolver
	now      func() time.Time

	templates repository.Repository[CouponTemplate]
	coupons   repository.Repository[UserCoupon]
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Codes    sequence.Generator
	Programs *stamp.ProgramResolver
}

func NewIssuer(p Params) *Issuer {
	return &Issuer{
		db:       p.DB,
		node:     p.Node,
		codes:    p.Codes,
		programs: p.Programs,
		now:      func() time.Time { return time.Now().UTC() },

		templates: repository.ProvideStore[CouponTemplate](p.DB),
		coupons:   repository.ProvideStore[UserCoupon](p.DB),
	}
}

func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// notEnded keeps templates without an end date or ending after now.
func notEnded(now time.Time) option.QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("expired_at IS NULL OR expired_at > ?", now)
	}
}

// OnCollectionCompleted issues the stamp reward for c and opens the next cycle,
// both inside the completing transaction.
func (i *Issuer) OnCollectionCompleted(ctx context.Context, tx *gorm.DB, c *stamp.Collection) (*stamp.CompletionResult, error) {
	zapLog := logger(ctx).With(
		zap.String("collection_id", c.ID),
		zap.String("merchant_id", c.MerchantID),
	)
	now := i.now()

	tpl, err := i.selectStampTemplate(ctx, tx, c, now)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		zapLog.Warn("no eligible stamp template")
		return nil, ErrNoEligibleRewardPolicy
	}

	source := c.ID
	coupon, err := i.issue(ctx, tx, c.UserID, tpl, AcquisitionStamp, &source, now)
	if err != nil {
		return nil, err
	}

	program, err := i.programs.Resolve(ctx, tx, c.MerchantID)
	if err != nil {
		return nil, err
	}
	next := stamp.NewCollection(i.node.Generate().String(), c.UserID, c.MerchantID, c.Round+1, program, now)
	if err := tx.Create(next).Error; err != nil {
		zapLog.Error("failed to open next collection", zap.Error(err))
		return nil, err
	}

	zapLog.Info("stamp reward issued",
		zap.String("coupon_id", coupon.ID),
		zap.String("template_id", tpl.ID),
		zap.String("next_collection_id", next.ID),
	)

	return &stamp.CompletionResult{
		CouponID:         coupon.ID,
		CouponCode:       coupon.Code,
		TemplateID:       tpl.ID,
		CouponExpiredAt:  coupon.ExpiredAt,
		NextCollectionID: next.ID,
	}, nil
}

func (i *Issuer) selectStampTemplate(ctx context.Context, tx *gorm.DB, c *stamp.Collection, now time.Time) (*CouponTemplate, error) {
	candidates, err := i.templates.WithTrx(tx).Find(ctx, &CouponTemplate{
		MerchantID: c.MerchantID,
		Purpose:    PurposeStamp,
		IsActive:   true,
	}, notEnded(now), option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
	if err != nil {
		return nil, err
	}

	attrs := map[string]interface{}{
		"round":       int64(c.Round),
		"goal_count":  int64(c.GoalCount),
		"merchant_id": c.MerchantID,
		"user_id":     c.UserID,
	}
	for _, tpl := range candidates {
		ok, err := celengine.Eligible(tpl.Eligibility, attrs)
		if err != nil {
			logger(ctx).Warn("skipping template with invalid eligibility",
				zap.String("template_id", tpl.ID), zap.Error(err))
			continue
		}
		if ok {
			return tpl, nil
		}
	}
	return nil, nil
}

func (i *Issuer) issue(ctx context.Context, tx *gorm.DB, userID string, tpl *CouponTemplate, acquisition Acquisition, source *string, now time.Time) (*UserCoupon, error) {
	code, err := i.codes.NextCouponCode(ctx)
	if err != nil {
		return nil, errutil.Unavailable("coupon code sequence unavailable", err)
	}

	coupon := &UserCoupon{
		ID:                 i.node.Generate().String(),
		UserID:             userID,
		TemplateID:         tpl.ID,
		MerchantID:         tpl.MerchantID,
		Code:               code,
		AcquisitionType:    acquisition,
		Status:             CouponActive,
		SourceCollectionID: source,
		IssuedAt:           now,
		ExpiredAt:          tpl.couponExpiry(now),
	}
	if err := i.coupons.WithTrx(tx).Create(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

// IssueFromTemplate grants a coupon from a specific template inside tx.
func (i *Issuer) IssueFromTemplate(ctx context.Context, tx *gorm.DB, p IssueParams) (*UserCoupon, error) {
	if strings.TrimSpace(p.UserID) == "" || strings.TrimSpace(p.TemplateID) == "" {
		return nil, ErrInvalidArgument
	}
	now := i.now()

	tpl, err := i.templates.WithTrx(tx).FindOne(ctx, &CouponTemplate{ID: p.TemplateID})
	if err != nil {
		return nil, err
	}
	if tpl == nil || !tpl.IsActive || tpl.HasEnded(now) {
		return nil, ErrTemplateUnavailable
	}

	acquisition := p.Acquisition
	if acquisition == "" {
		acquisition = AcquisitionPromotion
	}
	return i.issue(ctx, tx, p.UserID, tpl, acquisition, nil, now)
}

// Redeem marks an active coupon used. It races with the expiry sweep through
// the same conditional update, so exactly one of them wins.
func (i *Issuer) Redeem(ctx context.Context, userID, couponID string) (*UserCoupon, error) {
	zapLog := logger(ctx).With(zap.String("coupon_id", couponID))

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(couponID) == "" {
		return nil, ErrInvalidArgument
	}

	coupon, err := i.coupons.FindOne(ctx, &UserCoupon{ID: couponID})
	if err != nil {
		zapLog.Error("failed to query coupon", zap.Error(err))
		return nil, errutil.Internal("failed to query coupon", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	if coupon.UserID != userID {
		return nil, ErrForbidden
	}

	now := i.now()
	res := i.db.WithContext(ctx).Model(&UserCoupon{}).
		Where("id = ? AND status = ?", couponID, CouponActive).
		Where("expired_at IS NULL OR expired_at > ?", now).
		Where("template_id NOT IN (?)", i.db.Model(&CouponTemplate{}).Select("id").Where("expired_at IS NOT NULL AND expired_at <= ?", now)).
		Updates(map[string]any{"status": CouponUsed, "used_at": now})
	if res.Error != nil {
		zapLog.Error("failed to redeem coupon", zap.Error(res.Error))
		return nil, errutil.Internal("failed to redeem coupon", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrCouponNotActive
	}

	coupon.Status = CouponUsed
	coupon.UsedAt = &now
	zapLog.Info("coupon redeemed")
	return coupon, nil
}

type ListCouponsParams struct {
	UserID     string
	Status     CouponStatus
	Pagination pagination.Pagination
}

func (i *Issuer) ListCoupons(ctx context.Context, p ListCouponsParams) ([]*UserCoupon, *pagination.PageInfo, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, nil, ErrInvalidArgument
	}

	page := p.Pagination.Normalized()
	if err := page.Validate(); err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err, errutil.WithReason("COUPON_INVALID_CURSOR"))
	}

	rows, err := i.coupons.Find(ctx, &UserCoupon{UserID: p.UserID, Status: p.Status}, option.ApplyPagination(page))
	if err != nil {
		logger(ctx).Error("failed to list coupons", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list coupons", err)
	}

	out, info := pagination.BuildCursorPageInfo(rows, page.Limit, func(c *UserCoupon) string {
		cursor, _ := pagination.EncodeCursor(pagination.NewCursor(c.CreatedAt, c.ID))
		return cursor
	})
	return out, info, nil
}
