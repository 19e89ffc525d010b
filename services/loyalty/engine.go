package loyalty

import (
	"context"
	"errors"
	"strings"
	"time"

	"smallbiznis-rewards/pkg/db/pagination"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/identity"
	"smallbiznis-rewards/services/actiontoken"
	"smallbiznis-rewards/services/challenge"
	"smallbiznis-rewards/services/expiry"
	"smallbiznis-rewards/services/notification"
	"smallbiznis-rewards/services/point"
	"smallbiznis-rewards/services/reward"
	"smallbiznis-rewards/services/stamp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Engine is the entry point for every customer and staff action. It owns no
// state; each operation delegates to the component that enforces its rules.
type Engine struct {
	guard      *actiontoken.Guard
	stamps     *stamp.Ledger
	coupons    *reward.Issuer
	points     *point.Converter
	challenges *challenge.Tracker
	sweeper    *expiry.Sweeper
	notifier   *notification.Dispatcher
}

type Params struct {
	fx.In
	Guard      *actiontoken.Guard
	Stamps     *stamp.Ledger
	Coupons    *reward.Issuer
	Points     *point.Converter
	Challenges *challenge.Tracker
	Sweeper    *expiry.Sweeper
	Notifier   *notification.Dispatcher
}

func NewEngine(p Params) *Engine {
	return &Engine{
		guard:      p.Guard,
		stamps:     p.Stamps,
		coupons:    p.Coupons,
		points:     p.Points,
		challenges: p.Challenges,
		sweeper:    p.Sweeper,
		notifier:   p.Notifier,
	}
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// IssueActionToken signs a capability for the caller to present at the
// merchant's terminal.
func (e *Engine) IssueActionToken(ctx context.Context, caller identity.Identity, merchantID string, purpose actiontoken.Purpose, ttl time.Duration) (*actiontoken.IssuedToken, error) {
	if purpose == "" {
		purpose = actiontoken.PurposeAddStamp
	}
	return e.guard.Issue(ctx, actiontoken.IssueParams{
		Subject:    caller.UserID,
		MerchantID: strings.TrimSpace(merchantID),
		Purpose:    purpose,
		TTL:        ttl,
	})
}

type AddStampRequest struct {
	Token    string
	Note     string
	Metadata map[string]any
}

// AddStamp admits the customer's token at the staff member's merchant and
// records one stamp. A failed stamp releases the token so the terminal can retry.
func (e *Engine) AddStamp(ctx context.Context, staff identity.Identity, req AddStampRequest) (*stamp.AddStampResult, error) {
	if staff.MerchantID == "" {
		return nil, ErrMerchantRequired
	}

	claims, err := e.guard.Consume(ctx, req.Token, actiontoken.PurposeAddStamp, staff.MerchantID)
	if err != nil {
		return nil, err
	}

	zapLog := logger(ctx).With(
		zap.String("jti", claims.ID),
		zap.String("merchant_id", claims.MerchantID),
		zap.String("staff_id", staff.UserID),
	)

	result, err := e.stamps.AddStamp(ctx, stamp.AddStampParams{
		UserID:     claims.Subject,
		MerchantID: claims.MerchantID,
		Method:     stamp.MethodManualTerminal,
		Note:       req.Note,
		Metadata:   req.Metadata,
		TokenID:    claims.ID,
	})
	if err != nil {
		// a stamp already recorded under this jti keeps it consumed
		if !errors.Is(err, stamp.ErrTokenAlreadyStamped) {
			if rerr := e.guard.Release(context.WithoutCancel(ctx), claims.ID); rerr != nil {
				zapLog.Error("failed to release action token", zap.Error(rerr))
			}
		}
		return nil, errutil.Normalize(err, "failed to add stamp")
	}

	if result.Reward != nil {
		e.notifier.RewardIssued(ctx, notification.RewardIssuedPayload{
			UserID:       claims.Subject,
			MerchantID:   claims.MerchantID,
			CollectionID: result.CollectionID,
			CouponID:     result.Reward.CouponID,
			CouponCode:   result.Reward.CouponCode,
			ExpiredAt:    result.Reward.CouponExpiredAt,
			Metadata:     map[string]any{"round": result.Round},
		})
	}
	return result, nil
}

func (e *Engine) ConvertStampsToPoints(ctx context.Context, caller identity.Identity, collectionID string) (*point.ConvertResult, error) {
	return e.points.Convert(ctx, caller.UserID, collectionID)
}

func (e *Engine) ExtendCollection(ctx context.Context, caller identity.Identity, collectionID string) (*stamp.Collection, error) {
	return e.stamps.ExtendCollection(ctx, caller.UserID, collectionID)
}

// GetActiveCollection falls back to the caller's merchant when merchantID is empty.
func (e *Engine) GetActiveCollection(ctx context.Context, caller identity.Identity, merchantID string) (*stamp.Collection, error) {
	if merchantID == "" {
		merchantID = caller.MerchantID
	}
	return e.stamps.GetActiveCollection(ctx, caller.UserID, merchantID)
}

func (e *Engine) JoinChallenge(ctx context.Context, caller identity.Identity, challengeID, cafeID string) (*challenge.Participation, error) {
	return e.challenges.Join(ctx, caller.UserID, challengeID, cafeID)
}

// RecordProgress is called by staff on behalf of a participant.
func (e *Engine) RecordProgress(ctx context.Context, staff identity.Identity, userID, challengeID string, delta int) (*challenge.Participation, error) {
	logger(ctx).Debug("recording challenge progress",
		zap.String("staff_id", staff.UserID),
		zap.String("challenge_id", challengeID),
		zap.Int("delta", delta),
	)
	return e.challenges.RecordProgress(ctx, userID, challengeID, delta)
}

func (e *Engine) CompleteChallenge(ctx context.Context, caller identity.Identity, challengeID string) (*challenge.CompleteResult, error) {
	result, err := e.challenges.Complete(ctx, caller.UserID, challengeID)
	if err != nil {
		return nil, err
	}

	if result.MilestoneGranted {
		e.notifier.MilestoneGranted(ctx, notification.MilestoneGrantedPayload{
			UserID:         caller.UserID,
			ChallengeID:    challengeID,
			CompletedCount: result.CompletedCount,
			Points:         result.MilestonePoints,
			CouponID:       result.MilestoneCouponID,
		})
	}
	return result, nil
}

func (e *Engine) RedeemCoupon(ctx context.Context, caller identity.Identity, couponID string) (*reward.UserCoupon, error) {
	return e.coupons.Redeem(ctx, caller.UserID, couponID)
}

func (e *Engine) ListCoupons(ctx context.Context, caller identity.Identity, status reward.CouponStatus, page pagination.Pagination) ([]*reward.UserCoupon, *pagination.PageInfo, error) {
	return e.coupons.ListCoupons(ctx, reward.ListCouponsParams{
		UserID:     caller.UserID,
		Status:     status,
		Pagination: page,
	})
}

func (e *Engine) Balance(ctx context.Context, caller identity.Identity) (int64, error) {
	return e.points.Balance(ctx, caller.UserID)
}

func (e *Engine) ListEntries(ctx context.Context, caller identity.Identity, page pagination.Pagination) ([]*point.Entry, *pagination.PageInfo, error) {
	return e.points.ListEntries(ctx, point.ListEntriesParams{UserID: caller.UserID, Pagination: page})
}

// RunExpirySweep runs one sweep in the request. Partial failures come back
// with the counts of what did succeed.
func (e *Engine) RunExpirySweep(ctx context.Context) (*expiry.Result, error) {
	result, err := e.sweeper.Run(ctx)
	if err != nil && result == nil {
		return nil, errutil.Internal("failed to run expiry sweep", err)
	}
	return result, err
}
