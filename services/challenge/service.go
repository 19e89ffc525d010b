package challenge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/services/point"
	"smallbiznis-rewards/services/reward"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointCrediter writes point entries inside a caller's transaction.
type PointCrediter interface {
	Credit(ctx context.Context, tx *gorm.DB, p point.CreditParams) (*point.Entry, error)
}

// CouponIssuer grants template coupons inside a caller's transaction.
type CouponIssuer interface {
	IssueFromTemplate(ctx context.Context, tx *gorm.DB, p reward.IssueParams) (*reward.UserCoupon, error)
}

type Tracker struct {
	db                  *gorm.DB
	node                *snowflake.Node
	points              PointCrediter
	coupons             CouponIssuer
	threshold           int64
	milestonePoints     int64
	milestoneTemplateID string
	now                 func() time.Time

	challenges     repository.Repository[Challenge]
	participations repository.Repository[Participation]
	stats          repository.Repository[Stats]
}

type Params struct {
	fx.In
	Config  *config.Config
	DB      *gorm.DB
	Node    *snowflake.Node
	Points  *point.Converter
	Coupons *reward.Issuer
}

func NewTracker(p Params) *Tracker {
	return &Tracker{
		db:                  p.DB,
		node:                p.Node,
		points:              p.Points,
		coupons:             p.Coupons,
		threshold:           p.Config.Challenge.MilestoneThreshold,
		milestonePoints:     p.Config.Challenge.MilestonePoints,
		milestoneTemplateID: p.Config.Challenge.MilestoneTemplateID,
		now:                 func() time.Time { return time.Now().UTC() },

		challenges:     repository.ProvideStore[Challenge](p.DB),
		participations: repository.ProvideStore[Participation](p.DB),
		stats:          repository.ProvideStore[Stats](p.DB),
	}
}

func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

func (t *Tracker) running(ctx context.Context, challengeID string, now time.Time) (*Challenge, error) {
	ch, err := t.challenges.FindOne(ctx, &Challenge{ID: challengeID})
	if err != nil {
		return nil, errutil.Internal("failed to query challenge", err)
	}
	if ch == nil {
		return nil, ErrChallengeNotFound
	}
	if !ch.Running(now) {
		return nil, ErrChallengeNotActive
	}
	return ch, nil
}

// Join enrolls the user once; joining again returns the existing participation.
func (t *Tracker) Join(ctx context.Context, userID, challengeID, cafeID string) (*Participation, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(challengeID) == "" {
		return nil, ErrInvalidArgument
	}
	now := t.now()

	if _, err := t.running(ctx, challengeID, now); err != nil {
		return nil, err
	}

	if err := t.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&Participation{
		ID:           t.node.Generate().String(),
		UserID:       userID,
		ChallengeID:  challengeID,
		JoinedCafeID: cafeID,
		JoinedAt:     now,
		Status:       StatusInProgress,
	}).Error; err != nil {
		logger(ctx).Error("failed to join challenge", zap.Error(err))
		return nil, errutil.Internal("failed to join challenge", err)
	}

	part, err := t.participations.FindOne(ctx, &Participation{UserID: userID, ChallengeID: challengeID})
	if err != nil {
		return nil, errutil.Internal("failed to query participation", err)
	}
	if part == nil {
		return nil, errutil.Internal("participation missing after join", nil)
	}
	return part, nil
}

// RecordProgress adds delta to an in-progress participation, capped at the goal.
func (t *Tracker) RecordProgress(ctx context.Context, userID, challengeID string, delta int) (*Participation, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(challengeID) == "" {
		return nil, ErrInvalidArgument
	}
	if delta <= 0 {
		return nil, ErrInvalidProgress
	}
	now := t.now()

	ch, err := t.running(ctx, challengeID, now)
	if err != nil {
		return nil, err
	}

	var out *Participation
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		part, err := t.participations.WithTrx(tx).FindOne(ctx,
			&Participation{UserID: userID, ChallengeID: challengeID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if part == nil {
			return ErrNoParticipation
		}
		if part.Status == StatusCompleted {
			return ErrAlreadyCompleted
		}

		next := part.CurrentCount + delta
		if ch.GoalCount > 0 && next > ch.GoalCount {
			next = ch.GoalCount
		}
		if err := tx.Model(&Participation{}).
			Where("id = ? AND status = ?", part.ID, StatusInProgress).
			Update("current_count", next).Error; err != nil {
			return err
		}
		part.CurrentCount = next
		out = part
		return nil
	})
	if err != nil {
		return nil, errutil.Normalize(err, "failed to record challenge progress")
	}
	return out, nil
}

// Complete closes the participation and bumps the user's lifetime counter in
// one transaction. The milestone fires only on the increment that lands on the
// threshold, and only while it was never granted.
func (t *Tracker) Complete(ctx context.Context, userID, challengeID string) (*CompleteResult, error) {
	zapLog := logger(ctx).With(
		zap.String("user_id", userID),
		zap.String("challenge_id", challengeID),
	)

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(challengeID) == "" {
		return nil, ErrInvalidArgument
	}
	now := t.now()

	if _, err := t.running(ctx, challengeID, now); err != nil {
		return nil, err
	}

	result := &CompleteResult{ChallengeID: challengeID, CompletedAt: now}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		part, err := t.participations.WithTrx(tx).FindOne(ctx,
			&Participation{UserID: userID, ChallengeID: challengeID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if part == nil {
			return ErrNoParticipation
		}
		if part.Status == StatusCompleted {
			return ErrAlreadyCompleted
		}

		res := tx.Model(&Participation{}).
			Where("id = ? AND status = ?", part.ID, StatusInProgress).
			Updates(map[string]any{"status": StatusCompleted, "completed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyCompleted
		}

		count, granted, err := t.incrementCompleted(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		result.CompletedCount = count

		if t.threshold <= 0 || count != t.threshold || granted {
			return nil
		}
		return t.grantMilestone(ctx, tx, userID, now, result)
	})
	if err != nil {
		zapLog.Warn("failed to complete challenge", zap.Error(err))
		return nil, errutil.Normalize(err, "failed to complete challenge")
	}

	zapLog.Info("challenge completed",
		zap.Int64("completed_count", result.CompletedCount),
		zap.Bool("milestone_granted", result.MilestoneGranted),
	)
	return result, nil
}

// incrementCompleted upserts the user's stats row, locks it and returns the
// counter after the increment together with whether the milestone was granted before.
func (t *Tracker) incrementCompleted(ctx context.Context, tx *gorm.DB, userID string, now time.Time) (int64, bool, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Stats{UserID: userID, UpdatedAt: now}).Error; err != nil {
		return 0, false, err
	}

	stats, err := t.stats.WithTrx(tx).FindOne(ctx, &Stats{UserID: userID}, option.WithLockingUpdate())
	if err != nil {
		return 0, false, err
	}
	if stats == nil {
		return 0, false, fmt.Errorf("challenge stats missing for user")
	}

	if err := tx.Model(&Stats{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"completed_count": gorm.Expr("completed_count + 1")}).Error; err != nil {
		return 0, false, err
	}
	return stats.CompletedCount + 1, stats.MilestoneGrantedAt != nil, nil
}

func (t *Tracker) grantMilestone(ctx context.Context, tx *gorm.DB, userID string, now time.Time, result *CompleteResult) error {
	res := tx.Model(&Stats{}).
		Where("user_id = ? AND milestone_granted_at IS NULL", userID).
		Update("milestone_granted_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	if t.milestonePoints > 0 {
		entry, err := t.points.Credit(ctx, tx, point.CreditParams{
			UserID:      userID,
			Point:       t.milestonePoints,
			Description: fmt.Sprintf("challenge milestone: %d completions", t.threshold),
		})
		if err != nil {
			return err
		}
		result.MilestonePoints = entry.Point
		result.MilestoneEntryID = entry.ID
	}

	if t.milestoneTemplateID != "" {
		coupon, err := t.coupons.IssueFromTemplate(ctx, tx, reward.IssueParams{
			UserID:      userID,
			TemplateID:  t.milestoneTemplateID,
			Acquisition: reward.AcquisitionPromotion,
		})
		if err != nil {
			return err
		}
		result.MilestoneCouponID = coupon.ID
	}

	result.MilestoneGranted = true
	return nil
}
