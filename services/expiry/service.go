package expiry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"smallbiznis-rewards/services/reward"
	"smallbiznis-rewards/services/stamp"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// TokenPurger evicts lapsed action-token records.
type TokenPurger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type Sweeper struct {
	db     *gorm.DB
	node   *snowflake.Node
	purger TokenPurger
	now    func() time.Time
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Purger TokenPurger `optional:"true"`
}

func NewSweeper(p Params) *Sweeper {
	return &Sweeper{
		db:     p.DB,
		node:   p.Node,
		purger: p.Purger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Run transitions lapsed coupons and collections and purges lapsed tokens.
// Every update matches only rows still active, so a second run changes nothing
// and a concurrent redemption either wins or loses cleanly. Phase failures are
// counted on the result and joined into the returned error.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	now := s.now()
	run := &Run{
		ID:        s.node.Generate().String(),
		Status:    RunRunning,
		StartedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		zapLog.Error("failed to create expiry run", zap.Error(err))
		return nil, err
	}

	result := &Result{RunID: run.ID}

	var (
		mu   sync.Mutex
		errs []error
	)
	phase := func(name string, fn func() (int64, error), dst *int64) func() error {
		return func() error {
			n, err := fn()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zapLog.Error("expiry phase failed", zap.String("phase", name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				result.FailedPhases = append(result.FailedPhases, name)
				return nil
			}
			*dst = n
			return nil
		}
	}

	var g errgroup.Group
	g.Go(phase("coupons", func() (int64, error) { return s.expireCoupons(ctx, now) }, &result.ExpiredCount))
	g.Go(phase("collections", func() (int64, error) { return s.expireCollections(ctx, now) }, &result.ExpiredCollections))
	if s.purger != nil {
		g.Go(phase("tokens", func() (int64, error) { return s.purger.Purge(ctx, now) }, &result.PurgedTokens))
	}
	_ = g.Wait()

	result.Failures = len(errs)
	slices.Sort(result.FailedPhases)
	runErr := errors.Join(errs...)

	completedAt := s.now()
	updates := map[string]any{
		"status":              RunSuccess,
		"expired_coupons":     result.ExpiredCount,
		"expired_collections": result.ExpiredCollections,
		"purged_tokens":       result.PurgedTokens,
		"failures":            result.Failures,
		"completed_at":        completedAt,
	}
	if runErr != nil {
		updates["status"] = RunFailed
		updates["error_msg"] = runErr.Error()
	}
	if err := s.db.WithContext(ctx).Model(&Run{}).Where("id = ?", run.ID).Updates(updates).Error; err != nil {
		zapLog.Error("failed to record expiry run", zap.String("run_id", run.ID), zap.Error(err))
	}

	zapLog.Info("expiry sweep finished",
		zap.String("run_id", run.ID),
		zap.Int64("expired_coupons", result.ExpiredCount),
		zap.Int64("expired_collections", result.ExpiredCollections),
		zap.Int64("purged_tokens", result.PurgedTokens),
		zap.Int("failures", result.Failures),
	)
	return result, runErr
}

func (s *Sweeper) expireCoupons(ctx context.Context, now time.Time) (int64, error) {
	ended := s.db.Model(&reward.CouponTemplate{}).
		Select("id").
		Where("expired_at IS NOT NULL AND expired_at <= ?", now)

	res := s.db.WithContext(ctx).Model(&reward.UserCoupon{}).
		Where("status = ?", reward.CouponActive).
		Where("((expired_at IS NOT NULL AND expired_at <= ?) OR template_id IN (?))", now, ended).
		Updates(map[string]any{"status": reward.CouponExpired})
	return res.RowsAffected, res.Error
}

func (s *Sweeper) expireCollections(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&stamp.Collection{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", stamp.StatusActive, now).
		Updates(map[string]any{"status": stamp.StatusExpired, "active_slot": nil})
	return res.RowsAffected, res.Error
}
