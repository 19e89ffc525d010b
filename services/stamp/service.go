package stamp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompletionHandler runs inside the completing transaction. A returned error
// rolls the whole stamp addition back.
type CompletionHandler interface {
	OnCollectionCompleted(ctx context.Context, tx *gorm.DB, c *Collection) (*CompletionResult, error)
}

type Ledger struct {
	db       *gorm.DB
	node     *snowflake.Node
	programs *ProgramResolver
	handler  CompletionHandler
	now      func() time.Time

	collections repository.Repository[Collection]
	events      repository.Repository[Event]
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Programs *ProgramResolver
	Handler  CompletionHandler `optional:"true"`
}

func NewLedger(p Params) *Ledger {
	return &Ledger{
		db:       p.DB,
		node:     p.Node,
		programs: p.Programs,
		handler:  p.Handler,
		now:      func() time.Time { return time.Now().UTC() },

		collections: repository.ProvideStore[Collection](p.DB),
		events:      repository.ProvideStore[Event](p.DB),
	}
}

// SetClock replaces the ledger's time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// AddStamp appends one stamp to the pair's active collection, opening one when
// needed, and completes the cycle when the goal is reached.
func (l *Ledger) AddStamp(ctx context.Context, p AddStampParams) (*AddStampResult, error) {
	zapLog := logger(ctx).With(
		zap.String("user_id", p.UserID),
		zap.String("merchant_id", p.MerchantID),
	)

	if strings.TrimSpace(p.UserID) == "" || strings.TrimSpace(p.MerchantID) == "" {
		return nil, ErrInvalidArgument
	}

	method := p.Method
	if method == "" {
		method = MethodManualTerminal
	}

	var metadata datatypes.JSON
	if len(p.Metadata) > 0 {
		raw, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, errutil.BadRequest("metadata must be a JSON object", err, errutil.WithReason("STAMP_INVALID_METADATA"))
		}
		metadata = raw
	}

	var result *AddStampResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()

		col, err := l.lockActive(ctx, tx, p.UserID, p.MerchantID, now)
		if err != nil {
			return err
		}

		if col.CurrentCount >= col.GoalCount {
			return ErrGoalAlreadyExceeded
		}

		event := &Event{
			ID:           l.node.Generate().String(),
			CollectionID: col.ID,
			UserID:       p.UserID,
			MerchantID:   p.MerchantID,
			Method:       method,
			Note:         p.Note,
			Metadata:     metadata,
			CreatedAt:    now,
		}
		if p.TokenID != "" {
			event.TokenID = &p.TokenID
		}
		// token_id is unique, one jti grants at most one stamp
		if err := l.events.WithTrx(tx).Create(ctx, event); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrTokenAlreadyStamped
			}
			return err
		}

		res := tx.Model(&Collection{}).
			Where("id = ? AND status = ? AND current_count < goal_count", col.ID, StatusActive).
			Updates(map[string]any{"current_count": gorm.Expr("current_count + 1")})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrGoalAlreadyExceeded
		}
		col.CurrentCount++

		result = &AddStampResult{
			CollectionID: col.ID,
			CurrentCount: col.CurrentCount,
			GoalCount:    col.GoalCount,
			Round:        col.Round,
		}

		if col.CurrentCount < col.GoalCount {
			return nil
		}

		if err := tx.Model(&Collection{}).
			Where("id = ? AND status = ?", col.ID, StatusActive).
			Updates(map[string]any{
				"status":       StatusCompleted,
				"completed_at": now,
				"active_slot":  nil,
			}).Error; err != nil {
			return err
		}
		col.Status = StatusCompleted
		col.CompletedAt = &now
		col.ActiveSlot = nil
		result.IsCompleted = true

		if l.handler == nil {
			return nil
		}

		reward, err := l.handler.OnCollectionCompleted(ctx, tx, col)
		if err != nil {
			return err
		}
		result.Reward = reward
		return nil
	})
	if err != nil {
		zapLog.Warn("failed to add stamp", zap.Error(err))
		return nil, errutil.Normalize(err, "failed to add stamp")
	}

	zapLog.Info("stamp added",
		zap.String("collection_id", result.CollectionID),
		zap.Int("current_count", result.CurrentCount),
		zap.Int("goal_count", result.GoalCount),
		zap.Bool("completed", result.IsCompleted),
	)
	return result, nil
}

// lockActive returns the pair's active collection locked for update. A lapsed
// collection is expired on the spot and a fresh one is opened.
func (l *Ledger) lockActive(ctx context.Context, tx *gorm.DB, userID, merchantID string, now time.Time) (*Collection, error) {
	col, err := l.findActive(ctx, tx, userID, merchantID)
	if err != nil {
		return nil, err
	}

	if col != nil && col.IsLapsed(now) {
		if err := tx.Model(&Collection{}).
			Where("id = ? AND status = ?", col.ID, StatusActive).
			Updates(map[string]any{"status": StatusExpired, "active_slot": nil}).Error; err != nil {
			return nil, err
		}
		col = nil
	}
	if col != nil {
		return col, nil
	}

	program, err := l.programs.Resolve(ctx, tx, merchantID)
	if err != nil {
		return nil, err
	}

	var lastRound int
	if err := tx.Model(&Collection{}).
		Where("user_id = ? AND merchant_id = ?", userID, merchantID).
		Select("COALESCE(MAX(round), 0)").
		Scan(&lastRound).Error; err != nil {
		return nil, err
	}

	next := NewCollection(l.node.Generate().String(), userID, merchantID, lastRound+1, program, now)
	// a concurrent request may have opened the cycle first; its row wins
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(next).Error; err != nil {
		return nil, err
	}

	col, err = l.findActive(ctx, tx, userID, merchantID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, errutil.Internal("active collection missing after create", nil)
	}
	return col, nil
}

func (l *Ledger) findActive(ctx context.Context, tx *gorm.DB, userID, merchantID string) (*Collection, error) {
	return l.collections.WithTrx(tx).FindOne(ctx, &Collection{
		UserID:     userID,
		MerchantID: merchantID,
		Status:     StatusActive,
	}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "round",
		OrderBy: "desc",
		Allow:   map[string]bool{"round": true},
	}), option.WithLockingUpdate())
}

// ExtendCollection pushes an active collection's expiry out once.
func (l *Ledger) ExtendCollection(ctx context.Context, userID, collectionID string) (*Collection, error) {
	zapLog := logger(ctx).With(zap.String("collection_id", collectionID))

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(collectionID) == "" {
		return nil, ErrInvalidArgument
	}

	var out *Collection
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()

		col, err := l.collections.WithTrx(tx).FindOne(ctx, &Collection{ID: collectionID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if col == nil {
			return ErrCollectionNotFound
		}
		if col.UserID != userID {
			return ErrForbidden
		}
		if col.Status != StatusActive || col.IsLapsed(now) {
			return ErrCollectionNotActive
		}
		if col.ExtendedAt != nil {
			return ErrAlreadyExtended
		}

		program, err := l.programs.Resolve(ctx, tx, col.MerchantID)
		if err != nil {
			return err
		}

		base := now
		if col.ExpiresAt != nil {
			base = *col.ExpiresAt
		}
		expiresAt := base.AddDate(0, 0, program.ExtensionDays)

		res := tx.Model(&Collection{}).
			Where("id = ? AND status = ? AND extended_at IS NULL", col.ID, StatusActive).
			Updates(map[string]any{"expires_at": expiresAt, "extended_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyExtended
		}

		col.ExpiresAt = &expiresAt
		col.ExtendedAt = &now
		out = col
		return nil
	})
	if err != nil {
		zapLog.Warn("failed to extend collection", zap.Error(err))
		return nil, errutil.Normalize(err, "failed to extend collection")
	}

	zapLog.Info("collection extended", zap.Time("expires_at", *out.ExpiresAt))
	return out, nil
}

// GetActiveCollection returns the pair's current cycle. A lapsed cycle is reported as not found.
func (l *Ledger) GetActiveCollection(ctx context.Context, userID, merchantID string) (*Collection, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(merchantID) == "" {
		return nil, ErrInvalidArgument
	}

	col, err := l.collections.FindOne(ctx, &Collection{
		UserID:     userID,
		MerchantID: merchantID,
		Status:     StatusActive,
	}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "round",
		OrderBy: "desc",
		Allow:   map[string]bool{"round": true},
	}))
	if err != nil {
		logger(ctx).Error("failed to query active collection", zap.Error(err))
		return nil, errutil.Internal("failed to query active collection", err)
	}
	if col == nil || col.IsLapsed(l.now()) {
		return nil, ErrCollectionNotFound
	}
	return col, nil
}
