package point

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/db/pagination"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/services/stamp"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Converter struct {
	db             *gorm.DB
	node           *snowflake.Node
	pointsPerStamp int64
	now            func() time.Time

	entries     repository.Repository[Entry]
	collections repository.Repository[stamp.Collection]
	events      repository.Repository[stamp.Event]
}

type Params struct {
	fx.In
	Config *config.Config
	DB     *gorm.DB
	Node   *snowflake.Node
}

func NewConverter(p Params) *Converter {
	perStamp := p.Config.Loyalty.PointsPerStamp
	if perStamp <= 0 {
		perStamp = 10
	}
	return &Converter{
		db:             p.DB,
		node:           p.Node,
		pointsPerStamp: perStamp,
		now:            func() time.Time { return time.Now().UTC() },

		entries:     repository.ProvideStore[Entry](p.DB),
		collections: repository.ProvideStore[stamp.Collection](p.DB),
		events:      repository.ProvideStore[stamp.Event](p.DB),
	}
}

func (c *Converter) SetClock(now func() time.Time) {
	c.now = now
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// Convert trades the stamps on an active collection for points. The collection
// row stays locked for the whole exchange so it converts at most once.
func (c *Converter) Convert(ctx context.Context, userID, collectionID string) (*ConvertResult, error) {
	zapLog := logger(ctx).With(zap.String("collection_id", collectionID))

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(collectionID) == "" {
		return nil, ErrInvalidArgument
	}

	var result *ConvertResult
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := c.now()

		col, err := c.collections.WithTrx(tx).FindOne(ctx, &stamp.Collection{ID: collectionID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if col == nil {
			return stamp.ErrCollectionNotFound
		}
		if col.UserID != userID {
			return stamp.ErrForbidden
		}
		if col.IsConverted() {
			return ErrAlreadyConverted
		}
		if col.Status != stamp.StatusActive {
			return ErrNothingToConvert
		}

		stampCount, err := c.events.WithTrx(tx).Count(ctx, &stamp.Event{CollectionID: col.ID})
		if err != nil {
			return err
		}
		if stampCount == 0 {
			return ErrNothingToConvert
		}

		amount := stampCount * c.pointsPerStamp
		source := col.ID
		entry, err := c.credit(ctx, tx, CreditParams{
			UserID:       userID,
			MerchantID:   col.MerchantID,
			Point:        amount,
			CollectionID: &source,
			Description:  fmt.Sprintf("converted %d stamps", stampCount),
		}, now)
		if err != nil {
			return err
		}

		res := tx.Model(&stamp.Collection{}).
			Where("id = ? AND status = ?", col.ID, stamp.StatusActive).
			Updates(map[string]any{
				"status":        stamp.StatusConverted,
				"converted_at":  now,
				"current_count": 0,
				"active_slot":   nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyConverted
		}

		if err := tx.Where("collection_id = ?", col.ID).Delete(&stamp.Event{}).Error; err != nil {
			return err
		}

		result = &ConvertResult{
			CollectionID: col.ID,
			EntryID:      entry.ID,
			StampCount:   stampCount,
			PointAmount:  amount,
		}
		return nil
	})
	if err != nil {
		zapLog.Warn("failed to convert collection", zap.Error(err))
		return nil, errutil.Normalize(err, "failed to convert collection")
	}

	zapLog.Info("collection converted to points",
		zap.Int64("stamp_count", result.StampCount),
		zap.Int64("point_amount", result.PointAmount),
	)
	return result, nil
}

// Credit writes an earned entry inside tx.
func (c *Converter) Credit(ctx context.Context, tx *gorm.DB, p CreditParams) (*Entry, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, ErrInvalidArgument
	}
	if p.Point <= 0 {
		return nil, ErrInvalidAmount
	}
	return c.credit(ctx, tx, p, c.now())
}

func (c *Converter) credit(ctx context.Context, tx *gorm.DB, p CreditParams, now time.Time) (*Entry, error) {
	entry := &Entry{
		ID:            c.node.Generate().String(),
		UserID:        p.UserID,
		MerchantID:    p.MerchantID,
		Point:         p.Point,
		Type:          EntryEarned,
		CollectionID:  p.CollectionID,
		TransactionID: newTransactionID(c.node),
		Description:   p.Description,
		CreatedAt:     now,
	}
	if err := c.entries.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Balance sums every entry of the user.
func (c *Converter) Balance(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidArgument
	}

	var balance int64
	if err := c.db.WithContext(ctx).Model(&Entry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(point), 0)").
		Scan(&balance).Error; err != nil {
		logger(ctx).Error("failed to sum point entries", zap.Error(err))
		return 0, errutil.Internal("failed to read balance", err)
	}
	return balance, nil
}

func (c *Converter) ListEntries(ctx context.Context, p ListEntriesParams) ([]*Entry, *pagination.PageInfo, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, nil, ErrInvalidArgument
	}

	page := p.Pagination.Normalized()
	if err := page.Validate(); err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err, errutil.WithReason("POINT_INVALID_CURSOR"))
	}

	rows, err := c.entries.Find(ctx, &Entry{UserID: p.UserID}, option.ApplyPagination(page))
	if err != nil {
		logger(ctx).Error("failed to list point entries", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list point entries", err)
	}

	out, info := pagination.BuildCursorPageInfo(rows, page.Limit, func(e *Entry) string {
		cursor, _ := pagination.EncodeCursor(pagination.NewCursor(e.CreatedAt, e.ID))
		return cursor
	})
	return out, info, nil
}
