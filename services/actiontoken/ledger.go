package actiontoken

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger records consumed jti values for a bounded time. Consume must be a
// single atomic check-and-record: concurrent calls for one jti yield exactly
// one nil and ErrAlreadyConsumed for the rest.
type Ledger interface {
	Consume(ctx context.Context, jti string, ttl time.Duration) error
	Release(ctx context.Context, jti string) error
}

const (
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

type RedisLedger struct {
	rdb *redis.Client
}

func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{rdb: rdb}
}

func (l *RedisLedger) Consume(ctx context.Context, jti string, ttl time.Duration) error {
	ok, err := l.rdb.SetNX(ctx, rediskey.BuildActionTokenKey(jti), 1, ttl).Result()
	if err != nil {
		return errutil.Unavailable("consumption ledger unavailable", err)
	}
	if !ok {
		return ErrAlreadyConsumed
	}
	return nil
}

func (l *RedisLedger) Release(ctx context.Context, jti string) error {
	if err := l.rdb.Del(ctx, rediskey.BuildActionTokenKey(jti)).Err(); err != nil {
		return errutil.Unavailable("consumption ledger unavailable", err)
	}
	return nil
}

type DBLedger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBLedger(db *gorm.DB) *DBLedger {
	return &DBLedger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (l *DBLedger) Consume(ctx context.Context, jti string, ttl time.Duration) error {
	now := l.now()
	var inserted int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// a lapsed record no longer counts as consumed
		if err := tx.Where("jti = ? AND expires_at <= ?", jti, now).Delete(&ConsumedToken{}).Error; err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ConsumedToken{
			JTI:       jti,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		})
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return errutil.Unavailable("consumption ledger unavailable", err)
	}
	if inserted == 0 {
		return ErrAlreadyConsumed
	}
	return nil
}

func (l *DBLedger) Release(ctx context.Context, jti string) error {
	if err := l.db.WithContext(ctx).Where("jti = ?", jti).Delete(&ConsumedToken{}).Error; err != nil {
		return errutil.Unavailable("consumption ledger unavailable", err)
	}
	return nil
}

// Purge evicts records whose ttl lapsed before now.
func (l *DBLedger) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&ConsumedToken{})
	return res.RowsAffected, res.Error
}

type LedgerParams struct {
	fx.In
	Config *config.Config
	DB     *DBLedger
	Redis  *redis.Client `optional:"true"`
}

// NewLedger selects the backend from ACTION_TOKEN.LEDGER_BACKEND.
func NewLedger(p LedgerParams) Ledger {
	switch p.Config.ActionToken.LedgerBackend {
	case BackendDatabase:
		zap.L().Info("action token ledger backed by database")
		return p.DB
	default:
		if p.Redis == nil {
			zap.L().Warn("redis client not provided, action token ledger falls back to database")
			return p.DB
		}
		zap.L().Info("action token ledger backed by redis")
		return NewRedisLedger(p.Redis)
	}
}
