package bootstrap

import (
	"context"
	"fmt"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/services/actiontoken"
	"smallbiznis-rewards/services/challenge"
	"smallbiznis-rewards/services/expiry"
	"smallbiznis-rewards/services/point"
	"smallbiznis-rewards/services/reward"
	"smallbiznis-rewards/services/stamp"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table owned by the rewards engine.
func Models() []any {
	return []any{
		&actiontoken.ConsumedToken{},
		&stamp.Program{},
		&stamp.Collection{},
		&stamp.Event{},
		&reward.CouponTemplate{},
		&reward.UserCoupon{},
		&point.Entry{},
		&challenge.Challenge{},
		&challenge.Participation{},
		&challenge.Stats{},
		&expiry.Run{},
	}
}

type Service struct {
	db     *gorm.DB
	config *config.Config
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		config: p.Config,
	}
}

// Migrate creates or updates the schema when DATABASE.AUTO_MIGRATE is set.
func (s *Service) Migrate(ctx context.Context) error {
	if !s.config.Database.AutoMigrate {
		zap.L().Info("[bootstrap] auto migrate disabled, skipping")
		return nil
	}

	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		zap.L().Error("[bootstrap] failed to migrate schema", zap.Error(err))
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	zap.L().Info("[bootstrap] schema migrated", zap.Int("tables", len(Models())))
	return nil
}
