package stamp

import (
	"context"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/repository"

	"gorm.io/gorm"
)

// ProgramResolver looks up a merchant's program, filling gaps from LOYALTY defaults.
type ProgramResolver struct {
	defaults Program
	programs repository.Repository[Program]
}

func NewProgramResolver(cfg *config.Config, db *gorm.DB) *ProgramResolver {
	goal := cfg.Loyalty.DefaultGoal
	if goal <= 0 {
		goal = 10
	}
	return &ProgramResolver{
		defaults: Program{
			GoalCount:     goal,
			ValidDays:     cfg.Loyalty.ValidDays,
			ExtensionDays: cfg.Loyalty.ExtensionDays,
		},
		programs: repository.ProvideStore[Program](db),
	}
}

// Resolve reads within tx when it is non-nil.
func (r *ProgramResolver) Resolve(ctx context.Context, tx *gorm.DB, merchantID string) (*Program, error) {
	stored, err := r.programs.WithTrx(tx).FindOne(ctx, &Program{MerchantID: merchantID})
	if err != nil {
		return nil, err
	}

	p := r.defaults
	p.MerchantID = merchantID
	if stored == nil {
		return &p, nil
	}
	if stored.GoalCount > 0 {
		p.GoalCount = stored.GoalCount
	}
	if stored.ValidDays > 0 {
		p.ValidDays = stored.ValidDays
	}
	if stored.ExtensionDays > 0 {
		p.ExtensionDays = stored.ExtensionDays
	}
	return &p, nil
}
