package accesscontrol

import (
	"smallbiznis-rewards/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("accesscontrol",
	fx.Provide(NewEnforcer),
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && keyMatch2(r.obj, p.obj) && r.act == p.act
`

// DefaultPolicies grants each role the routes it may call. Admins inherit staff and customer.
var DefaultPolicies = [][]string{
	{"customer", "/v1/action-tokens", "POST"},
	{"customer", "/v1/collections/active", "GET"},
	{"customer", "/v1/collections/:id/convert", "POST"},
	{"customer", "/v1/collections/:id/extend", "POST"},
	{"customer", "/v1/challenges/:id/join", "POST"},
	{"customer", "/v1/challenges/:id/complete", "POST"},
	{"customer", "/v1/coupons", "GET"},
	{"customer", "/v1/coupons/:id/redeem", "POST"},
	{"customer", "/v1/points/balance", "GET"},
	{"customer", "/v1/points/entries", "GET"},
	{"staff", "/v1/stamps", "POST"},
	{"staff", "/v1/challenges/:id/progress", "POST"},
	{"admin", "/v1/expiry/run", "POST"},
}

var DefaultGroupings = [][]string{
	{"admin", "staff"},
	{"admin", "customer"},
}

// NewEnforcer loads ACCESS_CONTROL.MODEL and ACCESS_CONTROL.POLICY files when
// both are set, otherwise it uses the built-in route policies.
func NewEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	ac := cfg.AccessControl
	if ac.Model != "" && ac.Policy != "" {
		e, err := casbin.NewEnforcer(ac.Model, ac.Policy)
		if err != nil {
			zap.L().Error("failed to load access control policy", zap.String("model", ac.Model), zap.String("policy", ac.Policy), zap.Error(err))
			return nil, err
		}
		return e, nil
	}

	return NewDefaultEnforcer()
}

func NewDefaultEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	if _, err := e.AddPolicies(DefaultPolicies); err != nil {
		return nil, err
	}
	if _, err := e.AddGroupingPolicies(DefaultGroupings); err != nil {
		return nil, err
	}
	return e, nil
}
