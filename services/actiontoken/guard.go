package actiontoken

import (
	"context"
	"errors"
	"strings"
	"time"

	"smallbiznis-rewards/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Guard issues single-use action tokens and admits each one at most once.
type Guard struct {
	secret     []byte
	issuer     string
	defaultTTL time.Duration
	maxTTL     time.Duration
	grace      time.Duration
	ledger     Ledger
	now        func() time.Time
}

type Params struct {
	fx.In
	Config *config.Config
	Ledger Ledger
}

func NewGuard(p Params) (*Guard, error) {
	cfg := p.Config.ActionToken
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("ACTION_TOKEN.SECRET is required")
	}

	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	maxTTL := cfg.MaxTTL
	if maxTTL < defaultTTL {
		maxTTL = defaultTTL
	}

	return &Guard{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
		grace:      cfg.Grace,
		ledger:     p.Ledger,
		now:        time.Now,
	}, nil
}

func (g *Guard) Issue(ctx context.Context, p IssueParams) (*IssuedToken, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	if strings.TrimSpace(p.Subject) == "" || strings.TrimSpace(p.MerchantID) == "" || p.Purpose == "" {
		return nil, ErrInvalidRequest
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = g.defaultTTL
	}
	if ttl > g.maxTTL {
		return nil, ErrTTLTooLong
	}

	now := g.now().UTC()
	expiresAt := now.Add(ttl)
	jti := uuid.NewString()

	claims := Claims{
		MerchantID: p.MerchantID,
		Purpose:    p.Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.Subject,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		zapLog.Error("failed to sign action token", zap.Error(err))
		return nil, err
	}

	zapLog.Debug("issued action token",
		zap.String("jti", jti),
		zap.String("merchant_id", p.MerchantID),
		zap.String("purpose", string(p.Purpose)),
	)

	return &IssuedToken{
		Token:     signed,
		JTI:       jti,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Consume verifies token against the expected purpose and merchant and
// records its jti. Claims are returned only to the first successful caller.
func (g *Guard) Consume(ctx context.Context, token string, purpose Purpose, merchantID string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSignature
	}

	var parsed Claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	if parsed.ID == "" || parsed.ExpiresAt == nil || parsed.Subject == "" {
		return nil, ErrInvalidSignature
	}
	if g.issuer != "" && parsed.Issuer != g.issuer {
		return nil, ErrInvalidSignature
	}

	now := g.now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return nil, ErrExpired
	}

	if parsed.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	if parsed.MerchantID != merchantID {
		return nil, ErrScopeMismatch
	}

	if err := g.ledger.Consume(ctx, parsed.ID, exp.Sub(now)+g.grace); err != nil {
		return nil, err
	}

	return &parsed, nil
}

// Release forgets a consumed jti so the holder can retry after the protected
// unit of work failed.
func (g *Guard) Release(ctx context.Context, jti string) error {
	return g.ledger.Release(ctx, jti)
}
