package actiontoken

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testSecret = "test-secret"

func newConfig(backend string) *config.Config {
	cfg := &config.Config{}
	cfg.ActionToken.Secret = testSecret
	cfg.ActionToken.Issuer = "rewards-test"
	cfg.ActionToken.DefaultTTL = 2 * time.Minute
	cfg.ActionToken.MaxTTL = 10 * time.Minute
	cfg.ActionToken.Grace = time.Minute
	cfg.ActionToken.LedgerBackend = backend
	return cfg
}

func newDBGuard(t *testing.T, clock *testutil.Clock) (*Guard, *DBLedger) {
	t.Helper()
	db := testutil.NewTestDB(t, &ConsumedToken{})
	ledger := NewDBLedger(db)
	ledger.now = clock.Now

	guard, err := NewGuard(Params{Config: newConfig(BackendDatabase), Ledger: ledger})
	require.NoError(t, err)
	guard.now = clock.Now
	return guard, ledger
}

func issue(t *testing.T, g *Guard, merchantID string) *IssuedToken {
	t.Helper()
	tok, err := g.Issue(context.Background(), IssueParams{
		Subject:    "user-1",
		MerchantID: merchantID,
		Purpose:    PurposeAddStamp,
	})
	require.NoError(t, err)
	return tok
}

func TestNewGuardRequiresSecret(t *testing.T) {
	cfg := newConfig(BackendDatabase)
	cfg.ActionToken.Secret = " "
	_, err := NewGuard(Params{Config: cfg})
	require.Error(t, err)
}

func TestIssueValidation(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	guard, _ := newDBGuard(t, clock)

	_, err := guard.Issue(context.Background(), IssueParams{MerchantID: "m1", Purpose: PurposeAddStamp})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = guard.Issue(context.Background(), IssueParams{Subject: "u1", MerchantID: "m1", Purpose: PurposeAddStamp, TTL: time.Hour})
	require.ErrorIs(t, err, ErrTTLTooLong)

	tok := issue(t, guard, "m1")
	require.NotEmpty(t, tok.JTI)
	require.Equal(t, clock.Now().Add(2*time.Minute), tok.ExpiresAt)
}

func TestConsumeSucceedsOnceThenAlreadyConsumed(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	guard, _ := newDBGuard(t, clock)
	tok := issue(t, guard, "m1")

	claims, err := guard.Consume(context.Background(), tok.Token, PurposeAddStamp, "m1")
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, tok.JTI, claims.ID)

	_, err = guard.Consume(context.Background(), tok.Token, PurposeAddStamp, "m1")
	require.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestConsumeRejections(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	guard, _ := newDBGuard(t, clock)
	ctx := context.Background()

	t.Run("invalid signature", func(t *testing.T) {
		other, err := NewGuard(Params{Config: func() *config.Config {
			c := newConfig(BackendDatabase)
			c.ActionToken.Secret = "other-secret"
			return c
		}(), Ledger: guard.ledger})
		require.NoError(t, err)
		other.now = clock.Now

		tok := issue(t, other, "m1")
		_, err = guard.Consume(ctx, tok.Token, PurposeAddStamp, "m1")
		require.ErrorIs(t, err, ErrInvalidSignature)

		_, err = guard.Consume(ctx, "not-a-jwt", PurposeAddStamp, "m1")
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		claims := Claims{
			MerchantID: "m1",
			Purpose:    PurposeAddStamp,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "jti-none",
				Subject:   "user-1",
				Issuer:    "rewards-test",
				ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = guard.Consume(ctx, signed, PurposeAddStamp, "m1")
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("expired", func(t *testing.T) {
		tok := issue(t, guard, "m1")
		clock.Advance(3 * time.Minute)
		defer clock.Advance(-3 * time.Minute)

		_, err := guard.Consume(ctx, tok.Token, PurposeAddStamp, "m1")
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("purpose mismatch", func(t *testing.T) {
		tok := issue(t, guard, "m1")
		_, err := guard.Consume(ctx, tok.Token, Purpose("redeem"), "m1")
		require.ErrorIs(t, err, ErrPurposeMismatch)
	})

	t.Run("scope mismatch", func(t *testing.T) {
		tok := issue(t, guard, "m1")
		_, err := guard.Consume(ctx, tok.Token, PurposeAddStamp, "m2")
		require.ErrorIs(t, err, ErrScopeMismatch)

		// a rejected token was not recorded and is still usable at the right merchant
		_, err = guard.Consume(ctx, tok.Token, PurposeAddStamp, "m1")
		require.NoError(t, err)
	})
}

func TestConcurrentConsumeAdmitsExactlyOne(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	guard, _ := newDBGuard(t, clock)
	tok := issue(t, guard, "m1")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = guard.Consume(context.Background(), tok.Token, PurposeAddStamp, "m1")
		}(i)
	}
	wg.Wait()

	success, consumed := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrAlreadyConsumed):
			consumed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, success)
	require.Equal(t, callers-1, consumed)
}

func TestReleaseAllowsRetry(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	guard, _ := newDBGuard(t, clock)
	tok := issue(t, guard, "m1")

	claims, err := guard.Consume(context.Background(), tok.Token, PurposeAddStamp, "m1")
	require.NoError(t, err)
	require.NoError(t, guard.Release(context.Background(), claims.ID))

	_, err = guard.Consume(context.Background(), tok.Token, PurposeAddStamp, "m1")
	require.NoError(t, err)
}

func TestDBLedgerPurge(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	guard, ledger := newDBGuard(t, clock)

	tok := issue(t, guard, "m1")
	_, err := guard.Consume(context.Background(), tok.Token, PurposeAddStamp, "m1")
	require.NoError(t, err)

	purged, err := ledger.Purge(context.Background(), clock.Now())
	require.NoError(t, err)
	require.Zero(t, purged)

	// ttl = remaining lifetime (2m) + grace (1m)
	purged, err = ledger.Purge(context.Background(), clock.Now().Add(3*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
}

func TestRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ledger := NewLedger(LedgerParams{Config: newConfig(BackendRedis), Redis: rdb})
	require.IsType(t, &RedisLedger{}, ledger)

	ctx := context.Background()
	require.NoError(t, ledger.Consume(ctx, "jti-1", time.Minute))
	require.ErrorIs(t, ledger.Consume(ctx, "jti-1", time.Minute), ErrAlreadyConsumed)
	require.Equal(t, time.Minute, mr.TTL("actiontoken:jti:jti-1"))

	mr.FastForward(time.Minute + time.Second)
	require.NoError(t, ledger.Consume(ctx, "jti-1", time.Minute))

	require.NoError(t, ledger.Release(ctx, "jti-1"))
	require.False(t, mr.Exists("actiontoken:jti:jti-1"))
}

func TestRedisLedgerUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	err := NewRedisLedger(rdb).Consume(context.Background(), "jti-1", time.Minute)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrAlreadyConsumed))
}

func TestNewLedgerFallsBackToDatabase(t *testing.T) {
	db := testutil.NewTestDB(t, &ConsumedToken{})
	dbLedger := NewDBLedger(db)

	require.Same(t, dbLedger, NewLedger(LedgerParams{Config: newConfig(BackendRedis), DB: dbLedger}))
	require.Same(t, dbLedger, NewLedger(LedgerParams{Config: newConfig(BackendDatabase), DB: dbLedger}))
}
