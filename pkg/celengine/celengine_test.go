package celengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEligible(t *testing.T) {
	attrs := map[string]interface{}{
		"round":       int64(3),
		"goal_count":  int64(10),
		"merchant_id": "m1",
	}

	ok, err := Eligible("", attrs)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Eligible("round >= 2 && merchant_id == 'm1'", attrs)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Eligible("round > 5", attrs)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEligibleRejectsInvalidExpressions(t *testing.T) {
	attrs := map[string]interface{}{"round": int64(1)}

	_, err := Eligible("round +", attrs)
	require.Error(t, err)

	_, err = Eligible("round + 1", attrs)
	require.Error(t, err)
}

func TestGetOrBuildEnvCachesBySignature(t *testing.T) {
	a, err := GetOrBuildEnv(map[string]interface{}{"x": int64(1), "y": "a"})
	require.NoError(t, err)
	b, err := GetOrBuildEnv(map[string]interface{}{"y": "b", "x": int64(2)})
	require.NoError(t, err)
	c, err := GetOrBuildEnv(map[string]interface{}{"x": "str"})
	require.NoError(t, err)

	require.Same(t, a, b)
	require.NotSame(t, a, c)
}
