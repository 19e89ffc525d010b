package loyalty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"smallbiznis-rewards/pkg/accesscontrol"
	"smallbiznis-rewards/pkg/middleware"
	"smallbiznis-rewards/services/expiry"
	"smallbiznis-rewards/services/testutil"
)

func newRouter(t *testing.T, f *fixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := accesscontrol.NewDefaultEnforcer()
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Error())
	RegisterRoutes(r, NewHandler(f.engine), enforcer)
	return r
}

func call(t *testing.T, r http.Handler, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var (
	customerHeaders = map[string]string{middleware.HeaderUserID: "u1", middleware.HeaderRole: "customer"}
	staffHeaders    = map[string]string{middleware.HeaderUserID: "s1", middleware.HeaderMerchantID: "m1", middleware.HeaderRole: "staff"}
	adminHeaders    = map[string]string{middleware.HeaderUserID: "a1", middleware.HeaderRole: "admin"}
)

func TestStampRoundTrip(t *testing.T) {
	f := newFixture(t, 10)
	r := newRouter(t, f)

	w := call(t, r, http.MethodPost, "/v1/action-tokens", customerHeaders, gin.H{"merchant_id": "m1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var issued struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.Token)

	// customers cannot stamp themselves
	w = call(t, r, http.MethodPost, "/v1/stamps", customerHeaders, gin.H{"token": issued.Token})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = call(t, r, http.MethodPost, "/v1/stamps", staffHeaders, gin.H{"token": issued.Token, "metadata": gin.H{"lat": -6.2}})
	require.Equal(t, http.StatusOK, w.Code)

	var added struct {
		CollectionID string `json:"collection_id"`
		CurrentCount int    `json:"current_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	require.Equal(t, 1, added.CurrentCount)

	w = call(t, r, http.MethodPost, "/v1/stamps", staffHeaders, gin.H{"token": issued.Token})
	require.Equal(t, http.StatusConflict, w.Code)

	w = call(t, r, http.MethodGet, "/v1/collections/active?merchant_id=m1", customerHeaders, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, r, http.MethodPost, "/v1/collections/"+added.CollectionID+"/convert", customerHeaders, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, r, http.MethodGet, "/v1/points/balance", customerHeaders, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var balance struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	require.Equal(t, int64(10), balance.Balance)

	w = call(t, r, http.MethodGet, "/v1/points/entries?limit=5", customerHeaders, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t, 10)
	r := newRouter(t, f)

	w := call(t, r, http.MethodPost, "/v1/stamps", staffHeaders, gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodPost, "/v1/stamps", staffHeaders, gin.H{"token": "garbage"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(t, r, http.MethodGet, "/v1/collections/active?merchant_id=m1", customerHeaders, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = call(t, r, http.MethodGet, "/v1/coupons?cursor=!!!!", customerHeaders, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodPost, "/v1/expiry/run", staffHeaders, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = call(t, r, http.MethodPost, "/v1/expiry/run", adminHeaders, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

type failingPurger struct{}

func (failingPurger) Purge(context.Context, time.Time) (int64, error) {
	return 0, errors.New(`pq: relation "consumed_tokens" does not exist`)
}

func TestExpiryRunReportsFailedPhases(t *testing.T) {
	f := newFixture(t, 10)
	f.engine.sweeper = expiry.NewSweeper(expiry.Params{DB: f.db, Node: testutil.NewNode(t), Purger: failingPurger{}})
	r := newRouter(t, f)

	w := call(t, r, http.MethodPost, "/v1/expiry/run", adminHeaders, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "consumed_tokens")

	var body struct {
		Result expiry.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Result.Failures)
	require.Equal(t, []string{"tokens"}, body.Result.FailedPhases)
}
