package loyalty

import (
	"net/http"
	"time"

	"smallbiznis-rewards/pkg/db/pagination"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/middleware"
	"smallbiznis-rewards/services/actiontoken"
	"smallbiznis-rewards/services/reward"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes mounts the /v1 API. Callers are identified by gateway headers
// and authorized by role.
func RegisterRoutes(r *gin.Engine, h *Handler, enforcer *casbin.Enforcer) {
	v1 := r.Group("/v1", middleware.Identity(), middleware.Authorize(enforcer))

	v1.POST("/action-tokens", h.IssueActionToken)
	v1.POST("/stamps", h.AddStamp)

	v1.GET("/collections/active", h.GetActiveCollection)
	v1.POST("/collections/:id/convert", h.ConvertStampsToPoints)
	v1.POST("/collections/:id/extend", h.ExtendCollection)

	v1.POST("/challenges/:id/join", h.JoinChallenge)
	v1.POST("/challenges/:id/progress", h.RecordProgress)
	v1.POST("/challenges/:id/complete", h.CompleteChallenge)

	v1.GET("/coupons", h.ListCoupons)
	v1.POST("/coupons/:id/redeem", h.RedeemCoupon)

	v1.GET("/points/balance", h.Balance)
	v1.GET("/points/entries", h.ListEntries)

	v1.POST("/expiry/run", h.RunExpirySweep)
}

type issueActionTokenRequest struct {
	MerchantID string              `json:"merchant_id"`
	Purpose    actiontoken.Purpose `json:"purpose"`
	TTLSeconds int                 `json:"ttl_seconds"`
}

func (h *Handler) IssueActionToken(c *gin.Context) {
	var req issueActionTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.Wrap(ErrInvalidBody, err))
		return
	}

	token, err := h.engine.IssueActionToken(c.Request.Context(), middleware.GetIdentity(c), req.MerchantID, req.Purpose, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

type addStampRequest struct {
	Token    string         `json:"token" binding:"required"`
	Note     string         `json:"note"`
	Metadata map[string]any `json:"metadata"`
}

func (h *Handler) AddStamp(c *gin.Context) {
	var req addStampRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.Wrap(ErrInvalidBody, err))
		return
	}

	result, err := h.engine.AddStamp(c.Request.Context(), middleware.GetIdentity(c), AddStampRequest{
		Token:    req.Token,
		Note:     req.Note,
		Metadata: req.Metadata,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetActiveCollection(c *gin.Context) {
	collection, err := h.engine.GetActiveCollection(c.Request.Context(), middleware.GetIdentity(c), c.Query("merchant_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (h *Handler) ConvertStampsToPoints(c *gin.Context) {
	result, err := h.engine.ConvertStampsToPoints(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ExtendCollection(c *gin.Context) {
	collection, err := h.engine.ExtendCollection(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

type joinChallengeRequest struct {
	CafeID string `json:"cafe_id"`
}

func (h *Handler) JoinChallenge(c *gin.Context) {
	var req joinChallengeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.Wrap(ErrInvalidBody, err))
			return
		}
	}

	participation, err := h.engine.JoinChallenge(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"), req.CafeID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, participation)
}

type recordProgressRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Delta  int    `json:"delta" binding:"required"`
}

func (h *Handler) RecordProgress(c *gin.Context) {
	var req recordProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.Wrap(ErrInvalidBody, err))
		return
	}

	participation, err := h.engine.RecordProgress(c.Request.Context(), middleware.GetIdentity(c), req.UserID, c.Param("id"), req.Delta)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, participation)
}

func (h *Handler) CompleteChallenge(c *gin.Context) {
	result, err := h.engine.CompleteChallenge(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type listCouponsQuery struct {
	pagination.Pagination
	Status reward.CouponStatus `form:"status"`
}

func (h *Handler) ListCoupons(c *gin.Context) {
	var q listCouponsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.Wrap(ErrInvalidBody, err))
		return
	}

	coupons, pageInfo, err := h.engine.ListCoupons(c.Request.Context(), middleware.GetIdentity(c), q.Status, q.Pagination)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": coupons, "page_info": pageInfo})
}

func (h *Handler) RedeemCoupon(c *gin.Context) {
	coupon, err := h.engine.RedeemCoupon(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, coupon)
}

func (h *Handler) Balance(c *gin.Context) {
	caller := middleware.GetIdentity(c)
	balance, err := h.engine.Balance(c.Request.Context(), caller)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID, "balance": balance})
}

func (h *Handler) ListEntries(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.Wrap(ErrInvalidBody, err))
		return
	}

	entries, pageInfo, err := h.engine.ListEntries(c.Request.Context(), middleware.GetIdentity(c), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": pageInfo})
}

func (h *Handler) RunExpirySweep(c *gin.Context) {
	result, err := h.engine.RunExpirySweep(c.Request.Context())
	if err != nil && result == nil {
		_ = c.Error(err)
		return
	}

	// phase errors stay in the logs and on the run record
	c.JSON(http.StatusOK, gin.H{"result": result})
}
