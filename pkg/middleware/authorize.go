package middleware

import (
	"smallbiznis-rewards/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authorize checks the caller role against the route template and method.
func Authorize(e *casbin.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)

		ok, err := e.Enforce(string(id.Role), c.FullPath(), c.Request.Method)
		if err != nil {
			zap.L().Error("access control evaluation failed", zap.String("path", c.FullPath()), zap.Error(err))
			_ = c.Error(errutil.Internal("access control evaluation failed", err))
			c.Abort()
			return
		}
		if !ok {
			_ = c.Error(errutil.Forbidden("role is not allowed to perform this action", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
