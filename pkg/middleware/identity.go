package middleware

import (
	"strings"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/identity"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID     = "X-User-ID"
	HeaderMerchantID = "X-Merchant-ID"
	HeaderRole       = "X-Role"
)

// Identity reads the caller headers set by the gateway into the request context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			_ = c.Error(errutil.Unauthorized("missing caller identity", nil))
			c.Abort()
			return
		}

		role := identity.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderRole))))
		if role == "" {
			role = identity.RoleCustomer
		}

		id := identity.Identity{
			UserID:     userID,
			MerchantID: strings.TrimSpace(c.GetHeader(HeaderMerchantID)),
			Role:       role,
		}
		c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// GetIdentity returns the caller for the current request.
func GetIdentity(c *gin.Context) identity.Identity {
	id, _ := identity.FromContext(c.Request.Context())
	return id
}
