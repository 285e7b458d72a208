package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// OwnerHeader carries the numeric owner id.
	OwnerHeader = "X-User-ID"
	// ownerQuery is accepted for WebSocket upgrades, where browsers cannot set
	// headers.
	ownerQuery = "user_id"
	ownerKey   = "omnik.owner"
)

// Owner resolves the caller's owner id from OwnerHeader or the user_id query
// parameter. When authorized is set, any other owner is rejected with 403.
func Owner(authorized int64, restrict bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if raw == "" {
			raw = strings.TrimSpace(c.Query(ownerQuery))
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing " + OwnerHeader,
			})
			return
		}
		owner, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "invalid " + OwnerHeader,
			})
			return
		}
		if restrict && owner != authorized {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "unauthorized",
			})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// OwnerID returns the owner resolved by Owner, or 0.
func OwnerID(c *gin.Context) int64 {
	if v, ok := c.Get(ownerKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
