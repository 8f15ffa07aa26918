package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const sellerIDKey = "seller_id"

// SellerMiddleware resolves the numeric seller id of the caller.
// IstioAuth may already have placed tenant_id in the context from JWT claims;
// otherwise the X-Vendor-ID header is read, then the legacy X-Tenant-ID header.
// Requests without a seller are rejected.
func SellerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetString("vendor_id")
		if raw == "" {
			raw = c.GetString("tenant_id")
		}
		if raw == "" {
			raw = c.GetHeader("X-Vendor-ID")
		}
		if raw == "" {
			raw = c.GetHeader("X-Tenant-ID")
		}

		if raw == "" {
			abortSeller(c, http.StatusUnauthorized, "SELLER_REQUIRED", "Seller ID is required. Include X-Vendor-ID or X-Tenant-ID header.")
			return
		}

		sellerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || sellerID <= 0 {
			abortSeller(c, http.StatusBadRequest, "INVALID_SELLER", "Seller ID must be a positive integer")
			return
		}

		c.Set("tenant_id", raw)
		c.Set("vendor_id", raw)
		c.Set(sellerIDKey, sellerID)
		c.Next()
	}
}

func abortSeller(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
	c.Abort()
}

// GetSellerID retrieves the seller id set by SellerMiddleware
func GetSellerID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(sellerIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// GetActorID returns the authenticated user, falling back to the staff id
func GetActorID(c *gin.Context) string {
	if uid := c.GetString("user_id"); uid != "" {
		return uid
	}
	return c.GetString("staff_id")
}
