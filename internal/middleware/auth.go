package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// authFailure is a rejected admin request
type authFailure struct {
	message string
	code    string
}

// checkBearer validates the Authorization header against key.
// Returns nil when the header carries "Bearer <key>".
func checkBearer(c *gin.Context, key string) *authFailure {
	header := c.GetHeader("Authorization")
	if header == "" {
		return &authFailure{"Authorization header required", "AUTH_REQUIRED"}
	}

	scheme, provided, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return &authFailure{"Invalid authorization format. Use: Bearer <admin_key>", "AUTH_INVALID_FORMAT"}
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), []byte(key)) != 1 {
		return &authFailure{"Invalid admin key", "AUTH_INVALID_KEY"}
	}
	return nil
}

// AdminKeyAuth guards admin routes with a Bearer key.
// An empty key leaves the routes open, which suits a checker running on localhost.
func AdminKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		if fail := checkBearer(c, key); fail != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": fail.message,
				"code":  fail.code,
			})
			return
		}

		c.Next()
	}
}

// VerifyAdminKey lets a client check a stored admin key
func VerifyAdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.JSON(http.StatusOK, gin.H{
				"valid":        true,
				"auth_enabled": false,
				"message":      "Authentication is not configured",
			})
			return
		}

		if fail := checkBearer(c, key); fail != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"valid": false,
				"error": fail.message,
				"code":  fail.code,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"valid":        true,
			"auth_enabled": true,
		})
	}
}

// AuthStatus reports whether admin routes require a key
func AuthStatus(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"auth_enabled": key != "",
		})
	}
}
