package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/seiassign/models"
)

// KeyIDContextKey holds the id of the status key that authenticated the
// request. The key itself is never stored.
const KeyIDContextKey = "status_key_id"

const challenge = `Bearer realm="seiassign-status"`

type statusKey struct {
	digest [sha256.Size]byte
	id     string
}

// KeyID is the short public label of a status key: the first 8 hex digits
// of its SHA-256 digest.
func KeyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}

// Auth guards the run-status endpoints with static keys, presented as
//
//	Authorization: Bearer <key>
//	X-API-Key: <key>
//
// Keys are compared by digest in constant time. Rejections are logged with
// the client address and answered with a Bearer challenge. Without keys the
// endpoints are open.
func Auth(apiKeys []string, logger *slog.Logger) gin.HandlerFunc {
	var keys []statusKey
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, statusKey{digest: sha256.Sum256([]byte(k)), id: KeyID(k)})
		}
	}
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		presented := extractAPIKey(c)
		if presented == "" {
			reject(c, logger, "missing", "missing status key: provide Authorization: Bearer <key> or X-API-Key")
			return
		}

		digest := sha256.Sum256([]byte(presented))
		matched := ""
		for _, k := range keys {
			if subtle.ConstantTimeCompare(digest[:], k.digest[:]) == 1 {
				matched = k.id
			}
		}
		if matched == "" {
			reject(c, logger, "unknown", "invalid status key")
			return
		}

		c.Set(KeyIDContextKey, matched)
		c.Next()
	}
}

// extractAPIKey tries Authorization: Bearer first, then X-API-Key.
func extractAPIKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.GetHeader("X-API-Key"))
}

func reject(c *gin.Context, logger *slog.Logger, reason, message string) {
	logger.Warn("status request rejected",
		"reason", reason,
		"client", c.ClientIP(),
		"path", c.Request.URL.Path,
	)
	c.Header("WWW-Authenticate", challenge)
	abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, message)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: message},
	})
}
