package api

import (
	"context"
	"strconv"
	"strings"
	"time"

	"stepwells-backend/internal/apperr"
	"stepwells-backend/internal/auth"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "caller_identity"

// UserUpserter records a user row on first authenticated call.
type UserUpserter interface {
	UpsertUser(ctx context.Context, u *models.User) error
}

// identityFromContext returns the verified caller identity, or nil for
// unauthenticated requests.
func identityFromContext(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*auth.Identity)
	return identity
}

// authMiddleware verifies a bearer token when present and threads the
// resulting identity through the request. Endpoints decide themselves
// whether an identity is required; services return Unauthenticated for
// a nil identity.
func authMiddleware(gate *auth.Gate, users UserUpserter) gin.HandlerFunc {
	logger := util.GetLogger()

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		identity, err := gate.Authenticate(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		if users != nil {
			if err := users.UpsertUser(c.Request.Context(), &models.User{
				UID:         identity.UID,
				Email:       identity.Email,
				DisplayName: identity.DisplayName,
			}); err != nil {
				logger.Warn("Failed to upsert user record",
					zap.String("uid", identity.UID), zap.Error(err))
			}
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// writeError maps a coded error to its HTTP response.
func writeError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error": apperr.MessageOf(err),
		"code":  string(apperr.CodeOf(err)),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
