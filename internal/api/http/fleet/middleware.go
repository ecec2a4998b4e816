package fleet

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/logger"
)

const (
	// requestIDHeader exposes the per-request id to callers.
	requestIDHeader = "X-Request-Id"
	// clientIDHeader carries the device's registered slug.
	clientIDHeader = fleet.HeaderClientID
	// clientTokenHeader carries the device's plaintext secret.
	clientTokenHeader = fleet.HeaderClientToken

	// clientContextKey is the gin context key the authenticated client
	// record is stored under.
	clientContextKey = "drydock-client"
)

// requestIDMiddleware assigns every request an id, echoes it in the response
// and attaches it to the request context's logger.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, requestID)

		ctx := logger.WithKV(c.Request.Context(), "requestId", requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// accessLogMiddleware emits one structured line per completed request.
func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.InfoKV(c.Request.Context(), "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"durationMs", time.Since(start).Milliseconds(),
			"clientIp", c.ClientIP())
	}
}

// adminAuthMiddleware guards operator routes with the configured bearer
// secret. No configured secret means no admin surface: everything is denied
// rather than everything allowed.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.AdminSecret == "" {
			respondError(c, fleet.ErrUnauthorized)

			return
		}

		presented, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok {
			respondError(c, fleet.ErrUnauthorized)

			return
		}

		if subtle.ConstantTimeCompare([]byte(s.opts.AdminSecret), []byte(presented)) != 1 {
			respondError(c, fleet.ErrUnauthorized)

			return
		}

		c.Next()
	}
}

// deviceAuthMiddleware authenticates the per-device id + token headers and
// stores the resolved record for the handler.
func (s *Server) deviceAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(clientIDHeader)
		token := c.GetHeader(clientTokenHeader)

		client, err := s.clients.Authenticate(c.Request.Context(), id, token)
		if err != nil {
			respondError(c, err)

			return
		}

		c.Set(clientContextKey, client)
		c.Next()
	}
}

// clientFromContext returns the record deviceAuthMiddleware resolved.
func clientFromContext(c *gin.Context) *fleet.Client {
	return c.MustGet(clientContextKey).(*fleet.Client)
}
