package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rmateo1203/AdminiRed-sub000/internal/observability/logger"
	"go.uber.org/zap"
)

// HandleWebhook ingests one provider callback. Verified or not, the limiter
// runs first so a flood of junk never reaches signature checks. Processing
// errors return non-2xx and rely on provider redelivery.
func (s *Server) HandleWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	if !s.webhookLimiter.Allow(provider + ":" + c.ClientIP()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}

	payload, err := c.GetRawData()
	if err != nil || len(payload) == 0 {
		AbortWithError(c, errInvalidRequest)
		return
	}

	if err := s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header); err != nil {
		s.log.Warn("webhook ingestion failed",
			zap.String("provider", provider),
			zap.Any("headers", logger.MaskHeaders(c.Request.Header)),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
