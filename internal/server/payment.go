package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// VerifyTransaction polls the provider for the current status of a known
// transaction and applies it locally.
func (s *Server) VerifyTransaction(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		AbortWithError(c, errInvalidRequest)
		return
	}

	status, err := s.paymentSvc.VerifyTransaction(c.Request.Context(), externalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": status}})
}

type refundRequest struct {
	AmountCents *int64 `json:"amount_cents"`
}

func (s *Server) RefundTransaction(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	if err := s.paymentSvc.Refund(c.Request.Context(), id, req.AmountCents); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"refunded": true}})
}
