package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	installationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/installation/domain"
)

type statusChangeRequest struct {
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	PriceCents  int64  `json:"price_cents"`
	ActivatedAt string `json:"activated_at"`
}

// ApplyInstallationStatus ingests a lifecycle transition pushed by the
// installation workflow.
func (s *Server) ApplyInstallationStatus(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req statusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	change := installationdomain.StatusChange{
		InstallationID: id,
		OldStatus:      installationdomain.Status(strings.TrimSpace(req.OldStatus)),
		NewStatus:      installationdomain.Status(strings.TrimSpace(req.NewStatus)),
		PriceCents:     req.PriceCents,
	}
	if strings.TrimSpace(req.ActivatedAt) != "" {
		activatedAt, err := time.Parse(time.RFC3339, req.ActivatedAt)
		if err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
		change.ActivatedAt = activatedAt
	}

	inst, err := s.installationSvc.ApplyStatusChange(c.Request.Context(), change)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inst})
}

type priceChangeRequest struct {
	PriceCents int64 `json:"price_cents"`
}

func (s *Server) ApplyInstallationPrice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req priceChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	if err := s.installationSvc.ApplyPriceChange(c.Request.Context(), id, req.PriceCents); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": true}})
}

func (s *Server) GetInstallation(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inst, err := s.installationSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inst})
}
