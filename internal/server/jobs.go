package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type generateInvoicesRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// RunGenerateInvoices triggers the monthly generation job for the given
// period, defaulting to the current month.
func (s *Server) RunGenerateInvoices(c *gin.Context) {
	var req generateInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, errInvalidRequest)
		return
	}
	now := time.Now().UTC()
	if req.Year == 0 {
		req.Year = now.Year()
	}
	if req.Month == 0 {
		req.Month = int(now.Month())
	}

	result, err := s.sched.GenerateInvoices(c.Request.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

type sweepOverdueRequest struct {
	AsOf string `json:"as_of"`
}

func (s *Server) RunSweepOverdue(c *gin.Context) {
	var req sweepOverdueRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, errInvalidRequest)
		return
	}
	asOf := time.Time{}
	if strings.TrimSpace(req.AsOf) != "" {
		parsed, err := time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
		asOf = parsed
	}

	count, err := s.sched.SweepOverdue(c.Request.Context(), asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"marked_overdue": count}})
}

type reconcileRequest struct {
	AutoFix bool `json:"auto_fix"`
}

func (s *Server) RunReconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, errInvalidRequest)
		return
	}

	report, err := s.reconSvc.Reconcile(c.Request.Context(), req.AutoFix)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}
