package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/domain"
)

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, errInvalidRequest
	}
	return id, nil
}

type createInvoiceRequest struct {
	CustomerID     string `json:"customer_id"`
	InstallationID string `json:"installation_id"`
	AmountCents    int64  `json:"amount_cents"`
	Concept        string `json:"concept"`
	PeriodMonth    int    `json:"period_month"`
	PeriodYear     int    `json:"period_year"`
	DueDate        string `json:"due_date"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	create := invoicedomain.CreateRequest{
		CustomerID:  customerID,
		AmountCents: req.AmountCents,
		Concept:     req.Concept,
		PeriodMonth: req.PeriodMonth,
		PeriodYear:  req.PeriodYear,
	}
	if strings.TrimSpace(req.InstallationID) != "" {
		installationID, err := parseID(req.InstallationID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		create.InstallationID = &installationID
	}
	if strings.TrimSpace(req.DueDate) != "" {
		dueDate, err := time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
		create.DueDate = dueDate
	}

	inv, err := s.invoiceSvc.Create(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

type paymentIntentRequest struct {
	Provider  string `json:"provider"`
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req paymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	result, err := s.paymentSvc.CreatePaymentIntent(c.Request.Context(), id, strings.TrimSpace(req.Provider), req.ReturnURL, req.CancelURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": result})
}

type manualPaymentRequest struct {
	Method string `json:"method"`
}

func (s *Server) RecordManualPayment(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req manualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	inv, err := s.invoiceSvc.RecordManualPayment(c.Request.Context(), id, invoicedomain.PaymentMethod(strings.TrimSpace(req.Method)))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.invoiceSvc.Cancel(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cancelled": true}})
}
