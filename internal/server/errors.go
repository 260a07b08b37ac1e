package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/rmateo1203/AdminiRed-sub000/internal/customer/domain"
	installationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/installation/domain"
	invoicedomain "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/domain"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
)

var errInvalidRequest = errors.New("invalid_request")

var statusByError = []struct {
	err    error
	status int
}{
	{errInvalidRequest, http.StatusBadRequest},
	{invoicedomain.ErrInvalidInvoiceID, http.StatusBadRequest},
	{invoicedomain.ErrInvalidAmount, http.StatusBadRequest},
	{invoicedomain.ErrInvalidPeriod, http.StatusBadRequest},
	{invoicedomain.ErrNotManualMethod, http.StatusBadRequest},
	{invoicedomain.ErrInvalidPaymentMethod, http.StatusBadRequest},
	{installationdomain.ErrInvalidStatus, http.StatusBadRequest},
	{installationdomain.ErrInvalidPrice, http.StatusBadRequest},
	{paymentdomain.ErrInvalidProvider, http.StatusBadRequest},
	{paymentdomain.ErrInvalidPayload, http.StatusBadRequest},
	{paymentdomain.ErrInvalidEvent, http.StatusBadRequest},
	{paymentdomain.ErrInvalidAmount, http.StatusBadRequest},
	{paymentdomain.ErrInvalidSignature, http.StatusBadRequest},

	{invoicedomain.ErrInvoiceNotFound, http.StatusNotFound},
	{installationdomain.ErrInstallationNotFound, http.StatusNotFound},
	{customerdomain.ErrCustomerNotFound, http.StatusNotFound},
	{paymentdomain.ErrTransactionNotFound, http.StatusNotFound},
	{paymentdomain.ErrProviderNotFound, http.StatusNotFound},

	{invoicedomain.ErrDuplicatePeriod, http.StatusConflict},
	{invoicedomain.ErrInvoiceCancelled, http.StatusConflict},
	{invoicedomain.ErrInvoiceNotPayable, http.StatusConflict},
	{invoicedomain.ErrInvoiceNotPaid, http.StatusConflict},
	{paymentdomain.ErrDuplicateTransaction, http.StatusConflict},
	{paymentdomain.ErrNotRefundable, http.StatusConflict},

	{paymentdomain.ErrMissingContact, http.StatusUnprocessableEntity},

	{paymentdomain.ErrGatewayRejected, http.StatusBadGateway},
	{paymentdomain.ErrGatewayTimeout, http.StatusGatewayTimeout},
}

// AbortWithError maps a service error onto an HTTP status and a stable error
// code. Unmapped errors become an opaque 500; their details stay in the logs.
func AbortWithError(c *gin.Context, err error) {
	for _, mapping := range statusByError {
		if errors.Is(err, mapping.err) {
			c.AbortWithStatusJSON(mapping.status, gin.H{"error": mapping.err.Error()})
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
