package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
)

// maxErrorBody bounds how much of a provider error response is kept for the
// wrapped error message.
const maxErrorBody = 512

// NewHTTPClient builds the client shared by provider adapters. Every
// outbound call carries this deadline; a timed-out call reports
// ErrGatewayTimeout and the caller re-polls instead of resubmitting.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Do executes the request and normalizes transport and HTTP-level failures
// to the payment domain error taxonomy. A 2xx response is returned to the
// caller with its body intact.
func Do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s %s", paymentdomain.ErrGatewayTimeout, req.Method, req.URL.Path)
		}
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayRejected, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	return nil, fmt.Errorf("%w: status %d: %s", paymentdomain.ErrGatewayRejected, resp.StatusCode, string(snippet))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
