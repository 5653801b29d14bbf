package gateway

import (
	"net/http"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

// Result is the tagged outcome of a proxied call. Exactly one variant is
// populated: a success mirrors the worker's response verbatim, a failure
// carries a status and a short message rendered as a generic error body.
type Result struct {
	OK bool

	// Success variant.
	StatusCode  int
	Headers     map[string]string
	Body        string
	ContentType string

	// Failure variant.
	FailStatus  int
	FailMessage string
}

func success(resp *domain.Response) Result {
	return Result{
		OK:          true,
		StatusCode:  resp.StatusCode,
		Headers:     resp.Headers,
		Body:        resp.Body,
		ContentType: resp.ContentType,
	}
}

func failure(status int, msg string) Result {
	return Result{OK: false, FailStatus: status, FailMessage: msg}
}

// Failure constructors for the gateway error taxonomy. Pre-enqueue
// failures (validation, unavailable) never write a Request row; the rest
// surface through these after the row exists.
func invalid(msg string) Result { return failure(http.StatusBadRequest, msg) }

func unavailable(workerID string) Result {
	return failure(http.StatusServiceUnavailable, "worker "+workerID+" is not available")
}

func timeout() Result {
	return failure(http.StatusGatewayTimeout, "worker did not respond in time")
}

func internal() Result {
	return failure(http.StatusInternalServerError, "internal gateway error")
}
