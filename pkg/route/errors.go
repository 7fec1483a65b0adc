package route

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

var (
	// ErrNoRoute means the upstream found no transit route between the points.
	ErrNoRoute         = errors.New("no route between the given points")
	ErrInvalidResponse = errors.New("invalid route api response")
)

type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("route api error (%d): %s", e.Status, e.Message)
}

// IsTransient reports whether retrying the same request may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoRoute) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return true
}
