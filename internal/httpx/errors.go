// Package httpx maps engine errors onto HTTP responses.
package httpx

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/timebankhq/timebank/internal/timebank"
)

// Error writes the JSON error response matching err's classification.
func Error(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, timebank.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, timebank.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, timebank.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, timebank.ErrInvalidState), errors.Is(err, timebank.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
