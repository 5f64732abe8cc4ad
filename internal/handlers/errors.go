package handlers

import (
	"errors"
	"net/http"

	"github.com/ruralpay/banking/internal/models"
	"github.com/ruralpay/banking/internal/services"
	"github.com/sirupsen/logrus"
)

// statusFor maps ledger error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
		message = "Internal server error"
	}
	services.SendErrorResponse(w, message, status, nil)
}
