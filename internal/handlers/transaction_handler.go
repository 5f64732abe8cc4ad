package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruralpay/banking/internal/middleware"
	"github.com/ruralpay/banking/internal/models"
	"github.com/ruralpay/banking/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type TransactionService interface {
	CreateTransaction(ctx context.Context, req services.MovementRequest) (*models.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
}

// CreateTransactionRequest is the wire form of a money movement. Which of From and
// To must be present depends on TransactionType.
type CreateTransactionRequest struct {
	TransactionType models.TransactionType `json:"transactionType" validate:"required,oneof=DEPOSIT WITHDRAW TRANSFER"`
	From            *uuid.UUID             `json:"from,omitempty"`
	To              *uuid.UUID             `json:"to,omitempty"`
	Amount          decimal.Decimal        `json:"amount" swaggertype:"string" example:"100.00" validate:"required,amount"`
}

type TransactionHandler struct {
	service   TransactionService
	validator *services.ValidationHelper
	logger    *logrus.Logger
}

func NewTransactionHandler(service TransactionService, logger *logrus.Logger) *TransactionHandler {
	return &TransactionHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger,
	}
}

// CreateTransaction executes a deposit, withdrawal or transfer
// @Summary Create transaction
// @Description Move money into, out of, or between accounts
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateTransactionRequest true "Movement request"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /transactions [post]
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WithError(err).Debug("Invalid transaction request body")
		if errors.Is(err, errMultipleObjects) {
			services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
			return
		}
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	movement, err := services.NewMovementRequest(req.TransactionType, req.From, req.To, req.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	userID, _ := middleware.UserIDFromContext(r.Context())
	h.logger.WithFields(logrus.Fields{
		"transaction_type": req.TransactionType,
		"user_id":          userID,
	}).Debug("Transaction request accepted")

	record, err := h.service.CreateTransaction(r.Context(), movement)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// GetTransaction returns one ledger record
// @Summary Get transaction
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	record, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
