package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruralpay/banking/internal/models"
	"github.com/ruralpay/banking/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type AccountService interface {
	CreateAccount(ctx context.Context, in services.CreateAccountInput) (*models.Account, error)
	GetAccount(ctx context.Context, accountNumber uuid.UUID) (*models.Account, error)
}

type CreateAccountRequest struct {
	OwnerName string          `json:"ownerName" validate:"required,notblank,max=100"`
	Balance   decimal.Decimal `json:"balance" swaggertype:"string" example:"0.00" validate:"balance"`
}

type AccountHandler struct {
	service   AccountService
	validator *services.ValidationHelper
	logger    *logrus.Logger
}

func NewAccountHandler(service AccountService, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger,
	}
}

// CreateAccount opens an account
// @Summary Create account
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest true "Account to open"
// @Success 201 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /accounts [post]
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), services.CreateAccountInput{
		OwnerName: req.OwnerName,
		Balance:   req.Balance,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// GetAccount returns an account by its account number
// @Summary Get account
// @Tags accounts
// @Produce json
// @Param accountNumber path string true "Account number (UUID)"
// @Success 200 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountNumber} [get]
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	number, err := uuid.Parse(chi.URLParam(r, "accountNumber"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid account number", http.StatusBadRequest, nil)
		return
	}

	account, err := h.service.GetAccount(r.Context(), number)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
