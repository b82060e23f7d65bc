package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"payments-playground-api/middleware"
	"payments-playground-api/models"
	"payments-playground-api/services/btai"
	"payments-playground-api/utils"
)

// PaymentsAPI is the slice of the payments API client the handlers call.
type PaymentsAPI interface {
	CreatePaymentMethod(ctx context.Context, jwt string, req btai.PaymentMethodRequest) (json.RawMessage, error)
	ListPaymentMethods(ctx context.Context, jwt string, page utils.Page) (*btai.ListResult, error)
	GetPaymentMethod(ctx context.Context, jwt, id string) (json.RawMessage, error)
	PaymentMethodBrand(ctx context.Context, jwt, id string) (string, error)
	CreatePurchaseIntent(ctx context.Context, jwt string, req btai.PurchaseIntentRequest) (json.RawMessage, error)
	ListPurchaseIntents(ctx context.Context, jwt string, page utils.Page) (*btai.ListResult, error)
	GetPurchaseIntent(ctx context.Context, jwt, id string) (json.RawMessage, error)
	VerifyPurchaseIntent(ctx context.Context, jwt, id string, req map[string]any) (json.RawMessage, error)
}

const msgMissingCardFields = "Missing one or more required fields: cardNumber, expirationMonth, expirationYear, cvc"

type PaymentMethodHandler struct {
	api           PaymentsAPI
	resolver      *middleware.TokenResolver
	defaultEntity string
	logger        *slog.Logger
}

func NewPaymentMethodHandler(api PaymentsAPI, resolver *middleware.TokenResolver, defaultEntity string, logger *slog.Logger) *PaymentMethodHandler {
	return &PaymentMethodHandler{
		api:           api,
		resolver:      resolver,
		defaultEntity: defaultEntity,
		logger:        logger,
	}
}

// Create tokenizes a card for the default entity. Field checks run before the
// token check so a bad form always gets a 400.
func (h *PaymentMethodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePaymentMethodRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.logger.Info("error decoding payment method request", "err", err)
		utils.SendErrorResponse(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if req.CardNumber.Missing() || req.ExpirationMonth.Missing() || req.ExpirationYear.Missing() || req.CVC.Missing() {
		utils.SendErrorResponse(w, http.StatusBadRequest, msgMissingCardFields)
		return
	}

	jwt := h.resolver.Resolve(r)
	if jwt == "" {
		utils.SendErrorResponse(w, http.StatusUnauthorized, middleware.MessageMissingAuthorization)
		return
	}

	body, err := h.api.CreatePaymentMethod(r.Context(), jwt, btai.PaymentMethodRequest{
		EntityID: h.defaultEntity,
		Card: btai.Card{
			Number:          strings.ReplaceAll(req.CardNumber.String(), " ", ""),
			ExpirationMonth: padMonth(strings.TrimSpace(req.ExpirationMonth.String())),
			ExpirationYear:  strings.TrimSpace(req.ExpirationYear.String()),
			CVC:             strings.TrimSpace(req.CVC.String()),
		},
	})
	if err != nil {
		respondError(w, r, h.logger, err, "payment method creation")
		return
	}

	utils.SendRawJSON(w, http.StatusOK, body)
}

func (h *PaymentMethodHandler) List(w http.ResponseWriter, r *http.Request) {
	page := utils.ParsePage(r.URL.Query())

	result, err := h.api.ListPaymentMethods(r.Context(), middleware.TokenFromContext(r.Context()), page)
	if err != nil {
		respondError(w, r, h.logger, err, "payment methods fetch")
		return
	}

	result.Pagination.Apply(w.Header())
	utils.SendRawJSON(w, http.StatusOK, result.Data)
}

func (h *PaymentMethodHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := h.api.GetPaymentMethod(r.Context(), middleware.TokenFromContext(r.Context()), id)
	if err != nil {
		respondError(w, r, h.logger, err, "payment method fetch")
		return
	}

	utils.SendRawJSON(w, http.StatusOK, body)
}

func padMonth(m string) string {
	for len(m) < 2 {
		m = "0" + m
	}
	return m
}
