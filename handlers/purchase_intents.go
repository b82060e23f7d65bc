package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"payments-playground-api/middleware"
	"payments-playground-api/models"
	"payments-playground-api/services/btai"
	"payments-playground-api/utils"
)

// Verification actions understood by the payments API.
const (
	ActionStart               = "START"
	ActionSelectOTP           = "SELECT_OTP"
	ActionValidateOTP         = "VALIDATE_OTP"
	ActionAuthenticatePasskey = "AUTHENTICATE_PASSKEY"
)

const MessageVerifyTokenRequired = "JWT token is required for verification"

type PurchaseIntentHandler struct {
	api           PaymentsAPI
	resolver      *middleware.TokenResolver
	defaultEntity string
	logger        *slog.Logger
	now           func() time.Time
}

func NewPurchaseIntentHandler(api PaymentsAPI, resolver *middleware.TokenResolver, defaultEntity string, logger *slog.Logger) *PurchaseIntentHandler {
	return &PurchaseIntentHandler{
		api:           api,
		resolver:      resolver,
		defaultEntity: defaultEntity,
		logger:        logger,
		now:           time.Now,
	}
}

// Create looks up the payment method's brand to pick the credential type,
// then creates the intent with the body's mandates or the demo set. Without
// a caller token it mints a private one for the intent's entity.
func (h *PurchaseIntentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePurchaseIntentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.logger.Info("error decoding purchase intent request", "err", err)
		utils.SendErrorResponse(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if strings.TrimSpace(req.PaymentMethodID) == "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Missing required field: paymentMethodId")
		return
	}

	entityID := strings.TrimSpace(req.EntityID)
	if entityID == "" {
		entityID = h.defaultEntity
	}

	// a minted token must name the same entity the intent is created for
	jwt, err := h.resolver.ResolveOrMint(r, entityID)
	if err != nil {
		h.logger.Error("minting purchase intent token", "err", err, "entity_id", entityID)
		utils.SendErrorResponse(w, http.StatusInternalServerError, middleware.MessageMintFailed)
		return
	}

	ctx := r.Context()

	brand, err := h.api.PaymentMethodBrand(ctx, jwt, req.PaymentMethodID)
	if err != nil {
		respondError(w, r, h.logger, err, "payment method lookup")
		return
	}

	mandates := req.Mandates
	if len(mandates) == 0 {
		mandates = btai.DefaultMandates(h.now())
	}

	body, err := h.api.CreatePurchaseIntent(ctx, jwt, btai.PurchaseIntentRequest{
		EntityID:        entityID,
		PaymentMethodID: req.PaymentMethodID,
		CredentialType:  btai.CredentialTypeForBrand(brand),
		Mandates:        mandates,
	})
	if err != nil {
		respondError(w, r, h.logger, err, "purchase intent creation")
		return
	}

	h.logger.Info("purchase intent created",
		"entity_id", entityID,
		"payment_method_id", req.PaymentMethodID,
		"brand", brand,
	)
	utils.SendRawJSON(w, http.StatusOK, body)
}

func (h *PurchaseIntentHandler) List(w http.ResponseWriter, r *http.Request) {
	page := utils.ParsePage(r.URL.Query())

	result, err := h.api.ListPurchaseIntents(r.Context(), middleware.TokenFromContext(r.Context()), page)
	if err != nil {
		respondError(w, r, h.logger, err, "purchase intents fetch")
		return
	}

	result.Pagination.Apply(w.Header())
	utils.SendRawJSON(w, http.StatusOK, result.Data)
}

// Get serves both /{id} and /{id}/details.
func (h *PurchaseIntentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := h.api.GetPurchaseIntent(r.Context(), middleware.TokenFromContext(r.Context()), id)
	if err != nil {
		respondError(w, r, h.logger, err, "purchase intent details fetch")
		return
	}

	utils.SendRawJSON(w, http.StatusOK, body)
}

// Verify drives one step of the card network verification flow.
func (h *PurchaseIntentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var raw map[string]any
	if err := decodeJSON(r, &raw, true); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if raw == nil {
		raw = map[string]any{}
	}

	action, _ := raw["action"].(string)
	brand, _ := raw["brand"].(string)
	delete(raw, "action")
	delete(raw, "brand")

	body := VerificationBody(action, brand, raw)

	h.logger.Info("forwarding purchase intent verification",
		"intent_id", id,
		"action", body["action"],
		"brand", brand,
	)

	resp, err := h.api.VerifyPurchaseIntent(r.Context(), middleware.TokenFromContext(r.Context()), id, body)
	if err != nil {
		if rich, ok := btai.IsUpstreamStatus(err); ok {
			h.logger.Info("verification rejected by payments API", "intent_id", id, "status", rich.Code)
			utils.SendError(w, rich.Code, models.ErrorResponse{
				Error:   rich.Message,
				Details: rich.Metadata["body"],
				Status:  rich.Code,
			})
			return
		}

		h.logger.Error("verification failed", "intent_id", id, "err", err)
		utils.SendError(w, http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Internal server error during verification",
			Details: err.Error(),
		})
		return
	}

	metadata := map[string]any{
		"intentId":  id,
		"action":    body["action"],
		"timestamp": h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if brand != "" {
		metadata["brand"] = brand
	}

	var out map[string]any
	if err := json.Unmarshal(resp, &out); err != nil || out == nil {
		out = map[string]any{"data": resp}
	}
	out["metadata"] = metadata

	utils.SendJSON(w, http.StatusOK, out)
}

// VerificationBody shapes the upstream verify request. A missing action is
// sent as START, but its fields are merged as for an unknown action.
func VerificationBody(action, brand string, fields map[string]any) map[string]any {
	body := map[string]any{"action": action}
	if action == "" {
		body["action"] = ActionStart
	}

	switch action {
	case ActionStart:
		if brand != "" {
			body["brand"] = brand
		}
		if v, ok := fields["iframeData"]; ok && truthy(v) {
			body["iframeData"] = v
		}
	case ActionSelectOTP:
		if v, ok := fields["methodId"]; ok && truthy(v) {
			body["payload"] = map[string]any{"methodId": v}
		}
	case ActionValidateOTP:
		if v, ok := fields["otpCode"]; ok && truthy(v) {
			body["payload"] = map[string]any{"otpCode": v}
		}
	case ActionAuthenticatePasskey:
		if v, ok := fields["assuranceData"]; ok && truthy(v) {
			body["payload"] = map[string]any{"assuranceData": v}
		}
	default:
		for k, v := range fields {
			body[k] = v
		}
	}
	return body
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
