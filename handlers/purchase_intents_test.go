package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments-playground-api/services/auth"
)

func TestCreatePurchaseIntent_RequiresPaymentMethod(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/purchase-intents", `{"entityId":"e1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required field: paymentMethodId", decodeBody(t, w)["error"])
	assert.Zero(t, env.upstream.count())
}

func TestCreatePurchaseIntent_PicksCredentialByBrand(t *testing.T) {
	tests := []struct {
		brand string
		want  string
	}{
		{"visa", "virtual-card"},
		{"AMEX", "network-token"},
		{"discover", "network-token"},
	}

	for _, tt := range tests {
		t.Run(tt.brand, func(t *testing.T) {
			env := newTestEnv(t)
			env.upstream.on(http.MethodGet, "/projects/proj-1/payment-methods/pm_1", http.StatusOK,
				`{"id":"pm_1","card":{"brand":"`+tt.brand+`"}}`)
			env.upstream.on(http.MethodPost, "/projects/proj-1/purchase-intents", http.StatusCreated, `{"id":"pi_1"}`)

			w := env.do(http.MethodPost, "/api/purchase-intents", `{"paymentMethodId":"pm_1"}`)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.JSONEq(t, `{"id":"pi_1"}`, w.Body.String())

			call := env.upstream.last()
			assert.Equal(t, tt.want, call.Body["credentialType"])
			assert.Equal(t, "user123", call.Body["entityId"])
			assert.Equal(t, "pm_1", call.Body["paymentMethodId"])
			assert.Len(t, call.Body["mandates"], 6)

			// no header was sent, so a private default token was minted
			token := strings.TrimPrefix(call.Auth, "Bearer ")
			view, err := auth.DecodeToken(token)
			require.NoError(t, err)
			assert.Equal(t, []string{auth.RolePrivate}, view.Roles)
		})
	}
}

func TestCreatePurchaseIntent_BodyMandatesAndEntity(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodGet, "/projects/proj-1/payment-methods/pm_1", http.StatusOK, `{"id":"pm_1"}`)
	env.upstream.on(http.MethodPost, "/projects/proj-1/purchase-intents", http.StatusOK, `{"id":"pi_2"}`)

	w := env.do(http.MethodPost, "/api/purchase-intents",
		`{"paymentMethodId":"pm_1","entityId":"e7","mandates":[{"type":"maxAmount","value":"10"}]}`,
		"Authorization", "Bearer caller")
	require.Equal(t, http.StatusOK, w.Code)

	call := env.upstream.last()
	assert.Equal(t, "Bearer caller", call.Auth)
	assert.Equal(t, "e7", call.Body["entityId"])
	assert.Equal(t, "virtual-card", call.Body["credentialType"])
	assert.Equal(t, []any{map[string]any{"type": "maxAmount", "value": "10"}}, call.Body["mandates"])
}

func TestCreatePurchaseIntent_MintsTokenForEntity(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodGet, "/projects/proj-1/payment-methods/pm-1", http.StatusOK, `{"id":"pm-1"}`)
	env.upstream.on(http.MethodPost, "/projects/proj-1/purchase-intents", http.StatusOK, `{"id":"pi_3"}`)

	w := env.do(http.MethodPost, "/api/purchase-intents", `{"paymentMethodId":"pm-1","entityId":"alice"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 2, env.upstream.count())

	call := env.upstream.last()
	assert.Equal(t, "alice", call.Body["entityId"])

	view, err := auth.DecodeToken(strings.TrimPrefix(call.Auth, "Bearer "))
	require.NoError(t, err)
	assert.Equal(t, "alice", view.Sub)
	assert.Equal(t, []string{auth.RolePrivate}, view.Roles)
}

func TestCreatePurchaseIntent_PaymentMethodNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/purchase-intents", `{"paymentMethodId":"pm_x"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, env.upstream.count())
}

func TestListPurchaseIntents_DefaultPagination(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodGet, "/projects/proj-1/purchase-intents", http.StatusOK, `[]`)

	w := env.do(http.MethodGet, "/api/purchase-intents?limit=oops", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "limit=10&offset=0", env.upstream.last().Query)
	assert.Equal(t, "0", w.Header().Get("X-Total-Count"))
	assert.Equal(t, "10", w.Header().Get("X-Limit"))
	assert.Equal(t, "false", w.Header().Get("X-Has-Next"))
}

func TestGetPurchaseIntent_AndDetails(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodGet, "/projects/proj-1/purchase-intents/pi_1", http.StatusOK, `{"id":"pi_1","status":"active"}`)

	for _, path := range []string{"/api/purchase-intents/pi_1", "/api/purchase-intents/pi_1/details"} {
		w := env.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"id":"pi_1","status":"active"}`, w.Body.String())
	}

	w := env.do(http.MethodGet, "/api/purchase-intents/pi_404/details", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerify_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/purchase-intents/pi_1/verify", `{"action":"START"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "JWT token is required for verification", decodeBody(t, w)["error"])
}

func TestVerify_ShapesBodyAndAddsMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodPost, "/projects/proj-1/purchase-intents/pi_1/verify", http.StatusOK, `{"status":"pending"}`)

	w := env.do(http.MethodPost, "/api/purchase-intents/pi_1/verify",
		`{"action":"VALIDATE_OTP","brand":"visa","otpCode":"123456","ignored":true}`,
		"X-JWT-Token", "tok")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, map[string]any{
		"action":  "VALIDATE_OTP",
		"payload": map[string]any{"otpCode": "123456"},
	}, env.upstream.last().Body)

	body := decodeBody(t, w)
	assert.Equal(t, "pending", body["status"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "visa", meta["brand"])
	assert.Equal(t, "pi_1", meta["intentId"])
	assert.Equal(t, "VALIDATE_OTP", meta["action"])
	assert.NotEmpty(t, meta["timestamp"])
}

func TestVerify_ForwardsUpstreamError(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodPost, "/projects/proj-1/purchase-intents/pi_1/verify", http.StatusConflict,
		`{"error":"intent already verified","code":"ALREADY_VERIFIED"}`)

	w := env.do(http.MethodPost, "/api/purchase-intents/pi_1/verify", `{"action":"START","brand":"mastercard"}`,
		"Authorization", "Bearer tok")
	require.Equal(t, http.StatusConflict, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "intent already verified", body["error"])
	assert.Equal(t, float64(http.StatusConflict), body["status"])
	assert.Equal(t, map[string]any{"error": "intent already verified", "code": "ALREADY_VERIFIED"}, body["details"])
}

func TestVerificationBody(t *testing.T) {
	tests := []struct {
		name   string
		action string
		brand  string
		fields map[string]any
		want   map[string]any
	}{
		{
			name:   "start with brand and iframe data",
			action: "START",
			brand:  "visa",
			fields: map[string]any{"iframeData": map[string]any{"w": 400.0}, "other": 1.0},
			want:   map[string]any{"action": "START", "brand": "visa", "iframeData": map[string]any{"w": 400.0}},
		},
		{
			name:   "select otp",
			action: "SELECT_OTP",
			fields: map[string]any{"methodId": "sms"},
			want:   map[string]any{"action": "SELECT_OTP", "payload": map[string]any{"methodId": "sms"}},
		},
		{
			name:   "select otp without method",
			action: "SELECT_OTP",
			fields: map[string]any{},
			want:   map[string]any{"action": "SELECT_OTP"},
		},
		{
			name:   "passkey",
			action: "AUTHENTICATE_PASSKEY",
			fields: map[string]any{"assuranceData": "blob"},
			want:   map[string]any{"action": "AUTHENTICATE_PASSKEY", "payload": map[string]any{"assuranceData": "blob"}},
		},
		{
			name:   "unknown action merges fields",
			action: "CANCEL",
			fields: map[string]any{"reason": "user"},
			want:   map[string]any{"action": "CANCEL", "reason": "user"},
		},
		{
			name:   "missing action is sent as start",
			fields: map[string]any{"reason": "user"},
			want:   map[string]any{"action": "START", "reason": "user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerificationBody(tt.action, tt.brand, tt.fields))
		})
	}
}
