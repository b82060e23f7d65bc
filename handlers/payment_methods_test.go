package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePaymentMethod_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	bodies := []string{
		`{}`,
		`{"cardNumber":"4242424242424242","expirationMonth":"3","expirationYear":"2030"}`,
		`{"cardNumber":"","expirationMonth":3,"expirationYear":2030,"cvc":"123"}`,
		`{"cardNumber":"4242424242424242","expirationMonth":0,"expirationYear":2030,"cvc":"123"}`,
	}

	for _, body := range bodies {
		w := env.do(http.MethodPost, "/api/payment-methods", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, msgMissingCardFields, decodeBody(t, w)["error"])
	}
	assert.Zero(t, env.upstream.count())
}

func TestCreatePaymentMethod_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/payment-methods",
		`{"cardNumber":"4242424242424242","expirationMonth":3,"expirationYear":2030,"cvc":"123"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Missing Authorization header", decodeBody(t, w)["error"])
}

func TestCreatePaymentMethod_ForwardsCard(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodPost, "/projects/proj-1/payment-methods", http.StatusCreated, `{"id":"pm_1","card":{"brand":"visa"}}`)

	w := env.do(http.MethodPost, "/api/payment-methods",
		`{"cardNumber":"4242 4242 4242 4242","expirationMonth":3,"expirationYear":2030,"cvc":"123"}`,
		"Authorization", "Bearer tok-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"pm_1","card":{"brand":"visa"}}`, w.Body.String())

	call := env.upstream.last()
	assert.Equal(t, "Bearer tok-1", call.Auth)
	assert.Equal(t, "user123", call.Body["entityId"])
	assert.Equal(t, map[string]any{
		"number":          "4242424242424242",
		"expirationMonth": "03",
		"expirationYear":  "2030",
		"cvc":             "123",
	}, call.Body["card"])
}

func TestCreatePaymentMethod_ForwardsUpstreamStatus(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodPost, "/projects/proj-1/payment-methods", http.StatusForbidden, `{"error":"role public cannot create"}`)

	w := env.do(http.MethodPost, "/api/payment-methods",
		`{"cardNumber":"4242424242424242","expirationMonth":"12","expirationYear":"2030","cvc":"123"}`,
		"X-JWT-Token", "tok-2")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "role public cannot create", decodeBody(t, w)["error"])
	assert.Equal(t, "Bearer tok-2", env.upstream.last().Auth)
}

func TestListPaymentMethods(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodGet, "/projects/proj-1/payment-methods", http.StatusOK, `[{"id":"pm_1"}]`,
		"X-Total-Count", "21", "X-Has-Next", "true")

	w := env.do(http.MethodGet, "/api/payment-methods", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/payment-methods?limit=20&offset=0", "", "Authorization", "Bearer tok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"pm_1"}]`, w.Body.String())
	assert.Equal(t, "limit=20&offset=0", env.upstream.last().Query)

	assert.Equal(t, "21", w.Header().Get("X-Total-Count"))
	assert.Equal(t, "20", w.Header().Get("X-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-Offset"))
	assert.Equal(t, "true", w.Header().Get("X-Has-Next"))
	assert.Equal(t, "false", w.Header().Get("X-Has-Previous"))
}

func TestGetPaymentMethod(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.on(http.MethodGet, "/projects/proj-1/payment-methods/pm_9", http.StatusOK, `{"id":"pm_9"}`)

	w := env.do(http.MethodGet, "/api/payment-methods/pm_9", "", "Authorization", "Bearer tok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"pm_9"}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/payment-methods/missing", "", "Authorization", "Bearer tok")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", decodeBody(t, w)["error"])
}

func TestPadMonth(t *testing.T) {
	assert.Equal(t, "03", padMonth("3"))
	assert.Equal(t, "12", padMonth("12"))
	assert.Equal(t, "00", padMonth(""))
}
