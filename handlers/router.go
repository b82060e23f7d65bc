package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"payments-playground-api/config"
	"payments-playground-api/middleware"
	"payments-playground-api/queue"
	"payments-playground-api/services/auth"
	"payments-playground-api/utils"
)

// RouterDeps are the services the HTTP surface is built from. RateLimiter
// may be nil.
type RouterDeps struct {
	JWT         *auth.JWTService
	API         PaymentsAPI
	Resolver    *middleware.TokenResolver
	RateLimiter *middleware.RateLimiter
	Events      queue.Sink
	Health      *HealthHandler
	Defaults    config.DefaultsConfig
	Logger      *slog.Logger
}

func NewRouter(d RouterDeps) *mux.Router {
	authHandler := NewAuthHandler(d.JWT, d.Resolver, d.Defaults, d.Logger)
	paymentMethods := NewPaymentMethodHandler(d.API, d.Resolver, d.Defaults.UserID, d.Logger)
	purchaseIntents := NewPurchaseIntentHandler(d.API, d.Resolver, d.Defaults.UserID, d.Logger)
	events := NewEventHandler(d.Events, d.Logger)

	requireToken := d.Resolver.Middleware(middleware.RequireToken, middleware.MessageMissingAuthorization)
	requireVerifyToken := d.Resolver.Middleware(middleware.RequireToken, MessageVerifyTokenRequired)
	defaultToken := d.Resolver.Middleware(middleware.DefaultToken, "")

	chain := []mux.MiddlewareFunc{
		middleware.Recover(d.Logger),
		middleware.RequestID,
		middleware.CORS,
		middleware.Logging(d.Logger),
		middleware.SecurityHeaders,
	}
	if d.RateLimiter != nil {
		chain = append(chain, d.RateLimiter.Middleware())
	}

	router := mux.NewRouter()
	router.Use(chain...)

	// mux skips Use middleware when no route matches
	router.NotFoundHandler = wrap(chain, http.HandlerFunc(notFound))
	router.MethodNotAllowedHandler = wrap(chain, http.HandlerFunc(methodNotAllowed))

	api := router.PathPrefix("/api").Subrouter()

	// Token minting
	api.HandleFunc("/auth/jwt", authHandler.DefaultJWT).Methods("GET", "OPTIONS")
	api.HandleFunc("/auth/jwt", authHandler.CustomJWT).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/backend-jwt", authHandler.BackendJWT).Methods("GET", "OPTIONS")
	api.HandleFunc("/auth/generate-jwt", authHandler.GenerateJWT).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/decode", authHandler.Decode).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/jwks", authHandler.JWKS).Methods("GET", "OPTIONS")

	// Payment methods
	api.HandleFunc("/payment-methods", paymentMethods.Create).Methods("POST", "OPTIONS")
	api.Handle("/payment-methods", requireToken(http.HandlerFunc(paymentMethods.List))).Methods("GET", "OPTIONS")
	api.Handle("/payment-methods/{id}", requireToken(http.HandlerFunc(paymentMethods.Get))).Methods("GET", "OPTIONS")

	// Purchase intents
	api.HandleFunc("/purchase-intents", purchaseIntents.Create).Methods("POST", "OPTIONS")
	api.Handle("/purchase-intents", defaultToken(http.HandlerFunc(purchaseIntents.List))).Methods("GET", "OPTIONS")
	api.Handle("/purchase-intents/{id}", defaultToken(http.HandlerFunc(purchaseIntents.Get))).Methods("GET", "OPTIONS")
	api.Handle("/purchase-intents/{id}/details", defaultToken(http.HandlerFunc(purchaseIntents.Get))).Methods("GET", "OPTIONS")
	api.Handle("/purchase-intents/{id}/verify", requireVerifyToken(http.HandlerFunc(purchaseIntents.Verify))).Methods("POST", "OPTIONS")

	// Analytics
	api.HandleFunc("/event/publish", events.Publish).Methods("POST", "OPTIONS")

	if d.Health != nil {
		api.HandleFunc("/health", d.Health.Health).Methods("GET")
	}

	return router
}

func wrap(chain []mux.MiddlewareFunc, h http.Handler) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func notFound(w http.ResponseWriter, r *http.Request) {
	utils.SendErrorResponse(w, http.StatusNotFound, "Not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	utils.SendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
}
