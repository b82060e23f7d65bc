package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"payments-playground-api/config"
	"payments-playground-api/middleware"
	"payments-playground-api/models"
	"payments-playground-api/services/auth"
	"payments-playground-api/utils"
)

type AuthHandler struct {
	jwtService *auth.JWTService
	resolver   *middleware.TokenResolver
	defaults   config.DefaultsConfig
	logger     *slog.Logger
}

func NewAuthHandler(jwtService *auth.JWTService, resolver *middleware.TokenResolver, defaults config.DefaultsConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		jwtService: jwtService,
		resolver:   resolver,
		defaults:   defaults,
		logger:     logger,
	}
}

// DefaultJWT mints a token for the configured default user and roles.
func (h *AuthHandler) DefaultJWT(w http.ResponseWriter, r *http.Request) {
	h.issue(w, h.defaults.UserID, h.defaults.Roles, "JWT generation failed")
}

// CustomJWT mints a token for the userId and roles in the body, falling back
// to the defaults for anything omitted.
func (h *AuthHandler) CustomJWT(w http.ResponseWriter, r *http.Request) {
	var req models.JWTRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.logger.Info("error decoding jwt request", "err", err)
		utils.SendErrorResponse(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = h.defaults.UserID
	}
	roles := req.Roles
	if roles == nil {
		roles = h.defaults.Roles
	}

	h.issue(w, userID, roles, "JWT generation failed")
}

// BackendJWT shows the private token the proxy routes mint when the browser
// sends none.
func (h *AuthHandler) BackendJWT(w http.ResponseWriter, r *http.Request) {
	h.issue(w, h.defaults.UserID, []string{auth.RolePrivate}, "Backend JWT fetch failed")
}

// GenerateJWT mints a single-role token for an entity and keeps it in the
// session so later proxy calls can reuse it.
func (h *AuthHandler) GenerateJWT(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateJWTRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.logger.Info("error decoding generate-jwt request", "err", err)
		utils.SendErrorResponse(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if strings.TrimSpace(req.EntityID) == "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Entity ID is required")
		return
	}
	if req.Role != auth.RolePublic && req.Role != auth.RolePrivate {
		utils.SendErrorResponse(w, http.StatusBadRequest, `Role must be either "public" or "private"`)
		return
	}

	token, err := h.jwtService.GenerateToken(req.EntityID, []string{req.Role})
	if err != nil {
		h.logger.Error("failed to generate JWT", "err", err, "entity_id", req.EntityID)
		utils.SendErrorResponse(w, http.StatusInternalServerError, "Failed to generate JWT")
		return
	}

	if err := h.resolver.Remember(w, r, token); err != nil {
		h.logger.Warn("failed to store JWT in session", "err", err)
	}

	h.logger.Info("JWT generated", "entity_id", req.EntityID, "role", req.Role)
	utils.SendJSON(w, http.StatusOK, models.TokenResponse{JWT: token})
}

type decodeResponse struct {
	Claims    *auth.ClaimsView `json:"claims"`
	ExpiresAt string           `json:"expiresAt"`
	Expired   bool             `json:"expired"`
	Verified  bool             `json:"verified"`
}

// Decode shows the claims of any token and whether this service signed it.
func (h *AuthHandler) Decode(w http.ResponseWriter, r *http.Request) {
	var req models.DecodeJWTRequest
	if err := decodeJSON(r, &req, false); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	token := strings.TrimSpace(req.JWT)
	if token == "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, "JWT is required")
		return
	}

	claims, err := auth.DecodeToken(token)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid JWT")
		return
	}

	_, verifyErr := h.jwtService.ValidateToken(token)

	utils.SendJSON(w, http.StatusOK, decodeResponse{
		Claims:    claims,
		ExpiresAt: auth.FormatExpiry(claims.Exp),
		Expired:   errors.Is(verifyErr, auth.ErrTokenExpired),
		Verified:  verifyErr == nil,
	})
}

// JWKS publishes the verification key.
func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	utils.SendJSON(w, http.StatusOK, map[string][]auth.JWK{
		"keys": {h.jwtService.PublicJWK()},
	})
}

func (h *AuthHandler) issue(w http.ResponseWriter, userID string, roles []string, failure string) {
	issued, err := h.jwtService.Issue(userID, roles)
	if err != nil {
		h.logger.Error(failure, "err", err, "user_id", userID)
		utils.SendError(w, http.StatusInternalServerError, models.ErrorResponse{
			Error:   failure,
			Message: err.Error(),
		})
		return
	}

	h.logger.Debug("JWT issued", "user_id", userID, "roles", roles)
	utils.SendJSON(w, http.StatusOK, issued)
}
