package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"payments-playground-api/services/auth"
	"payments-playground-api/utils"
)

type contextKey string

const tokenContextKey contextKey = "jwt"

const (
	HeaderJWTToken  = "X-JWT-Token"
	SessionName     = "playground-session"
	SessionTokenKey = "jwt"

	MessageMissingAuthorization = "Missing Authorization header"
	MessageMintFailed           = "JWT generation failed"
)

// TokenPolicy decides what happens when a request carries no token.
type TokenPolicy int

const (
	// RequireToken rejects the request with 401.
	RequireToken TokenPolicy = iota
	// DefaultToken mints a private token for the default user.
	DefaultToken
)

// Minter is the part of the JWT service the resolver needs.
type Minter interface {
	GenerateToken(userID string, roles []string) (string, error)
}

// TokenResolver finds the JWT a request should forward upstream. Sources are
// tried in order: Authorization bearer, X-JWT-Token, then the session cookie.
type TokenResolver struct {
	store       sessions.Store
	minter      Minter
	defaultUser string
	logger      *slog.Logger
}

func NewTokenResolver(store sessions.Store, minter Minter, defaultUser string, logger *slog.Logger) *TokenResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenResolver{
		store:       store,
		minter:      minter,
		defaultUser: defaultUser,
		logger:      logger,
	}
}

// Resolve returns the request's token, or "" when none was supplied.
func (tr *TokenResolver) Resolve(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if token := strings.TrimSpace(r.Header.Get(HeaderJWTToken)); token != "" {
		return token
	}
	return tr.sessionToken(r)
}

// ResolveOrMint returns the request's token, or a freshly minted private
// token for userID when the request carries none.
func (tr *TokenResolver) ResolveOrMint(r *http.Request, userID string) (string, error) {
	if token := tr.Resolve(r); token != "" {
		return token, nil
	}
	return tr.minter.GenerateToken(userID, []string{auth.RolePrivate})
}

// Remember stores token in the caller's session cookie.
func (tr *TokenResolver) Remember(w http.ResponseWriter, r *http.Request, token string) error {
	if tr.store == nil {
		return nil
	}
	session, err := tr.store.Get(r, SessionName)
	if err != nil {
		// a cookie signed with an old secret still yields a usable new session
		tr.logger.Debug("discarding unreadable session", "err", err)
	}
	session.Values[SessionTokenKey] = token
	return session.Save(r, w)
}

// Middleware applies policy to every request. message is the 401 body used
// by RequireToken.
func (tr *TokenResolver) Middleware(policy TokenPolicy, message string) func(http.Handler) http.Handler {
	if message == "" {
		message = MessageMissingAuthorization
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			switch policy {
			case DefaultToken:
				minted, err := tr.ResolveOrMint(r, tr.defaultUser)
				if err != nil {
					tr.logger.Error("minting default token", "err", err, "path", r.URL.Path)
					utils.SendErrorResponse(w, http.StatusInternalServerError, MessageMintFailed)
					return
				}
				token = minted
			default:
				token = tr.Resolve(r)
				if token == "" {
					tr.logger.Info("request without token", "path", r.URL.Path, "remote", r.RemoteAddr)
					utils.SendErrorResponse(w, http.StatusUnauthorized, message)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}

func (tr *TokenResolver) sessionToken(r *http.Request) string {
	if tr.store == nil {
		return ""
	}
	session, err := tr.store.Get(r, SessionName)
	if err != nil {
		return ""
	}
	token, _ := session.Values[SessionTokenKey].(string)
	return token
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// TokenFromContext returns the token placed by TokenResolver.Middleware.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
