package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shopkartapp/shopkart/internal/models"
)

type contextKey string

const identityContextKey contextKey = "identity"

type apiClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate validates the bearer token and stores the caller's
// identity in the request context. Tokens are HS256, subject is the
// user ID, role rides in a custom claim. Requests without a valid
// token are rejected.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, err := h.identityFromRequest(r)
		if err != nil {
			h.loggerFromContext(ctx).Warn("authentication failed", "error", err)
			h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(ctx, identity)))
	})
}

func (h *Handlers) identityFromRequest(r *http.Request) (models.Identity, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return models.Identity{}, fmt.Errorf("missing bearer token")
	}

	claims := &apiClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(h.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return models.Identity{}, fmt.Errorf("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid token subject: %w", err)
	}

	role := models.Role(claims.Role)
	if role != models.RoleAdmin {
		role = models.RoleBuyer
	}
	return models.Identity{UserID: userID, Role: role}, nil
}

func withIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func identityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(models.Identity)
	return identity, ok
}

// RequireAdmin rejects non-admin callers before the handler runs. The
// services enforce authorization again; this just fails fast.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, ok := identityFromContext(ctx)
		if !ok || !identity.IsAdmin() {
			h.writeJSON(ctx, w, http.StatusForbidden, errorResponse{Error: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) callerIdentity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		h.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return models.Identity{}, false
	}
	return identity, true
}
