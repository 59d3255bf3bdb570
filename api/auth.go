package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/workload-engine/allocation"
	"github.com/warp/workload-engine/workload"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// TOKENS
// =============================================================================

// Claims is the JWT payload: who the caller is and which company they act in.
type Claims struct {
	UserID    int64  `json:"id"`
	Role      string `json:"role"`
	CompanyID int64  `json:"company_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for user.
func (ti *TokenIssuer) Issue(user workload.User) (string, time.Time, error) {
	issuedAt := ti.now()
	expires := issuedAt.Add(ti.ttl)
	claims := Claims{
		UserID:    user.ID,
		Role:      user.Role.String(),
		CompanyID: int64(user.CompanyID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Verify parses a token and returns the actor it names.
func (ti *TokenIssuer) Verify(token string) (allocation.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(ti.now))
	if err != nil {
		return allocation.Actor{}, err
	}
	role, err := workload.ParseRole(claims.Role)
	if err != nil {
		return allocation.Actor{}, err
	}
	return allocation.Actor{
		UserID:    claims.UserID,
		Role:      role,
		CompanyID: workload.CompanyID(claims.CompanyID),
	}, nil
}

// =============================================================================
// PASSWORDS
// =============================================================================

const minPasswordLength = 8

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", &workload.FieldError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type actorKey struct{}

var errMissingToken = errors.New("missing bearer token")

// Authenticate rejects requests without a valid bearer token and stores the
// actor in the request context.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required", errMissingToken)
			return
		}
		actor, err := h.Tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFrom(ctx context.Context) allocation.Actor {
	actor, _ := ctx.Value(actorKey{}).(allocation.Actor)
	return actor
}
