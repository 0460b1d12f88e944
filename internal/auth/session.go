package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie the identity provider stores its session token in
const SessionCookieName = "__session"

// SessionVerifier validates identity-provider session tokens
type SessionVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewSessionVerifier creates a verifier for HS256 tokens issued by issuer.
// An empty issuer disables the issuer check.
func NewSessionVerifier(secret, issuer string) *SessionVerifier {
	return &SessionVerifier{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 5 * time.Second,
	}
}

// Verify parses a session token and returns its claims
func (v *SessionVerifier) Verify(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSessionInvalid, err)
	}

	if !token.Valid {
		return nil, models.ErrSessionInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", models.ErrSessionInvalid)
	}

	return claims, nil
}

// VerifyRequest reads the session token from the request and verifies it
func (v *SessionVerifier) VerifyRequest(r *http.Request) (*models.SessionClaims, error) {
	tokenString := SessionTokenFromRequest(r)
	if tokenString == "" {
		return nil, models.ErrSessionMissing
	}
	return v.Verify(tokenString)
}

// SessionTokenFromRequest returns the session cookie, or the Bearer token when no cookie is set
func SessionTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SessionTokenParams describes a session token to issue
type SessionTokenParams struct {
	UserID string
	Email  string
	OrgID  string
	Role   string
	TTL    time.Duration
}

// IssueSessionToken signs a session token the verifier accepts.
// Used by tests and local development where no identity provider is running.
func (v *SessionVerifier) IssueSessionToken(p SessionTokenParams) (string, error) {
	if p.TTL <= 0 {
		p.TTL = time.Hour
	}
	now := time.Now()

	claims := &models.SessionClaims{
		SessionID: uuid.New().String(),
		Email:     p.Email,
		OrgID:     p.OrgID,
		Role:      p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   p.UserID,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return tokenString, nil
}
