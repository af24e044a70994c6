package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"stakevault/crypto"
)

// AuthConfig configures bearer token validation. Tokens are HMAC-signed JWTs
// whose subject is the bech32 account of the caller.
type AuthConfig struct {
	Enabled               bool
	Secret                []byte
	Issuer                string
	Audience              []string
	AllowAnonymousQueries bool
	ClockSkew             time.Duration
}

type contextKey string

const contextKeySender contextKey = "stakevault.sender"

// SenderHeader names the caller account when authentication is disabled.
const SenderHeader = "X-Vault-Sender"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

type authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
}

func newAuthenticator(cfg AuthConfig, logger *slog.Logger) *authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 30 * time.Second
	}
	return &authenticator{cfg: cfg, logger: logger}
}

// middleware resolves the caller and stores it on the request context.
// Anonymous GET requests pass through when allowed.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sender, err := a.authenticate(r)
		if err != nil {
			if errors.Is(err, errMissingToken) && r.Method == http.MethodGet && a.cfg.AllowAnonymousQueries {
				next.ServeHTTP(w, r)
				return
			}
			a.logger.DebugContext(r.Context(), "auth rejected",
				slog.String("route", r.URL.Path),
				slog.Any("error", err))
			writeError(w, http.StatusUnauthorized, "unauthorized", "authorization", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeySender, sender)))
	})
}

func (a *authenticator) authenticate(r *http.Request) (crypto.Address, error) {
	if !a.cfg.Enabled {
		raw := strings.TrimSpace(r.Header.Get(SenderHeader))
		if raw == "" {
			return crypto.Address{}, errMissingToken
		}
		return crypto.ParseAddress(raw, crypto.AccountPrefix)
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return crypto.Address{}, errMissingToken
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	addr, err := crypto.ParseAddress(claims.Subject, crypto.AccountPrefix)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: subject: %v", errInvalidToken, err)
	}
	return addr, nil
}

func (a *authenticator) parseToken(tokenString string) (*jwt.RegisteredClaims, error) {
	if len(a.cfg.Secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	if len(a.cfg.Audience) > 0 && !audienceMatches(claims.Audience, a.cfg.Audience) {
		return nil, errors.New("audience mismatch")
	}
	return claims, nil
}

func audienceMatches(have jwt.ClaimStrings, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SenderFromContext returns the authenticated caller, if any.
func SenderFromContext(ctx context.Context) (crypto.Address, bool) {
	addr, ok := ctx.Value(contextKeySender).(crypto.Address)
	return addr, ok && !addr.IsZero()
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(secret []byte, issuer string, audience []string, subject crypto.Address, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth secret required")
	}
	if subject.IsZero() {
		return "", errors.New("subject required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if len(audience) > 0 {
		claims.Audience = jwt.ClaimStrings(audience)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
