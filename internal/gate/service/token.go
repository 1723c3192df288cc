package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zonegate/server/internal/gate/store"
)

// Token verification failure reasons.
const (
	TokenMalformed         = "malformed_token"
	TokenMissingIssuer     = "missing_issuer_claim"
	TokenUnknownIssuer     = "unknown_issuer"
	TokenSignatureInvalid  = "signature_invalid"
	TokenExpired           = "expired"
	TokenMissingSubject    = "missing_subject"
	TokenVerificationError = "verification_error"
)

// defaultTokenAlg is assumed when a token header omits alg.
const defaultTokenAlg = "RS256"

// registeredClaims are excluded from the free-form attribute map.
var registeredClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {},
	"nbf": {}, "iat": {}, "jti": {}, "userId": {},
}

// TokenResult reports issuer-token verification.  Subject, Issuer and
// Attributes are only populated when Valid.
type TokenResult struct {
	Valid      bool
	Reason     string
	Details    string
	Subject    string
	Issuer     string
	Attributes map[string]any
}

func tokenFailed(reason, details string) TokenResult {
	return TokenResult{Reason: reason, Details: details}
}

// TokenVerifier verifies signed user-identity tokens against the issuer
// trust store.
//
// The claimed issuer and algorithm are read from the token before any
// signature check, but only to select which public key to try; the trust
// store's recorded algorithm always wins over the token's self-declared
// one, and nothing unverified ever reaches authorization.
type TokenVerifier struct {
	keys   store.KeyStore
	logger *log.Logger
	now    func() time.Time
}

func NewTokenVerifier(keys store.KeyStore, logger *log.Logger) *TokenVerifier {
	return &TokenVerifier{keys: keys, logger: logger, now: time.Now}
}

// WithClock overrides the verifier's clock.  Test-only.
func (v *TokenVerifier) WithClock(now func() time.Time) *TokenVerifier {
	v.now = now
	return v
}

func (v *TokenVerifier) Verify(ctx context.Context, token string) TokenResult {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return tokenFailed(TokenMalformed, "token must have three segments")
	}

	claimedAlg, issuer, reason := preParse(parts)
	if reason != "" {
		if reason == TokenMissingIssuer {
			return tokenFailed(TokenMissingIssuer, "token has no issuer claim")
		}
		return tokenFailed(TokenMalformed, "token segments are not valid base64url JSON")
	}

	key, found, err := v.keys.IssuerKey(ctx, issuer)
	if err != nil {
		v.logger.Printf("issuer key lookup failed for %s: %v", issuer, err)
		return tokenFailed(TokenVerificationError, "issuer key lookup failed")
	}
	if !found {
		v.logger.Printf("issuer public key not found: %s", issuer)
		return tokenFailed(TokenUnknownIssuer, "issuer key not found: "+issuer)
	}

	alg := key.Algorithm
	if alg == "" {
		alg = claimedAlg
	}

	pub, err := parsePublicKeyPEM(key.PublicKeyPEM)
	if err != nil {
		v.logger.Printf("issuer %s key parse error: %v", issuer, err)
		return tokenFailed(TokenVerificationError, "issuer key parse error")
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods([]string{alg}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return tokenFailed(TokenMalformed, "token is malformed")
		}
		return tokenFailed(TokenSignatureInvalid, "token signature is invalid")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return tokenFailed(TokenMalformed, "exp claim is not a number")
	}
	if exp != nil && !exp.Time.After(v.now().UTC()) {
		return tokenFailed(TokenExpired, "token is expired")
	}

	subject, _ := claims["userId"].(string)
	if strings.TrimSpace(subject) == "" {
		subject, _ = claims["sub"].(string)
	}
	if strings.TrimSpace(subject) == "" {
		return tokenFailed(TokenMissingSubject, "token has no userId or sub claim")
	}

	attrs := make(map[string]any)
	for name, value := range claims {
		if _, std := registeredClaims[name]; std {
			continue
		}
		attrs[name] = value
	}

	return TokenResult{
		Valid:      true,
		Subject:    subject,
		Issuer:     issuer,
		Attributes: attrs,
	}
}

// preParse reads the claimed algorithm and issuer from an unverified token.
// Returns a non-empty reason on failure.
func preParse(parts []string) (alg, issuer, reason string) {
	headerJSON, err := decodeSegment(parts[0])
	if err != nil {
		return "", "", TokenMalformed
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return "", "", TokenMalformed
	}
	alg = header.Alg
	if alg == "" {
		alg = defaultTokenAlg
	}

	payloadJSON, err := decodeSegment(parts[1])
	if err != nil {
		return "", "", TokenMalformed
	}
	var payload map[string]any
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return "", "", TokenMalformed
	}
	issuer, _ = payload["iss"].(string)
	if strings.TrimSpace(issuer) == "" {
		return "", "", TokenMissingIssuer
	}
	return alg, issuer, ""
}

func decodeSegment(seg string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(seg)
}
