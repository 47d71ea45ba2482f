package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoVerificationKey is returned when verification is enabled without a
// JWKS URL or shared secret.
var ErrNoVerificationKey = errors.New("jwt verification enabled but no JWKS URL or secret configured")

// TokenValidator defines the interface for JWT token validation.
type TokenValidator interface {
	// ValidateToken validates a JWT token string and returns the claims.
	ValidateToken(tokenString string) (*Claims, error)
	// Close releases any resources held by the validator.
	Close()
}

// ValidatorConfig selects how tokens are verified.
type ValidatorConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// Set to false for development mode (parses tokens without verification).
	EnableVerification bool
	// JWKSURL enables asymmetric verification against the identity provider's key set.
	JWKSURL string
	// Secret enables HS256 verification. Used when JWKSURL is empty.
	Secret string
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Audience, when set, must be present in the token's aud claim.
	Audience string
}

// JWTValidator validates tokens against a JWKS endpoint or a shared secret.
type JWTValidator struct {
	jwks    keyfunc.Keyfunc
	secret  []byte
	config  ValidatorConfig
	options []jwt.ParserOption
}

// NewJWTValidator creates a validator. With a JWKS URL the key set is fetched
// once here and refreshed in the background by keyfunc.
func NewJWTValidator(ctx context.Context, config ValidatorConfig) (*JWTValidator, error) {
	v := &JWTValidator{config: config}

	if !config.EnableVerification {
		return v, nil
	}

	switch {
	case config.JWKSURL != "":
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{config.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client: %w", err)
		}
		v.jwks = jwks
		v.options = append(v.options, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}))
	case config.Secret != "":
		v.secret = []byte(config.Secret)
		v.options = append(v.options, jwt.WithValidMethods([]string{"HS256"}))
	default:
		return nil, ErrNoVerificationKey
	}

	if config.Issuer != "" {
		v.options = append(v.options, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		v.options = append(v.options, jwt.WithAudience(config.Audience))
	}
	v.options = append(v.options, jwt.WithExpirationRequired())
	return v, nil
}

// ValidateToken validates a JWT token and returns the claims.
// If verification is disabled, it parses the token without signature validation.
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	if !v.config.EnableVerification {
		return v.parseUnverifiedToken(tokenString)
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}
	if v.jwks != nil {
		keyFunc = v.jwks.Keyfunc
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyFunc, v.options...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// parseUnverifiedToken parses a JWT without verifying the signature.
// Used in development mode when EnableVerification is false.
func (v *JWTValidator) parseUnverifiedToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

// Close releases any resources held by the validator.
// Currently a no-op as keyfunc v3 doesn't require explicit cleanup.
func (v *JWTValidator) Close() {}

// Ensure JWTValidator implements TokenValidator at compile time.
var _ TokenValidator = (*JWTValidator)(nil)
